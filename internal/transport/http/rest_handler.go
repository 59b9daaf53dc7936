package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"medquiz-challenge/internal/app"
	"medquiz-challenge/internal/domain"
)

// UserHeader identifies the caller. It stands in for an authenticated session.
const UserHeader = "X-User-ID"

// RESTHandler serves the challenge endpoints the engine polls.
type RESTHandler struct {
	service  *app.ChallengeService
	validate *validator.Validate
	metrics  *Metrics
}

func NewRESTHandler(service *app.ChallengeService, metrics *Metrics) *RESTHandler {
	return &RESTHandler{
		service:  service,
		validate: validator.New(),
		metrics:  metrics,
	}
}

// Routes registers the handler on r.
func (h *RESTHandler) Routes(r *mux.Router) {
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", h.metrics).Methods(http.MethodGet)

	r.HandleFunc("/challenges/{code}", h.getChallenge).Methods(http.MethodGet)
	r.HandleFunc("/challenges/{code}/join", h.join).Methods(http.MethodPost)
	r.HandleFunc("/challenges/{code}/answer", h.submitAnswer).Methods(http.MethodPost)
	r.HandleFunc("/challenges/{code}/answer-status", h.answerStatus).Methods(http.MethodGet)
}

func (h *RESTHandler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *RESTHandler) getChallenge(w http.ResponseWriter, r *http.Request) {
	details, err := h.service.Details(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (h *RESTHandler) join(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	participant, err := h.service.Join(r.Context(), mux.Vars(r)["code"], userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, participant)
}

func (h *RESTHandler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var submission domain.AnswerSubmission
	if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid answer payload"})
		return
	}
	if err := h.validate.Struct(submission); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	res, err := h.service.SubmitAnswer(r.Context(), mux.Vars(r)["code"], userID, submission)
	switch {
	case errors.Is(err, domain.ErrDuplicateAnswer):
		h.metrics.answer("duplicate")
	case err != nil:
		h.metrics.answer("rejected")
	default:
		h.metrics.answer("accepted")
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type statusBody struct {
	UserAnswered  bool `json:"userAnswered"`
	AllAnswered   bool `json:"allAnswered"`
	AnsweredCount int  `json:"answeredCount"`
	TotalCount    int  `json:"totalCount"`
}

func (h *RESTHandler) answerStatus(w http.ResponseWriter, r *http.Request) {
	order, err := strconv.Atoi(r.URL.Query().Get("question_order"))
	if err != nil || order < 1 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "question_order must be a positive integer"})
		return
	}
	h.metrics.statusRead()

	snap, err := h.service.AnswerStatus(r.Context(), mux.Vars(r)["code"], r.Header.Get(UserHeader), order)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, http.StatusOK, statusBody{
		UserAnswered:  snap.UserAnswered,
		AllAnswered:   snap.AllAnswered,
		AnsweredCount: snap.AnsweredCount,
		TotalCount:    snap.TotalCount,
	})
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get(UserHeader)
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing " + UserHeader + " header"})
		return "", false
	}
	return userID, true
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrChallengeNotFound),
		errors.Is(err, domain.ErrQuestionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrParticipantNotFound):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrDuplicateAnswer):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrChallengeNotActive):
		status = http.StatusUnprocessableEntity
	default:
		log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}
