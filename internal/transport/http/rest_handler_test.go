package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medquiz-challenge/internal/app"
	"medquiz-challenge/internal/client"
	"medquiz-challenge/internal/domain"
	"medquiz-challenge/internal/infra/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	repo := memory.NewChallengeRepository(memory.NewStaticChallengeLoader(sampleChallenges()), time.Minute)
	service := app.NewChallengeService(repo, memory.NewPlayStore())

	router := mux.NewRouter()
	NewRESTHandler(service, NewMetrics()).Routes(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func TestChallengeFlowThroughClient(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()
	alice := client.New(server.URL, "alice")
	bob := client.New(server.URL, "bob")

	_, err := alice.Join(ctx, "ABC123")
	require.NoError(t, err)
	_, err = bob.Join(ctx, "ABC123")
	require.NoError(t, err)

	details, err := alice.LoadChallenge(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeActive, details.Challenge.Status)
	assert.Len(t, details.Questions, 2)
	assert.Len(t, details.Participants, 2)

	sub := domain.AnswerSubmission{QuestionID: "q1", QuestionOrder: 1, SelectedAnswer: "Axillary", TimeTakenSeconds: 4}
	res, err := alice.SubmitAnswer(ctx, "ABC123", sub)
	require.NoError(t, err)
	assert.Equal(t, domain.SubmitResult{AnsweredCount: 1, TotalCount: 2}, res)

	_, err = alice.SubmitAnswer(ctx, "ABC123", sub)
	assert.ErrorIs(t, err, domain.ErrDuplicateAnswer)

	snap, err := bob.AnswerStatus(ctx, "ABC123", 1)
	require.NoError(t, err)
	assert.Equal(t, domain.AnswerStatusSnapshot{AnsweredCount: 1, TotalCount: 2, CountsKnown: true}, snap)

	_, err = bob.SubmitAnswer(ctx, "ABC123", domain.AnswerSubmission{QuestionID: "q1", QuestionOrder: 1, SelectedAnswer: "Radial"})
	require.NoError(t, err)
	snap, err = alice.AnswerStatus(ctx, "ABC123", 1)
	require.NoError(t, err)
	assert.True(t, snap.AllAnswered)
	assert.True(t, snap.UserAnswered)

	_, err = alice.LoadChallenge(ctx, "MISSING")
	assert.ErrorIs(t, err, domain.ErrChallengeNotFound)
}

func TestAnswerStatusDisablesCaching(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/challenges/ABC123/answer-status?question_order=1")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Cache-Control"), "no-store")

	bad, err := http.Get(server.URL + "/challenges/ABC123/answer-status?question_order=zero")
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestSubmitAnswerValidation(t *testing.T) {
	server := newTestServer(t)

	post := func(user, body string) *http.Response {
		req, err := http.NewRequest(http.MethodPost, server.URL+"/challenges/ABC123/answer", strings.NewReader(body))
		require.NoError(t, err)
		if user != "" {
			req.Header.Set(UserHeader, user)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	assert.Equal(t, http.StatusUnauthorized, post("", `{"question_id":"q1","question_order":1}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, post("alice", `{"question_order":1}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, post("alice", `{"question_id":"q1","question_order":0}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, post("alice", `not json`).StatusCode)
	assert.Equal(t, http.StatusForbidden, post("alice", `{"question_id":"q1","question_order":1}`).StatusCode)
}

func TestDuplicateAnswerBody(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()
	_, err := client.New(server.URL, "alice").Join(ctx, "ABC123")
	require.NoError(t, err)

	body, _ := json.Marshal(domain.AnswerSubmission{QuestionID: "q2", QuestionOrder: 2, SelectedAnswer: "RCA"})
	var last *http.Response
	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest(http.MethodPost, server.URL+"/challenges/ABC123/answer", bytes.NewReader(body))
		req.Header.Set(UserHeader, "alice")
		last, err = http.DefaultClient.Do(req)
		require.NoError(t, err)
		if i == 0 {
			last.Body.Close()
		}
	}
	defer last.Body.Close()

	assert.Equal(t, http.StatusConflict, last.StatusCode)
	raw, _ := io.ReadAll(last.Body)
	assert.JSONEq(t, `{"error":"answer already submitted"}`, string(raw))
}

func TestMetricsExposed(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()
	c := client.New(server.URL, "alice")
	_, _ = c.Join(ctx, "ABC123")
	_, _ = c.SubmitAnswer(ctx, "ABC123", domain.AnswerSubmission{QuestionID: "q1", QuestionOrder: 1, SelectedAnswer: "Axillary"})
	_, _ = c.SubmitAnswer(ctx, "ABC123", domain.AnswerSubmission{QuestionID: "q1", QuestionOrder: 1, SelectedAnswer: "Axillary"})
	_, _ = c.AnswerStatus(ctx, "ABC123", 1)

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	text := string(raw)

	assert.Contains(t, text, `challenge_answers_total{result="accepted"} 1`)
	assert.Contains(t, text, `challenge_answers_total{result="duplicate"} 1`)
	assert.Contains(t, text, `challenge_status_requests_total 1`)

	health, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func sampleChallenges() map[string]domain.ChallengeContent {
	return map[string]domain.ChallengeContent{
		"ABC123": {
			Challenge: domain.Challenge{Code: "ABC123", Status: domain.ChallengeActive, TimeLimitSeconds: 20},
			Questions: []domain.Question{
				{ID: "q1", Order: 1, Prompt: "Which nerve innervates the deltoid?", Options: []string{"Axillary", "Radial", "Median", "Ulnar"}, CorrectAnswer: "Axillary"},
				{ID: "q2", Order: 2, Prompt: "Which artery supplies the SA node in most people?", Options: []string{"RCA", "LAD", "LCx", "PDA"}, CorrectAnswer: "RCA"},
			},
		},
	}
}
