package domain

import "time"

// ChallengeStatus is the lifecycle state of a challenge as reported by the backend.
type ChallengeStatus string

const (
	ChallengeWaiting ChallengeStatus = "waiting"
	ChallengeActive  ChallengeStatus = "active"
	ChallengeEnded   ChallengeStatus = "ended"
)

// Challenge is one timed multi-question quiz identified by a short code.
type Challenge struct {
	Code             string          `json:"code"`
	Status           ChallengeStatus `json:"status"`
	TimeLimitSeconds int             `json:"time_limit"`
}

// Question is an immutable entry in a challenge's ordered question list.
type Question struct {
	ID            string   `json:"id"`
	Order         int      `json:"question_order"` // 1-based
	Prompt        string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation,omitempty"`
}

// Participant is one player's seat within a challenge.
type Participant struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	Score    int       `json:"score"`
	JoinedAt time.Time `json:"joined_at"`
}

// Answer is a stored submission. At most one exists per (ParticipantID, QuestionOrder).
type Answer struct {
	ParticipantID    string `json:"participant_id"`
	QuestionOrder    int    `json:"question_order"`
	SelectedAnswer   string `json:"selected_answer"`
	TimeTakenSeconds int    `json:"time_taken_seconds"`
	Correct          bool   `json:"is_correct"`
}

// ChallengeContent is the static part of a challenge: its header and questions.
type ChallengeContent struct {
	Challenge Challenge  `json:"challenge"`
	Questions []Question `json:"questions"`
}

// ChallengeDetails is the payload of GET /challenges/{code}.
type ChallengeDetails struct {
	Challenge    Challenge     `json:"challenge"`
	Questions    []Question    `json:"questions"`
	Participants []Participant `json:"participants"`
	AllAnswers   []Answer      `json:"allAnswers"`
}

// AnswerSubmission is the body of POST /challenges/{code}/answer.
type AnswerSubmission struct {
	QuestionID       string `json:"question_id" validate:"required"`
	QuestionOrder    int    `json:"question_order" validate:"gte=1"`
	SelectedAnswer   string `json:"selected_answer"`
	TimeTakenSeconds int    `json:"time_taken_seconds" validate:"gte=0"`
}

// SubmitResult is the optional convergence hint returned by a successful submission.
type SubmitResult struct {
	AllAnswered   bool `json:"allAnswered"`
	AnsweredCount int  `json:"answeredCount"`
	TotalCount    int  `json:"totalCount"`
}

// AnswerStatusSnapshot is a point-in-time, possibly stale, view of convergence for one question.
// CountsKnown is false when the backend omitted either count.
type AnswerStatusSnapshot struct {
	UserAnswered  bool
	AllAnswered   bool
	AnsweredCount int
	TotalCount    int
	CountsKnown   bool
}

// Corrupt reports whether the snapshot violates 0 <= answered <= total.
func (s AnswerStatusSnapshot) Corrupt() bool {
	if !s.CountsKnown {
		return false
	}
	return s.AnsweredCount < 0 || s.TotalCount < 0 || s.AnsweredCount > s.TotalCount
}

// ScoreboardEntry is one ranked row of the scoreboard.
type ScoreboardEntry struct {
	Rank          int    `json:"rank"`
	ParticipantID string `json:"participantId"`
	UserID        string `json:"userId"`
	Score         int    `json:"score"`
}

// GamePhase is the local phase of the game state machine.
type GamePhase string

const (
	PhaseLoading       GamePhase = "loading"
	PhaseQuestion      GamePhase = "question"
	PhaseShowingAnswer GamePhase = "showing_answer"
	PhaseShowingScores GamePhase = "showing_scores"
	PhaseCompleted     GamePhase = "completed"
)
