package engine

import "medquiz-challenge/internal/domain"

// Session is the mutable state of one engine run. The machine loop is its only
// writer; phase and index change only through the machine's phase entry methods.
type Session struct {
	Details domain.ChallengeDetails

	Phase domain.GamePhase
	Index int
	// Epoch increases on every phase entry. Scheduled work carries the epoch it
	// was armed in and is dropped when it no longer matches.
	Epoch uint64

	SelectedAnswer string
	UserAnswered   bool
	AllAnswered    bool
	AnsweredCount  int
	TotalCount     int
	TimerSeconds   int
	Countdown      int
	Scoreboard     []domain.ScoreboardEntry
	LastError      string
}

func newSession() *Session {
	return &Session{Phase: domain.PhaseLoading}
}

func (s *Session) resetQuestion(limit int) {
	s.SelectedAnswer = ""
	s.UserAnswered = false
	s.AllAnswered = false
	s.AnsweredCount = 0
	s.TotalCount = 0
	s.TimerSeconds = limit
	s.Countdown = 0
	s.LastError = ""
}

func (s *Session) question() *domain.Question {
	if s.Index < 0 || s.Index >= len(s.Details.Questions) {
		return nil
	}
	return &s.Details.Questions[s.Index]
}

func (s *Session) lastQuestion() bool {
	return s.Index >= len(s.Details.Questions)-1
}

// observe absorbs a valid snapshot's counts for display. It never drives a transition.
func (s *Session) observe(snap domain.AnswerStatusSnapshot) {
	if !snap.CountsKnown || snap.Corrupt() {
		return
	}
	s.AnsweredCount = snap.AnsweredCount
	s.TotalCount = snap.TotalCount
}

func (s *Session) state(code string) State {
	st := State{
		Challenge:      code,
		Phase:          s.Phase,
		QuestionIndex:  s.Index,
		QuestionCount:  len(s.Details.Questions),
		TimerSeconds:   s.TimerSeconds,
		Countdown:      s.Countdown,
		SelectedAnswer: s.SelectedAnswer,
		UserAnswered:   s.UserAnswered,
		AllAnswered:    s.AllAnswered,
		AnsweredCount:  s.AnsweredCount,
		TotalCount:     s.TotalCount,
		Error:          s.LastError,
	}
	if q := s.question(); q != nil && s.Phase != domain.PhaseLoading {
		view := *q
		view.Options = append([]string(nil), q.Options...)
		if s.Phase == domain.PhaseQuestion {
			view.CorrectAnswer = ""
			view.Explanation = ""
		}
		st.Question = &view
	}
	if len(s.Scoreboard) > 0 {
		st.Scoreboard = append([]domain.ScoreboardEntry(nil), s.Scoreboard...)
	}
	return st
}
