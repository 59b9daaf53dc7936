package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"medquiz-challenge/internal/domain"
)

// fakeBackend is a scriptable in-process Backend.
type fakeBackend struct {
	mu          sync.Mutex
	details     domain.ChallengeDetails
	loadErr     error
	submitFn    func(call int, sub domain.AnswerSubmission) (domain.SubmitResult, error)
	statusFn    func(call int, order int) (domain.AnswerStatusSnapshot, error)
	submissions []domain.AnswerSubmission
	statusCalls int
	loadCalls   int
}

func (f *fakeBackend) LoadChallenge(_ context.Context, _ string) (domain.ChallengeDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadCalls++
	if f.loadErr != nil {
		return domain.ChallengeDetails{}, f.loadErr
	}
	return f.details, nil
}

func (f *fakeBackend) SubmitAnswer(_ context.Context, _ string, sub domain.AnswerSubmission) (domain.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submissions = append(f.submissions, sub)
	if f.submitFn != nil {
		return f.submitFn(len(f.submissions), sub)
	}
	return domain.SubmitResult{}, nil
}

func (f *fakeBackend) AnswerStatus(_ context.Context, _ string, order int) (domain.AnswerStatusSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusFn != nil {
		return f.statusFn(f.statusCalls, order)
	}
	return domain.AnswerStatusSnapshot{}, nil
}

func (f *fakeBackend) status() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

func (f *fakeBackend) submitted() []domain.AnswerSubmission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.AnswerSubmission(nil), f.submissions...)
}

func snapshot(answered, total int) domain.AnswerStatusSnapshot {
	return domain.AnswerStatusSnapshot{
		UserAnswered:  true,
		AllAnswered:   answered == total,
		AnsweredCount: answered,
		TotalCount:    total,
		CountsKnown:   true,
	}
}

func challengeDetails(timeLimit int, questions int) domain.ChallengeDetails {
	d := domain.ChallengeDetails{
		Challenge: domain.Challenge{Code: "ABC123", Status: domain.ChallengeActive, TimeLimitSeconds: timeLimit},
		Participants: []domain.Participant{
			{ID: "p1", UserID: "u1", Score: 100},
			{ID: "p2", UserID: "u2", Score: 250},
			{ID: "p3", UserID: "u3", Score: 100},
		},
	}
	for i := 1; i <= questions; i++ {
		d.Questions = append(d.Questions, domain.Question{
			ID:            "q" + string(rune('0'+i)),
			Order:         i,
			Prompt:        "Which nerve innervates the deltoid?",
			Options:       []string{"Axillary", "Radial", "Median", "Ulnar"},
			CorrectAnswer: "Axillary",
		})
	}
	return d
}

// fastConfig compresses every timing so a full game runs in well under a second
// per question. The question tick is 10ms, so a 60 second limit lasts 600ms.
func fastConfig() Config {
	return Config{
		Tick:             10 * time.Millisecond,
		PollInterval:     15 * time.Millisecond,
		FirstPollDelay:   3 * time.Millisecond,
		VerifyDelay:      12 * time.Millisecond,
		ConfirmDelay:     8 * time.Millisecond,
		RevealWindow:     50 * time.Millisecond,
		ScoreboardWindow: 50 * time.Millisecond,
		ConvergenceGrace: 5 * time.Second,
		RequestTimeout:   time.Second,
	}
}

// recorder keeps every state published by a machine.
type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) observe(s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *recorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func (r *recorder) last() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return State{}
	}
	return r.states[len(r.states)-1]
}

func (r *recorder) seen(phase domain.GamePhase) bool {
	for _, s := range r.all() {
		if s.Phase == phase {
			return true
		}
	}
	return false
}

// phases returns the sequence of distinct (phase, question index) pairs.
func (r *recorder) phases() []string {
	var out []string
	prev := ""
	for _, s := range r.all() {
		key := string(s.Phase) + "#" + string(rune('1'+s.QuestionIndex))
		if key != prev {
			out = append(out, key)
			prev = key
		}
	}
	return out
}

type runResult struct {
	exit Exit
	err  error
}

func startMachine(t *testing.T, backend Backend, cfg Config) (*Machine, *recorder, context.CancelFunc, <-chan runResult) {
	t.Helper()
	rec := &recorder{}
	m := New("ABC123", backend,
		WithConfig(cfg),
		WithLogger(zerolog.Nop()),
		WithObserver(rec.observe),
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan runResult, 1)
	go func() {
		exit, err := m.Run(ctx)
		done <- runResult{exit: exit, err: err}
	}()
	t.Cleanup(cancel)
	return m, rec, cancel, done
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 5*time.Second, 2*time.Millisecond, what)
}

func waitResult(t *testing.T, done <-chan runResult) runResult {
	t.Helper()
	select {
	case res := <-done:
		return res
	case <-time.After(10 * time.Second):
		t.Fatalf("machine did not finish")
		return runResult{}
	}
}
