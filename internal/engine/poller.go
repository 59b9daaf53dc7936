package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"medquiz-challenge/internal/domain"
)

// Round names the step of the convergence protocol a check reached.
type Round int

const (
	RoundCandidate Round = 1
	RoundVerify    Round = 2
	RoundConfirm   Round = 3
)

func (r Round) String() string {
	switch r {
	case RoundCandidate:
		return "candidate"
	case RoundVerify:
		return "verify"
	case RoundConfirm:
		return "confirm"
	default:
		return fmt.Sprintf("round(%d)", int(r))
	}
}

// Verdict is the outcome of one convergence check.
type Verdict struct {
	Converged bool
	Round     Round
	Snapshot  domain.AnswerStatusSnapshot
	Err       error
}

// ConvergencePoller decides whether every participant has answered a question.
// A single read is never trusted in multiplayer games: a candidate snapshot must
// survive a delayed uncached re-read and then a second confirmation with an
// unchanged participant count.
type ConvergencePoller struct {
	backend      Backend
	code         string
	clock        clockwork.Clock
	verifyDelay  time.Duration
	confirmDelay time.Duration
	timeout      time.Duration
	log          zerolog.Logger
}

func newConvergencePoller(backend Backend, code string, clock clockwork.Clock, cfg Config, log zerolog.Logger) *ConvergencePoller {
	return &ConvergencePoller{
		backend:      backend,
		code:         code,
		clock:        clock,
		verifyDelay:  cfg.VerifyDelay,
		confirmDelay: cfg.ConfirmDelay,
		timeout:      cfg.RequestTimeout,
		log:          log,
	}
}

// CandidatePass reports whether a snapshot claims convergence with exact counts.
func CandidatePass(s domain.AnswerStatusSnapshot) bool {
	return s.AllAnswered &&
		s.UserAnswered &&
		s.CountsKnown &&
		!s.Corrupt() &&
		s.TotalCount > 0 &&
		s.AnsweredCount > 0 &&
		s.AnsweredCount == s.TotalCount
}

// confirmPass is the round 3 predicate: convergence with the participant count
// unchanged since round 2.
func confirmPass(s domain.AnswerStatusSnapshot, expectedTotal int) bool {
	return s.AllAnswered &&
		s.CountsKnown &&
		!s.Corrupt() &&
		s.AnsweredCount == s.TotalCount &&
		s.TotalCount == expectedTotal
}

// Check runs the protocol for questionOrder. Cancelling ctx, which the machine
// does when the question phase ends, aborts it without a verdict of convergence.
func (p *ConvergencePoller) Check(ctx context.Context, questionOrder int) Verdict {
	first, err := p.fetch(ctx, questionOrder)
	if err != nil {
		return Verdict{Round: RoundCandidate, Err: err}
	}
	if !CandidatePass(first) {
		return Verdict{Round: RoundCandidate, Snapshot: first}
	}
	if first.TotalCount == 1 {
		return Verdict{Converged: true, Round: RoundCandidate, Snapshot: first}
	}

	if !p.wait(ctx, p.verifyDelay) {
		return Verdict{Round: RoundVerify, Snapshot: first, Err: ctx.Err()}
	}
	second, err := p.fetch(ctx, questionOrder)
	if err != nil {
		return Verdict{Round: RoundVerify, Snapshot: first, Err: err}
	}
	if !CandidatePass(second) {
		p.log.Info().
			Int("question_order", questionOrder).
			Int("answered", second.AnsweredCount).
			Int("total", second.TotalCount).
			Msg("verification read disagreed with candidate, resuming polling")
		return Verdict{Round: RoundVerify, Snapshot: second}
	}
	if second.TotalCount < 2 {
		return Verdict{Converged: true, Round: RoundVerify, Snapshot: second}
	}

	if !p.wait(ctx, p.confirmDelay) {
		return Verdict{Round: RoundConfirm, Snapshot: second, Err: ctx.Err()}
	}
	third, err := p.fetch(ctx, questionOrder)
	if err != nil {
		return Verdict{Round: RoundConfirm, Snapshot: second, Err: err}
	}
	if !confirmPass(third, second.TotalCount) {
		p.log.Info().
			Int("question_order", questionOrder).
			Int("answered", third.AnsweredCount).
			Int("total", third.TotalCount).
			Int("expected_total", second.TotalCount).
			Msg("confirmation read disagreed, resuming polling")
		return Verdict{Round: RoundConfirm, Snapshot: third}
	}
	return Verdict{Converged: true, Round: RoundConfirm, Snapshot: third}
}

func (p *ConvergencePoller) fetch(ctx context.Context, questionOrder int) (domain.AnswerStatusSnapshot, error) {
	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	snap, err := p.backend.AnswerStatus(reqCtx, p.code, questionOrder)
	if err != nil {
		return domain.AnswerStatusSnapshot{}, fmt.Errorf("answer status: %w", err)
	}
	if snap.Corrupt() {
		return domain.AnswerStatusSnapshot{}, fmt.Errorf("%w: answered=%d total=%d",
			domain.ErrInvalidSnapshot, snap.AnsweredCount, snap.TotalCount)
	}
	return snap, nil
}

func (p *ConvergencePoller) wait(ctx context.Context, d time.Duration) bool {
	timer := p.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.Chan():
		return true
	case <-ctx.Done():
		return false
	}
}
