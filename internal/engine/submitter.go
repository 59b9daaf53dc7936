package engine

import (
	"context"
	"errors"

	"medquiz-challenge/internal/domain"
)

// AnswerSubmitter sends at most one answer per question. The guard methods are
// called from the machine loop; Send runs on its own goroutine and touches no state.
type AnswerSubmitter struct {
	backend Backend
	code    string
	taken   bool
}

func newAnswerSubmitter(backend Backend, code string) *AnswerSubmitter {
	return &AnswerSubmitter{backend: backend, code: code}
}

// Begin claims the single-shot guard. It returns false when a submission for the
// current question is already in flight or done.
func (s *AnswerSubmitter) Begin() bool {
	if s.taken {
		return false
	}
	s.taken = true
	return true
}

// Release frees the guard after a failed submission so the player can retry.
func (s *AnswerSubmitter) Release() { s.taken = false }

// Reset prepares the submitter for a new question.
func (s *AnswerSubmitter) Reset() { s.taken = false }

func (s *AnswerSubmitter) Taken() bool { return s.taken }

// Send posts the answer. A duplicate rejection means the answer is already stored
// and is reported as success.
func (s *AnswerSubmitter) Send(ctx context.Context, submission domain.AnswerSubmission) (domain.SubmitResult, bool, error) {
	res, err := s.backend.SubmitAnswer(ctx, s.code, submission)
	if errors.Is(err, domain.ErrDuplicateAnswer) {
		return domain.SubmitResult{}, true, nil
	}
	if err != nil {
		return domain.SubmitResult{}, false, err
	}
	return res, false, nil
}
