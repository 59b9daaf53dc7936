package app

import (
	"context"
	"fmt"
	"strings"

	"medquiz-challenge/internal/domain"
)

const (
	basePoints     = 100
	maxSpeedBonus  = 50
	fallbackLimitS = 30
)

// ChallengeRepository loads challenge content (from cache/backing store).
type ChallengeRepository interface {
	GetChallenge(ctx context.Context, code string) (domain.ChallengeContent, error)
}

// PlayStore abstracts where participants, answers and scores live (in-memory, Redis).
type PlayStore interface {
	// Join returns the existing seat for userID or creates one.
	Join(ctx context.Context, code, userID string) (domain.Participant, error)
	Participant(ctx context.Context, code, userID string) (domain.Participant, error)
	// Participants returns seats in join order.
	Participants(ctx context.Context, code string) ([]domain.Participant, error)
	// RecordAnswer stores the answer and adds points to the participant's score.
	// A second answer for the same participant and question order returns domain.ErrDuplicateAnswer.
	RecordAnswer(ctx context.Context, code string, answer domain.Answer, points int) error
	Answers(ctx context.Context, code string) ([]domain.Answer, error)
}

// ChallengeService contains the backend use cases the engine polls against.
type ChallengeService struct {
	challenges ChallengeRepository
	store      PlayStore
}

func NewChallengeService(challenges ChallengeRepository, store PlayStore) *ChallengeService {
	return &ChallengeService{challenges: challenges, store: store}
}

// Details returns the challenge with its questions, participants and all answers.
func (s *ChallengeService) Details(ctx context.Context, code string) (domain.ChallengeDetails, error) {
	content, err := s.challenges.GetChallenge(ctx, code)
	if err != nil {
		return domain.ChallengeDetails{}, err
	}
	participants, err := s.store.Participants(ctx, code)
	if err != nil {
		return domain.ChallengeDetails{}, fmt.Errorf("list participants: %w", err)
	}
	answers, err := s.store.Answers(ctx, code)
	if err != nil {
		return domain.ChallengeDetails{}, fmt.Errorf("list answers: %w", err)
	}
	return domain.ChallengeDetails{
		Challenge:    content.Challenge,
		Questions:    content.Questions,
		Participants: participants,
		AllAnswers:   answers,
	}, nil
}

// Join seats a user in a challenge that has not ended. Repeated joins are no-ops.
func (s *ChallengeService) Join(ctx context.Context, code, userID string) (domain.Participant, error) {
	// Users cannot join unknown challenges.
	content, err := s.challenges.GetChallenge(ctx, code)
	if err != nil {
		return domain.Participant{}, err
	}
	if content.Challenge.Status == domain.ChallengeEnded {
		return domain.Participant{}, domain.ErrChallengeNotActive
	}
	return s.store.Join(ctx, code, userID)
}

// SubmitAnswer grades and records an answer, then reports convergence for that question.
func (s *ChallengeService) SubmitAnswer(ctx context.Context, code, userID string, submission domain.AnswerSubmission) (domain.SubmitResult, error) {
	content, err := s.challenges.GetChallenge(ctx, code)
	if err != nil {
		return domain.SubmitResult{}, err
	}
	if content.Challenge.Status != domain.ChallengeActive {
		return domain.SubmitResult{}, domain.ErrChallengeNotActive
	}

	participant, err := s.store.Participant(ctx, code, userID)
	if err != nil {
		return domain.SubmitResult{}, err
	}

	question, err := findQuestion(content.Questions, submission)
	if err != nil {
		return domain.SubmitResult{}, err
	}

	correct, points := scoreAnswer(question, submission, content.Challenge.TimeLimitSeconds)
	err = s.store.RecordAnswer(ctx, code, domain.Answer{
		ParticipantID:    participant.ID,
		QuestionOrder:    question.Order,
		SelectedAnswer:   submission.SelectedAnswer,
		TimeTakenSeconds: submission.TimeTakenSeconds,
		Correct:          correct,
	}, points)
	if err != nil {
		return domain.SubmitResult{}, err
	}

	snap, err := s.AnswerStatus(ctx, code, userID, question.Order)
	if err != nil {
		return domain.SubmitResult{}, err
	}
	return domain.SubmitResult{
		AllAnswered:   snap.AllAnswered,
		AnsweredCount: snap.AnsweredCount,
		TotalCount:    snap.TotalCount,
	}, nil
}

// AnswerStatus counts how many participants have answered the question at order.
func (s *ChallengeService) AnswerStatus(ctx context.Context, code, userID string, order int) (domain.AnswerStatusSnapshot, error) {
	participants, err := s.store.Participants(ctx, code)
	if err != nil {
		return domain.AnswerStatusSnapshot{}, fmt.Errorf("list participants: %w", err)
	}
	answers, err := s.store.Answers(ctx, code)
	if err != nil {
		return domain.AnswerStatusSnapshot{}, fmt.Errorf("list answers: %w", err)
	}

	answered := make(map[string]bool, len(participants))
	for _, a := range answers {
		if a.QuestionOrder == order {
			answered[a.ParticipantID] = true
		}
	}

	snap := domain.AnswerStatusSnapshot{TotalCount: len(participants), CountsKnown: true}
	for _, p := range participants {
		if !answered[p.ID] {
			continue
		}
		snap.AnsweredCount++
		if p.UserID == userID {
			snap.UserAnswered = true
		}
	}
	snap.AllAnswered = snap.TotalCount > 0 && snap.AnsweredCount == snap.TotalCount
	return snap, nil
}

func findQuestion(questions []domain.Question, submission domain.AnswerSubmission) (domain.Question, error) {
	for _, q := range questions {
		if q.Order == submission.QuestionOrder {
			if q.ID != submission.QuestionID {
				return domain.Question{}, domain.ErrQuestionNotFound
			}
			return q, nil
		}
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}

// scoreAnswer returns (correct, points). Correct answers earn basePoints plus a bonus
// proportional to the unused share of the time limit. Empty answers are never correct.
func scoreAnswer(question domain.Question, submission domain.AnswerSubmission, limitSeconds int) (bool, int) {
	selected := strings.TrimSpace(submission.SelectedAnswer)
	if selected == "" || !strings.EqualFold(selected, strings.TrimSpace(question.CorrectAnswer)) {
		return false, 0
	}
	if limitSeconds <= 0 {
		limitSeconds = fallbackLimitS
	}
	remaining := limitSeconds - submission.TimeTakenSeconds
	switch {
	case remaining < 0:
		remaining = 0
	case remaining > limitSeconds:
		remaining = limitSeconds
	}
	return true, basePoints + maxSpeedBonus*remaining/limitSeconds
}
