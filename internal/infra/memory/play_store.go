package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"medquiz-challenge/internal/domain"
)

// PlayStore is an in-memory implementation of app.PlayStore.
type PlayStore struct {
	now   func() time.Time
	mu    sync.RWMutex
	games map[string]*game
}

type game struct {
	seats        map[string]int // userID -> index into participants
	participants []domain.Participant
	answered     map[answerKey]struct{}
	answers      []domain.Answer
}

type answerKey struct {
	participantID string
	order         int
}

func NewPlayStore() *PlayStore {
	return NewPlayStoreWithClock(time.Now)
}

// NewPlayStoreWithClock allows deterministic join timestamps in tests.
func NewPlayStoreWithClock(now func() time.Time) *PlayStore {
	return &PlayStore{now: now, games: make(map[string]*game)}
}

func (s *PlayStore) Join(_ context.Context, code, userID string) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.gameLocked(code)
	if idx, ok := g.seats[userID]; ok {
		return g.participants[idx], nil
	}
	p := domain.Participant{
		ID:       uuid.NewString(),
		UserID:   userID,
		JoinedAt: s.now().UTC(),
	}
	g.seats[userID] = len(g.participants)
	g.participants = append(g.participants, p)
	return p, nil
}

func (s *PlayStore) Participant(_ context.Context, code, userID string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.games[code]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	idx, ok := g.seats[userID]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return g.participants[idx], nil
}

func (s *PlayStore) Participants(_ context.Context, code string) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.games[code]
	if !ok {
		return []domain.Participant{}, nil
	}
	out := make([]domain.Participant, len(g.participants))
	copy(out, g.participants)
	return out, nil
}

func (s *PlayStore) RecordAnswer(_ context.Context, code string, answer domain.Answer, points int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.gameLocked(code)
	key := answerKey{participantID: answer.ParticipantID, order: answer.QuestionOrder}
	if _, dup := g.answered[key]; dup {
		return domain.ErrDuplicateAnswer
	}

	idx := -1
	for i := range g.participants {
		if g.participants[i].ID == answer.ParticipantID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.ErrParticipantNotFound
	}

	g.answered[key] = struct{}{}
	g.answers = append(g.answers, answer)
	g.participants[idx].Score += points
	return nil
}

func (s *PlayStore) Answers(_ context.Context, code string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.games[code]
	if !ok {
		return []domain.Answer{}, nil
	}
	out := make([]domain.Answer, len(g.answers))
	copy(out, g.answers)
	return out, nil
}

func (s *PlayStore) gameLocked(code string) *game {
	g, ok := s.games[code]
	if !ok {
		g = &game{
			seats:    make(map[string]int),
			answered: make(map[answerKey]struct{}),
		}
		s.games[code] = g
	}
	return g
}
