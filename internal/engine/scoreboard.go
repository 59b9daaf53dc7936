package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"medquiz-challenge/internal/domain"
)

// ScoreboardAggregator fetches participant scores and ranks them.
type ScoreboardAggregator struct {
	backend Backend
	code    string
	timeout time.Duration
}

func newScoreboardAggregator(backend Backend, code string, timeout time.Duration) *ScoreboardAggregator {
	return &ScoreboardAggregator{backend: backend, code: code, timeout: timeout}
}

// Fetch loads the challenge and returns its ranked scoreboard.
func (a *ScoreboardAggregator) Fetch(ctx context.Context) ([]domain.ScoreboardEntry, error) {
	reqCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	details, err := a.backend.LoadChallenge(reqCtx, a.code)
	if err != nil {
		return nil, fmt.Errorf("scoreboard: %w", err)
	}
	return Rank(details.Participants), nil
}

// Rank orders participants by score, highest first. Ties keep fetch order and share no rank.
func Rank(participants []domain.Participant) []domain.ScoreboardEntry {
	entries := make([]domain.ScoreboardEntry, 0, len(participants))
	for _, p := range participants {
		entries = append(entries, domain.ScoreboardEntry{
			ParticipantID: p.ID,
			UserID:        p.UserID,
			Score:         p.Score,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
