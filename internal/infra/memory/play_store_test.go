package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"medquiz-challenge/internal/domain"
)

func TestPlayStoreJoinIsIdempotent(t *testing.T) {
	ctx := context.Background()
	joined := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewPlayStoreWithClock(func() time.Time { return joined })

	first, err := store.Join(ctx, "ABC123", "u1")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	again, err := store.Join(ctx, "ABC123", "u1")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if first.ID != again.ID {
		t.Fatalf("expected same seat, got %s and %s", first.ID, again.ID)
	}
	if !first.JoinedAt.Equal(joined) {
		t.Fatalf("unexpected join time %v", first.JoinedAt)
	}

	_, _ = store.Join(ctx, "ABC123", "u2")
	participants, _ := store.Participants(ctx, "ABC123")
	if len(participants) != 2 || participants[0].UserID != "u1" || participants[1].UserID != "u2" {
		t.Fatalf("expected join order u1,u2, got %+v", participants)
	}
}

func TestPlayStoreRecordAnswer(t *testing.T) {
	ctx := context.Background()
	store := NewPlayStore()
	p, _ := store.Join(ctx, "ABC123", "u1")

	answer := domain.Answer{ParticipantID: p.ID, QuestionOrder: 1, SelectedAnswer: "Axillary", Correct: true}
	if err := store.RecordAnswer(ctx, "ABC123", answer, 140); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.RecordAnswer(ctx, "ABC123", answer, 140); !errors.Is(err, domain.ErrDuplicateAnswer) {
		t.Fatalf("expected duplicate, got %v", err)
	}

	got, _ := store.Participant(ctx, "ABC123", "u1")
	if got.Score != 140 {
		t.Fatalf("expected score 140 after duplicate, got %d", got.Score)
	}
	answers, _ := store.Answers(ctx, "ABC123")
	if len(answers) != 1 {
		t.Fatalf("expected one stored answer, got %d", len(answers))
	}

	err := store.RecordAnswer(ctx, "ABC123", domain.Answer{ParticipantID: "ghost", QuestionOrder: 1}, 0)
	if !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected participant error, got %v", err)
	}
}

func TestPlayStoreUnknownChallenge(t *testing.T) {
	store := NewPlayStore()
	if _, err := store.Participant(context.Background(), "NOPE", "u1"); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected participant error, got %v", err)
	}
	participants, err := store.Participants(context.Background(), "NOPE")
	if err != nil || len(participants) != 0 {
		t.Fatalf("expected empty roster, got %v %v", participants, err)
	}
}
