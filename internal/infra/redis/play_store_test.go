package redis

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"medquiz-challenge/internal/domain"
)

func TestPlayStoreJoinAndScores(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewPlayStore(newClient(mr), time.Hour)

	u1, err := store.Join(ctx, "ABC123", "u1")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	again, err := store.Join(ctx, "ABC123", "u1")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if again.ID != u1.ID {
		t.Fatalf("expected idempotent join, got %s and %s", u1.ID, again.ID)
	}
	u2, _ := store.Join(ctx, "ABC123", "u2")

	if err := store.RecordAnswer(ctx, "ABC123", domain.Answer{ParticipantID: u2.ID, QuestionOrder: 1, SelectedAnswer: "Axillary", Correct: true}, 125); err != nil {
		t.Fatalf("record: %v", err)
	}
	err = store.RecordAnswer(ctx, "ABC123", domain.Answer{ParticipantID: u2.ID, QuestionOrder: 1, SelectedAnswer: "Radial"}, 0)
	if !errors.Is(err, domain.ErrDuplicateAnswer) {
		t.Fatalf("expected duplicate, got %v", err)
	}

	participants, err := store.Participants(ctx, "ABC123")
	if err != nil {
		t.Fatalf("participants: %v", err)
	}
	if len(participants) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(participants))
	}
	if participants[0].UserID != "u1" || participants[0].Score != 0 {
		t.Fatalf("unexpected first participant %+v", participants[0])
	}
	if participants[1].UserID != "u2" || participants[1].Score != 125 {
		t.Fatalf("unexpected second participant %+v", participants[1])
	}

	answers, err := store.Answers(ctx, "ABC123")
	if err != nil {
		t.Fatalf("answers: %v", err)
	}
	if len(answers) != 1 || answers[0].SelectedAnswer != "Axillary" || !answers[0].Correct {
		t.Fatalf("unexpected answers %+v", answers)
	}

	if ttl := mr.TTL("challenge:ABC123:scores"); ttl != time.Hour {
		t.Fatalf("expected keys to carry ttl, got %v", ttl)
	}
}

func TestPlayStoreUnknownParticipant(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewPlayStore(newClient(mr), 0)

	if _, err := store.Participant(ctx, "ABC123", "ghost"); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected participant error, got %v", err)
	}
	err = store.RecordAnswer(ctx, "ABC123", domain.Answer{ParticipantID: "ghost", QuestionOrder: 1}, 0)
	if !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected participant error, got %v", err)
	}
	participants, err := store.Participants(ctx, "ABC123")
	if err != nil || len(participants) != 0 {
		t.Fatalf("expected empty roster, got %v %v", participants, err)
	}
}

// dropScripts fails the next n script calls before they reach the server, the
// way a reset connection would.
type dropScripts struct {
	remaining atomic.Int32
}

func (h *dropScripts) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *dropScripts) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if strings.HasPrefix(cmd.Name(), "eval") && h.remaining.Add(-1) >= 0 {
			return errors.New("connection reset by peer")
		}
		return next(ctx, cmd)
	}
}

func (h *dropScripts) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestPlayStoreFailedWritesCanBeRetried(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	client := newClient(mr)
	hook := &dropScripts{}
	client.AddHook(hook)
	store := NewPlayStore(client, time.Hour)

	hook.remaining.Store(1)
	if _, err := store.Join(ctx, "ABC123", "u1"); err == nil {
		t.Fatalf("expected join to fail")
	}
	if _, err := store.Participant(ctx, "ABC123", "u1"); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("failed join left a seat behind: %v", err)
	}
	u1, err := store.Join(ctx, "ABC123", "u1")
	if err != nil {
		t.Fatalf("retry join: %v", err)
	}

	answer := domain.Answer{ParticipantID: u1.ID, QuestionOrder: 1, SelectedAnswer: "Axillary", Correct: true}
	hook.remaining.Store(1)
	if err := store.RecordAnswer(ctx, "ABC123", answer, 140); err == nil {
		t.Fatalf("expected record to fail")
	}
	if err := store.RecordAnswer(ctx, "ABC123", answer, 140); err != nil {
		t.Fatalf("retry after failed record: %v", err)
	}
	if err := store.RecordAnswer(ctx, "ABC123", answer, 140); !errors.Is(err, domain.ErrDuplicateAnswer) {
		t.Fatalf("expected duplicate after success, got %v", err)
	}

	participants, err := store.Participants(ctx, "ABC123")
	if err != nil {
		t.Fatalf("participants: %v", err)
	}
	if len(participants) != 1 || participants[0].ID != u1.ID || participants[0].Score != 140 {
		t.Fatalf("unexpected roster %+v", participants)
	}
	answers, err := store.Answers(ctx, "ABC123")
	if err != nil {
		t.Fatalf("answers: %v", err)
	}
	if len(answers) != 1 {
		t.Fatalf("expected exactly one stored answer, got %d", len(answers))
	}
}
