package memory

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"medquiz-challenge/internal/domain"
)

func TestChallengeRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		ChallengeLoader: NewStaticChallengeLoader(map[string]domain.ChallengeContent{
			"ABC123": sampleChallenge(),
		}),
	}
	repo := NewChallengeRepository(loader, time.Minute)

	if _, err := repo.GetChallenge(context.Background(), "ABC123"); err != nil {
		t.Fatalf("get challenge: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls.Load())
	}

	content, err := repo.GetChallenge(context.Background(), "ABC123")
	if err != nil {
		t.Fatalf("get challenge 2: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls.Load())
	}
	if len(content.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(content.Questions))
	}
}

func TestChallengeRepositoryExpires(t *testing.T) {
	loader := &countingLoader{
		ChallengeLoader: NewStaticChallengeLoader(map[string]domain.ChallengeContent{
			"ABC123": sampleChallenge(),
		}),
	}
	repo := NewChallengeRepository(loader, time.Minute)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.clock = func() time.Time { return now }

	_, _ = repo.GetChallenge(context.Background(), "ABC123")
	now = now.Add(2 * time.Minute)
	_, _ = repo.GetChallenge(context.Background(), "ABC123")
	if loader.calls.Load() != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.calls.Load())
	}
}

func TestChallengeRepositoryReadsStatusThrough(t *testing.T) {
	waiting := sampleChallenge()
	waiting.Challenge.Status = domain.ChallengeWaiting
	loader := &countingLoader{
		ChallengeLoader: NewStaticChallengeLoader(map[string]domain.ChallengeContent{"ABC123": waiting}),
	}
	hosted := &hostedLoader{ChallengeLoader: loader}
	repo := NewChallengeRepository(hosted, time.Hour)
	ctx := context.Background()

	content, err := repo.GetChallenge(ctx, "ABC123")
	if err != nil {
		t.Fatalf("get challenge: %v", err)
	}
	if content.Challenge.Status != domain.ChallengeWaiting {
		t.Fatalf("expected waiting, got %s", content.Challenge.Status)
	}

	hosted.start()
	content, err = repo.GetChallenge(ctx, "ABC123")
	if err != nil {
		t.Fatalf("get challenge after start: %v", err)
	}
	if content.Challenge.Status != domain.ChallengeActive {
		t.Fatalf("expected the started challenge to read active, got %s", content.Challenge.Status)
	}
	if len(content.Questions) != 2 {
		t.Fatalf("expected cached questions, got %d", len(content.Questions))
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected questions served from cache, loader calls %d", loader.calls.Load())
	}
}

func TestChallengeRepositoryMissing(t *testing.T) {
	repo := NewChallengeRepository(NewStaticChallengeLoader(nil), time.Minute)
	if _, err := repo.GetChallenge(context.Background(), "NOPE"); err != domain.ErrChallengeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

type countingLoader struct {
	ChallengeLoader
	calls atomic.Int32
}

func (l *countingLoader) LoadChallenge(ctx context.Context, code string) (domain.ChallengeContent, error) {
	l.calls.Add(1)
	return l.ChallengeLoader.LoadChallenge(ctx, code)
}

// hostedLoader reports the challenge active once the host starts it.
type hostedLoader struct {
	ChallengeLoader
	started atomic.Bool
}

func (l *hostedLoader) start() { l.started.Store(true) }

func (l *hostedLoader) LoadHeader(ctx context.Context, code string) (domain.Challenge, error) {
	header, err := l.ChallengeLoader.LoadHeader(ctx, code)
	if err == nil && l.started.Load() {
		header.Status = domain.ChallengeActive
	}
	return header, err
}

func sampleChallenge() domain.ChallengeContent {
	return domain.ChallengeContent{
		Challenge: domain.Challenge{Code: "ABC123", Status: domain.ChallengeActive, TimeLimitSeconds: 20},
		Questions: []domain.Question{
			{ID: "q1", Order: 1, Prompt: "Which nerve innervates the deltoid?", Options: []string{"Axillary", "Radial", "Median", "Ulnar"}, CorrectAnswer: "Axillary"},
			{ID: "q2", Order: 2, Prompt: "Which artery supplies the SA node in most people?", Options: []string{"RCA", "LAD", "LCx", "PDA"}, CorrectAnswer: "RCA"},
		},
	}
}
