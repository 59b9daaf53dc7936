package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"medquiz-challenge/internal/domain"
)

// ChallengeLoader fetches challenge content from a backing store (e.g., Postgres).
// LoadHeader returns just the challenge row; it is never cached because the
// status moves while players wait in the lobby.
type ChallengeLoader interface {
	LoadChallenge(ctx context.Context, code string) (domain.ChallengeContent, error)
	LoadHeader(ctx context.Context, code string) (domain.Challenge, error)
}

// ChallengeRepository caches questions with TTL to avoid repeated DB hits. The
// challenge header is read through the loader on every call.
type ChallengeRepository struct {
	loader ChallengeLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedChallenge
}

type cachedChallenge struct {
	content   domain.ChallengeContent
	expiresAt time.Time
}

func NewChallengeRepository(loader ChallengeLoader, ttl time.Duration) *ChallengeRepository {
	return &ChallengeRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedChallenge),
	}
}

func (r *ChallengeRepository) GetChallenge(ctx context.Context, code string) (domain.ChallengeContent, error) {
	content, err := r.content(ctx, code)
	if err != nil {
		return domain.ChallengeContent{}, err
	}
	header, err := r.loader.LoadHeader(ctx, code)
	if err != nil {
		return domain.ChallengeContent{}, err
	}
	content.Challenge = header
	return content, nil
}

func (r *ChallengeRepository) content(ctx context.Context, code string) (domain.ChallengeContent, error) {
	if content, ok := r.cached(code); ok {
		return content, nil
	}

	result, err, _ := r.sf.Do(code, func() (interface{}, error) {
		if content, ok := r.cached(code); ok {
			return content, nil
		}

		content, err := r.loader.LoadChallenge(ctx, code)
		if err != nil {
			return domain.ChallengeContent{}, err
		}

		r.mu.Lock()
		r.cache[code] = cachedChallenge{
			content:   content,
			expiresAt: r.clock().Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return content, nil
	})
	if err != nil {
		return domain.ChallengeContent{}, err
	}
	return result.(domain.ChallengeContent), nil
}

func (r *ChallengeRepository) cached(code string) (domain.ChallengeContent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[code]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.ChallengeContent{}, false
	}
	return entry.content, true
}

func (r *ChallengeRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// up to 10% jitter spreads expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticChallengeLoader serves challenges from an in-memory map (demos and tests).
type StaticChallengeLoader struct {
	mu         sync.RWMutex
	challenges map[string]domain.ChallengeContent
}

func NewStaticChallengeLoader(challenges map[string]domain.ChallengeContent) *StaticChallengeLoader {
	if challenges == nil {
		challenges = make(map[string]domain.ChallengeContent)
	}
	return &StaticChallengeLoader{challenges: challenges}
}

func (l *StaticChallengeLoader) LoadHeader(ctx context.Context, code string) (domain.Challenge, error) {
	content, err := l.LoadChallenge(ctx, code)
	return content.Challenge, err
}

func (l *StaticChallengeLoader) LoadChallenge(_ context.Context, code string) (domain.ChallengeContent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if content, ok := l.challenges[code]; ok {
		return content, nil
	}
	return domain.ChallengeContent{}, domain.ErrChallengeNotFound
}
