package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
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

// ChallengeRepository caches questions in Redis and falls back to a loader on miss.
// Content is stored as JSON: SET challenge:{code}:content <json> EX ttl
// The header (status, time limit) always comes from the loader.
type ChallengeRepository struct {
	client *redis.Client
	loader ChallengeLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewChallengeRepository(client *redis.Client, loader ChallengeLoader, ttl time.Duration) *ChallengeRepository {
	return &ChallengeRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
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
	if content, ok := r.cached(ctx, code); ok {
		return content, nil
	}

	result, err, _ := r.sf.Do(code, func() (interface{}, error) {
		// Another caller may have filled the cache.
		if content, ok := r.cached(ctx, code); ok {
			return content, nil
		}

		content, err := r.loader.LoadChallenge(ctx, code)
		if err != nil {
			return domain.ChallengeContent{}, err
		}

		raw, err := json.Marshal(content)
		if err == nil {
			err = r.client.Set(ctx, contentKey(code), raw, r.ttlWithJitter()).Err()
		}
		if err != nil {
			log.Warn().Err(err).Str("challenge", code).Msg("cache challenge content")
		}
		return content, nil
	})
	if err != nil {
		return domain.ChallengeContent{}, err
	}
	return result.(domain.ChallengeContent), nil
}

func (r *ChallengeRepository) cached(ctx context.Context, code string) (domain.ChallengeContent, bool) {
	raw, err := r.client.Get(ctx, contentKey(code)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Debug().Err(err).Str("challenge", code).Msg("read cached challenge")
		}
		return domain.ChallengeContent{}, false
	}
	var content domain.ChallengeContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return domain.ChallengeContent{}, false
	}
	return content, true
}

func (r *ChallengeRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

func contentKey(code string) string {
	return "challenge:" + code + ":content"
}
