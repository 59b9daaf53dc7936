package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"medquiz-challenge/internal/domain"
)

// PlayStore keeps participants, answers and scores in Redis so several backend
// instances can serve the same challenge.
//
// Keys per challenge code:
//
//	challenge:{code}:seats         HASH userID -> participantID
//	challenge:{code}:participants  HASH participantID -> participant JSON
//	challenge:{code}:roster        LIST participantIDs in join order
//	challenge:{code}:scores        HASH participantID -> score
//	challenge:{code}:answered      HASH "{participantID}:{order}" -> 1
//	challenge:{code}:answers       LIST answer JSON in submission order
type PlayStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// Seat claim, roster entry and zero score are written by one script so a failed
// call never leaves a claimed seat without its roster entry.
//
// KEYS seats participants roster scores answered answers
// ARGV userID participantID participantJSON ttlSeconds
var joinScript = redis.NewScript(`
local seated = redis.call('HGET', KEYS[1], ARGV[1])
if seated then
	return seated
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('HSET', KEYS[2], ARGV[2], ARGV[3])
redis.call('RPUSH', KEYS[3], ARGV[2])
redis.call('HSET', KEYS[4], ARGV[2], 0)
local ttl = tonumber(ARGV[4])
if ttl > 0 then
	for i = 1, #KEYS do
		redis.call('EXPIRE', KEYS[i], ttl)
	end
end
return ARGV[2]
`)

// The answered marker, the answer row and the score bump land together or not at all.
//
// KEYS seats participants roster scores answered answers
// ARGV participantID answeredField answerJSON points ttlSeconds
var recordScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[2], ARGV[1]) == 0 then
	return -1
end
if redis.call('HSETNX', KEYS[5], ARGV[2], 1) == 0 then
	return 0
end
redis.call('RPUSH', KEYS[6], ARGV[3])
redis.call('HINCRBY', KEYS[4], ARGV[1], ARGV[4])
local ttl = tonumber(ARGV[5])
if ttl > 0 then
	for i = 1, #KEYS do
		redis.call('EXPIRE', KEYS[i], ttl)
	end
end
return 1
`)

func NewPlayStore(client *redis.Client, ttl time.Duration) *PlayStore {
	return &PlayStore{client: client, ttl: ttl, now: time.Now}
}

func (s *PlayStore) Join(ctx context.Context, code, userID string) (domain.Participant, error) {
	if p, err := s.Participant(ctx, code, userID); err == nil {
		return p, nil
	} else if !errors.Is(err, domain.ErrParticipantNotFound) {
		return domain.Participant{}, err
	}

	p := domain.Participant{ID: uuid.NewString(), UserID: userID, JoinedAt: s.now().UTC()}
	raw, err := json.Marshal(p)
	if err != nil {
		return domain.Participant{}, fmt.Errorf("encode participant: %w", err)
	}
	seated, err := joinScript.Run(ctx, s.client, s.keys(code), userID, p.ID, raw, s.ttlSeconds()).Text()
	if err != nil {
		return domain.Participant{}, fmt.Errorf("register participant: %w", err)
	}
	if seated != p.ID {
		return s.Participant(ctx, code, userID)
	}
	return p, nil
}

func (s *PlayStore) Participant(ctx context.Context, code, userID string) (domain.Participant, error) {
	id, err := s.client.HGet(ctx, s.key(code, "seats"), userID).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("read seat: %w", err)
	}
	participants, err := s.load(ctx, code, []string{id})
	if err != nil {
		return domain.Participant{}, err
	}
	if len(participants) == 0 {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return participants[0], nil
}

func (s *PlayStore) Participants(ctx context.Context, code string) ([]domain.Participant, error) {
	ids, err := s.client.LRange(ctx, s.key(code, "roster"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	return s.load(ctx, code, ids)
}

func (s *PlayStore) RecordAnswer(ctx context.Context, code string, answer domain.Answer, points int) error {
	raw, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("encode answer: %w", err)
	}
	field := answer.ParticipantID + ":" + strconv.Itoa(answer.QuestionOrder)
	res, err := recordScript.Run(ctx, s.client, s.keys(code),
		answer.ParticipantID, field, raw, points, s.ttlSeconds()).Int64()
	if err != nil {
		return fmt.Errorf("record answer: %w", err)
	}
	switch res {
	case -1:
		return domain.ErrParticipantNotFound
	case 0:
		return domain.ErrDuplicateAnswer
	}
	return nil
}

func (s *PlayStore) Answers(ctx context.Context, code string) ([]domain.Answer, error) {
	raws, err := s.client.LRange(ctx, s.key(code, "answers"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read answers: %w", err)
	}
	answers := make([]domain.Answer, 0, len(raws))
	for _, raw := range raws {
		var a domain.Answer
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("decode answer: %w", err)
		}
		answers = append(answers, a)
	}
	return answers, nil
}

func (s *PlayStore) load(ctx context.Context, code string, ids []string) ([]domain.Participant, error) {
	if len(ids) == 0 {
		return []domain.Participant{}, nil
	}
	records, err := s.client.HMGet(ctx, s.key(code, "participants"), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("read participants: %w", err)
	}
	scores, err := s.client.HMGet(ctx, s.key(code, "scores"), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("read scores: %w", err)
	}

	out := make([]domain.Participant, 0, len(ids))
	for i := range ids {
		raw, ok := records[i].(string)
		if !ok {
			continue
		}
		var p domain.Participant
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode participant: %w", err)
		}
		if score, ok := scores[i].(string); ok {
			p.Score, _ = strconv.Atoi(score)
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *PlayStore) ttlSeconds() int64 {
	if s.ttl <= 0 {
		return 0
	}
	if secs := int64(s.ttl / time.Second); secs > 0 {
		return secs
	}
	return 1
}

func (s *PlayStore) keys(code string) []string {
	suffixes := []string{"seats", "participants", "roster", "scores", "answered", "answers"}
	keys := make([]string, len(suffixes))
	for i, suffix := range suffixes {
		keys[i] = s.key(code, suffix)
	}
	return keys
}

func (s *PlayStore) key(code, suffix string) string {
	return "challenge:" + code + ":" + suffix
}
