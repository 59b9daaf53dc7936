package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"medquiz-challenge/internal/domain"
)

// ChallengeLoader loads challenges and their ordered questions from Postgres.
type ChallengeLoader struct {
	pool *pgxpool.Pool
}

func NewChallengeLoader(pool *pgxpool.Pool) *ChallengeLoader {
	return &ChallengeLoader{pool: pool}
}

// LoadHeader reads only the challenge row. Status changes land here first.
func (l *ChallengeLoader) LoadHeader(ctx context.Context, code string) (domain.Challenge, error) {
	var (
		challenge domain.Challenge
		status    string
	)
	err := l.pool.QueryRow(ctx,
		`SELECT code, status, time_limit_seconds FROM challenges WHERE code=$1`, code,
	).Scan(&challenge.Code, &status, &challenge.TimeLimitSeconds)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Challenge{}, domain.ErrChallengeNotFound
	}
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("load challenge: %w", err)
	}
	challenge.Status = domain.ChallengeStatus(status)
	return challenge, nil
}

func (l *ChallengeLoader) LoadChallenge(ctx context.Context, code string) (domain.ChallengeContent, error) {
	challenge, err := l.LoadHeader(ctx, code)
	if err != nil {
		return domain.ChallengeContent{}, err
	}
	content := domain.ChallengeContent{Challenge: challenge}

	rows, err := l.pool.Query(ctx, `
		SELECT id, question_order, prompt, options, correct_answer, COALESCE(explanation, '')
		FROM challenge_questions
		WHERE challenge_code=$1
		ORDER BY question_order`, code)
	if err != nil {
		return domain.ChallengeContent{}, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.ID, &q.Order, &q.Prompt, &q.Options, &q.CorrectAnswer, &q.Explanation); err != nil {
			return domain.ChallengeContent{}, fmt.Errorf("scan question: %w", err)
		}
		content.Questions = append(content.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return domain.ChallengeContent{}, fmt.Errorf("load questions: %w", err)
	}
	return content, nil
}
