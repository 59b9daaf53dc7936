package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"medquiz-challenge/internal/domain"
)

// UserHeader carries the caller's identity to the challenge backend.
const UserHeader = "X-User-ID"

// StatusError is returned for non-2xx responses that have no more specific meaning.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("challenge api returned status %d: %s", e.StatusCode, e.Message)
}

// Client talks to the challenge REST API on behalf of one user.
type Client struct {
	baseURL    string
	userID     string
	httpClient *http.Client
	now        func() time.Time
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

func New(baseURL, userID string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		userID:  userID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoadChallenge fetches the challenge, its questions, participants and answers.
func (c *Client) LoadChallenge(ctx context.Context, code string) (domain.ChallengeDetails, error) {
	var details domain.ChallengeDetails
	if err := c.do(ctx, http.MethodGet, challengePath(code), nil, nil, &details); err != nil {
		return domain.ChallengeDetails{}, err
	}
	return details, nil
}

// Join takes a seat in the challenge. Joining twice returns the existing seat.
func (c *Client) Join(ctx context.Context, code string) (domain.Participant, error) {
	var participant domain.Participant
	if err := c.do(ctx, http.MethodPost, challengePath(code)+"/join", nil, nil, &participant); err != nil {
		return domain.Participant{}, err
	}
	return participant, nil
}

type submitPayload struct {
	AllAnswered   *bool `json:"allAnswered"`
	AnsweredCount *int  `json:"answeredCount"`
	TotalCount    *int  `json:"totalCount"`
}

// SubmitAnswer posts the answer. A rejection for an answer that already exists is
// returned as domain.ErrDuplicateAnswer.
func (c *Client) SubmitAnswer(ctx context.Context, code string, submission domain.AnswerSubmission) (domain.SubmitResult, error) {
	var payload submitPayload
	if err := c.do(ctx, http.MethodPost, challengePath(code)+"/answer", nil, submission, &payload); err != nil {
		return domain.SubmitResult{}, err
	}
	res := domain.SubmitResult{}
	if payload.AllAnswered != nil {
		res.AllAnswered = *payload.AllAnswered
	}
	if payload.AnsweredCount != nil && payload.TotalCount != nil {
		res.AnsweredCount = *payload.AnsweredCount
		res.TotalCount = *payload.TotalCount
	}
	return res, nil
}

type statusPayload struct {
	UserAnswered  *bool `json:"userAnswered"`
	AllAnswered   *bool `json:"allAnswered"`
	AnsweredCount *int  `json:"answeredCount"`
	TotalCount    *int  `json:"totalCount"`
}

// AnswerStatus reads convergence for one question with every cache layer bypassed.
func (c *Client) AnswerStatus(ctx context.Context, code string, questionOrder int) (domain.AnswerStatusSnapshot, error) {
	query := url.Values{}
	query.Set("question_order", strconv.Itoa(questionOrder))
	query.Set("_", strconv.FormatInt(c.now().UnixNano(), 10))

	var payload statusPayload
	if err := c.do(ctx, http.MethodGet, challengePath(code)+"/answer-status", query, nil, &payload); err != nil {
		return domain.AnswerStatusSnapshot{}, err
	}

	snap := domain.AnswerStatusSnapshot{}
	if payload.UserAnswered != nil {
		snap.UserAnswered = *payload.UserAnswered
	}
	if payload.AllAnswered != nil {
		snap.AllAnswered = *payload.AllAnswered
	}
	if payload.AnsweredCount != nil && payload.TotalCount != nil {
		snap.AnsweredCount = *payload.AnsweredCount
		snap.TotalCount = *payload.TotalCount
		snap.CountsKnown = true
	}
	return snap, nil
}

func challengePath(code string) string {
	return "/challenges/" + url.PathEscape(code)
}

type errorPayload struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")
	req.Header.Set("Pragma", "no-cache")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userID != "" {
		req.Header.Set(UserHeader, c.userID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classify(resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func classify(status int, raw []byte) error {
	var payload errorPayload
	msg := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		msg = payload.Error
	}

	switch {
	case status >= 400 && status < 500 && strings.Contains(strings.ToLower(msg), "already submitted"):
		return fmt.Errorf("%w: %s", domain.ErrDuplicateAnswer, msg)
	case status == http.StatusNotFound && strings.Contains(strings.ToLower(msg), "challenge"):
		return fmt.Errorf("%w: %s", domain.ErrChallengeNotFound, msg)
	}
	return &StatusError{StatusCode: status, Message: msg}
}
