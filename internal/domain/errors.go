package domain

import "errors"

var (
	// ErrChallengeNotFound is returned when no challenge exists for a code.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrChallengeNotActive is returned when a challenge is not in the active state.
	ErrChallengeNotActive = errors.New("challenge is not active")
	// ErrNoQuestions indicates the challenge has an empty question list.
	ErrNoQuestions = errors.New("challenge has no questions")
	// ErrDuplicateAnswer indicates an answer already exists for the participant and question order.
	ErrDuplicateAnswer = errors.New("answer already submitted")
	// ErrParticipantNotFound is returned when a user acts before joining.
	ErrParticipantNotFound = errors.New("participant not found in challenge")
	// ErrQuestionNotFound indicates a submitted question ID or order is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrInvalidSnapshot marks an answer-status snapshot that breaks count invariants.
	ErrInvalidSnapshot = errors.New("invalid answer status snapshot")
)
