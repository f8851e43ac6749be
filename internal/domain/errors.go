package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrAgentNotFound         = errors.New("agent_not_found")
	ErrAgentAlreadyExists    = errors.New("agent_already_exists")
	ErrInvalidAgent          = errors.New("invalid_agent")
	ErrCommitFailure         = errors.New("commit_failure")
	ErrTickInProgress        = errors.New("tick_in_progress")
	ErrTickNotFound          = errors.New("tick_not_found")
	ErrBehaviorAlreadyExists = errors.New("behavior_already_exists")
	ErrBehaviorNotFound      = errors.New("behavior_not_found")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
