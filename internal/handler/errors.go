package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/efreitasn/marketsim/internal/domain"
)

// classifyError maps a service error to its HTTP status, error code and
// message.
func classifyError(err error) (status int, code, message string) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest, "validation_error", validationErr.Message
	}

	switch {
	case errors.Is(err, domain.ErrAgentNotFound):
		return http.StatusNotFound, "agent_not_found", "Agent not found"
	case errors.Is(err, domain.ErrTickNotFound):
		return http.StatusNotFound, "tick_not_found", "Tick not found"
	case errors.Is(err, domain.ErrBehaviorNotFound):
		return http.StatusNotFound, "behavior_not_found", "Agent behavior not found"
	case errors.Is(err, domain.ErrAgentAlreadyExists):
		return http.StatusConflict, "agent_already_exists", "Agent already exists"
	case errors.Is(err, domain.ErrBehaviorAlreadyExists):
		return http.StatusConflict, "behavior_already_exists", "Agent behavior already exists"
	case errors.Is(err, domain.ErrTickInProgress):
		return http.StatusServiceUnavailable, "tick_in_progress", "A simulation tick is already running"
	case errors.Is(err, domain.ErrCommitFailure):
		return http.StatusServiceUnavailable, "commit_failure", "The tick could not be committed and was rolled back"
	case errors.Is(err, domain.ErrInvalidAgent):
		return http.StatusUnprocessableEntity, "invalid_agent", err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "request_cancelled", "The request ended before the operation finished"
	default:
		return http.StatusInternalServerError, "internal_error", "An unexpected error occurred"
	}
}

// writeServiceError writes the standard error body for err.
func writeServiceError(w http.ResponseWriter, err error) {
	status, code, message := classifyError(err)
	WriteError(w, status, code, message)
}
