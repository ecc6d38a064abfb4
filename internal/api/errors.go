package api

import (
	"errors"
	"net/http"

	"github.com/atelierhq/atelier-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes
// without leaking internal error types or messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case store.IsNotFoundError(err):
		return http.StatusNotFound

	case store.IsInvalidStateError(err),
		errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	case errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, client-facing message for an
// internal error.
func GetSafeErrorMessage(err error) string {
	switch {
	case errors.Is(err, store.ErrJobNotFound):
		return "Job not found"

	case errors.Is(err, store.ErrDeadLetterNotFound):
		return "Dead letter entry not found"

	case store.IsNotFoundError(err):
		return "Not found"

	case store.IsInvalidStateError(err):
		return "Entity is not in a state that allows this operation"

	case errors.Is(err, store.ErrDuplicate):
		return "Duplicate entity"

	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request data"

	default:
		return "An unexpected error occurred"
	}
}
