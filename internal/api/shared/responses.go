// Package shared holds the helpers common to all HTTP handlers:
// response encoding, request decoding and validation, and typed
// context keys.
package shared

import (
	"encoding/json"
	"net/http"

	"github.com/atelierhq/atelier-api/internal/platform/logger"
)

// ErrorResponse is the standard error body. The message is always a
// sanitized, client-safe string; internal detail stays in the logs,
// correlated by trace ID.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// RespondWithJSON writes data as a JSON response with the given status.
func RespondWithJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.FromContext(r.Context()).Error("failed to encode JSON response",
			"error", err,
			"path", r.URL.Path)
	}
}

// RespondWithError writes a JSON error body with the given status and
// client-safe message.
func RespondWithError(w http.ResponseWriter, r *http.Request, status int, message string) {
	RespondWithJSON(w, r, status, ErrorResponse{
		Error:   message,
		TraceID: GetTraceID(r.Context()),
	})
}

// RespondWithErrorAndLog writes a sanitized error response and logs the
// underlying error. 5xx responses log at error level, everything else
// at debug.
func RespondWithErrorAndLog(w http.ResponseWriter, r *http.Request, status int, userMessage string, err error) {
	log := logger.FromContext(r.Context())
	attrs := []any{
		"status_code", status,
		"path", r.URL.Path,
		"method", r.Method,
	}
	if err != nil {
		attrs = append(attrs, "error", err)
	}

	if status >= http.StatusInternalServerError {
		log.Error(userMessage, attrs...)
	} else {
		log.Debug(userMessage, attrs...)
	}

	RespondWithError(w, r, status, userMessage)
}
