package shared

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for values stored in the request context.
type ContextKey string

const (
	// UserIDContextKey holds the authenticated user's ID.
	UserIDContextKey ContextKey = "userID"

	// OperatorContextKey holds the operator identity for admin requests.
	OperatorContextKey ContextKey = "operator"

	// TraceIDKey holds the per-request trace ID.
	TraceIDKey ContextKey = "traceID"
)

// SetTraceID attaches a fresh trace ID to the context.
func SetTraceID(ctx context.Context) context.Context {
	return context.WithValue(ctx, TraceIDKey, uuid.NewString())
}

// GetTraceID returns the trace ID from the context, or "" if absent.
func GetTraceID(ctx context.Context) string {
	traceID, ok := ctx.Value(TraceIDKey).(string)
	if !ok {
		return ""
	}
	return traceID
}

// GetUserID returns the authenticated user's ID from the context.
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDContextKey).(uuid.UUID)
	return userID, ok
}

// GetOperator returns the operator identity from the context, or "" if
// the request was not operator-authenticated.
func GetOperator(ctx context.Context) string {
	operator, ok := ctx.Value(OperatorContextKey).(string)
	if !ok {
		return ""
	}
	return operator
}
