// Package middleware contains the HTTP middleware for the API: trace
// propagation, operator JWT authentication, and the cron-secret gate.
package middleware

import (
	"net/http"
	"time"

	"github.com/atelierhq/atelier-api/internal/api/shared"
	"github.com/atelierhq/atelier-api/internal/platform/logger"
)

// Trace assigns each request a trace ID and a request-scoped logger
// carrying it, so every log line downstream of this middleware can be
// correlated with the response the client saw.
func Trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := shared.SetTraceID(r.Context())
		traceID := shared.GetTraceID(ctx)

		log := logger.FromContext(ctx).With("trace_id", traceID)
		ctx = logger.WithLogger(ctx, log)

		start := time.Now()
		log.Debug("request started",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr)

		next.ServeHTTP(w, r.WithContext(ctx))

		log.Debug("request finished",
			"method", r.Method,
			"path", r.URL.Path,
			"elapsed", time.Since(start).String())
	})
}
