package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/atelierhq/atelier-api/internal/api/shared"
	"github.com/atelierhq/atelier-api/internal/platform/logger"
)

// CronSecretHeader carries the shared secret set by the platform's
// scheduled-invocation configuration.
const CronSecretHeader = "X-Cron-Secret"

// CronAuth gates the internal tick endpoint: only requests presenting
// the configured secret may trigger processing. The comparison is
// constant-time.
func CronAuth(secret string) func(http.Handler) http.Handler {
	expected := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := []byte(r.Header.Get(CronSecretHeader))
			if subtle.ConstantTimeCompare(provided, expected) != 1 {
				logger.FromContext(r.Context()).Warn("rejected tick request with bad cron secret",
					"remote_addr", r.RemoteAddr)
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid cron secret")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
