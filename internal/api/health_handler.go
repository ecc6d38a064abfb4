package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/atelierhq/atelier-api/internal/api/shared"
)

// HealthHandler handles GET /healthz.
type HealthHandler struct {
	db *sql.DB
}

// NewHealthHandler creates a new HealthHandler. db may be nil when no
// SQL database backs the deployment.
func NewHealthHandler(db *sql.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// Check pings the database with a short deadline so a hung connection
// pool reports unhealthy instead of stalling the probe.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.db.PingContext(ctx); err != nil {
			shared.RespondWithErrorAndLog(w, r, http.StatusServiceUnavailable, "Database unavailable", err)
			return
		}
	}

	shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
