package api

import (
	"net/http"

	"github.com/atelierhq/atelier-api/internal/api/shared"
	"github.com/atelierhq/atelier-api/internal/platform/logger"
	"github.com/atelierhq/atelier-api/internal/service"
	"github.com/atelierhq/atelier-api/internal/worker"
)

// TickHandler handles POST /internal/tick, the scheduled-invocation
// entry point that drives job processing.
type TickHandler struct {
	tick  *worker.Tick
	cache *service.CacheService
}

// NewTickHandler creates a new TickHandler.
func NewTickHandler(tick *worker.Tick, cache *service.CacheService) *TickHandler {
	return &TickHandler{
		tick:  tick,
		cache: cache,
	}
}

// Run executes one bounded processing tick and reports its counts.
// A partial tick (store failure mid-loop) responds 500 but still
// includes the counts accumulated before the failure. Expired cache
// entries are swept opportunistically after the tick.
func (h *TickHandler) Run(w http.ResponseWriter, r *http.Request) {
	result, err := h.tick.Run(r.Context())
	if err != nil {
		shared.RespondWithJSON(w, r, http.StatusInternalServerError, struct {
			*worker.TickResult
			Error string `json:"error"`
		}{result, GetSafeErrorMessage(err)})
		return
	}

	// Sweep failures never fail the tick.
	if err := h.cache.CleanupExpired(r.Context()); err != nil {
		logger.FromContext(r.Context()).Warn("cache sweep failed after tick", "error", err)
	}

	shared.RespondWithJSON(w, r, http.StatusOK, result)
}
