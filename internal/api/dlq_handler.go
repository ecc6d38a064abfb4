package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/atelierhq/atelier-api/internal/api/shared"
	"github.com/atelierhq/atelier-api/internal/domain"
	"github.com/atelierhq/atelier-api/internal/queue"
	"github.com/atelierhq/atelier-api/internal/store"
)

// DeadLetterResponse is the operator view of a dead-letter entry.
type DeadLetterResponse struct {
	ID              string                 `json:"id"`
	OriginalJobID   string                 `json:"original_job_id"`
	Type            string                 `json:"type"`
	UserID          string                 `json:"user_id,omitempty"`
	Status          string                 `json:"status"`
	Attempts        int                    `json:"attempts"`
	FailureHistory  []domain.FailureRecord `json:"failure_history"`
	ResolutionNotes string                 `json:"resolution_notes,omitempty"`
	ResolvedBy      string                 `json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time             `json:"resolved_at,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
}

// BulkRetryRequest is the body for POST /api/admin/dlq/retry.
type BulkRetryRequest struct {
	JobType string `json:"job_type" validate:"required,min=1,max=100"`
}

// ResolveRequest is the body for POST /api/admin/dlq/{id}/resolve.
type ResolveRequest struct {
	Notes string `json:"notes" validate:"max=4000"`
}

// DLQHandler handles the operator dead-letter endpoints.
type DLQHandler struct {
	dlq *queue.DeadLetterQueue
}

// NewDLQHandler creates a new DLQHandler.
func NewDLQHandler(dlq *queue.DeadLetterQueue) *DLQHandler {
	return &DLQHandler{
		dlq: dlq,
	}
}

// List handles GET /api/admin/dlq with optional status, type, user_id,
// limit, and offset query parameters.
func (h *DLQHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseListFilter(w, r)
	if !ok {
		return
	}

	entries, err := h.dlq.List(r.Context(), filter)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	responses := make([]DeadLetterResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, deadLetterToResponse(entry))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, responses)
}

// Stats handles GET /api/admin/dlq/stats.
func (h *DLQHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.dlq.Stats(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, stats)
}

// Retry handles POST /api/admin/dlq/{id}/retry, requeueing one dead
// entry as a fresh job.
func (h *DLQHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid dead letter ID")
		return
	}

	job, err := h.dlq.Retry(r.Context(), id)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, jobToResponse(job))
}

// BulkRetry handles POST /api/admin/dlq/retry, requeueing every dead
// entry of the given job type.
func (h *DLQHandler) BulkRetry(w http.ResponseWriter, r *http.Request) {
	var req BulkRetryRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	retried, err := h.dlq.BulkRetry(r.Context(), req.JobType)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, map[string]int{"retried": retried})
}

// Resolve handles POST /api/admin/dlq/{id}/resolve. The resolving
// operator is taken from the authenticated context, not the body.
func (h *DLQHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid dead letter ID")
		return
	}

	var req ResolveRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	if err := h.dlq.Resolve(r.Context(), id, req.Notes, shared.GetOperator(r.Context())); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusNoContent, nil)
}

// PurgeResolved handles DELETE /api/admin/dlq/resolved. The
// older_than_days query parameter defaults to 30.
func (h *DLQHandler) PurgeResolved(w http.ResponseWriter, r *http.Request) {
	olderThanDays := 30
	if raw := r.URL.Query().Get("older_than_days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid older_than_days parameter")
			return
		}
		olderThanDays = parsed
	}

	purged, err := h.dlq.PurgeResolved(r.Context(), olderThanDays)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, map[string]int64{"purged": purged})
}

// parseListFilter builds the store filter from query parameters,
// writing the error response itself on bad input.
func (h *DLQHandler) parseListFilter(w http.ResponseWriter, r *http.Request) (store.DeadLetterListFilter, bool) {
	filter := store.DeadLetterListFilter{}
	q := r.URL.Query()

	if raw := q.Get("status"); raw != "" {
		status := domain.DeadLetterStatus(raw)
		if !status.Valid() {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid status parameter")
			return filter, false
		}
		filter.Status = &status
	}

	filter.JobType = q.Get("type")

	if raw := q.Get("user_id"); raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid user_id parameter")
			return filter, false
		}
		filter.UserID = &userID
	}

	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		if raw := q.Get(name); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid "+name+" parameter")
				return filter, false
			}
			*dst = parsed
		}
	}

	return filter, true
}

// deadLetterToResponse converts a domain.DeadLetterEntry to its
// operator view.
func deadLetterToResponse(entry *domain.DeadLetterEntry) DeadLetterResponse {
	resp := DeadLetterResponse{
		ID:              entry.ID.String(),
		OriginalJobID:   entry.OriginalJobID.String(),
		Type:            entry.Type,
		Status:          string(entry.Status),
		Attempts:        len(entry.FailureHistory),
		FailureHistory:  entry.FailureHistory,
		ResolutionNotes: entry.ResolutionNotes,
		ResolvedBy:      entry.ResolvedBy,
		ResolvedAt:      entry.ResolvedAt,
		CreatedAt:       entry.CreatedAt,
	}
	if entry.UserID != nil {
		resp.UserID = entry.UserID.String()
	}
	return resp
}
