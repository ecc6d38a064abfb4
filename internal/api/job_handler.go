// Package api contains the HTTP handlers: job enqueueing and listing,
// the internal processing tick, and the operator dead-letter endpoints.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/atelierhq/atelier-api/internal/api/shared"
	"github.com/atelierhq/atelier-api/internal/domain"
	"github.com/atelierhq/atelier-api/internal/queue"
)

// EnqueueJobRequest is the body for POST /api/jobs. Priority is a
// pointer so an explicit 0 (lowest) is distinguishable from an omitted
// field, which falls back to the default.
type EnqueueJobRequest struct {
	Type         string          `json:"type"                    validate:"required,min=1,max=100"`
	Payload      json.RawMessage `json:"payload"`
	Priority     *int            `json:"priority,omitempty"      validate:"omitempty,gte=0,lte=9"`
	ScheduledFor *time.Time      `json:"scheduled_for,omitempty"`
	MaxAttempts  int             `json:"max_attempts,omitempty"  validate:"gte=0,lte=10"`
}

// BatchEnqueueRequest is the body for POST /api/jobs/batch.
type BatchEnqueueRequest struct {
	Jobs []EnqueueJobRequest `json:"jobs" validate:"required,min=1,max=100,dive"`
}

// JobResponse is the client view of a job.
type JobResponse struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Status       string          `json:"status"`
	Priority     int             `json:"priority"`
	ScheduledFor time.Time       `json:"scheduled_for"`
	Attempts     int             `json:"attempts"`
	MaxAttempts  int             `json:"max_attempts"`
	LastError    string          `json:"last_error,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// QueueStatsResponse is the body for GET /api/queue/stats.
type QueueStatsResponse struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
}

// JobHandler handles job-related HTTP requests.
type JobHandler struct {
	queue *queue.JobQueue
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(jobQueue *queue.JobQueue) *JobHandler {
	return &JobHandler{
		queue: jobQueue,
	}
}

// EnqueueJob handles POST /api/jobs. Responds 202: the job is accepted
// for asynchronous processing, not executed inline.
func (h *JobHandler) EnqueueJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.GetUserID(r.Context())
	if !ok || userID == uuid.Nil {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	var req EnqueueJobRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	job, err := h.queue.Enqueue(r.Context(), enqueueRequest(req, userID))
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, jobToResponse(job))
}

// EnqueueJobBatch handles POST /api/jobs/batch. All jobs are inserted
// or none are.
func (h *JobHandler) EnqueueJobBatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.GetUserID(r.Context())
	if !ok || userID == uuid.Nil {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	var req BatchEnqueueRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	reqs := make([]queue.EnqueueRequest, 0, len(req.Jobs))
	for _, jobReq := range req.Jobs {
		reqs = append(reqs, enqueueRequest(jobReq, userID))
	}

	jobs, err := h.queue.BatchEnqueue(r.Context(), reqs)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	responses := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		responses = append(responses, jobToResponse(job))
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, responses)
}

// ListJobs handles GET /api/jobs, returning the caller's recent jobs.
// The optional limit query parameter defaults to 20 and is capped at 100.
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.GetUserID(r.Context())
	if !ok || userID == uuid.Nil {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		limit = parsed
	}
	if limit > 100 {
		limit = 100
	}

	jobs, err := h.queue.UserJobs(r.Context(), userID, limit)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	responses := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		responses = append(responses, jobToResponse(job))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, responses)
}

// QueueStats handles GET /api/queue/stats.
func (h *JobHandler) QueueStats(w http.ResponseWriter, r *http.Request) {
	pending, err := h.queue.PendingCount(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	processing, err := h.queue.ProcessingCount(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, QueueStatsResponse{
		Pending:    pending,
		Processing: processing,
	})
}

// enqueueRequest converts the API request into the queue's request,
// binding the job to the authenticated user.
func enqueueRequest(req EnqueueJobRequest, userID uuid.UUID) queue.EnqueueRequest {
	out := queue.EnqueueRequest{
		Type:        req.Type,
		Payload:     req.Payload,
		UserID:      &userID,
		Priority:    req.Priority,
		MaxAttempts: req.MaxAttempts,
	}
	if req.ScheduledFor != nil {
		out.ScheduledFor = *req.ScheduledFor
	}
	return out
}

// jobToResponse converts a domain.Job to its client view. The payload
// is omitted: callers already know what they submitted, and payloads
// may embed internal identifiers.
func jobToResponse(job *domain.Job) JobResponse {
	return JobResponse{
		ID:           job.ID.String(),
		Type:         job.Type,
		Status:       string(job.Status),
		Priority:     job.Priority,
		ScheduledFor: job.ScheduledFor,
		Attempts:     job.Attempts,
		MaxAttempts:  job.MaxAttempts,
		LastError:    job.LastError,
		Result:       job.Result,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
		CompletedAt:  job.CompletedAt,
	}
}
