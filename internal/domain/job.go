package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a background job
type JobStatus string

// Possible job status values
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job type identifiers for the processors the marketplace registers.
// The queue itself attaches no meaning to these; dispatch does.
const (
	JobTypePerformanceCollection = "performance_collection"
	JobTypeAnomalyStatistics     = "anomaly_statistics"
	JobTypeContentGeneration     = "content_generation"
	JobTypeBrandDiscovery        = "brand_discovery"
	JobTypeInstagramSync         = "instagram_sync"
)

// DefaultJobPriority is used when the caller does not specify one.
const DefaultJobPriority = 5

// Common validation errors for Job
var (
	ErrEmptyJobID       = errors.New("job ID cannot be empty")
	ErrEmptyJobType     = errors.New("job type cannot be empty")
	ErrInvalidJobStatus = errors.New("invalid job status")
	ErrInvalidAttempts  = errors.New("job max attempts must be positive")
)

// FailureRecord captures a single failed attempt of a job.
type FailureRecord struct {
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Job represents a unit of background work persisted in the job store.
// Payload and Result are opaque to the queue; only the registered
// processor for Type interprets them.
type Job struct {
	ID             uuid.UUID       `json:"id"`
	Type           string          `json:"type"`
	Payload        json.RawMessage `json:"payload"`
	UserID         *uuid.UUID      `json:"user_id,omitempty"`
	Priority       int             `json:"priority"`
	ScheduledFor   time.Time       `json:"scheduled_for"`
	Status         JobStatus       `json:"status"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"max_attempts"`
	LastError      string          `json:"last_error,omitempty"`
	FailureHistory []FailureRecord `json:"failure_history,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// NewJobOptions carries the optional fields of NewJob.
type NewJobOptions struct {
	UserID       *uuid.UUID
	Priority     *int      // nil means DefaultJobPriority; 0 is the lowest priority
	ScheduledFor time.Time // zero means now
	MaxAttempts  int       // zero means the queue default
}

// NewJob creates a pending Job for the given type and payload.
// It generates a new UUID, applies option defaults, and sets the
// creation/update timestamps. Returns an error if validation fails.
func NewJob(jobType string, payload json.RawMessage, opts NewJobOptions) (*Job, error) {
	now := time.Now().UTC()

	priority := DefaultJobPriority
	if opts.Priority != nil {
		priority = *opts.Priority
	}
	scheduledFor := opts.ScheduledFor
	if scheduledFor.IsZero() {
		scheduledFor = now
	}

	job := &Job{
		ID:           uuid.New(),
		Type:         jobType,
		Payload:      payload,
		UserID:       opts.UserID,
		Priority:     priority,
		ScheduledFor: scheduledFor.UTC(),
		Status:       JobStatusPending,
		Attempts:     0,
		MaxAttempts:  opts.MaxAttempts,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}

	return job, nil
}

// Validate checks if the Job has valid data.
// Returns an error if any field fails validation.
func (j *Job) Validate() error {
	if j.ID == uuid.Nil {
		return ErrEmptyJobID
	}

	if j.Type == "" {
		return ErrEmptyJobType
	}

	if j.MaxAttempts < 0 {
		return ErrInvalidAttempts
	}

	if !isValidJobStatus(j.Status) {
		return ErrInvalidJobStatus
	}

	return nil
}

// Claimable reports whether the job is eligible to be claimed at the
// given instant: pending status and a schedule time that has passed.
func (j *Job) Claimable(now time.Time) bool {
	return j.Status == JobStatusPending && !j.ScheduledFor.After(now)
}

// Terminal reports whether the job has reached a terminal state.
func (j *Job) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// isValidJobStatus checks if the given status is a valid JobStatus.
func isValidJobStatus(status JobStatus) bool {
	switch status {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}
