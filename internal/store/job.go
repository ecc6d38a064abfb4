package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/atelierhq/atelier-api/internal/domain"
	"github.com/google/uuid"
)

// JobStore defines the interface for persisting jobs.
//
// Implementations must make Claim atomic: under concurrent callers each
// pending job is handed to at most one of them. All status transitions
// are conditional on the current status so a lost race surfaces as
// ErrInvalidState (or an empty Claim), never as a silent overwrite.
type JobStore interface {
	// Create persists a new job.
	Create(ctx context.Context, job *domain.Job) error

	// CreateBatch persists multiple jobs in a single operation.
	// Either all jobs are inserted or the error is surfaced; partial
	// success is not silently accepted.
	CreateBatch(ctx context.Context, jobs []*domain.Job) error

	// GetByID retrieves a job by its unique ID.
	// Returns ErrJobNotFound if the job does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// Claim atomically selects the highest-priority, earliest-scheduled
	// eligible job (pending, scheduled_for <= now), transitions it to
	// processing, and increments its attempt counter.
	//
	// Before claiming, processing rows whose last update is older than
	// lease are reset to pending: a tick killed mid-execution must not
	// strand its job forever.
	//
	// Returns ErrJobNotFound when no job is eligible.
	Claim(ctx context.Context, now time.Time, lease time.Duration) (*domain.Job, error)

	// MarkCompleted transitions a processing job to completed, storing
	// its result and completion time. Returns ErrInvalidState if the job
	// is not currently processing.
	MarkCompleted(ctx context.Context, id uuid.UUID, result json.RawMessage) error

	// RetryLater transitions a processing job back to pending with a new
	// schedule time, appending the failure to the job's history. Returns
	// ErrInvalidState if the job is not currently processing.
	RetryLater(ctx context.Context, id uuid.UUID, errMsg string, runAt time.Time) error

	// MarkFailed transitions a processing job to failed (terminal),
	// appending the failure to the job's history. Returns ErrInvalidState
	// if the job is not currently processing.
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error

	// ListByUser retrieves up to limit jobs for the given user,
	// most recent first.
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Job, error)

	// CountByStatus returns the number of jobs currently in the given status.
	CountByStatus(ctx context.Context, status domain.JobStatus) (int, error)

	// WithTx returns a new JobStore instance that uses the provided transaction.
	// The transaction is created and managed by the caller (typically a service).
	WithTx(tx *sql.Tx) JobStore
}
