// Package queue provides the orchestration layer over the job and
// dead-letter stores: enqueueing, claiming, completion, and the
// retry-versus-escalate decision.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/atelierhq/atelier-api/internal/domain"
	"github.com/atelierhq/atelier-api/internal/platform/logger"
	"github.com/atelierhq/atelier-api/internal/store"
	"github.com/google/uuid"
)

// Config holds job queue behavior settings.
type Config struct {
	// DefaultMaxAttempts applies to jobs enqueued without an explicit limit.
	DefaultMaxAttempts int

	// Backoff schedules retry delays for failed attempts.
	Backoff Backoff

	// Lease bounds how long a claimed job may sit in processing before
	// it is considered abandoned and becomes claimable again.
	Lease time.Duration
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		DefaultMaxAttempts: 3,
		Backoff:            Backoff{Base: 30 * time.Second, Max: time.Hour},
		Lease:              10 * time.Minute,
	}
}

// JobQueue fronts the job store, enforcing priority + schedule ordering
// and owning the retry-versus-dead-letter decision. It holds no job
// state itself; everything is rehydrated from the store per call, since
// the processing tick is not a long-lived process.
type JobQueue struct {
	db          *sql.DB // nil when the stores are not SQL-backed (tests)
	jobs        store.JobStore
	deadLetters store.DeadLetterStore
	config      Config
	now         func() time.Time
}

// NewJobQueue creates a JobQueue over the given stores. db may be nil
// when the stores do not require SQL transactions (e.g., the memory
// store); escalation then runs as sequential store calls.
func NewJobQueue(db *sql.DB, jobs store.JobStore, deadLetters store.DeadLetterStore, config Config) *JobQueue {
	if config.DefaultMaxAttempts <= 0 {
		config.DefaultMaxAttempts = 3
	}
	return &JobQueue{
		db:          db,
		jobs:        jobs,
		deadLetters: deadLetters,
		config:      config,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the queue's clock. Tests use this to control
// schedule gating and lease expiry.
func (q *JobQueue) SetClock(now func() time.Time) {
	q.now = now
}

// EnqueueRequest describes one job to enqueue.
type EnqueueRequest struct {
	Type         string
	Payload      json.RawMessage
	UserID       *uuid.UUID
	Priority     *int      // nil means domain.DefaultJobPriority; 0 is the lowest priority
	ScheduledFor time.Time // zero means now
	MaxAttempts  int       // zero means Config.DefaultMaxAttempts
}

// Enqueue durably inserts a new pending job and returns it.
// The type is not checked against the processor registry here: unknown
// types fail at dispatch, not at enqueue.
func (q *JobQueue) Enqueue(ctx context.Context, req EnqueueRequest) (*domain.Job, error) {
	log := logger.FromContext(ctx)

	job, err := q.buildJob(req)
	if err != nil {
		return nil, err
	}

	if err := q.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	log.Debug("job enqueued",
		"job_id", job.ID,
		"job_type", job.Type,
		"priority", job.Priority,
		"scheduled_for", job.ScheduledFor)

	return job, nil
}

// BatchEnqueue inserts multiple jobs in a single bulk operation.
// Either every job is inserted or the error is surfaced; one bad record
// never silently drops the others.
func (q *JobQueue) BatchEnqueue(ctx context.Context, reqs []EnqueueRequest) ([]*domain.Job, error) {
	log := logger.FromContext(ctx)

	if len(reqs) == 0 {
		return nil, nil
	}

	jobs := make([]*domain.Job, 0, len(reqs))
	for _, req := range reqs {
		job, err := q.buildJob(req)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if err := q.jobs.CreateBatch(ctx, jobs); err != nil {
		return nil, fmt.Errorf("failed to batch enqueue jobs: %w", err)
	}

	log.Debug("jobs batch enqueued", "count", len(jobs))

	return jobs, nil
}

// NextJob atomically claims the highest-priority, earliest-scheduled
// eligible job, transitioning it to processing. Returns (nil, nil) when
// the queue is drained. Losing a claim race is invisible to the caller:
// it simply receives the next still-eligible job or nil.
func (q *JobQueue) NextJob(ctx context.Context) (*domain.Job, error) {
	job, err := q.jobs.Claim(ctx, q.now(), q.config.Lease)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim next job: %w", err)
	}
	return job, nil
}

// Complete transitions a processing job to completed, storing its result.
func (q *JobQueue) Complete(ctx context.Context, id uuid.UUID, result json.RawMessage) error {
	if err := q.jobs.MarkCompleted(ctx, id, result); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

// Fail records a failed attempt for a processing job. If the job has
// attempts left it is returned to pending with an exponential-backoff
// delay; otherwise it is marked failed and escalated to the dead-letter
// store with its full failure history.
func (q *JobQueue) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	log := logger.FromContext(ctx)

	job, err := q.jobs.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load job for failure handling: %w", err)
	}

	if job.Attempts < job.MaxAttempts {
		runAt := q.now().Add(q.config.Backoff.Delay(job.Attempts))
		if err := q.jobs.RetryLater(ctx, id, errMsg, runAt); err != nil {
			return fmt.Errorf("failed to schedule retry: %w", err)
		}
		log.Info("job scheduled for retry",
			"job_id", id,
			"job_type", job.Type,
			"attempt", job.Attempts,
			"max_attempts", job.MaxAttempts,
			"next_run_at", runAt)
		return nil
	}

	if err := q.escalate(ctx, id, errMsg); err != nil {
		return err
	}

	log.Warn("job failed permanently, escalated to dead letter queue",
		"job_id", id,
		"job_type", job.Type,
		"attempts", job.Attempts)
	return nil
}

// escalate marks the job failed and creates its dead-letter entry.
// With a SQL-backed store both writes commit atomically; the entry
// carries the complete failure history including the final error.
func (q *JobQueue) escalate(ctx context.Context, id uuid.UUID, errMsg string) error {
	if q.db == nil {
		return q.escalateWith(ctx, q.jobs, q.deadLetters, id, errMsg)
	}

	return store.RunInTransaction(ctx, q.db, func(ctx context.Context, tx *sql.Tx) error {
		return q.escalateWith(ctx, q.jobs.WithTx(tx), q.deadLetters.WithTx(tx), id, errMsg)
	})
}

func (q *JobQueue) escalateWith(ctx context.Context, jobs store.JobStore, deadLetters store.DeadLetterStore, id uuid.UUID, errMsg string) error {
	if err := jobs.MarkFailed(ctx, id, errMsg); err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}

	// Reload so the entry carries the history including the final failure.
	job, err := jobs.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to reload failed job: %w", err)
	}

	entry, err := domain.NewDeadLetterEntry(job)
	if err != nil {
		return fmt.Errorf("failed to build dead letter entry: %w", err)
	}

	if err := deadLetters.Create(ctx, entry); err != nil {
		return fmt.Errorf("failed to create dead letter entry: %w", err)
	}

	return nil
}

// UserJobs lists up to limit of the user's jobs, most recent first.
func (q *JobQueue) UserJobs(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Job, error) {
	jobs, err := q.jobs.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list user jobs: %w", err)
	}
	return jobs, nil
}

// PendingCount returns the number of jobs waiting to be claimed.
func (q *JobQueue) PendingCount(ctx context.Context) (int, error) {
	return q.jobs.CountByStatus(ctx, domain.JobStatusPending)
}

// ProcessingCount returns the number of jobs currently claimed.
func (q *JobQueue) ProcessingCount(ctx context.Context) (int, error) {
	return q.jobs.CountByStatus(ctx, domain.JobStatusProcessing)
}

// buildJob constructs a domain job from an enqueue request, applying
// queue-level defaults.
func (q *JobQueue) buildJob(req EnqueueRequest) (*domain.Job, error) {
	maxAttempts := req.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = q.config.DefaultMaxAttempts
	}

	job, err := domain.NewJob(req.Type, req.Payload, domain.NewJobOptions{
		UserID:       req.UserID,
		Priority:     req.Priority,
		ScheduledFor: req.ScheduledFor,
		MaxAttempts:  maxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	return job, nil
}
