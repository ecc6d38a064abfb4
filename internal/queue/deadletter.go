package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/atelierhq/atelier-api/internal/domain"
	"github.com/atelierhq/atelier-api/internal/platform/logger"
	"github.com/atelierhq/atelier-api/internal/store"
	"github.com/google/uuid"
)

// DeadLetterQueue fronts the dead-letter store and owns the requeue
// operation back into the job queue. Requeueing always creates a new
// job ID; the dead-letter entry stays behind for audit.
type DeadLetterQueue struct {
	db                 *sql.DB // nil when the stores are not SQL-backed (tests)
	deadLetters        store.DeadLetterStore
	jobs               store.JobStore
	defaultMaxAttempts int
}

// NewDeadLetterQueue creates a DeadLetterQueue over the given stores.
func NewDeadLetterQueue(db *sql.DB, deadLetters store.DeadLetterStore, jobs store.JobStore, defaultMaxAttempts int) *DeadLetterQueue {
	if defaultMaxAttempts <= 0 {
		defaultMaxAttempts = 3
	}
	return &DeadLetterQueue{
		db:                 db,
		deadLetters:        deadLetters,
		jobs:               jobs,
		defaultMaxAttempts: defaultMaxAttempts,
	}
}

// List retrieves entries matching the filter, newest first.
func (d *DeadLetterQueue) List(ctx context.Context, filter store.DeadLetterListFilter) ([]*domain.DeadLetterEntry, error) {
	entries, err := d.deadLetters.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letter entries: %w", err)
	}
	return entries, nil
}

// Stats returns aggregate counts for operational dashboards.
func (d *DeadLetterQueue) Stats(ctx context.Context) (*store.DeadLetterStats, error) {
	stats, err := d.deadLetters.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get dead letter stats: %w", err)
	}
	return stats, nil
}

// Retry requeues a dead entry: a fresh job is created with the original
// type, payload, and user, attempts reset to zero, and the entry is
// marked retrying. Returns the new job.
//
// Returns store.ErrDeadLetterNotFound if the entry does not exist and
// store.ErrInvalidState if it is already retrying or resolved — a second
// retry is a consistent error, never a silent duplicate job.
func (d *DeadLetterQueue) Retry(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	log := logger.FromContext(ctx)

	entry, err := d.deadLetters.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load dead letter entry: %w", err)
	}
	if entry.Status != domain.DeadLetterStatusDead {
		return nil, fmt.Errorf("%w: dead letter %s is %s", store.ErrInvalidState, id, entry.Status)
	}

	job, err := domain.NewJob(entry.Type, entry.Payload, domain.NewJobOptions{
		UserID:      entry.UserID,
		MaxAttempts: d.defaultMaxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	if err := d.requeue(ctx, entry.ID, job); err != nil {
		return nil, err
	}

	log.Info("dead letter entry requeued",
		"dead_letter_id", entry.ID,
		"original_job_id", entry.OriginalJobID,
		"new_job_id", job.ID,
		"job_type", job.Type)

	return job, nil
}

// requeue creates the new job and flips the entry to retrying, in one
// transaction when a SQL store backs the queue. MarkRetrying is
// conditional on dead status, so a concurrent retry of the same entry
// commits only once.
func (d *DeadLetterQueue) requeue(ctx context.Context, entryID uuid.UUID, job *domain.Job) error {
	if d.db == nil {
		return d.requeueWith(ctx, d.jobs, d.deadLetters, entryID, job)
	}

	return store.RunInTransaction(ctx, d.db, func(ctx context.Context, tx *sql.Tx) error {
		return d.requeueWith(ctx, d.jobs.WithTx(tx), d.deadLetters.WithTx(tx), entryID, job)
	})
}

func (d *DeadLetterQueue) requeueWith(ctx context.Context, jobs store.JobStore, deadLetters store.DeadLetterStore, entryID uuid.UUID, job *domain.Job) error {
	if err := deadLetters.MarkRetrying(ctx, entryID); err != nil {
		return fmt.Errorf("failed to mark dead letter retrying: %w", err)
	}
	if err := jobs.Create(ctx, job); err != nil {
		return fmt.Errorf("failed to create requeued job: %w", err)
	}
	return nil
}

// BulkRetry requeues every dead-status entry of the given job type,
// returning the count actually retried. Per-entry failures are logged
// and skipped, not fatal to the batch.
func (d *DeadLetterQueue) BulkRetry(ctx context.Context, jobType string) (int, error) {
	log := logger.FromContext(ctx)

	entries, err := d.deadLetters.ListDeadByType(ctx, jobType)
	if err != nil {
		return 0, fmt.Errorf("failed to list dead entries for bulk retry: %w", err)
	}

	retried := 0
	for _, entry := range entries {
		if _, err := d.Retry(ctx, entry.ID); err != nil {
			log.Warn("skipping dead letter entry during bulk retry",
				"dead_letter_id", entry.ID,
				"error", err)
			continue
		}
		retried++
	}

	log.Info("bulk retry finished",
		"job_type", jobType,
		"eligible", len(entries),
		"retried", retried)

	return retried, nil
}

// Resolve marks an entry resolved with audit fields, for failures an
// operator decides not to reprocess. Returns store.ErrInvalidState if
// the entry is already resolved.
func (d *DeadLetterQueue) Resolve(ctx context.Context, id uuid.UUID, notes, resolvedBy string) error {
	if err := d.deadLetters.MarkResolved(ctx, id, notes, resolvedBy); err != nil {
		return fmt.Errorf("failed to resolve dead letter entry: %w", err)
	}

	logger.FromContext(ctx).Info("dead letter entry resolved",
		"dead_letter_id", id,
		"resolved_by", resolvedBy)
	return nil
}

// PurgeResolved hard-deletes resolved entries older than the given
// number of days. Irreversible; used for storage hygiene.
func (d *DeadLetterQueue) PurgeResolved(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays < 0 {
		return 0, fmt.Errorf("%w: purge cutoff cannot be negative", store.ErrInvalidEntity)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	purged, err := d.deadLetters.PurgeResolved(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge resolved dead letters: %w", err)
	}

	logger.FromContext(ctx).Info("purged resolved dead letters",
		"older_than_days", olderThanDays,
		"purged", purged)

	return purged, nil
}
