package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/atelier-api/internal/domain"
	"github.com/atelierhq/atelier-api/internal/platform/memory"
	"github.com/atelierhq/atelier-api/internal/store"
)

// newDeadEntry inserts a dead-status entry directly into the store.
func newDeadEntry(t *testing.T, mem *memory.Store, jobType string) *domain.DeadLetterEntry {
	t.Helper()
	userID := uuid.New()
	entry, err := domain.NewDeadLetterEntry(&domain.Job{
		ID:      uuid.New(),
		Type:    jobType,
		Payload: json.RawMessage(`{"shop_id":"shop-1"}`),
		UserID:  &userID,
		Status:  domain.JobStatusFailed,
		FailureHistory: []domain.FailureRecord{
			{Message: "boom", OccurredAt: time.Now().UTC()},
		},
	})
	require.NoError(t, err)
	require.NoError(t, mem.DeadLetters().Create(context.Background(), entry))
	return entry
}

func newTestDLQ(t *testing.T) (*DeadLetterQueue, *memory.Store) {
	t.Helper()
	mem := memory.New()
	return NewDeadLetterQueue(nil, mem.DeadLetters(), mem.Jobs(), 3), mem
}

func TestDLQRetry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dlq, mem := newTestDLQ(t)
	entry := newDeadEntry(t, mem, domain.JobTypePerformanceCollection)

	job, err := dlq.Retry(ctx, entry.ID)
	require.NoError(t, err)

	// The requeued work runs under a fresh identity with reset attempts.
	assert.NotEqual(t, entry.OriginalJobID, job.ID)
	assert.Equal(t, entry.Type, job.Type)
	assert.JSONEq(t, string(entry.Payload), string(job.Payload))
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.Equal(t, 0, job.Attempts)
	assert.Equal(t, 3, job.MaxAttempts)
	require.NotNil(t, job.UserID)
	assert.Equal(t, *entry.UserID, *job.UserID)

	stored, err := mem.Jobs().GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, stored.Status)

	// The entry stays behind for audit, flipped to retrying.
	updated, err := mem.DeadLetters().GetByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DeadLetterStatusRetrying, updated.Status)

	t.Run("second retry is an error, not a duplicate job", func(t *testing.T) {
		_, err := dlq.Retry(ctx, entry.ID)
		assert.ErrorIs(t, err, store.ErrInvalidState)

		pending, err := mem.Jobs().CountByStatus(ctx, domain.JobStatusPending)
		require.NoError(t, err)
		assert.Equal(t, 1, pending)
	})

	t.Run("unknown entry", func(t *testing.T) {
		_, err := dlq.Retry(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrDeadLetterNotFound)
	})
}

func TestDLQBulkRetry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dlq, mem := newTestDLQ(t)

	for i := 0; i < 3; i++ {
		newDeadEntry(t, mem, domain.JobTypeInstagramSync)
	}
	newDeadEntry(t, mem, domain.JobTypeBrandDiscovery)

	// An already-retrying entry of the target type must be skipped.
	skipped := newDeadEntry(t, mem, domain.JobTypeInstagramSync)
	require.NoError(t, mem.DeadLetters().MarkRetrying(ctx, skipped.ID))

	retried, err := dlq.BulkRetry(ctx, domain.JobTypeInstagramSync)
	require.NoError(t, err)
	assert.Equal(t, 3, retried)

	pending, err := mem.Jobs().CountByStatus(ctx, domain.JobStatusPending)
	require.NoError(t, err)
	assert.Equal(t, 3, pending)

	stats, err := dlq.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 4, stats.ByStatus[domain.DeadLetterStatusRetrying])
	assert.Equal(t, 1, stats.ByStatus[domain.DeadLetterStatusDead], "other type untouched")
}

func TestDLQResolve(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dlq, mem := newTestDLQ(t)
	entry := newDeadEntry(t, mem, domain.JobTypeAnomalyStatistics)

	require.NoError(t, dlq.Resolve(ctx, entry.ID, "stale shop, owner churned", "ops@atelier"))

	updated, err := mem.DeadLetters().GetByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DeadLetterStatusResolved, updated.Status)
	assert.Equal(t, "stale shop, owner churned", updated.ResolutionNotes)
	assert.Equal(t, "ops@atelier", updated.ResolvedBy)
	require.NotNil(t, updated.ResolvedAt)

	t.Run("double resolve is an error", func(t *testing.T) {
		err := dlq.Resolve(ctx, entry.ID, "", "ops@atelier")
		assert.ErrorIs(t, err, store.ErrInvalidState)
	})
}

func TestDLQPurgeResolved(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dlq, mem := newTestDLQ(t)

	old := newDeadEntry(t, mem, domain.JobTypeContentGeneration)
	require.NoError(t, mem.DeadLetters().MarkResolved(ctx, old.ID, "", "ops"))
	fresh := newDeadEntry(t, mem, domain.JobTypeContentGeneration)

	// Only resolved entries older than the cutoff go away. Entries
	// created just now are newer than any positive cutoff.
	purged, err := dlq.PurgeResolved(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(0), purged)

	// A zero-day cutoff purges every resolved entry.
	purged, err = dlq.PurgeResolved(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	_, err = mem.DeadLetters().GetByID(ctx, old.ID)
	assert.ErrorIs(t, err, store.ErrDeadLetterNotFound)

	// The unresolved entry survives.
	_, err = mem.DeadLetters().GetByID(ctx, fresh.ID)
	assert.NoError(t, err)

	t.Run("negative cutoff is rejected", func(t *testing.T) {
		_, err := dlq.PurgeResolved(ctx, -1)
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
	})
}

func TestDLQList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dlq, mem := newTestDLQ(t)

	entry := newDeadEntry(t, mem, domain.JobTypePerformanceCollection)
	newDeadEntry(t, mem, domain.JobTypeInstagramSync)

	dead := domain.DeadLetterStatusDead
	entries, err := dlq.List(ctx, store.DeadLetterListFilter{Status: &dead, JobType: domain.JobTypePerformanceCollection})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entry.ID, entries[0].ID)

	entries, err = dlq.List(ctx, store.DeadLetterListFilter{UserID: entry.UserID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entry.ID, entries[0].ID)
}
