package queue

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/atelier-api/internal/domain"
	"github.com/atelierhq/atelier-api/internal/platform/memory"
	"github.com/atelierhq/atelier-api/internal/store"
)

// newTestQueue builds a memory-backed JobQueue with a deterministic-ish
// config. The nil db makes escalation run as sequential store calls.
func intPtr(v int) *int { return &v }

func newTestQueue(t *testing.T) (*JobQueue, *memory.Store) {
	t.Helper()
	mem := memory.New()
	q := NewJobQueue(nil, mem.Jobs(), mem.DeadLetters(), Config{
		DefaultMaxAttempts: 3,
		Backoff:            Backoff{Base: 30 * time.Second, Max: time.Hour},
		Lease:              10 * time.Minute,
	})
	return q, mem
}

func TestEnqueue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q, _ := newTestQueue(t)
	userID := uuid.New()

	job, err := q.Enqueue(ctx, EnqueueRequest{
		Type:    domain.JobTypePerformanceCollection,
		Payload: json.RawMessage(`{"shop_id":"shop-1"}`),
		UserID:  &userID,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.Equal(t, domain.DefaultJobPriority, job.Priority)
	assert.Equal(t, 3, job.MaxAttempts, "queue default should apply")
	assert.Equal(t, 0, job.Attempts)

	pending, err := q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)

	t.Run("rejects empty type", func(t *testing.T) {
		_, err := q.Enqueue(ctx, EnqueueRequest{Type: ""})
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
	})

	t.Run("explicit zero priority is kept, not defaulted", func(t *testing.T) {
		job, err := q.Enqueue(ctx, EnqueueRequest{
			Type:     domain.JobTypeBrandDiscovery,
			Priority: intPtr(0),
		})
		require.NoError(t, err)
		assert.Equal(t, 0, job.Priority)
	})
}

func TestBatchEnqueue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q, _ := newTestQueue(t)

	jobs, err := q.BatchEnqueue(ctx, []EnqueueRequest{
		{Type: domain.JobTypeBrandDiscovery, Payload: json.RawMessage(`{"niche":"ceramics"}`)},
		{Type: domain.JobTypeBrandDiscovery, Payload: json.RawMessage(`{"niche":"jewelry"}`)},
	})
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	pending, err := q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pending)

	t.Run("empty batch is a no-op", func(t *testing.T) {
		jobs, err := q.BatchEnqueue(ctx, nil)
		require.NoError(t, err)
		assert.Nil(t, jobs)
	})

	t.Run("one invalid request rejects the whole batch", func(t *testing.T) {
		_, err := q.BatchEnqueue(ctx, []EnqueueRequest{
			{Type: domain.JobTypeInstagramSync},
			{Type: ""},
		})
		assert.ErrorIs(t, err, store.ErrInvalidEntity)

		pending, err := q.PendingCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, pending, "failed batch must not insert anything")
	})
}

func TestNextJobOrdering(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q, _ := newTestQueue(t)

	low, err := q.Enqueue(ctx, EnqueueRequest{Type: domain.JobTypeInstagramSync, Priority: intPtr(1)})
	require.NoError(t, err)
	high, err := q.Enqueue(ctx, EnqueueRequest{Type: domain.JobTypeInstagramSync, Priority: intPtr(9)})
	require.NoError(t, err)
	mid, err := q.Enqueue(ctx, EnqueueRequest{Type: domain.JobTypeInstagramSync})
	require.NoError(t, err)

	var claimed []uuid.UUID
	for i := 0; i < 3; i++ {
		job, err := q.NextJob(ctx)
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, domain.JobStatusProcessing, job.Status)
		assert.Equal(t, 1, job.Attempts, "claiming counts as an attempt")
		claimed = append(claimed, job.ID)
	}

	assert.Equal(t, []uuid.UUID{high.ID, mid.ID, low.ID}, claimed)

	job, err := q.NextJob(ctx)
	require.NoError(t, err)
	assert.Nil(t, job, "drained queue returns nil, not an error")
}

func TestNextJobScheduleGating(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q, _ := newTestQueue(t)

	base := time.Now().UTC()
	q.SetClock(func() time.Time { return base })

	_, err := q.Enqueue(ctx, EnqueueRequest{
		Type:         domain.JobTypeContentGeneration,
		Priority:     intPtr(9),
		ScheduledFor: base.Add(time.Hour),
	})
	require.NoError(t, err)
	ready, err := q.Enqueue(ctx, EnqueueRequest{Type: domain.JobTypeContentGeneration, Priority: intPtr(1)})
	require.NoError(t, err)

	job, err := q.NextJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, ready.ID, job.ID, "future job must not be claimed despite higher priority")

	job, err = q.NextJob(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)

	// Advance past the schedule and the deferred job becomes claimable.
	q.SetClock(func() time.Time { return base.Add(2 * time.Hour) })
	job, err = q.NextJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
}

func TestNextJobClaimExclusivity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q, _ := newTestQueue(t)

	const jobCount = 20
	for i := 0; i < jobCount; i++ {
		_, err := q.Enqueue(ctx, EnqueueRequest{Type: domain.JobTypeAnomalyStatistics})
		require.NoError(t, err)
	}

	var mu sync.Mutex
	seen := make(map[uuid.UUID]int)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := q.NextJob(ctx)
				if err != nil || job == nil {
					return
				}
				mu.Lock()
				seen[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, jobCount, "every job should be claimed exactly once")
	for id, count := range seen {
		assert.Equal(t, 1, count, "job %s claimed more than once", id)
	}
}

func TestCompleteLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q, mem := newTestQueue(t)

	enqueued, err := q.Enqueue(ctx, EnqueueRequest{Type: domain.JobTypePerformanceCollection})
	require.NoError(t, err)

	job, err := q.NextJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	result := json.RawMessage(`{"listings":42}`)
	require.NoError(t, q.Complete(ctx, job.ID, result))

	stored, err := mem.Jobs().GetByID(ctx, enqueued.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, stored.Status)
	assert.JSONEq(t, string(result), string(stored.Result))
	require.NotNil(t, stored.CompletedAt)

	t.Run("completing a non-processing job fails", func(t *testing.T) {
		err := q.Complete(ctx, job.ID, nil)
		assert.ErrorIs(t, err, store.ErrInvalidState)
	})

	t.Run("completing an unknown job fails", func(t *testing.T) {
		err := q.Complete(ctx, uuid.New(), nil)
		assert.ErrorIs(t, err, store.ErrJobNotFound)
	})
}

func TestFailSchedulesRetryWithBackoff(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q, mem := newTestQueue(t)

	base := time.Now().UTC()
	q.SetClock(func() time.Time { return base })

	enqueued, err := q.Enqueue(ctx, EnqueueRequest{Type: domain.JobTypeInstagramSync})
	require.NoError(t, err)

	job, err := q.NextJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, q.Fail(ctx, job.ID, "rate limited"))

	stored, err := mem.Jobs().GetByID(ctx, enqueued.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, stored.Status)
	assert.Equal(t, "rate limited", stored.LastError)
	require.Len(t, stored.FailureHistory, 1)

	// First retry: base delay of 30s.
	assert.Equal(t, base.Add(30*time.Second), stored.ScheduledFor)

	// Not claimable until the backoff elapses.
	claimed, err := q.NextJob(ctx)
	require.NoError(t, err)
	assert.Nil(t, claimed)

	q.SetClock(func() time.Time { return base.Add(time.Minute) })
	claimed, err = q.NextJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, 2, claimed.Attempts)
}

func TestFailEscalatesAfterMaxAttempts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q, mem := newTestQueue(t)

	clock := time.Now().UTC()
	q.SetClock(func() time.Time { return clock })

	userID := uuid.New()
	enqueued, err := q.Enqueue(ctx, EnqueueRequest{
		Type:    domain.JobTypeContentGeneration,
		Payload: json.RawMessage(`{"shop_id":"shop-9"}`),
		UserID:  &userID,
	})
	require.NoError(t, err)

	// Drive the job through all three attempts.
	for attempt := 1; attempt <= 3; attempt++ {
		job, err := q.NextJob(ctx)
		require.NoError(t, err)
		require.NotNil(t, job, "attempt %d should claim the job", attempt)
		require.NoError(t, q.Fail(ctx, job.ID, "generation backend down"))
		clock = clock.Add(3 * time.Hour)
	}

	stored, err := mem.Jobs().GetByID(ctx, enqueued.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, stored.Status)
	assert.Len(t, stored.FailureHistory, 3, "history must record every attempt")

	entries, err := mem.DeadLetters().List(ctx, store.DeadLetterListFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entry := entries[0]
	assert.Equal(t, enqueued.ID, entry.OriginalJobID)
	assert.Equal(t, domain.DeadLetterStatusDead, entry.Status)
	assert.Equal(t, domain.JobTypeContentGeneration, entry.Type)
	assert.JSONEq(t, string(enqueued.Payload), string(entry.Payload))
	require.NotNil(t, entry.UserID)
	assert.Equal(t, userID, *entry.UserID)
	assert.Len(t, entry.FailureHistory, 3)

	// The permanently failed job is gone from the claimable pool.
	job, err := q.NextJob(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestUserJobs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q, _ := newTestQueue(t)

	alice := uuid.New()
	bob := uuid.New()

	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(ctx, EnqueueRequest{Type: domain.JobTypeInstagramSync, UserID: &alice})
		require.NoError(t, err)
	}
	_, err := q.Enqueue(ctx, EnqueueRequest{Type: domain.JobTypeInstagramSync, UserID: &bob})
	require.NoError(t, err)

	jobs, err := q.UserJobs(ctx, alice, 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)

	jobs, err = q.UserJobs(ctx, alice, 2)
	require.NoError(t, err)
	assert.Len(t, jobs, 2, "limit should apply")
}
