// Package memory provides in-memory implementations of the store
// interfaces. Safe for concurrent access. Intended for unit testing and
// local development; semantics (claim ordering, lease reclaim, expiry
// filtering) match the postgres implementations.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/atelierhq/atelier-api/internal/domain"
	"github.com/atelierhq/atelier-api/internal/store"
	"github.com/google/uuid"
)

// Compile-time interface checks.
var (
	_ store.JobStore        = (*JobStore)(nil)
	_ store.DeadLetterStore = (*DeadLetterStore)(nil)
	_ store.CacheStore      = (*CacheStore)(nil)
)

type cacheMapKey struct {
	namespace string
	key       string
}

// Store holds the shared in-memory state. The typed views returned by
// Jobs, DeadLetters, and Cache all operate on the same data under one
// mutex, so cross-entity operations stay consistent.
type Store struct {
	mu sync.Mutex

	jobs        map[uuid.UUID]*domain.Job
	deadLetters map[uuid.UUID]*domain.DeadLetterEntry
	cache       map[cacheMapKey]*domain.CacheEntry
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:        make(map[uuid.UUID]*domain.Job),
		deadLetters: make(map[uuid.UUID]*domain.DeadLetterEntry),
		cache:       make(map[cacheMapKey]*domain.CacheEntry),
	}
}

// Jobs returns the store.JobStore view.
func (m *Store) Jobs() *JobStore { return &JobStore{m} }

// DeadLetters returns the store.DeadLetterStore view.
func (m *Store) DeadLetters() *DeadLetterStore { return &DeadLetterStore{m} }

// Cache returns the store.CacheStore view.
func (m *Store) Cache() *CacheStore { return &CacheStore{m} }

// ---------------------------------------------------------------------
// JobStore view
// ---------------------------------------------------------------------

// JobStore is the job view of a memory Store.
type JobStore struct {
	s *Store
}

// WithTx returns the view itself: the memory store has no transactions,
// every operation is atomic under the store mutex.
func (j *JobStore) WithTx(_ *sql.Tx) store.JobStore { return j }

// Create persists a new job.
func (j *JobStore) Create(_ context.Context, job *domain.Job) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	j.s.mu.Lock()
	defer j.s.mu.Unlock()

	if _, exists := j.s.jobs[job.ID]; exists {
		return store.ErrDuplicate
	}
	j.s.jobs[job.ID] = copyJob(job)
	return nil
}

// CreateBatch persists multiple jobs; failure of any job rejects the
// whole batch.
func (j *JobStore) CreateBatch(_ context.Context, jobs []*domain.Job) error {
	for _, job := range jobs {
		if err := job.Validate(); err != nil {
			return fmt.Errorf("%w: job %s: %v", store.ErrInvalidEntity, job.ID, err)
		}
	}

	j.s.mu.Lock()
	defer j.s.mu.Unlock()

	for _, job := range jobs {
		if _, exists := j.s.jobs[job.ID]; exists {
			return store.ErrDuplicate
		}
	}
	for _, job := range jobs {
		j.s.jobs[job.ID] = copyJob(job)
	}
	return nil
}

// GetByID retrieves a job by its unique ID.
func (j *JobStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Job, error) {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()

	job, ok := j.s.jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	return copyJob(job), nil
}

// Claim atomically hands the next eligible job to the caller, resetting
// lease-expired processing jobs first.
func (j *JobStore) Claim(_ context.Context, now time.Time, lease time.Duration) (*domain.Job, error) {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()

	now = now.UTC()

	if lease > 0 {
		cutoff := now.Add(-lease)
		for _, job := range j.s.jobs {
			if job.Status == domain.JobStatusProcessing && job.UpdatedAt.Before(cutoff) {
				job.Status = domain.JobStatusPending
				job.UpdatedAt = now
			}
		}
	}

	candidates := make([]*domain.Job, 0, len(j.s.jobs))
	for _, job := range j.s.jobs {
		if job.Claimable(now) {
			candidates = append(candidates, job)
		}
	}
	if len(candidates) == 0 {
		return nil, store.ErrJobNotFound
	}

	// Claim order: priority DESC, scheduled_for ASC, id ASC.
	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].Priority != candidates[b].Priority {
			return candidates[a].Priority > candidates[b].Priority
		}
		if !candidates[a].ScheduledFor.Equal(candidates[b].ScheduledFor) {
			return candidates[a].ScheduledFor.Before(candidates[b].ScheduledFor)
		}
		return candidates[a].ID.String() < candidates[b].ID.String()
	})

	claimed := candidates[0]
	claimed.Status = domain.JobStatusProcessing
	claimed.Attempts++
	claimed.UpdatedAt = now

	return copyJob(claimed), nil
}

// MarkCompleted transitions a processing job to completed.
func (j *JobStore) MarkCompleted(_ context.Context, id uuid.UUID, result json.RawMessage) error {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()

	job, ok := j.s.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	if job.Status != domain.JobStatusProcessing {
		return fmt.Errorf("%w: job %s is not processing", store.ErrInvalidState, id)
	}

	now := time.Now().UTC()
	job.Status = domain.JobStatusCompleted
	job.Result = append(json.RawMessage(nil), result...)
	job.CompletedAt = &now
	job.UpdatedAt = now
	return nil
}

// RetryLater transitions a processing job back to pending with a delayed
// schedule, appending the failure to its history.
func (j *JobStore) RetryLater(_ context.Context, id uuid.UUID, errMsg string, runAt time.Time) error {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()

	job, ok := j.s.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	if job.Status != domain.JobStatusProcessing {
		return fmt.Errorf("%w: job %s is not processing", store.ErrInvalidState, id)
	}

	now := time.Now().UTC()
	job.Status = domain.JobStatusPending
	job.ScheduledFor = runAt.UTC()
	job.LastError = errMsg
	job.FailureHistory = append(job.FailureHistory, domain.FailureRecord{Message: errMsg, OccurredAt: now})
	job.UpdatedAt = now
	return nil
}

// MarkFailed transitions a processing job to failed, appending the
// failure to its history.
func (j *JobStore) MarkFailed(_ context.Context, id uuid.UUID, errMsg string) error {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()

	job, ok := j.s.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	if job.Status != domain.JobStatusProcessing {
		return fmt.Errorf("%w: job %s is not processing", store.ErrInvalidState, id)
	}

	now := time.Now().UTC()
	job.Status = domain.JobStatusFailed
	job.LastError = errMsg
	job.FailureHistory = append(job.FailureHistory, domain.FailureRecord{Message: errMsg, OccurredAt: now})
	job.UpdatedAt = now
	return nil
}

// ListByUser retrieves up to limit jobs for the given user, most recent first.
func (j *JobStore) ListByUser(_ context.Context, userID uuid.UUID, limit int) ([]*domain.Job, error) {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()

	var jobs []*domain.Job
	for _, job := range j.s.jobs {
		if job.UserID != nil && *job.UserID == userID {
			jobs = append(jobs, copyJob(job))
		}
	}

	sort.Slice(jobs, func(a, b int) bool {
		return jobs[a].CreatedAt.After(jobs[b].CreatedAt)
	})

	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// CountByStatus returns the number of jobs currently in the given status.
func (j *JobStore) CountByStatus(_ context.Context, status domain.JobStatus) (int, error) {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()

	count := 0
	for _, job := range j.s.jobs {
		if job.Status == status {
			count++
		}
	}
	return count, nil
}

// ---------------------------------------------------------------------
// DeadLetterStore view
// ---------------------------------------------------------------------

// DeadLetterStore is the dead-letter view of a memory Store.
type DeadLetterStore struct {
	s *Store
}

// WithTx returns the view itself; see JobStore.WithTx.
func (d *DeadLetterStore) WithTx(_ *sql.Tx) store.DeadLetterStore { return d }

// Create persists a new dead-letter entry.
func (d *DeadLetterStore) Create(_ context.Context, entry *domain.DeadLetterEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	if _, exists := d.s.deadLetters[entry.ID]; exists {
		return store.ErrDuplicate
	}
	d.s.deadLetters[entry.ID] = copyDeadLetter(entry)
	return nil
}

// GetByID retrieves a dead-letter entry by ID.
func (d *DeadLetterStore) GetByID(_ context.Context, id uuid.UUID) (*domain.DeadLetterEntry, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	entry, ok := d.s.deadLetters[id]
	if !ok {
		return nil, store.ErrDeadLetterNotFound
	}
	return copyDeadLetter(entry), nil
}

// List retrieves entries matching the filter, newest first.
func (d *DeadLetterStore) List(_ context.Context, filter store.DeadLetterListFilter) ([]*domain.DeadLetterEntry, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	var entries []*domain.DeadLetterEntry
	for _, entry := range d.s.deadLetters {
		if filter.Status != nil && entry.Status != *filter.Status {
			continue
		}
		if filter.JobType != "" && entry.Type != filter.JobType {
			continue
		}
		if filter.UserID != nil && (entry.UserID == nil || *entry.UserID != *filter.UserID) {
			continue
		}
		entries = append(entries, copyDeadLetter(entry))
	}

	sort.Slice(entries, func(a, b int) bool {
		return entries[a].CreatedAt.After(entries[b].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(entries) {
			return nil, nil
		}
		entries = entries[filter.Offset:]
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// ListDeadByType retrieves all dead-status entries of the given job type.
func (d *DeadLetterStore) ListDeadByType(_ context.Context, jobType string) ([]*domain.DeadLetterEntry, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	var entries []*domain.DeadLetterEntry
	for _, entry := range d.s.deadLetters {
		if entry.Status == domain.DeadLetterStatusDead && entry.Type == jobType {
			entries = append(entries, copyDeadLetter(entry))
		}
	}
	sort.Slice(entries, func(a, b int) bool {
		return entries[a].CreatedAt.Before(entries[b].CreatedAt)
	})
	return entries, nil
}

// Stats returns aggregate counts by status and job type.
func (d *DeadLetterStore) Stats(_ context.Context) (*store.DeadLetterStats, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	stats := &store.DeadLetterStats{
		ByStatus: make(map[domain.DeadLetterStatus]int),
		ByType:   make(map[string]int),
	}
	for _, entry := range d.s.deadLetters {
		stats.Total++
		stats.ByStatus[entry.Status]++
		stats.ByType[entry.Type]++
	}
	return stats, nil
}

// MarkRetrying transitions a dead entry to retrying.
func (d *DeadLetterStore) MarkRetrying(_ context.Context, id uuid.UUID) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	entry, ok := d.s.deadLetters[id]
	if !ok {
		return store.ErrDeadLetterNotFound
	}
	if entry.Status != domain.DeadLetterStatusDead {
		return fmt.Errorf("%w: dead letter %s", store.ErrInvalidState, id)
	}
	entry.Status = domain.DeadLetterStatusRetrying
	return nil
}

// MarkResolved transitions an entry to resolved with audit fields.
func (d *DeadLetterStore) MarkResolved(_ context.Context, id uuid.UUID, notes, resolvedBy string) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	entry, ok := d.s.deadLetters[id]
	if !ok {
		return store.ErrDeadLetterNotFound
	}
	if entry.Status == domain.DeadLetterStatusResolved {
		return fmt.Errorf("%w: dead letter %s", store.ErrInvalidState, id)
	}

	now := time.Now().UTC()
	entry.Status = domain.DeadLetterStatusResolved
	entry.ResolutionNotes = notes
	entry.ResolvedBy = resolvedBy
	entry.ResolvedAt = &now
	return nil
}

// PurgeResolved hard-deletes resolved entries created before the cutoff.
func (d *DeadLetterStore) PurgeResolved(_ context.Context, olderThan time.Time) (int64, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	var purged int64
	for id, entry := range d.s.deadLetters {
		if entry.Status == domain.DeadLetterStatusResolved && entry.CreatedAt.Before(olderThan) {
			delete(d.s.deadLetters, id)
			purged++
		}
	}
	return purged, nil
}

// ---------------------------------------------------------------------
// CacheStore view
// ---------------------------------------------------------------------

// CacheStore is the cache view of a memory Store.
type CacheStore struct {
	s *Store
}

// Get retrieves the value for (namespace, key), treating expired rows as
// misses even before any sweep.
func (c *CacheStore) Get(_ context.Context, namespace, key string) (json.RawMessage, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	entry, ok := c.s.cache[cacheMapKey{namespace, key}]
	if !ok || entry.Expired(time.Now().UTC()) {
		return nil, store.ErrCacheMiss
	}
	return append(json.RawMessage(nil), entry.Value...), nil
}

// Set upserts the entry for its (namespace, key).
func (c *CacheStore) Set(_ context.Context, entry *domain.CacheEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	cp := *entry
	cp.Value = append(json.RawMessage(nil), entry.Value...)
	c.s.cache[cacheMapKey{entry.Namespace, entry.Key}] = &cp
	return nil
}

// DeleteExpired removes entries whose expiry has passed.
func (c *CacheStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	var deleted int64
	for k, entry := range c.s.cache {
		if entry.Expired(now.UTC()) {
			delete(c.s.cache, k)
			deleted++
		}
	}
	return deleted, nil
}

// copyJob returns a deep-enough copy so callers can mutate without
// racing with the store.
func copyJob(job *domain.Job) *domain.Job {
	cp := *job
	cp.Payload = append(json.RawMessage(nil), job.Payload...)
	cp.Result = append(json.RawMessage(nil), job.Result...)
	cp.FailureHistory = append([]domain.FailureRecord(nil), job.FailureHistory...)
	if job.UserID != nil {
		id := *job.UserID
		cp.UserID = &id
	}
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// copyDeadLetter mirrors copyJob for dead-letter entries.
func copyDeadLetter(entry *domain.DeadLetterEntry) *domain.DeadLetterEntry {
	cp := *entry
	cp.Payload = append(json.RawMessage(nil), entry.Payload...)
	cp.FailureHistory = append([]domain.FailureRecord(nil), entry.FailureHistory...)
	if entry.UserID != nil {
		id := *entry.UserID
		cp.UserID = &id
	}
	if entry.ResolvedAt != nil {
		t := *entry.ResolvedAt
		cp.ResolvedAt = &t
	}
	return &cp
}
