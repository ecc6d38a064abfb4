package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/atelierhq/atelier-api/internal/domain"
	"github.com/atelierhq/atelier-api/internal/platform/logger"
	"github.com/atelierhq/atelier-api/internal/store"
	"github.com/google/uuid"
)

// jobColumns is the column list shared by every job SELECT/RETURNING.
const jobColumns = `id, type, payload, user_id, priority, scheduled_for, status,
		attempts, max_attempts, last_error, failure_history, result,
		created_at, updated_at, completed_at`

// PostgresJobStore implements the store.JobStore interface using PostgreSQL
type PostgresJobStore struct {
	db store.DBTX
}

// NewPostgresJobStore creates a new PostgresJobStore
func NewPostgresJobStore(db store.DBTX) *PostgresJobStore {
	return &PostgresJobStore{
		db: db,
	}
}

// WithTx returns a new JobStore instance that uses the provided transaction.
func (s *PostgresJobStore) WithTx(tx *sql.Tx) store.JobStore {
	return &PostgresJobStore{db: tx}
}

// Create persists a new job to the database
func (s *PostgresJobStore) Create(ctx context.Context, job *domain.Job) error {
	log := logger.FromContext(ctx)

	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	history, err := marshalFailureHistory(job.FailureHistory)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, query,
		job.ID,
		job.Type,
		[]byte(job.Payload),
		job.UserID,
		job.Priority,
		job.ScheduledFor,
		job.Status,
		job.Attempts,
		job.MaxAttempts,
		nullString(job.LastError),
		history,
		nullBytes(job.Result),
		job.CreatedAt,
		job.UpdatedAt,
		job.CompletedAt,
	)
	if err != nil {
		log.Error("failed to create job",
			"job_id", job.ID,
			"job_type", job.Type,
			"error", err)
		return MapError(fmt.Errorf("failed to create job: %w", err))
	}

	return nil
}

// CreateBatch persists multiple jobs in a single multi-row INSERT.
// All rows are inserted or the statement fails as a whole; one bad
// record never silently drops the others.
func (s *PostgresJobStore) CreateBatch(ctx context.Context, jobs []*domain.Job) error {
	log := logger.FromContext(ctx)

	if len(jobs) == 0 {
		return nil
	}

	for _, job := range jobs {
		if err := job.Validate(); err != nil {
			return fmt.Errorf("%w: job %s: %v", store.ErrInvalidEntity, job.ID, err)
		}
	}

	const fieldCount = 15
	query := `INSERT INTO jobs (` + jobColumns + `) VALUES `
	args := make([]any, 0, len(jobs)*fieldCount)

	for i, job := range jobs {
		history, err := marshalFailureHistory(job.FailureHistory)
		if err != nil {
			return err
		}

		if i > 0 {
			query += ", "
		}
		query += placeholderRow(i*fieldCount+1, fieldCount)
		args = append(args,
			job.ID,
			job.Type,
			[]byte(job.Payload),
			job.UserID,
			job.Priority,
			job.ScheduledFor,
			job.Status,
			job.Attempts,
			job.MaxAttempts,
			nullString(job.LastError),
			history,
			nullBytes(job.Result),
			job.CreatedAt,
			job.UpdatedAt,
			job.CompletedAt,
		)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		log.Error("failed to batch create jobs",
			"count", len(jobs),
			"error", err)
		return MapError(fmt.Errorf("failed to batch create jobs: %w", err))
	}

	return nil
}

// GetByID retrieves a job by its unique ID
func (s *PostgresJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// Claim atomically hands the next eligible job to the caller.
//
// The claim is a single conditional UPDATE over a SKIP LOCKED subquery,
// so concurrent callers each receive a different row or none; there is
// no read-then-write window to race through. Stale processing rows are
// reset first so a crashed tick's job becomes claimable after its lease.
func (s *PostgresJobStore) Claim(ctx context.Context, now time.Time, lease time.Duration) (*domain.Job, error) {
	log := logger.FromContext(ctx)

	if err := s.reclaimAbandoned(ctx, now, lease); err != nil {
		return nil, err
	}

	query := `
		UPDATE jobs
		SET status = $1, attempts = attempts + 1, updated_at = $2
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = $3 AND scheduled_for <= $2
			ORDER BY priority DESC, scheduled_for ASC, id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	job, err := scanJob(s.db.QueryRowContext(ctx, query,
		domain.JobStatusProcessing,
		now.UTC(),
		domain.JobStatusPending,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		log.Error("failed to claim job", "error", err)
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	return job, nil
}

// reclaimAbandoned resets processing jobs whose lease has expired back
// to pending. A job claimed by a tick that died mid-execution would
// otherwise stay processing forever.
func (s *PostgresJobStore) reclaimAbandoned(ctx context.Context, now time.Time, lease time.Duration) error {
	log := logger.FromContext(ctx)

	if lease <= 0 {
		return nil
	}

	query := `
		UPDATE jobs
		SET status = $1, updated_at = $2
		WHERE status = $3 AND updated_at < $4
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.JobStatusPending,
		now.UTC(),
		domain.JobStatusProcessing,
		now.UTC().Add(-lease),
	)
	if err != nil {
		log.Error("failed to reclaim abandoned jobs", "error", err)
		return fmt.Errorf("failed to reclaim abandoned jobs: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil && n > 0 {
		log.Warn("reclaimed abandoned jobs", "count", n, "lease", lease.String())
	}

	return nil
}

// MarkCompleted transitions a processing job to completed
func (s *PostgresJobStore) MarkCompleted(ctx context.Context, id uuid.UUID, result json.RawMessage) error {
	log := logger.FromContext(ctx)

	now := time.Now().UTC()
	query := `
		UPDATE jobs
		SET status = $1, result = $2, completed_at = $3, updated_at = $3
		WHERE id = $4 AND status = $5
	`

	res, err := s.db.ExecContext(ctx, query,
		domain.JobStatusCompleted,
		nullBytes(result),
		now,
		id,
		domain.JobStatusProcessing,
	)
	if err != nil {
		log.Error("failed to mark job completed", "job_id", id, "error", err)
		return fmt.Errorf("failed to mark job completed: %w", err)
	}

	return s.checkJobTransition(ctx, res, id)
}

// RetryLater transitions a processing job back to pending for a delayed
// retry, recording the failure
func (s *PostgresJobStore) RetryLater(ctx context.Context, id uuid.UUID, errMsg string, runAt time.Time) error {
	log := logger.FromContext(ctx)

	now := time.Now().UTC()
	record, err := marshalFailureHistory([]domain.FailureRecord{{Message: errMsg, OccurredAt: now}})
	if err != nil {
		return err
	}

	query := `
		UPDATE jobs
		SET status = $1, scheduled_for = $2, last_error = $3,
			failure_history = failure_history || $4::jsonb, updated_at = $5
		WHERE id = $6 AND status = $7
	`

	res, err := s.db.ExecContext(ctx, query,
		domain.JobStatusPending,
		runAt.UTC(),
		errMsg,
		record,
		now,
		id,
		domain.JobStatusProcessing,
	)
	if err != nil {
		log.Error("failed to schedule job retry", "job_id", id, "error", err)
		return fmt.Errorf("failed to schedule job retry: %w", err)
	}

	return s.checkJobTransition(ctx, res, id)
}

// MarkFailed transitions a processing job to failed (terminal),
// recording the failure
func (s *PostgresJobStore) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	log := logger.FromContext(ctx)

	now := time.Now().UTC()
	record, err := marshalFailureHistory([]domain.FailureRecord{{Message: errMsg, OccurredAt: now}})
	if err != nil {
		return err
	}

	query := `
		UPDATE jobs
		SET status = $1, last_error = $2,
			failure_history = failure_history || $3::jsonb, updated_at = $4
		WHERE id = $5 AND status = $6
	`

	res, err := s.db.ExecContext(ctx, query,
		domain.JobStatusFailed,
		errMsg,
		record,
		now,
		id,
		domain.JobStatusProcessing,
	)
	if err != nil {
		log.Error("failed to mark job failed", "job_id", id, "error", err)
		return fmt.Errorf("failed to mark job failed: %w", err)
	}

	return s.checkJobTransition(ctx, res, id)
}

// ListByUser retrieves up to limit jobs for the given user, most recent first
func (s *PostgresJobStore) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Job, error) {
	log := logger.FromContext(ctx)

	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		log.Error("failed to list user jobs", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to list user jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job rows: %w", err)
	}

	return jobs, nil
}

// CountByStatus returns the number of jobs currently in the given status
func (s *PostgresJobStore) CountByStatus(ctx context.Context, status domain.JobStatus) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs WHERE status = $1`, status,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs by status: %w", err)
	}
	return count, nil
}

// checkJobTransition distinguishes a missing job from a failed status
// precondition when a conditional update affected zero rows.
func (s *PostgresJobStore) checkJobTransition(ctx context.Context, res sql.Result, id uuid.UUID) error {
	err := CheckRowsAffected(res, "job "+id.String(), store.ErrInvalidState)
	if err == nil || !store.IsInvalidStateError(err) {
		return err
	}

	var exists bool
	if scanErr := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, id,
	).Scan(&exists); scanErr != nil {
		return fmt.Errorf("failed to check job existence: %w", scanErr)
	}

	if !exists {
		return store.ErrJobNotFound
	}
	return fmt.Errorf("%w: job %s is not processing", store.ErrInvalidState, id)
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanJob reads one job row in jobColumns order.
func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job         domain.Job
		payload     []byte
		userID      uuid.NullUUID
		lastError   sql.NullString
		history     []byte
		result      []byte
		completedAt sql.NullTime
	)

	err := row.Scan(
		&job.ID,
		&job.Type,
		&payload,
		&userID,
		&job.Priority,
		&job.ScheduledFor,
		&job.Status,
		&job.Attempts,
		&job.MaxAttempts,
		&lastError,
		&history,
		&result,
		&job.CreatedAt,
		&job.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Payload = payload
	if userID.Valid {
		id := userID.UUID
		job.UserID = &id
	}
	job.LastError = lastError.String
	if len(history) > 0 {
		if err := json.Unmarshal(history, &job.FailureHistory); err != nil {
			return nil, fmt.Errorf("failed to decode failure history: %w", err)
		}
	}
	if len(result) > 0 {
		job.Result = result
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}

	return &job, nil
}

// marshalFailureHistory encodes failure records for a jsonb column.
// A nil slice encodes as an empty array so jsonb concatenation works.
func marshalFailureHistory(history []domain.FailureRecord) ([]byte, error) {
	if history == nil {
		history = []domain.FailureRecord{}
	}
	data, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("failed to encode failure history: %w", err)
	}
	return data, nil
}

// placeholderRow builds "($n, $n+1, ...)" for multi-row inserts.
func placeholderRow(start, count int) string {
	row := "("
	for i := 0; i < count; i++ {
		if i > 0 {
			row += ", "
		}
		row += fmt.Sprintf("$%d", start+i)
	}
	return row + ")"
}

// nullString maps an empty string to SQL NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullBytes maps an empty byte slice to SQL NULL.
func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
