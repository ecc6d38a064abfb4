package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/atelierhq/atelier-api/internal/domain"
	"github.com/atelierhq/atelier-api/internal/platform/logger"
	"github.com/atelierhq/atelier-api/internal/store"
	"github.com/google/uuid"
)

// defaultDeadLetterListLimit applies when a filter has no limit.
const defaultDeadLetterListLimit = 50

// deadLetterColumns is the column list shared by every dead-letter SELECT.
const deadLetterColumns = `id, original_job_id, type, payload, user_id, failure_history,
		status, resolution_notes, resolved_by, created_at, resolved_at`

// PostgresDeadLetterStore implements the store.DeadLetterStore interface using PostgreSQL
type PostgresDeadLetterStore struct {
	db store.DBTX
}

// NewPostgresDeadLetterStore creates a new PostgresDeadLetterStore
func NewPostgresDeadLetterStore(db store.DBTX) *PostgresDeadLetterStore {
	return &PostgresDeadLetterStore{
		db: db,
	}
}

// WithTx returns a new DeadLetterStore instance that uses the provided transaction.
func (s *PostgresDeadLetterStore) WithTx(tx *sql.Tx) store.DeadLetterStore {
	return &PostgresDeadLetterStore{db: tx}
}

// Create persists a new dead-letter entry
func (s *PostgresDeadLetterStore) Create(ctx context.Context, entry *domain.DeadLetterEntry) error {
	log := logger.FromContext(ctx)

	if err := entry.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	history, err := marshalFailureHistory(entry.FailureHistory)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO dead_letters (` + deadLetterColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = s.db.ExecContext(ctx, query,
		entry.ID,
		entry.OriginalJobID,
		entry.Type,
		[]byte(entry.Payload),
		entry.UserID,
		history,
		entry.Status,
		nullString(entry.ResolutionNotes),
		nullString(entry.ResolvedBy),
		entry.CreatedAt,
		entry.ResolvedAt,
	)
	if err != nil {
		log.Error("failed to create dead letter entry",
			"dead_letter_id", entry.ID,
			"original_job_id", entry.OriginalJobID,
			"error", err)
		return MapError(fmt.Errorf("failed to create dead letter entry: %w", err))
	}

	return nil
}

// GetByID retrieves a dead-letter entry by its unique ID
func (s *PostgresDeadLetterStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.DeadLetterEntry, error) {
	query := `SELECT ` + deadLetterColumns + ` FROM dead_letters WHERE id = $1`

	entry, err := scanDeadLetter(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrDeadLetterNotFound
		}
		return nil, fmt.Errorf("failed to get dead letter entry: %w", err)
	}

	return entry, nil
}

// List retrieves entries matching the filter, newest first
func (s *PostgresDeadLetterStore) List(ctx context.Context, filter store.DeadLetterListFilter) ([]*domain.DeadLetterEntry, error) {
	log := logger.FromContext(ctx)

	query := `SELECT ` + deadLetterColumns + ` FROM dead_letters WHERE 1=1`
	var args []any

	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	if filter.JobType != "" {
		args = append(args, filter.JobType)
		query += ` AND type = $` + strconv.Itoa(len(args))
	}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		query += ` AND user_id = $` + strconv.Itoa(len(args))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultDeadLetterListLimit
	}
	args = append(args, limit)
	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args))
	args = append(args, filter.Offset)
	query += ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to list dead letter entries", "error", err)
		return nil, fmt.Errorf("failed to list dead letter entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectDeadLetters(rows)
}

// ListDeadByType retrieves all dead-status entries of the given job type
func (s *PostgresDeadLetterStore) ListDeadByType(ctx context.Context, jobType string) ([]*domain.DeadLetterEntry, error) {
	query := `
		SELECT ` + deadLetterColumns + `
		FROM dead_letters
		WHERE status = $1 AND type = $2
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, domain.DeadLetterStatusDead, jobType)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead entries by type: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectDeadLetters(rows)
}

// Stats returns aggregate counts by status and job type
func (s *PostgresDeadLetterStore) Stats(ctx context.Context) (*store.DeadLetterStats, error) {
	log := logger.FromContext(ctx)

	stats := &store.DeadLetterStats{
		ByStatus: make(map[domain.DeadLetterStatus]int),
		ByType:   make(map[string]int),
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM dead_letters GROUP BY status`)
	if err != nil {
		log.Error("failed to aggregate dead letters by status", "error", err)
		return nil, fmt.Errorf("failed to aggregate dead letters by status: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var status domain.DeadLetterStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status aggregate: %w", err)
		}
		stats.ByStatus[status] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status aggregates: %w", err)
	}

	typeRows, err := s.db.QueryContext(ctx,
		`SELECT type, COUNT(*) FROM dead_letters GROUP BY type`)
	if err != nil {
		log.Error("failed to aggregate dead letters by type", "error", err)
		return nil, fmt.Errorf("failed to aggregate dead letters by type: %w", err)
	}
	defer func() { _ = typeRows.Close() }()

	for typeRows.Next() {
		var jobType string
		var count int
		if err := typeRows.Scan(&jobType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan type aggregate: %w", err)
		}
		stats.ByType[jobType] = count
	}
	if err := typeRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating type aggregates: %w", err)
	}

	return stats, nil
}

// MarkRetrying transitions a dead entry to retrying
func (s *PostgresDeadLetterStore) MarkRetrying(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE dead_letters
		SET status = $1
		WHERE id = $2 AND status = $3
	`

	res, err := s.db.ExecContext(ctx, query,
		domain.DeadLetterStatusRetrying,
		id,
		domain.DeadLetterStatusDead,
	)
	if err != nil {
		return fmt.Errorf("failed to mark dead letter retrying: %w", err)
	}

	return s.checkDeadLetterTransition(ctx, res, id)
}

// MarkResolved transitions an entry to resolved with audit fields
func (s *PostgresDeadLetterStore) MarkResolved(ctx context.Context, id uuid.UUID, notes, resolvedBy string) error {
	query := `
		UPDATE dead_letters
		SET status = $1, resolution_notes = $2, resolved_by = $3, resolved_at = $4
		WHERE id = $5 AND status != $1
	`

	res, err := s.db.ExecContext(ctx, query,
		domain.DeadLetterStatusResolved,
		notes,
		resolvedBy,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to resolve dead letter: %w", err)
	}

	return s.checkDeadLetterTransition(ctx, res, id)
}

// PurgeResolved hard-deletes resolved entries created before the cutoff
func (s *PostgresDeadLetterStore) PurgeResolved(ctx context.Context, olderThan time.Time) (int64, error) {
	log := logger.FromContext(ctx)

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM dead_letters WHERE status = $1 AND created_at < $2`,
		domain.DeadLetterStatusResolved,
		olderThan.UTC(),
	)
	if err != nil {
		log.Error("failed to purge resolved dead letters", "error", err)
		return 0, fmt.Errorf("failed to purge resolved dead letters: %w", err)
	}

	purged, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return purged, nil
}

// checkDeadLetterTransition distinguishes a missing entry from a failed
// status precondition when a conditional update affected zero rows.
func (s *PostgresDeadLetterStore) checkDeadLetterTransition(ctx context.Context, res sql.Result, id uuid.UUID) error {
	err := CheckRowsAffected(res, "dead letter "+id.String(), store.ErrInvalidState)
	if err == nil || !store.IsInvalidStateError(err) {
		return err
	}

	var exists bool
	if scanErr := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM dead_letters WHERE id = $1)`, id,
	).Scan(&exists); scanErr != nil {
		return fmt.Errorf("failed to check dead letter existence: %w", scanErr)
	}

	if !exists {
		return store.ErrDeadLetterNotFound
	}
	return err
}

// collectDeadLetters drains rows into entries, propagating scan errors.
func collectDeadLetters(rows *sql.Rows) ([]*domain.DeadLetterEntry, error) {
	var entries []*domain.DeadLetterEntry
	for rows.Next() {
		entry, err := scanDeadLetter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dead letter row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dead letter rows: %w", err)
	}
	return entries, nil
}

// scanDeadLetter reads one dead-letter row in deadLetterColumns order.
func scanDeadLetter(row rowScanner) (*domain.DeadLetterEntry, error) {
	var (
		entry      domain.DeadLetterEntry
		payload    []byte
		userID     uuid.NullUUID
		history    []byte
		notes      sql.NullString
		resolvedBy sql.NullString
		resolvedAt sql.NullTime
	)

	err := row.Scan(
		&entry.ID,
		&entry.OriginalJobID,
		&entry.Type,
		&payload,
		&userID,
		&history,
		&entry.Status,
		&notes,
		&resolvedBy,
		&entry.CreatedAt,
		&resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.Payload = payload
	if userID.Valid {
		id := userID.UUID
		entry.UserID = &id
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &entry.FailureHistory); err != nil {
			return nil, fmt.Errorf("failed to decode failure history: %w", err)
		}
	}
	entry.ResolutionNotes = notes.String
	entry.ResolvedBy = resolvedBy.String
	if resolvedAt.Valid {
		t := resolvedAt.Time
		entry.ResolvedAt = &t
	}

	return &entry, nil
}
