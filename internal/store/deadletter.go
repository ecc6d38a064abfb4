package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/atelierhq/atelier-api/internal/domain"
	"github.com/google/uuid"
)

// DeadLetterListFilter narrows a dead-letter listing. Zero-valued fields
// are ignored; Limit of zero falls back to the implementation default.
type DeadLetterListFilter struct {
	Status  *domain.DeadLetterStatus
	JobType string
	UserID  *uuid.UUID
	Limit   int
	Offset  int
}

// DeadLetterStats aggregates dead-letter counts for operational dashboards.
type DeadLetterStats struct {
	Total    int                             `json:"total"`
	ByStatus map[domain.DeadLetterStatus]int `json:"by_status"`
	ByType   map[string]int                  `json:"by_type"`
}

// DeadLetterStore defines the interface for persisting dead-letter entries.
type DeadLetterStore interface {
	// Create persists a new dead-letter entry.
	Create(ctx context.Context, entry *domain.DeadLetterEntry) error

	// GetByID retrieves an entry by its unique ID.
	// Returns ErrDeadLetterNotFound if the entry does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.DeadLetterEntry, error)

	// List retrieves entries matching the filter, newest first.
	List(ctx context.Context, filter DeadLetterListFilter) ([]*domain.DeadLetterEntry, error)

	// ListDeadByType retrieves all dead-status entries of the given job type.
	ListDeadByType(ctx context.Context, jobType string) ([]*domain.DeadLetterEntry, error)

	// Stats returns aggregate counts by status and job type.
	Stats(ctx context.Context) (*DeadLetterStats, error)

	// MarkRetrying transitions a dead entry to retrying. Returns
	// ErrInvalidState if the entry is not currently dead.
	MarkRetrying(ctx context.Context, id uuid.UUID) error

	// MarkResolved transitions an entry to resolved with audit fields.
	// Returns ErrInvalidState if the entry is already resolved.
	MarkResolved(ctx context.Context, id uuid.UUID, notes, resolvedBy string) error

	// PurgeResolved hard-deletes resolved entries created before the
	// cutoff, returning the number removed. Irreversible.
	PurgeResolved(ctx context.Context, olderThan time.Time) (int64, error)

	// WithTx returns a new DeadLetterStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) DeadLetterStore
}
