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
)

// PostgresCacheStore implements the store.CacheStore interface using PostgreSQL.
//
// Expired rows may linger until DeleteExpired sweeps them; Get filters by
// expiry itself, so a stale row is indistinguishable from a miss.
type PostgresCacheStore struct {
	db store.DBTX
}

// NewPostgresCacheStore creates a new PostgresCacheStore
func NewPostgresCacheStore(db store.DBTX) *PostgresCacheStore {
	return &PostgresCacheStore{
		db: db,
	}
}

// Get retrieves the value for (namespace, key), treating expired rows as misses
func (s *PostgresCacheStore) Get(ctx context.Context, namespace, key string) (json.RawMessage, error) {
	query := `
		SELECT value FROM cache_entries
		WHERE namespace = $1 AND key = $2 AND expires_at > $3
	`

	var value []byte
	err := s.db.QueryRowContext(ctx, query, namespace, key, time.Now().UTC()).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	return value, nil
}

// Set upserts the entry for its (namespace, key)
func (s *PostgresCacheStore) Set(ctx context.Context, entry *domain.CacheEntry) error {
	log := logger.FromContext(ctx)

	if err := entry.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO cache_entries (namespace, key, value, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (namespace, key)
		DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.Namespace,
		entry.Key,
		[]byte(entry.Value),
		entry.ExpiresAt,
	)
	if err != nil {
		log.Error("failed to set cache entry",
			"namespace", entry.Namespace,
			"key", entry.Key,
			"error", err)
		return MapError(fmt.Errorf("failed to set cache entry: %w", err))
	}

	return nil
}

// DeleteExpired removes entries whose expiry has passed
func (s *PostgresCacheStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	log := logger.FromContext(ctx)

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at < $1`, now.UTC())
	if err != nil {
		log.Error("failed to delete expired cache entries", "error", err)
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}
