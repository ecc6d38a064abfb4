package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/atelierhq/atelier-api/internal/domain"
)

// CacheStore defines the interface for the TTL result cache.
//
// Correctness lives in Get's expiry check, not in sweep cadence:
// DeleteExpired may run frequently, rarely, or never without affecting
// what Get returns.
type CacheStore interface {
	// Get retrieves the value for (namespace, key).
	// Returns ErrCacheMiss if the entry is absent or expired.
	Get(ctx context.Context, namespace, key string) (json.RawMessage, error)

	// Set upserts the entry, replacing any existing value and expiry
	// for its (namespace, key).
	Set(ctx context.Context, entry *domain.CacheEntry) error

	// DeleteExpired removes entries whose expiry has passed, returning
	// the number removed. Best-effort storage hygiene.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
