package domain

import (
	"encoding/json"
	"errors"
	"time"
)

// Common validation errors for CacheEntry
var (
	ErrEmptyCacheNamespace = errors.New("cache namespace cannot be empty")
	ErrEmptyCacheKey       = errors.New("cache key cannot be empty")
	ErrInvalidCacheTTL     = errors.New("cache TTL must be positive")
)

// CacheEntry memoizes the output of an expensive processor operation.
// Entries are keyed by (Namespace, Key) and carry an absolute expiry;
// an expired row is treated as a miss whether or not it has been swept.
type CacheEntry struct {
	Namespace string          `json:"namespace"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// NewCacheEntry creates a cache entry expiring ttl from now.
// Returns an error if validation fails.
func NewCacheEntry(namespace, key string, value json.RawMessage, ttl time.Duration) (*CacheEntry, error) {
	if ttl <= 0 {
		return nil, ErrInvalidCacheTTL
	}

	entry := &CacheEntry{
		Namespace: namespace,
		Key:       key,
		Value:     value,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}

	if err := entry.Validate(); err != nil {
		return nil, err
	}

	return entry, nil
}

// Validate checks if the CacheEntry has valid data.
func (e *CacheEntry) Validate() error {
	if e.Namespace == "" {
		return ErrEmptyCacheNamespace
	}

	if e.Key == "" {
		return ErrEmptyCacheKey
	}

	return nil
}

// Expired reports whether the entry is past its expiry at the given instant.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
