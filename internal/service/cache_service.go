// Package service contains the application services that front the
// stores for the HTTP layer and the processors.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/atelierhq/atelier-api/internal/domain"
	"github.com/atelierhq/atelier-api/internal/platform/logger"
	"github.com/atelierhq/atelier-api/internal/store"
)

// CacheService fronts the cache store, owning TTL defaults and expiry
// cleanup. Processors use it to memoize expensive external-API results
// so repeated ticks or user requests within the TTL window reuse the
// prior output.
type CacheService struct {
	cache      store.CacheStore
	defaultTTL time.Duration
}

// NewCacheService creates a CacheService with the given default TTL,
// applied when Set is called with a non-positive TTL.
func NewCacheService(cache store.CacheStore, defaultTTL time.Duration) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	return &CacheService{
		cache:      cache,
		defaultTTL: defaultTTL,
	}
}

// Get returns the cached value for (namespace, key), or (nil, nil) on a
// miss. Expired-but-unswept entries are misses.
func (s *CacheService) Get(ctx context.Context, namespace, key string) (json.RawMessage, error) {
	value, err := s.cache.Get(ctx, namespace, key)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cache: %w", err)
	}
	return value, nil
}

// Set upserts a value with the given TTL (the service default when ttl
// is non-positive).
func (s *CacheService) Set(ctx context.Context, namespace, key string, value json.RawMessage, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	entry, err := domain.NewCacheEntry(namespace, key, value, ttl)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	if err := s.cache.Set(ctx, entry); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}

// Remember returns the cached value for (namespace, key) if present,
// otherwise invokes compute, caches its output with the given TTL, and
// returns it. A cache read or write failure is logged but does not fail
// the computation: the cache is an optimization, not a dependency.
func (s *CacheService) Remember(
	ctx context.Context,
	namespace, key string,
	ttl time.Duration,
	compute func(ctx context.Context) (json.RawMessage, error),
) (json.RawMessage, error) {
	log := logger.FromContext(ctx)

	cached, err := s.Get(ctx, namespace, key)
	if err != nil {
		log.Warn("cache read failed, computing fresh value",
			"namespace", namespace,
			"key", key,
			"error", err)
	} else if cached != nil {
		log.Debug("cache hit", "namespace", namespace, "key", key)
		return cached, nil
	}

	value, err := compute(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.Set(ctx, namespace, key, value, ttl); err != nil {
		log.Warn("cache write failed, returning uncached value",
			"namespace", namespace,
			"key", key,
			"error", err)
	}

	return value, nil
}

// CleanupExpired sweeps expired entries. Best-effort: correctness never
// depends on sweep cadence, only on Get's expiry check.
func (s *CacheService) CleanupExpired(ctx context.Context) error {
	deleted, err := s.cache.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to clean up expired cache entries: %w", err)
	}

	if deleted > 0 {
		logger.FromContext(ctx).Debug("swept expired cache entries", "deleted", deleted)
	}
	return nil
}
