// Package redis implements the cache store on Redis.
//
// Unlike the postgres backend, expiry is native: SET ... EX lets Redis
// drop entries itself, so the sweep has nothing to do.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/atelierhq/atelier-api/internal/domain"
	"github.com/atelierhq/atelier-api/internal/store"
	"github.com/redis/go-redis/v9"
)

// RedisCacheStore implements the store.CacheStore interface using Redis
type RedisCacheStore struct {
	rdb *redis.Client
}

// NewRedisCacheStore creates a new RedisCacheStore
func NewRedisCacheStore(rdb *redis.Client) *RedisCacheStore {
	return &RedisCacheStore{
		rdb: rdb,
	}
}

// cacheKey builds the redis key for a (namespace, key) pair.
func cacheKey(namespace, key string) string {
	return "cache:" + namespace + ":" + key
}

// Get retrieves the value for (namespace, key).
// Returns store.ErrCacheMiss if the key is absent or already expired.
func (s *RedisCacheStore) Get(ctx context.Context, namespace, key string) (json.RawMessage, error) {
	value, err := s.rdb.Get(ctx, cacheKey(namespace, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	return value, nil
}

// Set upserts the entry with its remaining TTL.
// An entry whose expiry has already passed is dropped instead of stored.
func (s *RedisCacheStore) Set(ctx context.Context, entry *domain.CacheEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return s.rdb.Del(ctx, cacheKey(entry.Namespace, entry.Key)).Err()
	}

	if err := s.rdb.Set(ctx, cacheKey(entry.Namespace, entry.Key), []byte(entry.Value), ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op: Redis evicts expired keys natively.
func (s *RedisCacheStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
