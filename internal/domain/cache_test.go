package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewCacheEntry(t *testing.T) {
	t.Parallel()
	value := json.RawMessage(`{"views":120}`)

	entry, err := NewCacheEntry("performance_collection", "shop-1:2026-08-30", value, time.Hour)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if entry.Namespace != "performance_collection" {
		t.Errorf("Expected namespace performance_collection, got %s", entry.Namespace)
	}

	remaining := time.Until(entry.ExpiresAt)
	if remaining <= 0 || remaining > time.Hour {
		t.Errorf("Expected expiry within the next hour, got %v", remaining)
	}

	// Non-positive TTLs are rejected outright.
	if _, err := NewCacheEntry("ns", "key", value, 0); err != ErrInvalidCacheTTL {
		t.Errorf("Expected error %v, got %v", ErrInvalidCacheTTL, err)
	}
	if _, err := NewCacheEntry("ns", "key", value, -time.Minute); err != ErrInvalidCacheTTL {
		t.Errorf("Expected error %v, got %v", ErrInvalidCacheTTL, err)
	}

	// Namespace and key are both required.
	if _, err := NewCacheEntry("", "key", value, time.Hour); err != ErrEmptyCacheNamespace {
		t.Errorf("Expected error %v, got %v", ErrEmptyCacheNamespace, err)
	}
	if _, err := NewCacheEntry("ns", "", value, time.Hour); err != ErrEmptyCacheKey {
		t.Errorf("Expected error %v, got %v", ErrEmptyCacheKey, err)
	}
}

func TestCacheEntryExpired(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	entry := CacheEntry{
		Namespace: "ns",
		Key:       "key",
		ExpiresAt: now.Add(time.Minute),
	}

	if entry.Expired(now) {
		t.Error("Expected entry not to be expired before its expiry")
	}

	if !entry.Expired(now.Add(time.Minute)) {
		t.Error("Expected entry to be expired exactly at its expiry")
	}

	if !entry.Expired(now.Add(2 * time.Minute)) {
		t.Error("Expected entry to be expired after its expiry")
	}
}
