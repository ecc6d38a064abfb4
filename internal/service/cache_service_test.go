package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/atelier-api/internal/platform/memory"
)

func newTestCacheService(t *testing.T) (*CacheService, *memory.Store) {
	t.Helper()
	mem := memory.New()
	return NewCacheService(mem.Cache(), time.Hour), mem
}

func TestCacheServiceGetSet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestCacheService(t)

	value := json.RawMessage(`{"views":120}`)
	require.NoError(t, svc.Set(ctx, "performance", "shop-1", value, time.Hour))

	got, err := svc.Get(ctx, "performance", "shop-1")
	require.NoError(t, err)
	assert.JSONEq(t, string(value), string(got))

	t.Run("miss returns nil without error", func(t *testing.T) {
		got, err := svc.Get(ctx, "performance", "shop-2")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("set overwrites the previous value", func(t *testing.T) {
		updated := json.RawMessage(`{"views":200}`)
		require.NoError(t, svc.Set(ctx, "performance", "shop-1", updated, time.Hour))

		got, err := svc.Get(ctx, "performance", "shop-1")
		require.NoError(t, err)
		assert.JSONEq(t, string(updated), string(got))
	})

	t.Run("empty key is rejected", func(t *testing.T) {
		err := svc.Set(ctx, "performance", "", value, time.Hour)
		assert.Error(t, err)
	})
}

func TestCacheServiceExpiryWithoutSweep(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestCacheService(t)

	// A tiny TTL expires between the write and the read. No sweep runs;
	// correctness comes from the read-side expiry check alone.
	value := json.RawMessage(`{"stale":true}`)
	require.NoError(t, svc.Set(ctx, "statistics", "shop-1", value, time.Nanosecond))
	time.Sleep(10 * time.Millisecond)

	got, err := svc.Get(ctx, "statistics", "shop-1")
	require.NoError(t, err)
	assert.Nil(t, got, "expired entry must read as a miss before any sweep")
}

func TestCacheServiceRemember(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestCacheService(t)

	calls := 0
	compute := func(_ context.Context) (json.RawMessage, error) {
		calls++
		return json.RawMessage(`{"generated":true}`), nil
	}

	first, err := svc.Remember(ctx, "content", "shop-1:spring", time.Hour, compute)
	require.NoError(t, err)
	assert.JSONEq(t, `{"generated":true}`, string(first))
	assert.Equal(t, 1, calls)

	second, err := svc.Remember(ctx, "content", "shop-1:spring", time.Hour, compute)
	require.NoError(t, err)
	assert.JSONEq(t, `{"generated":true}`, string(second))
	assert.Equal(t, 1, calls, "second call must be served from cache")

	t.Run("different key computes again", func(t *testing.T) {
		_, err := svc.Remember(ctx, "content", "shop-1:summer", time.Hour, compute)
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("compute errors are not cached", func(t *testing.T) {
		failures := 0
		failing := func(_ context.Context) (json.RawMessage, error) {
			failures++
			return nil, errors.New("upstream down")
		}

		_, err := svc.Remember(ctx, "content", "shop-2", time.Hour, failing)
		require.Error(t, err)

		_, err = svc.Remember(ctx, "content", "shop-2", time.Hour, failing)
		require.Error(t, err)
		assert.Equal(t, 2, failures, "failed computations must retry, not cache")
	})
}

func TestCacheServiceCleanupExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, mem := newTestCacheService(t)

	require.NoError(t, svc.Set(ctx, "ns", "expired", json.RawMessage(`1`), time.Nanosecond))
	require.NoError(t, svc.Set(ctx, "ns", "live", json.RawMessage(`2`), time.Hour))
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, svc.CleanupExpired(ctx))

	// The live entry survives the sweep.
	got, err := mem.Cache().Get(ctx, "ns", "live")
	require.NoError(t, err)
	assert.JSONEq(t, `2`, string(got))

	gone, err := svc.Get(ctx, "ns", "expired")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestCacheServiceDefaultTTL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, mem := newTestCacheService(t)

	// A non-positive TTL falls back to the service default instead of
	// failing entry validation.
	require.NoError(t, svc.Set(ctx, "ns", "key", json.RawMessage(`1`), 0))

	got, err := mem.Cache().Get(ctx, "ns", "key")
	require.NoError(t, err)
	assert.JSONEq(t, `1`, string(got))
}
