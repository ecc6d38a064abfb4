package worker

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopProcessor(_ context.Context, _ json.RawMessage, _ *uuid.UUID) (json.RawMessage, error) {
	return nil, nil
}

func TestRegistryRegister(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	require.NoError(t, r.Register("performance_collection", noopProcessor))

	processor, ok := r.Lookup("performance_collection")
	assert.True(t, ok)
	assert.NotNil(t, processor)

	_, ok = r.Lookup("unknown_type")
	assert.False(t, ok)

	t.Run("duplicate registration fails", func(t *testing.T) {
		err := r.Register("performance_collection", noopProcessor)
		assert.Error(t, err)
	})

	t.Run("empty type fails", func(t *testing.T) {
		err := r.Register("", noopProcessor)
		assert.Error(t, err)
	})

	t.Run("nil processor fails", func(t *testing.T) {
		err := r.Register("other_type", nil)
		assert.Error(t, err)
	})
}

func TestRegistryMustRegisterPanics(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.MustRegister("instagram_sync", noopProcessor)

	assert.Panics(t, func() {
		r.MustRegister("instagram_sync", noopProcessor)
	})
}

func TestRegistryTypes(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	require.NoError(t, r.Register("instagram_sync", noopProcessor))
	require.NoError(t, r.Register("brand_discovery", noopProcessor))
	require.NoError(t, r.Register("content_generation", noopProcessor))

	assert.Equal(t, []string{"brand_discovery", "content_generation", "instagram_sync"}, r.Types())
}
