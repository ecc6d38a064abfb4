package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay(t *testing.T) {
	t.Parallel()

	b := Backoff{Base: 30 * time.Second, Max: time.Hour}

	t.Run("doubles per attempt", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 30*time.Second, b.Delay(1))
		assert.Equal(t, time.Minute, b.Delay(2))
		assert.Equal(t, 2*time.Minute, b.Delay(3))
		assert.Equal(t, 4*time.Minute, b.Delay(4))
	})

	t.Run("caps at max", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, time.Hour, b.Delay(8))
		assert.Equal(t, time.Hour, b.Delay(50))
	})

	t.Run("survives huge attempt counts", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, time.Hour, b.Delay(10000))
	})

	t.Run("zero value disables delay", func(t *testing.T) {
		t.Parallel()
		var zero Backoff
		assert.Equal(t, time.Duration(0), zero.Delay(3))
	})

	t.Run("non-positive attempts yield no delay", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, time.Duration(0), b.Delay(0))
		assert.Equal(t, time.Duration(0), b.Delay(-1))
	})
}
