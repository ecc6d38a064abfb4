package queue

import (
	"math"
	"time"
)

// Backoff computes the delay before a retry attempt: Base doubled per
// attempt, capped at Max. Attempt 1 is the first retry after the initial
// failure. The zero value disables delay entirely.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns Base * 2^(attempt-1), capped at Max.
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 || attempt <= 0 {
		return 0
	}

	d := time.Duration(float64(b.Base) * math.Pow(2, float64(attempt-1)))
	if d <= 0 || (b.Max > 0 && d > b.Max) {
		// Overflow or past the cap.
		return b.Max
	}
	return d
}
