package processors

import (
	"fmt"
	"time"
)

// cacheKey builds the memoization key for a processor run. The date
// bucket makes results naturally refresh day over day even when the
// TTL is longer, and keeps keys stable across retries of the same job.
func cacheKey(operation, subjectID string, at time.Time) string {
	return fmt.Sprintf("%s:%s:%s", operation, subjectID, at.UTC().Format("2006-01-02"))
}
