package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atelierhq/atelier-api/internal/domain"
	"github.com/atelierhq/atelier-api/internal/service"
	"github.com/atelierhq/atelier-api/internal/worker"
)

// PerformanceSource fetches listing performance metrics from the
// marketplace analytics API.
type PerformanceSource interface {
	CollectMetrics(ctx context.Context, userID uuid.UUID, shopID string) (json.RawMessage, error)
}

// performanceCollectionPayload is the expected payload for
// performance_collection jobs.
type performanceCollectionPayload struct {
	ShopID string `json:"shop_id"`
}

// NewPerformanceCollection returns the processor for
// performance_collection jobs. Results are cached per shop and day so
// retries and same-day re-runs skip the analytics API.
func NewPerformanceCollection(source PerformanceSource, cache *service.CacheService, ttl time.Duration) worker.ProcessorFunc {
	return func(ctx context.Context, payload json.RawMessage, userID *uuid.UUID) (json.RawMessage, error) {
		if userID == nil {
			return nil, fmt.Errorf("performance collection requires a user")
		}

		var p performanceCollectionPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("invalid performance collection payload: %w", err)
		}
		if p.ShopID == "" {
			return nil, fmt.Errorf("performance collection payload missing shop_id")
		}

		key := cacheKey(domain.JobTypePerformanceCollection, p.ShopID, time.Now())
		return cache.Remember(ctx, domain.JobTypePerformanceCollection, key, ttl,
			func(ctx context.Context) (json.RawMessage, error) {
				return source.CollectMetrics(ctx, *userID, p.ShopID)
			})
	}
}
