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

// StatisticsEngine computes anomaly statistics over a shop's recent
// order and traffic history.
type StatisticsEngine interface {
	ComputeAnomalies(ctx context.Context, userID uuid.UUID, shopID string, windowDays int) (json.RawMessage, error)
}

type anomalyStatisticsPayload struct {
	ShopID     string `json:"shop_id"`
	WindowDays int    `json:"window_days"`
}

const defaultAnomalyWindowDays = 30

// NewAnomalyStatistics returns the processor for anomaly_statistics jobs.
func NewAnomalyStatistics(engine StatisticsEngine, cache *service.CacheService, ttl time.Duration) worker.ProcessorFunc {
	return func(ctx context.Context, payload json.RawMessage, userID *uuid.UUID) (json.RawMessage, error) {
		if userID == nil {
			return nil, fmt.Errorf("anomaly statistics requires a user")
		}

		var p anomalyStatisticsPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("invalid anomaly statistics payload: %w", err)
		}
		if p.ShopID == "" {
			return nil, fmt.Errorf("anomaly statistics payload missing shop_id")
		}
		if p.WindowDays <= 0 {
			p.WindowDays = defaultAnomalyWindowDays
		}

		subject := fmt.Sprintf("%s:%dd", p.ShopID, p.WindowDays)
		key := cacheKey(domain.JobTypeAnomalyStatistics, subject, time.Now())
		return cache.Remember(ctx, domain.JobTypeAnomalyStatistics, key, ttl,
			func(ctx context.Context) (json.RawMessage, error) {
				return engine.ComputeAnomalies(ctx, *userID, p.ShopID, p.WindowDays)
			})
	}
}
