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

// ContentGenerator produces marketing copy for a shop's weekly content
// plan. Generation is the most expensive call in the system, so its
// results are always memoized.
type ContentGenerator interface {
	GenerateWeeklyContent(ctx context.Context, userID uuid.UUID, shopID, theme string) (json.RawMessage, error)
}

type contentGenerationPayload struct {
	ShopID string `json:"shop_id"`
	Theme  string `json:"theme"`
}

// NewContentGeneration returns the processor for content_generation jobs.
// The cache key includes the theme: requesting a different theme on the
// same day is a fresh generation, not a cache hit.
func NewContentGeneration(generator ContentGenerator, cache *service.CacheService, ttl time.Duration) worker.ProcessorFunc {
	return func(ctx context.Context, payload json.RawMessage, userID *uuid.UUID) (json.RawMessage, error) {
		if userID == nil {
			return nil, fmt.Errorf("content generation requires a user")
		}

		var p contentGenerationPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("invalid content generation payload: %w", err)
		}
		if p.ShopID == "" {
			return nil, fmt.Errorf("content generation payload missing shop_id")
		}

		subject := p.ShopID
		if p.Theme != "" {
			subject = p.ShopID + ":" + p.Theme
		}
		key := cacheKey(domain.JobTypeContentGeneration, subject, time.Now())
		return cache.Remember(ctx, domain.JobTypeContentGeneration, key, ttl,
			func(ctx context.Context) (json.RawMessage, error) {
				return generator.GenerateWeeklyContent(ctx, *userID, p.ShopID, p.Theme)
			})
	}
}
