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

// BrandDirectory searches external directories for brands matching a
// product niche.
type BrandDirectory interface {
	DiscoverBrands(ctx context.Context, niche string, limit int) (json.RawMessage, error)
}

type brandDiscoveryPayload struct {
	Niche string `json:"niche"`
	Limit int    `json:"limit"`
}

const defaultBrandDiscoveryLimit = 25

// NewBrandDiscovery returns the processor for brand_discovery jobs.
// Discovery is not user-scoped: the same niche yields the same brands
// for every user, so the cache key carries only the niche and day.
func NewBrandDiscovery(directory BrandDirectory, cache *service.CacheService, ttl time.Duration) worker.ProcessorFunc {
	return func(ctx context.Context, payload json.RawMessage, _ *uuid.UUID) (json.RawMessage, error) {
		var p brandDiscoveryPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("invalid brand discovery payload: %w", err)
		}
		if p.Niche == "" {
			return nil, fmt.Errorf("brand discovery payload missing niche")
		}
		if p.Limit <= 0 {
			p.Limit = defaultBrandDiscoveryLimit
		}

		key := cacheKey(domain.JobTypeBrandDiscovery, p.Niche, time.Now())
		return cache.Remember(ctx, domain.JobTypeBrandDiscovery, key, ttl,
			func(ctx context.Context) (json.RawMessage, error) {
				return directory.DiscoverBrands(ctx, p.Niche, p.Limit)
			})
	}
}
