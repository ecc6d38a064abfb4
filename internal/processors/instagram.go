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

// InstagramClient syncs a connected Instagram business profile.
type InstagramClient interface {
	SyncProfile(ctx context.Context, userID uuid.UUID, handle string) (json.RawMessage, error)
}

type instagramSyncPayload struct {
	Handle string `json:"handle"`
}

// NewInstagramSync returns the processor for instagram_sync jobs.
func NewInstagramSync(client InstagramClient, cache *service.CacheService, ttl time.Duration) worker.ProcessorFunc {
	return func(ctx context.Context, payload json.RawMessage, userID *uuid.UUID) (json.RawMessage, error) {
		if userID == nil {
			return nil, fmt.Errorf("instagram sync requires a user")
		}

		var p instagramSyncPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("invalid instagram sync payload: %w", err)
		}
		if p.Handle == "" {
			return nil, fmt.Errorf("instagram sync payload missing handle")
		}

		key := cacheKey(domain.JobTypeInstagramSync, p.Handle, time.Now())
		return cache.Remember(ctx, domain.JobTypeInstagramSync, key, ttl,
			func(ctx context.Context) (json.RawMessage, error) {
				return client.SyncProfile(ctx, *userID, p.Handle)
			})
	}
}
