package processors

import (
	"time"

	"github.com/atelierhq/atelier-api/internal/domain"
	"github.com/atelierhq/atelier-api/internal/service"
	"github.com/atelierhq/atelier-api/internal/worker"
)

// Deps holds the external collaborators the processors depend on.
type Deps struct {
	Performance PerformanceSource
	Statistics  StatisticsEngine
	Content     ContentGenerator
	Brands      BrandDirectory
	Instagram   InstagramClient
}

// RegisterAll wires every product processor into the registry with the
// given result-cache TTL. Called once during startup; a collision here
// is a wiring bug, so registration panics via MustRegister.
func RegisterAll(registry *worker.Registry, deps Deps, cache *service.CacheService, resultTTL time.Duration) {
	registry.MustRegister(domain.JobTypePerformanceCollection, NewPerformanceCollection(deps.Performance, cache, resultTTL))
	registry.MustRegister(domain.JobTypeAnomalyStatistics, NewAnomalyStatistics(deps.Statistics, cache, resultTTL))
	registry.MustRegister(domain.JobTypeContentGeneration, NewContentGeneration(deps.Content, cache, resultTTL))
	registry.MustRegister(domain.JobTypeBrandDiscovery, NewBrandDiscovery(deps.Brands, cache, resultTTL))
	registry.MustRegister(domain.JobTypeInstagramSync, NewInstagramSync(deps.Instagram, cache, resultTTL))
}
