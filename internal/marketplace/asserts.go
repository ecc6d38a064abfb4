package marketplace

import "github.com/atelierhq/atelier-api/internal/processors"

// The client must satisfy every processor collaborator interface.
var (
	_ processors.PerformanceSource = (*Client)(nil)
	_ processors.StatisticsEngine  = (*Client)(nil)
	_ processors.ContentGenerator  = (*Client)(nil)
	_ processors.BrandDirectory    = (*Client)(nil)
	_ processors.InstagramClient   = (*Client)(nil)
)
