package api

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/atelierhq/atelier-api/internal/api/middleware"
	"github.com/atelierhq/atelier-api/internal/queue"
	"github.com/atelierhq/atelier-api/internal/service"
	"github.com/atelierhq/atelier-api/internal/worker"
)

// RouterDeps carries everything the router needs to build its handlers.
type RouterDeps struct {
	DB         *sql.DB
	JobQueue   *queue.JobQueue
	DLQ        *queue.DeadLetterQueue
	Cache      *service.CacheService
	Tick       *worker.Tick
	JWTSecret  string
	CronSecret string
}

// NewRouter assembles the application router: public health probe,
// authenticated job endpoints, operator dead-letter endpoints, and the
// cron-gated internal tick.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Trace)

	jobHandler := NewJobHandler(deps.JobQueue)
	dlqHandler := NewDLQHandler(deps.DLQ)
	tickHandler := NewTickHandler(deps.Tick, deps.Cache)
	healthHandler := NewHealthHandler(deps.DB)
	auth := middleware.NewAuthMiddleware(deps.JWTSecret)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)
			r.Post("/jobs", jobHandler.EnqueueJob)
			r.Post("/jobs/batch", jobHandler.EnqueueJobBatch)
			r.Get("/jobs", jobHandler.ListJobs)
			r.Get("/queue/stats", jobHandler.QueueStats)
		})

		r.Route("/admin/dlq", func(r chi.Router) {
			r.Use(auth.RequireOperator)
			r.Get("/", dlqHandler.List)
			r.Get("/stats", dlqHandler.Stats)
			r.Post("/retry", dlqHandler.BulkRetry)
			r.Post("/{id}/retry", dlqHandler.Retry)
			r.Post("/{id}/resolve", dlqHandler.Resolve)
			r.Delete("/resolved", dlqHandler.PurgeResolved)
		})
	})

	r.Route("/internal", func(r chi.Router) {
		r.Use(middleware.CronAuth(deps.CronSecret))
		r.Post("/tick", tickHandler.Run)
	})

	r.Get("/healthz", healthHandler.Check)

	return r
}
