// Package main implements the entry point for the atelier background
// job API: the persistent queue, the processing tick, the result
// cache, and the dead-letter surfaces of the marketplace.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	goredis "github.com/redis/go-redis/v9"

	"github.com/atelierhq/atelier-api/internal/api"
	"github.com/atelierhq/atelier-api/internal/config"
	"github.com/atelierhq/atelier-api/internal/marketplace"
	"github.com/atelierhq/atelier-api/internal/platform/logger"
	"github.com/atelierhq/atelier-api/internal/platform/postgres"
	"github.com/atelierhq/atelier-api/internal/platform/redis"
	"github.com/atelierhq/atelier-api/internal/processors"
	"github.com/atelierhq/atelier-api/internal/queue"
	"github.com/atelierhq/atelier-api/internal/service"
	"github.com/atelierhq/atelier-api/internal/store"
	"github.com/atelierhq/atelier-api/internal/worker"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("server exited with error: %v", err)
	}
}

// run wires the application bottom-up and serves until SIGINT/SIGTERM,
// then drains within the configured shutdown timeout.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	ctx := logger.WithLogger(context.Background(), appLogger)

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := postgres.Migrate(ctx, db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	cacheStore, err := buildCacheStore(ctx, cfg, db)
	if err != nil {
		return err
	}

	jobStore := postgres.NewPostgresJobStore(db)
	deadLetterStore := postgres.NewPostgresDeadLetterStore(db)

	jobQueue := queue.NewJobQueue(db, jobStore, deadLetterStore, queue.Config{
		DefaultMaxAttempts: cfg.Queue.DefaultMaxAttempts,
		Backoff:            queue.Backoff{Base: cfg.Queue.BackoffBase, Max: cfg.Queue.BackoffMax},
		Lease:              cfg.Queue.Lease,
	})
	dlq := queue.NewDeadLetterQueue(db, deadLetterStore, jobStore, cfg.Queue.DefaultMaxAttempts)
	cacheService := service.NewCacheService(cacheStore, cfg.Cache.DefaultTTL)

	registry := worker.NewRegistry()
	client := marketplace.NewClient(cfg.Marketplace)
	processors.RegisterAll(registry, processors.Deps{
		Performance: client,
		Statistics:  client,
		Content:     client,
		Brands:      client,
		Instagram:   client,
	}, cacheService, cfg.Cache.DefaultTTL)

	tick := worker.NewTick(jobQueue, registry, worker.TickConfig{
		MaxJobs:     cfg.Worker.MaxJobs,
		MaxDuration: cfg.Worker.MaxDuration,
	})

	router := api.NewRouter(api.RouterDeps{
		DB:         db,
		JobQueue:   jobQueue,
		DLQ:        dlq,
		Cache:      cacheService,
		Tick:       tick,
		JWTSecret:  cfg.Auth.OperatorJWTSecret,
		CronSecret: cfg.Auth.CronSecret,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		appLogger.Info("server listening",
			"port", cfg.Server.Port,
			"cache_backend", cfg.Cache.Backend,
			"registered_types", registry.Types())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-stop:
		appLogger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	appLogger.Info("server stopped")
	return nil
}

// buildCacheStore selects the configured cache backend. The redis
// backend is verified reachable at startup so a misconfigured address
// fails fast instead of degrading every processor run.
func buildCacheStore(ctx context.Context, cfg *config.Config, db *sql.DB) (store.CacheStore, error) {
	switch cfg.Cache.Backend {
	case "redis":
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return redis.NewRedisCacheStore(rdb), nil
	default:
		return postgres.NewPostgresCacheStore(db), nil
	}
}
