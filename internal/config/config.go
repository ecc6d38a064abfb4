package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Cache    CacheConfig    `mapstructure:"cache" validate:"required"`
	Queue    QueueConfig    `mapstructure:"queue" validate:"required"`
	Worker   WorkerConfig   `mapstructure:"worker" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`

	Marketplace MarketplaceConfig `mapstructure:"marketplace" validate:"required"`
}

// MarketplaceConfig points at the main application's internal API,
// which performs the actual business work behind each job type.
type MarketplaceConfig struct {
	BaseURL string        `mapstructure:"base_url" validate:"required,url"`
	APIKey  string        `mapstructure:"api_key" validate:"required"`
	Timeout time.Duration `mapstructure:"timeout" validate:"required"`
}

// ServerConfig contains all HTTP server related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// CacheConfig selects and configures the result-cache backend.
// The postgres backend shares the primary database; the redis backend
// uses native key expiry instead of sweep-based cleanup.
type CacheConfig struct {
	Backend       string        `mapstructure:"backend" validate:"required,oneof=postgres redis"`
	RedisAddr     string        `mapstructure:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string        `mapstructure:"redis_password"`
	DefaultTTL    time.Duration `mapstructure:"default_ttl" validate:"required"`
}

// QueueConfig contains job queue behavior settings.
type QueueConfig struct {
	// DefaultMaxAttempts is applied to jobs enqueued without an explicit limit.
	DefaultMaxAttempts int `mapstructure:"default_max_attempts" validate:"required,gt=0"`

	// BackoffBase is the delay before the first retry; subsequent retries
	// double it up to BackoffMax.
	BackoffBase time.Duration `mapstructure:"backoff_base" validate:"required"`
	BackoffMax  time.Duration `mapstructure:"backoff_max" validate:"required"`

	// Lease bounds how long a claimed job may sit in processing before it
	// is considered abandoned and becomes claimable again.
	Lease time.Duration `mapstructure:"lease" validate:"required"`
}

// WorkerConfig bounds a single processing tick. Both limits exist because
// the tick runs inside a short-lived scheduled invocation, not a
// long-running worker process.
type WorkerConfig struct {
	MaxJobs     int           `mapstructure:"max_jobs" validate:"required,gt=0"`
	MaxDuration time.Duration `mapstructure:"max_duration" validate:"required"`
}

// AuthConfig contains the credentials gating the non-public surfaces.
type AuthConfig struct {
	// OperatorJWTSecret signs/verifies operator bearer tokens for the
	// DLQ admin surface.
	OperatorJWTSecret string `mapstructure:"operator_jwt_secret" validate:"required,min=32"`

	// CronSecret must accompany tick-trigger requests from the external
	// scheduler.
	CronSecret string `mapstructure:"cron_secret" validate:"required,min=16"`
}
