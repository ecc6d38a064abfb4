package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load configuration from environment variables and optionally a config file.
// Environment variables (prefixed ATELIER_, nested keys joined with _) take
// precedence over values from config.yaml in the working directory.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ATELIER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; env vars may carry everything.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers defaults for everything that has a sane one.
// Credentials and URLs default to empty: viper's Unmarshal only visits
// keys it knows about, so even env-only settings need a registered key.
// Validation rejects the empties afterwards.
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.url", "")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("auth.operator_jwt_secret", "")
	v.SetDefault("auth.cron_secret", "")
	v.SetDefault("marketplace.base_url", "")
	v.SetDefault("marketplace.api_key", "")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("cache.backend", "postgres")
	v.SetDefault("cache.default_ttl", time.Hour)

	v.SetDefault("queue.default_max_attempts", 3)
	v.SetDefault("queue.backoff_base", 30*time.Second)
	v.SetDefault("queue.backoff_max", time.Hour)
	v.SetDefault("queue.lease", 10*time.Minute)

	v.SetDefault("worker.max_jobs", 10)
	v.SetDefault("worker.max_duration", 50*time.Second)

	v.SetDefault("marketplace.timeout", 30*time.Second)
}
