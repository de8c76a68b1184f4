package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the delivery engine. Values come from
// the environment with sensible defaults; only the connection URLs are
// required.
type Config struct {
	Port                   string
	DatabaseURL            string
	RedisURL               string
	NumWorkers             int
	MaxAttempts            int
	RetentionDays          int
	RetrySweepInterval     time.Duration
	RetentionSweepInterval time.Duration
	APIRateLimitPerMinute  int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("NUM_WORKERS", 25)
	v.SetDefault("MAX_ATTEMPTS", 3)
	v.SetDefault("RETENTION_DAYS", 30)
	v.SetDefault("RETRY_SWEEP_INTERVAL", "30s")
	v.SetDefault("RETENTION_SWEEP_INTERVAL", "1h")
	v.SetDefault("API_RATE_LIMIT_PER_MINUTE", 120)

	cfg := &Config{
		Port:                   v.GetString("PORT"),
		DatabaseURL:            v.GetString("DATABASE_URL"),
		RedisURL:               v.GetString("REDIS_URL"),
		NumWorkers:             v.GetInt("NUM_WORKERS"),
		MaxAttempts:            v.GetInt("MAX_ATTEMPTS"),
		RetentionDays:          v.GetInt("RETENTION_DAYS"),
		RetrySweepInterval:     v.GetDuration("RETRY_SWEEP_INTERVAL"),
		RetentionSweepInterval: v.GetDuration("RETENTION_SWEEP_INTERVAL"),
		APIRateLimitPerMinute:  v.GetInt("API_RATE_LIMIT_PER_MINUTE"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	return cfg, nil
}

// RetentionAge converts the configured retention days to a duration.
func (c *Config) RetentionAge() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
