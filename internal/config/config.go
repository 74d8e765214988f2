package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the server's environment-driven configuration. Exactly one of
// DATABASE_URL (Postgres) or REDIS_URL (Redis) selects the durable
// mirror; Postgres wins when both are set.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:"0.0.0.0:8000"`

	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	CleanupDelay      time.Duration `env:"CLEANUP_DELAY" envDefault:"5m"`
	NotifyCapacity    int           `env:"QUEUE_NOTIFY_CAPACITY" envDefault:"4096"`
	BroadcastCapacity int           `env:"BROADCAST_CAPACITY" envDefault:"64"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" && cfg.RedisURL == "" {
		return nil, errors.New("DATABASE_URL or REDIS_URL is required")
	}
	if cfg.CleanupDelay <= 0 {
		return nil, errors.New("CLEANUP_DELAY must be positive")
	}
	return &cfg, nil
}
