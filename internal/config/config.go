package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full runtime configuration, populated from HROPS_* environment
// variables. A local .env file is merged in first when present; real
// environment variables always win.
type Config struct {
	Addr         string        `env:"HROPS_ADDR" envDefault:":8080"`
	GRPCAddr     string        `env:"HROPS_GRPC_ADDR" envDefault:":9090"`
	DatabaseURL  string        `env:"HROPS_DATABASE_URL"`
	TokenTTL     time.Duration `env:"HROPS_TOKEN_TTL" envDefault:"30m"`
	RateLimitRPS float64       `env:"HROPS_RATE_LIMIT_RPS" envDefault:"50"`
	RateBurst    int           `env:"HROPS_RATE_BURST" envDefault:"100"`
	MaxBodyBytes int64         `env:"HROPS_MAX_BODY_BYTES" envDefault:"1048576"`
	CORSOrigin   string        `env:"HROPS_CORS_ORIGIN" envDefault:"*"`

	ShutdownTimeout time.Duration `env:"HROPS_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	Version string `env:"HROPS_VERSION" envDefault:"dev"`
	Commit  string `env:"HROPS_COMMIT" envDefault:"unknown"`
}

// Load reads configuration from the environment, optionally seeded by a .env
// file in the working directory.
func Load() (*Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token ttl must be positive, got %s", c.TokenTTL)
	}
	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("rate limit must be positive, got %f", c.RateLimitRPS)
	}
	if c.RateBurst <= 0 {
		return fmt.Errorf("rate burst must be positive, got %d", c.RateBurst)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive, got %d", c.MaxBodyBytes)
	}
	return nil
}
