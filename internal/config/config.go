package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port          int           `env:"PORT" envDefault:"8080"`
	DataDir       string        `env:"DATA_DIR" envDefault:"/data"`
	CacheDir      string        `env:"CACHE_DIR"`
	MemoryTTL     time.Duration `env:"CACHE_MEMORY_TTL" envDefault:"30s"`
	MaxOpenDocs   int           `env:"MAX_OPEN_DOCS" envDefault:"20"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`
	AllowedOrigin string        `env:"ALLOWED_ORIGIN"`

	// Optional slippy-map layer; disabled when the URL is empty.
	MapUpstreamURL string `env:"MAP_UPSTREAM_URL"`
	MapMinZoom     int    `env:"MAP_MIN_ZOOM" envDefault:"0"`
	MapMaxZoom     int    `env:"MAP_MAX_ZOOM" envDefault:"17"`
}

func Load() (*Config, error) {
	// a missing .env file is fine, env vars still apply
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(cfg.DataDir, "cache")
	}

	return &cfg, nil
}

func (c *Config) MapEnabled() bool {
	return c.MapUpstreamURL != ""
}
