// Package config loads process configuration from MERITLOG_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"meritlog.org/internal/obs"
)

// Prefix is prepended to every variable name, e.g. MERITLOG_HTTP_ADDR.
const Prefix = "MERITLOG"

type Config struct {
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	GRPCAddr string `envconfig:"GRPC_ADDR" default:":9090"`

	// PGDSN selects the Postgres remote store. Empty runs against the in-memory store.
	PGDSN         string `envconfig:"PG_DSN"`
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:8080"`

	LegacyCachePath string `envconfig:"LEGACY_CACHE_PATH" default:"meritlog-legacy.db"`

	AuthSecret string `envconfig:"AUTH_SECRET"`
	AuthIssuer string `envconfig:"AUTH_ISSUER" default:"meritlog"`

	RateBurst      int   `envconfig:"RATE_BURST" default:"20"`
	RatePerSec     int   `envconfig:"RATE_PER_SEC" default:"10"`
	MaxUploadBytes int64 `envconfig:"MAX_UPLOAD_BYTES" default:"10485760"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.AuthSecret) == "" {
		errs = append(errs, errors.New("AUTH_SECRET is required"))
	}
	if c.RateBurst <= 0 || c.RatePerSec <= 0 {
		errs = append(errs, fmt.Errorf("rate limit must be positive: burst=%d per_sec=%d", c.RateBurst, c.RatePerSec))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_BYTES must be positive: %d", c.MaxUploadBytes))
	}
	c.PublicBaseURL = strings.TrimRight(c.PublicBaseURL, "/")
	return errors.Join(errs...)
}

// New creates a Config by parsing environment variables.
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	obs.Logger().Info().
		Str("http_addr", cfg.HTTPAddr).
		Str("grpc_addr", cfg.GRPCAddr).
		Bool("postgres", cfg.PGDSN != "").
		Str("legacy_cache", cfg.LegacyCachePath).
		Str("auth_issuer", cfg.AuthIssuer).
		Int("rate_burst", cfg.RateBurst).
		Int("rate_per_sec", cfg.RatePerSec).
		Int64("max_upload_bytes", cfg.MaxUploadBytes).
		Msg("configuration loaded")
	return &cfg, nil
}
