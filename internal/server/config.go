// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the space server.
package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/Tyrowin/gospace/internal/proximity"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `env:"BURST"`
	RefillInterval time.Duration `env:"REFILL_INTERVAL"`
}

// ProximityConfig tunes the automatic group call sessions.
type ProximityConfig struct {
	Interval  time.Duration `env:"INTERVAL"`
	Threshold float64       `env:"THRESHOLD"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port           string          `env:"SERVER_PORT"`
	AllowedOrigins []string        `env:"ALLOWED_ORIGINS" envSeparator:","`
	MaxMessageSize int64           `env:"MAX_MESSAGE_SIZE"`
	RateLimit      RateLimitConfig `envPrefix:"RATE_LIMIT_"`

	JWTSecret     string          `env:"JWT_SECRET"`
	DatabasePath  string          `env:"DATABASE_PATH"`
	MediaEndpoint string          `env:"MEDIA_ENDPOINT"`
	Proximity     ProximityConfig `envPrefix:"PROXIMITY_"`
	BlockedWords  []string        `env:"BLOCKED_WORDS" envSeparator:","`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"`
	LogLevel        string        `env:"LOG_LEVEL"`
	LogFormat       string        `env:"LOG_FORMAT"`
	OTelEndpoint    string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// ErrMissingSecret is returned by Validate when no JWT secret is configured.
var ErrMissingSecret = errors.New("JWT_SECRET is required")

func defaultConfig() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
			"http://localhost:5173",
		},
		MaxMessageSize: 64 * 1024,
		RateLimit: RateLimitConfig{
			Burst:          20,
			RefillInterval: time.Second,
		},
		DatabasePath: "gospace.db",
		Proximity: ProximityConfig{
			Interval:  proximity.DefaultInterval,
			Threshold: proximity.DefaultThreshold,
		},
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
		LogFormat:       "json",
	}
}

func sanitizeConfig(cfg Config) Config {
	def := defaultConfig()

	if cfg.Port == "" {
		cfg.Port = def.Port
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = def.RateLimit.Burst
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}

	if cfg.Proximity.Interval <= 0 {
		cfg.Proximity.Interval = def.Proximity.Interval
	}

	if cfg.Proximity.Threshold <= 0 {
		cfg.Proximity.Threshold = def.Proximity.Threshold
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	if cfg.DatabasePath == "" {
		cfg.DatabasePath = def.DatabasePath
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	cfg.BlockedWords = append([]string(nil), cfg.BlockedWords...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Unset variables keep their default values.
func NewConfigFromEnv() (*Config, error) {
	cfg := defaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg = sanitizeConfig(cfg)
	return &cfg, nil
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return ErrMissingSecret
	}
	return nil
}
