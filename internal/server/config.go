// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the chat service.
package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultPort            = ":8080"
	defaultMaxMessageSize  = 4096
	defaultSendBufferSize  = 256
	defaultRateLimitBurst  = 5
	defaultRefillInterval  = time.Second
	defaultDatabasePath    = "chat.db"
	defaultShutdownTimeout = 30 * time.Second
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `env:"BURST"           envDefault:"5"`
	RefillInterval time.Duration `env:"REFILL_INTERVAL" envDefault:"1s"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port            string          `env:"SERVER_PORT"      envDefault:":8080"`
	AllowedOrigins  []string        `env:"ALLOWED_ORIGINS"  envDefault:"http://localhost:8080" envSeparator:","`
	MaxMessageSize  int64           `env:"MAX_MESSAGE_SIZE" envDefault:"4096"`
	SendBufferSize  int             `env:"SEND_BUFFER_SIZE" envDefault:"256"`
	RateLimit       RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	DatabasePath    string          `env:"DATABASE_PATH"    envDefault:"chat.db"`
	DatabaseDebug   bool            `env:"DB_DEBUG"         envDefault:"false"`
	ShutdownTimeout time.Duration   `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	LogLevel        string          `env:"LOG_LEVEL"        envDefault:"info"`
	LogFormat       string          `env:"LOG_FORMAT"       envDefault:"text"`
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	var cfg Config
	// An empty environment can only yield the declared defaults.
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}); err != nil {
		panic(fmt.Sprintf("invalid config defaults: %v", err))
	}
	sanitized := cfg.sanitize()
	return &sanitized
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Unset variables fall back to defaults; out-of-range values are replaced by them.
func NewConfigFromEnv() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	sanitized := cfg.sanitize()
	return &sanitized, nil
}

func (cfg Config) sanitize() Config {
	if strings.TrimSpace(cfg.Port) == "" {
		cfg.Port = defaultPort
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}

	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = defaultSendBufferSize
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaultRateLimitBurst
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaultRefillInterval
	}

	if strings.TrimSpace(cfg.DatabasePath) == "" {
		cfg.DatabasePath = defaultDatabasePath
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}
