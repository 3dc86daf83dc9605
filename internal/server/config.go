// Package server provides the runtime configuration for the chat relay:
// environment loading, defaults, and the sanitize pass that clamps invalid
// values back to safe ones.
package server

import (
	"strings"
	"time"

	env "github.com/Netflix/go-env"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings.
type Config struct {
	Port            string
	DBPath          string
	AllowedOrigins  []string
	MaxMessageSize  int64
	RateLimit       RateLimitConfig
	ShutdownTimeout time.Duration
}

// envConfig is the flat environment-variable shape Config is loaded from.
// Intervals are whole seconds.
type envConfig struct {
	Port                   string `env:"SERVER_PORT"`
	DBPath                 string `env:"DB_PATH"`
	AllowedOrigins         string `env:"ALLOWED_ORIGINS"`
	MaxMessageSize         int64  `env:"MAX_MESSAGE_SIZE"`
	RateLimitBurst         int    `env:"RATE_LIMIT_BURST"`
	RateLimitRefillSeconds int    `env:"RATE_LIMIT_REFILL_INTERVAL"`
	ShutdownTimeoutSeconds int    `env:"SHUTDOWN_TIMEOUT"`
}

// DefaultConfig returns the configuration used when no environment overrides
// are present.
func DefaultConfig() Config {
	return Config{
		Port:           ":8080",
		DBPath:         "chat.db",
		AllowedOrigins: []string{"http://localhost:8080"},
		MaxMessageSize: 512,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		ShutdownTimeout: 10 * time.Second,
	}
}

// LoadConfig builds a Config from the process environment, falling back to
// defaults for anything unset, then sanitizes the result.
func LoadConfig() (Config, error) {
	var raw envConfig
	if _, err := env.UnmarshalFromEnviron(&raw); err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()
	if raw.Port != "" {
		cfg.Port = raw.Port
	}
	if raw.DBPath != "" {
		cfg.DBPath = raw.DBPath
	}
	if raw.AllowedOrigins != "" {
		cfg.AllowedOrigins = splitOrigins(raw.AllowedOrigins)
	}
	if raw.MaxMessageSize != 0 {
		cfg.MaxMessageSize = raw.MaxMessageSize
	}
	if raw.RateLimitBurst != 0 {
		cfg.RateLimit.Burst = raw.RateLimitBurst
	}
	if raw.RateLimitRefillSeconds != 0 {
		cfg.RateLimit.RefillInterval = time.Duration(raw.RateLimitRefillSeconds) * time.Second
	}
	if raw.ShutdownTimeoutSeconds != 0 {
		cfg.ShutdownTimeout = time.Duration(raw.ShutdownTimeoutSeconds) * time.Second
	}

	return sanitizeConfig(cfg), nil
}

// sanitizeConfig clamps out-of-range values back to the defaults rather than
// failing startup over a bad environment variable.
func sanitizeConfig(cfg Config) Config {
	defaults := DefaultConfig()

	if cfg.Port == "" {
		cfg.Port = defaults.Port
	}
	if cfg.DBPath == "" {
		cfg.DBPath = defaults.DBPath
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaults.RateLimit.Burst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaults.RateLimit.RefillInterval
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}
	return cfg
}

func splitOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
