// Package server provides configuration for the ChatGenius service:
// defaults, an optional YAML file, and environment overrides applied in
// that order.
package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RateLimitConfig defines the parameters for per-connection message rate
// limiting.
type RateLimitConfig struct {
	Burst          int           `yaml:"burst"`
	RefillInterval time.Duration `yaml:"refill_interval"`
}

// Config holds the server configuration.
type Config struct {
	Addr           string          `yaml:"addr"`
	AllowedOrigins []string        `yaml:"allowed_origins"`
	MaxMessageSize int64           `yaml:"max_message_size"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`

	// AuthSecret signs and verifies handshake tokens. Empty runs the
	// server in insecure development mode.
	AuthSecret string `yaml:"auth_secret"`

	// StorePath is the SQLite database file; empty selects the
	// in-memory store.
	StorePath string `yaml:"store_path"`

	// TypingSweepInterval enables the server-side typing sweep when
	// positive. Entries older than TypingSweepTTL are dropped.
	TypingSweepInterval time.Duration `yaml:"typing_sweep_interval"`
	TypingSweepTTL      time.Duration `yaml:"typing_sweep_ttl"`

	// HistoryLimit caps the REST history endpoint's page size.
	HistoryLimit int `yaml:"history_limit"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		AllowedOrigins: []string{"http://localhost:8080"},
		MaxMessageSize: 4096,
		RateLimit: RateLimitConfig{
			Burst:          10,
			RefillInterval: time.Second,
		},
		TypingSweepTTL: 30 * time.Second,
		HistoryLimit:   50,
	}
}

// LoadConfig builds the effective configuration: defaults, then the YAML
// file at path (if non-empty), then environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.sanitize()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if addr := os.Getenv("CHATGENIUS_ADDR"); addr != "" {
		c.Addr = addr
	}
	if origins := os.Getenv("CHATGENIUS_ALLOWED_ORIGINS"); origins != "" {
		c.AllowedOrigins = parseOrigins(origins)
	}
	if maxSize := os.Getenv("CHATGENIUS_MAX_MESSAGE_SIZE"); maxSize != "" {
		c.MaxMessageSize = parseInt64Value(maxSize, c.MaxMessageSize)
	}
	if burst := os.Getenv("CHATGENIUS_RATE_LIMIT_BURST"); burst != "" {
		c.RateLimit.Burst = parseIntValue(burst, c.RateLimit.Burst)
	}
	if interval := os.Getenv("CHATGENIUS_RATE_LIMIT_REFILL_SECONDS"); interval != "" {
		c.RateLimit.RefillInterval = parseSeconds(interval, c.RateLimit.RefillInterval)
	}
	if secret := os.Getenv("CHATGENIUS_AUTH_SECRET"); secret != "" {
		c.AuthSecret = secret
	}
	if path := os.Getenv("CHATGENIUS_STORE_PATH"); path != "" {
		c.StorePath = path
	}
}

func (c *Config) sanitize() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 4096
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 10
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = time.Second
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 50
	}
	if c.TypingSweepInterval > 0 && c.TypingSweepTTL <= 0 {
		c.TypingSweepTTL = 30 * time.Second
	}
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseInt64Value(value string, defaultValue int64) int64 {
	if parsed, err := strconv.ParseInt(value, 10, 64); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
