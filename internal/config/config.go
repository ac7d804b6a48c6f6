// Package config loads server configuration from defaults, an optional
// YAML file, and environment variables, in that order of precedence
// (environment wins).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds configuration for the carbonshift server.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`          // Listen address (default ":8080")
	LogLevel     string        `yaml:"log_level"`     // Log level: debug, info, warn, error
	LogFormat    string        `yaml:"log_format"`    // Log format: text, json
	DBPath       string        `yaml:"db_path"`       // SQLite database path (default ~/.carbonshift/carbonshift.db, ":memory:" for testing)
	OptimizerURL string        `yaml:"optimizer_url"` // Carbon-aware optimizer endpoint
	PollInterval time.Duration `yaml:"poll_interval"` // Engine poll granularity
	Token        string        `yaml:"-"`             // API token; environment only, never read from file
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         ":8080",
		LogLevel:     "info",
		LogFormat:    "text",
		OptimizerURL: "https://api.electricitymaps.com/v3/carbon-aware-optimizer",
		PollInterval: 15 * time.Second,
	}
}

// Load builds the effective configuration. path may be empty, in which
// case only defaults and the environment apply. A .env file in the
// working directory is folded into the environment first.
func Load(path string) (ServerConfig, error) {
	// Missing .env is the normal case, not an error.
	_ = godotenv.Load()

	cfg := DefaultServerConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if cfg.PollInterval <= 0 {
		return cfg, fmt.Errorf("poll_interval must be positive, got %s", cfg.PollInterval)
	}
	return cfg, nil
}

func applyEnv(cfg *ServerConfig) {
	if v := os.Getenv("CARBONSHIFT_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("CARBONSHIFT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CARBONSHIFT_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("CARBONSHIFT_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("CARBONSHIFT_OPTIMIZER_URL"); v != "" {
		cfg.OptimizerURL = v
	}
	if v := os.Getenv("CARBONSHIFT_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PollInterval = d
		}
	}
	if v := os.Getenv("EMAPS_TOKEN"); v != "" {
		cfg.Token = v
	}
}

// Redacted returns a copy safe for logging. The token is credential
// material and is never printed, in whole or in part.
func (c ServerConfig) Redacted() ServerConfig {
	out := c
	if out.Token != "" {
		out.Token = "REDACTED"
	}
	return out
}
