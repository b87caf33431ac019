package baikon

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds engine settings.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// APITimeout bounds outbound HTTP calls, in seconds.
	APITimeout int `yaml:"api_timeout"`

	// RateLimit is the per-user request ceiling per minute for flows
	// that opt into the rate_limit middleware.
	RateLimit int `yaml:"rate_limit"`

	// StorePath, when set, points at the SQLite database used for
	// persistent variables and session history.
	StorePath string `yaml:"store_path"`
}

// DefaultConfig returns the settings used when no config file is given.
func DefaultConfig() Config {
	return Config{
		LogLevel:   "info",
		APITimeout: 10,
		RateLimit:  60,
	}
}

// LoadConfig reads a YAML config file, filling unset fields with defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.APITimeout <= 0 {
		cfg.APITimeout = 10
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 60
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return cfg, nil
}

// SlogLevel maps the configured log level onto slog's levels.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
