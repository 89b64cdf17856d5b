// Package config handles Loom configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config is the root configuration structure for Loom.
type Config struct {
	// Session settings
	Session SessionConfig `yaml:"session" mapstructure:"session"`

	// Database settings
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// SessionConfig identifies the local user and the sync input.
type SessionConfig struct {
	// UserID is the local user, e.g. "@alice:example.org". Used for
	// own-event detection, edit authorization and highlight rules.
	UserID string `yaml:"user_id" mapstructure:"user_id"`

	// SyncFile is a JSONL sync-stream file to replay (loom tail).
	SyncFile string `yaml:"sync_file" mapstructure:"sync_file"`
}

// DatabaseConfig contains state database settings.
type DatabaseConfig struct {
	// Path is the SQLite state database file path
	// (default: ~/.local/share/loom/state.db).
	Path string `yaml:"path" mapstructure:"path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: defaultDataPath("state.db"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("invalid logging format %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "", "trace", "debug", "info", "warn", "warning", "error", "fatal":
	default:
		return fmt.Errorf("invalid logging level %q", c.Logging.Level)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	return nil
}

func defaultDataPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".local", "share", "loom", name)
}
