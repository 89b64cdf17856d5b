package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	loader := NewLoader()
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Empty(t, cfg.Session.UserID)
	assert.Contains(t, cfg.Database.Path, "state.db")
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
session:
  user_id: "@bob:example.org"
  sync_file: /tmp/sync.jsonl
database:
  path: /tmp/loom-state.db
logging:
  level: debug
  format: json
`), 0o644))

	loader := NewLoader()
	loader.SetConfigFile(path)
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "@bob:example.org", cfg.Session.UserID)
	assert.Equal(t, "/tmp/sync.jsonl", cfg.Session.SyncFile)
	assert.Equal(t, "/tmp/loom-state.db", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	loader := NewLoader()
	loader.SetConfigFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	_, err := loader.Load()
	assert.ErrorContains(t, err, "failed to load config file")
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o644))

	t.Setenv("LOOM_LOGGING_LEVEL", "trace")

	loader := NewLoader()
	loader.SetConfigFile(path)
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "trace", cfg.Logging.Level)
}

func TestLoadInvalidLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0o644))

	loader := NewLoader()
	loader.SetConfigFile(path)
	_, err := loader.Load()
	assert.ErrorContains(t, err, "invalid logging level")
}

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "x.db"), expandTilde("~/x.db"))
	assert.Equal(t, home, expandTilde("~"))
	assert.Equal(t, "/abs/x.db", expandTilde("/abs/x.db"))
	assert.Equal(t, "", expandTilde(""))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults ok", func(c *Config) {}, ""},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "invalid logging format"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "invalid logging level"},
		{"missing db path", func(c *Config) { c.Database.Path = "" }, "database path is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
