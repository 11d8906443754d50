package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateXDG(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(base, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(base, "data"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(base, "state"))
	t.Setenv("ENV", "")
	return base
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, validateConfig(cfg))

	assert.Equal(t, DefaultListenAddr, cfg.Listen)
	assert.Equal(t, 30*time.Second, cfg.Channel.CallTimeout)
	assert.Equal(t, 15*time.Second, cfg.Channel.ResolveTimeout)
	assert.Equal(t, 90, cfg.State.RetentionDays)
	assert.False(t, cfg.Auth.RequireToken)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen", func(c *Config) { c.Listen = "" }},
		{"not host:port", func(c *Config) { c.Listen = "just-a-host" }},
		{"non-loopback listen", func(c *Config) { c.Listen = "0.0.0.0:7611" }},
		{"empty unix path", func(c *Config) { c.Listen = "unix:" }},
		{"negative call timeout", func(c *Config) { c.Channel.CallTimeout = -time.Second }},
		{"negative retention", func(c *Config) { c.State.RetentionDays = -1 }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"unknown log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, validateConfig(cfg))
		})
	}
}

func TestValidateAcceptsUnixSocketAndLocalhost(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Listen = "unix:/tmp/alcove.sock"
	assert.NoError(t, validateConfig(cfg))

	cfg.Listen = "localhost:7611"
	assert.NoError(t, validateConfig(cfg))
}

func TestLoadCreatesDefaultConfigFile(t *testing.T) {
	isolateXDG(t)

	m, err := NewManager()
	require.NoError(t, err)
	require.NoError(t, m.Load())

	configFile, err := GetConfigFile()
	require.NoError(t, err)
	_, err = os.Stat(configFile)
	require.NoError(t, err, "default config file should be written")

	cfg := m.Get()
	assert.Equal(t, DefaultListenAddr, cfg.Listen)

	// Derived paths are filled in.
	dbFile, err := GetDatabaseFile()
	require.NoError(t, err)
	assert.Equal(t, dbFile, cfg.Database.Path)

	extDir, err := GetExtensionsDir()
	require.NoError(t, err)
	assert.Equal(t, extDir, cfg.Extensions.Dir)
}

func TestEnvOverridesTakePrecedence(t *testing.T) {
	isolateXDG(t)
	t.Setenv("ALCOVE_LISTEN", "127.0.0.1:9000")
	t.Setenv("ALCOVE_LOGGING_LEVEL", "debug")
	t.Setenv("ALCOVE_STATE_RETENTION_DAYS", "7")

	m, err := NewManager()
	require.NoError(t, err)
	require.NoError(t, m.Load())

	cfg := m.Get()
	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 7, cfg.State.RetentionDays)
}

func TestLoadRejectsInvalidFileValues(t *testing.T) {
	isolateXDG(t)
	t.Setenv("ALCOVE_LISTEN", "0.0.0.0:7611")

	m, err := NewManager()
	require.NoError(t, err)
	err = m.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loopback")
}

func TestXDGDirsUseAppName(t *testing.T) {
	base := isolateXDG(t)

	dirs, err := GetXDGDirs()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "config", "alcove"), dirs.ConfigHome)
	assert.Equal(t, filepath.Join(base, "data", "alcove"), dirs.DataHome)
	assert.Equal(t, filepath.Join(base, "state", "alcove"), dirs.StateHome)
}
