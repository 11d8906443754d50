// Package config provides configuration management for alcove with Viper integration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// File permission constants
const (
	dirPerm  = 0755 // Standard directory permissions (rwxr-xr-x)
	filePerm = 0644 // Standard file permissions (rw-r--r--)
)

// Config represents the complete configuration for alcove.
type Config struct {
	// Listen is the channel endpoint: a loopback host:port or "unix:" followed
	// by a socket path.
	Listen     string           `mapstructure:"listen" yaml:"listen" json:"listen"`
	Auth       AuthConfig       `mapstructure:"auth" yaml:"auth" json:"auth"`
	Channel    ChannelConfig    `mapstructure:"channel" yaml:"channel" json:"channel"`
	Extensions ExtensionsConfig `mapstructure:"extensions" yaml:"extensions" json:"extensions"`
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database" json:"database"`
	State      StateConfig      `mapstructure:"state" yaml:"state" json:"state"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging" json:"logging"`
}

// AuthConfig controls how workbench connections authenticate.
type AuthConfig struct {
	RequireToken bool `mapstructure:"require_token" yaml:"require_token" json:"require_token"`
}

// ChannelConfig holds channel timing configuration.
type ChannelConfig struct {
	CallTimeout    time.Duration `mapstructure:"call_timeout" yaml:"call_timeout" json:"call_timeout" jsonschema:"type=string,example=30s"`
	ResolveTimeout time.Duration `mapstructure:"resolve_timeout" yaml:"resolve_timeout" json:"resolve_timeout" jsonschema:"type=string,example=15s"`
}

// MarshalJSON writes durations in "30s" form so the config file stays
// readable; Viper parses them back on load.
func (c ChannelConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		CallTimeout    string `json:"call_timeout"`
		ResolveTimeout string `json:"resolve_timeout"`
	}{
		CallTimeout:    c.CallTimeout.String(),
		ResolveTimeout: c.ResolveTimeout.String(),
	})
}

// ExtensionsConfig holds extension loading configuration.
type ExtensionsConfig struct {
	// Dir is scanned for .js extension files at startup.
	Dir string `mapstructure:"dir" yaml:"dir" json:"dir"`
	// Allow restricts loading to the named files; empty loads everything.
	Allow []string `mapstructure:"allow" yaml:"allow" json:"allow"`
}

// DatabaseConfig holds database-related configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path" json:"path"`
}

// StateConfig holds view state retention configuration.
type StateConfig struct {
	// RetentionDays drops persisted view state untouched for this many days.
	// Zero keeps state forever.
	RetentionDays int `mapstructure:"retention_days" yaml:"retention_days" json:"retention_days"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
	File   string `mapstructure:"file" yaml:"file" json:"file"`
}

// Manager handles configuration loading, watching, and reloading.
type Manager struct {
	config    *Config
	viper     *viper.Viper
	mu        sync.RWMutex
	callbacks []func(*Config)
	watching  bool
}

// NewManager creates a new configuration manager.
func NewManager() (*Manager, error) {
	v := viper.New()

	// Configure Viper - supports yaml, json, toml automatically
	v.SetConfigName("config") // Will find config.yaml, config.json, config.toml, etc.

	// Add config paths
	configDir, err := GetConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}
	v.AddConfigPath(configDir)
	v.AddConfigPath(".") // Current directory for development

	// Set up environment variable support
	v.SetEnvPrefix("ALCOVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind specific environment variables
	bindings := map[string]string{
		"listen":                  "LISTEN",
		"auth.require_token":      "AUTH_REQUIRE_TOKEN",
		"channel.call_timeout":    "CHANNEL_CALL_TIMEOUT",
		"channel.resolve_timeout": "CHANNEL_RESOLVE_TIMEOUT",
		"extensions.dir":          "EXTENSIONS_DIR",
		"database.path":           "DATABASE_PATH",
		"state.retention_days":    "STATE_RETENTION_DAYS",
		"logging.level":           "LOGGING_LEVEL",
		"logging.format":          "LOGGING_FORMAT",
		"logging.file":            "LOGGING_FILE",
	}

	for key, env := range bindings {
		if err := v.BindEnv(key, "ALCOVE_"+env); err != nil {
			return nil, fmt.Errorf("failed to bind environment variable %s: %w", env, err)
		}
	}

	return &Manager{
		viper:     v,
		callbacks: make([]func(*Config), 0),
	}, nil
}

// Load loads the configuration from file and environment variables.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Ensure directories exist
	if err := EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to ensure directories: %w", err)
	}

	// Set defaults
	m.setDefaults()

	// Read config file if it exists
	if err := m.viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, create default one
			if err := m.createDefaultConfig(); err != nil {
				return fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config, err := m.unmarshal()
	if err != nil {
		return err
	}

	m.config = config
	return nil
}

// unmarshal decodes viper's state, fills in derived paths, and validates.
func (m *Manager) unmarshal() (*Config, error) {
	config := &Config{}
	if err := m.viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Set database path if not specified
	if config.Database.Path == "" {
		dbPath, err := GetDatabaseFile()
		if err != nil {
			return nil, fmt.Errorf("failed to get database path: %w", err)
		}
		config.Database.Path = dbPath
	}

	// Set extensions dir if not specified
	if config.Extensions.Dir == "" {
		extDir, err := GetExtensionsDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get extensions directory: %w", err)
		}
		config.Extensions.Dir = extDir
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

// Get returns the current configuration (thread-safe).
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to prevent external modification
	configCopy := *m.config
	return &configCopy
}

// Watch starts watching the config file for changes and reloads automatically.
func (m *Manager) Watch() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.watching {
		return nil // Already watching
	}

	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(_ fsnotify.Event) {
		// Reload config
		if err := m.reload(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to reload config: %v\n", err)
			return
		}

		// Notify callbacks
		m.mu.RLock()
		config := m.config
		callbacks := make([]func(*Config), len(m.callbacks))
		copy(callbacks, m.callbacks)
		m.mu.RUnlock()

		for _, callback := range callbacks {
			callback(config)
		}
	})

	m.watching = true
	return nil
}

// OnConfigChange registers a callback function to be called when config changes.
func (m *Manager) OnConfigChange(callback func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.callbacks = append(m.callbacks, callback)
}

// reload reloads the configuration (internal method).
func (m *Manager) reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.viper.ReadInConfig(); err != nil {
		return err
	}

	config, err := m.unmarshal()
	if err != nil {
		return err
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values in Viper.
func (m *Manager) setDefaults() {
	defaults := DefaultConfig()

	m.viper.SetDefault("listen", defaults.Listen)

	// Auth defaults
	m.viper.SetDefault("auth.require_token", defaults.Auth.RequireToken)

	// Channel defaults
	m.viper.SetDefault("channel.call_timeout", defaults.Channel.CallTimeout)
	m.viper.SetDefault("channel.resolve_timeout", defaults.Channel.ResolveTimeout)

	// Extensions defaults
	m.viper.SetDefault("extensions.allow", defaults.Extensions.Allow)

	// State defaults
	m.viper.SetDefault("state.retention_days", defaults.State.RetentionDays)

	// Logging defaults
	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.format", defaults.Logging.Format)
	m.viper.SetDefault("logging.file", defaults.Logging.File)
}

// createDefaultConfig creates a default configuration file.
func (m *Manager) createDefaultConfig() error {
	configFile, err := GetConfigFile()
	if err != nil {
		return err
	}

	// Create config directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(configFile), dirPerm); err != nil {
		return err
	}

	// Get the default configuration
	defaultConfig := DefaultConfig()

	// Marshal to JSON with proper indentation
	configData, err := json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}

	// Write JSON config file
	if err := os.WriteFile(configFile, configData, filePerm); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Created default configuration file: %s\n", configFile)
	return nil
}

// GetConfigFile returns the path to the configuration file being used.
func (m *Manager) GetConfigFile() string {
	return m.viper.ConfigFileUsed()
}

// Global configuration manager instance
var globalManager *Manager
var globalManagerOnce sync.Once

// Init initializes the global configuration manager.
func Init() error {
	var err error
	globalManagerOnce.Do(func() {
		globalManager, err = NewManager()
		if err != nil {
			return
		}
		err = globalManager.Load()
	})
	return err
}

// Get returns the global configuration.
func Get() *Config {
	if globalManager == nil {
		// Return defaults if not initialized
		return DefaultConfig()
	}
	return globalManager.Get()
}

// Watch starts watching the global configuration for changes.
func Watch() error {
	if globalManager == nil {
		return fmt.Errorf("configuration not initialized")
	}
	return globalManager.Watch()
}

// OnConfigChange registers a callback for global configuration changes.
func OnConfigChange(callback func(*Config)) {
	if globalManager == nil {
		return
	}
	globalManager.OnConfigChange(callback)
}
