// Package config provides default configuration values for alcove.
package config

import (
	"time"
)

// Default configuration constants
const (
	// DefaultListenAddr keeps the channel on loopback unless overridden.
	DefaultListenAddr = "127.0.0.1:7611"

	// Channel defaults
	defaultCallTimeoutSec    = 30 // seconds
	defaultResolveTimeoutSec = 15 // seconds

	// State defaults
	defaultRetentionDays = 90 // days
)

// DefaultConfig returns the default configuration values for alcove.
func DefaultConfig() *Config {
	return &Config{
		Listen: DefaultListenAddr,
		Auth: AuthConfig{
			RequireToken: false,
		},
		Channel: ChannelConfig{
			CallTimeout:    time.Second * defaultCallTimeoutSec,
			ResolveTimeout: time.Second * defaultResolveTimeoutSec,
		},
		Extensions: ExtensionsConfig{
			Allow: []string{},
		},
		State: StateConfig{
			RetentionDays: defaultRetentionDays,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console", // console or json
			File:   "",        // empty means stderr only
		},
	}
}
