// Package config provides validation utilities for configuration values.
package config

import (
	"fmt"
	"net"
	"strings"
)

// validateConfig performs comprehensive validation of configuration values
func validateConfig(config *Config) error {
	var validationErrors []string

	// Validate listen address: either a unix socket path or a loopback host:port
	if config.Listen == "" {
		validationErrors = append(validationErrors, "listen cannot be empty")
	} else if path, ok := strings.CutPrefix(config.Listen, "unix:"); ok {
		if path == "" {
			validationErrors = append(validationErrors, "listen unix socket path cannot be empty")
		}
	} else {
		host, _, err := net.SplitHostPort(config.Listen)
		if err != nil {
			validationErrors = append(validationErrors, fmt.Sprintf("listen must be host:port or unix:/path (got: %s)", config.Listen))
		} else if ip := net.ParseIP(host); ip != nil && !ip.IsLoopback() {
			validationErrors = append(validationErrors, fmt.Sprintf("listen must stay on a loopback address (got: %s)", host))
		}
	}

	// Validate channel timeouts
	if config.Channel.CallTimeout < 0 {
		validationErrors = append(validationErrors, "channel.call_timeout must be non-negative")
	}
	if config.Channel.ResolveTimeout < 0 {
		validationErrors = append(validationErrors, "channel.resolve_timeout must be non-negative")
	}

	// Validate state retention
	if config.State.RetentionDays < 0 {
		validationErrors = append(validationErrors, "state.retention_days must be non-negative")
	}

	// Validate logging values
	switch config.Logging.Level {
	case "", "trace", "debug", "info", "warn", "error":
		// Valid
	default:
		validationErrors = append(validationErrors, fmt.Sprintf("logging.level must be one of: trace, debug, info, warn, error (got: %s)", config.Logging.Level))
	}
	switch config.Logging.Format {
	case "", "console", "json":
		// Valid
	default:
		validationErrors = append(validationErrors, fmt.Sprintf("logging.format must be 'console' or 'json' (got: %s)", config.Logging.Format))
	}

	// If there are validation errors, return them
	if len(validationErrors) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(validationErrors, "\n  - "))
	}

	return nil
}
