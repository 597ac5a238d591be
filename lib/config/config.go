// Copyright 2026 The NestWatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for NestWatch
// components.
//
// Configuration is loaded from a single file specified by:
//   - NESTWATCH_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. The config file may
// contain environment-specific sections (development, staging,
// production) that override base values when the environment matches.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for the NestWatch relay.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	// Listen configures the network surfaces.
	Listen ListenConfig `yaml:"listen"`

	// Storage configures the device store.
	Storage StorageConfig `yaml:"storage"`

	// Dashboard configures the built-in web dashboard.
	Dashboard DashboardConfig `yaml:"dashboard"`

	// Relay configures live-connection behavior.
	Relay RelayConfig `yaml:"relay"`

	// Per-environment overrides, applied after the base config.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains the fields that can be overridden per
// environment.
type ConfigOverrides struct {
	Listen    *ListenConfig    `yaml:"listen,omitempty"`
	Storage   *StorageConfig   `yaml:"storage,omitempty"`
	Dashboard *DashboardConfig `yaml:"dashboard,omitempty"`
	Relay     *RelayConfig     `yaml:"relay,omitempty"`
}

// ListenConfig configures the network surfaces.
type ListenConfig struct {
	// Address is the TCP address the HTTP and WebSocket surface binds
	// to. Default: :8080
	Address string `yaml:"address"`

	// AdminSocket is the Unix socket path for local administration.
	// Default: <storage root's parent>/admin.sock
	AdminSocket string `yaml:"admin_socket"`
}

// StorageConfig configures the device store.
type StorageConfig struct {
	// Root is the directory device data is stored under, one
	// subdirectory per device.
	Root string `yaml:"root"`

	// DefaultDevice is the device storage queries address when the
	// request names none.
	// Default: child_device_001
	DefaultDevice string `yaml:"default_device"`
}

// DashboardConfig configures the built-in web dashboard.
type DashboardConfig struct {
	// Dir is the dashboard's static build directory. Empty disables
	// dashboard serving.
	Dir string `yaml:"dir"`
}

// RelayConfig configures live-connection behavior.
type RelayConfig struct {
	// IdleTimeout closes connections that stay silent this long,
	// as a Go duration string. "0s" disables idle enforcement.
	// Default: 0s
	IdleTimeout string `yaml:"idle_timeout"`

	// SendBuffer is the per-connection outbound queue capacity.
	// Default: 32
	SendBuffer int `yaml:"send_buffer"`
}

// Default returns the default configuration. These defaults are the
// base the config file is merged over; the file itself is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".local", "share", "nestwatch")

	return &Config{
		Environment: Development,
		Listen: ListenConfig{
			Address:     ":8080",
			AdminSocket: filepath.Join(defaultRoot, "admin.sock"),
		},
		Storage: StorageConfig{
			Root:          filepath.Join(defaultRoot, "storage"),
			DefaultDevice: "child_device_001",
		},
		Relay: RelayConfig{
			IdleTimeout: "0s",
			SendBuffer:  32,
		},
	}
}

// Load loads configuration from the NESTWATCH_CONFIG environment
// variable. There is no other implicit source: if NESTWATCH_CONFIG is
// not set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("NESTWATCH_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("NESTWATCH_CONFIG environment variable not set; " +
			"set it to the path of your nestwatch.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. The config
// file is the single source of truth; environment variables do not
// override its values. The only expansion performed is ${HOME} and
// similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// applyEnvironmentOverrides applies the section matching the
// configured environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.Listen != nil {
		if overrides.Listen.Address != "" {
			c.Listen.Address = overrides.Listen.Address
		}
		if overrides.Listen.AdminSocket != "" {
			c.Listen.AdminSocket = overrides.Listen.AdminSocket
		}
	}

	if overrides.Storage != nil {
		if overrides.Storage.Root != "" {
			c.Storage.Root = overrides.Storage.Root
		}
		if overrides.Storage.DefaultDevice != "" {
			c.Storage.DefaultDevice = overrides.Storage.DefaultDevice
		}
	}

	if overrides.Dashboard != nil {
		if overrides.Dashboard.Dir != "" {
			c.Dashboard.Dir = overrides.Dashboard.Dir
		}
	}

	if overrides.Relay != nil {
		if overrides.Relay.IdleTimeout != "" {
			c.Relay.IdleTimeout = overrides.Relay.IdleTimeout
		}
		if overrides.Relay.SendBuffer != 0 {
			c.Relay.SendBuffer = overrides.Relay.SendBuffer
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"NESTWATCH_ROOT": c.Storage.Root,
		"HOME":           os.Getenv("HOME"),
	}

	c.Storage.Root = expandVars(c.Storage.Root, vars)
	vars["NESTWATCH_ROOT"] = c.Storage.Root // Update for dependent paths.

	c.Listen.AdminSocket = expandVars(c.Listen.AdminSocket, vars)
	c.Dashboard.Dir = expandVars(c.Dashboard.Dir, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// IdleTimeout returns the parsed relay idle timeout. Only valid after
// Validate has passed; an unparseable value reads as zero.
func (c *Config) IdleTimeout() time.Duration {
	d, err := time.ParseDuration(c.Relay.IdleTimeout)
	if err != nil {
		return 0
	}
	return d
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Listen.Address == "" {
		errs = append(errs, fmt.Errorf("listen.address is required"))
	}
	if c.Listen.AdminSocket == "" {
		errs = append(errs, fmt.Errorf("listen.admin_socket is required"))
	}
	if c.Storage.Root == "" {
		errs = append(errs, fmt.Errorf("storage.root is required"))
	}
	if c.Storage.DefaultDevice == "" {
		errs = append(errs, fmt.Errorf("storage.default_device is required"))
	}
	if c.Relay.IdleTimeout != "" {
		if d, err := time.ParseDuration(c.Relay.IdleTimeout); err != nil {
			errs = append(errs, fmt.Errorf("relay.idle_timeout: %v", err))
		} else if d < 0 {
			errs = append(errs, fmt.Errorf("relay.idle_timeout must not be negative"))
		}
	}
	if c.Relay.SendBuffer < 0 {
		errs = append(errs, fmt.Errorf("relay.send_buffer must not be negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
