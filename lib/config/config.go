// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable consulted by [Load].
const EnvVar = "RUNTIMED_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// Config is the runtimed daemon configuration.
type Config struct {
	Environment Environment `yaml:"environment"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	Paths     PathsConfig     `yaml:"paths"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Session   SessionConfig   `yaml:"session"`

	Development *Overrides `yaml:"development,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides holds the sections an environment block may replace.
// Only non-zero fields take effect.
type Overrides struct {
	LogLevel  string           `yaml:"log_level,omitempty"`
	Paths     *PathsConfig     `yaml:"paths,omitempty"`
	Ledger    *LedgerConfig    `yaml:"ledger,omitempty"`
	Discovery *DiscoveryConfig `yaml:"discovery,omitempty"`
	Session   *SessionConfig   `yaml:"session,omitempty"`
}

// PathsConfig configures file locations.
type PathsConfig struct {
	// RuntimeDir is scanned for kernel-*.json connection files.
	RuntimeDir string `yaml:"runtime_dir"`

	// Ledger is the SQLite database file for the message ledger.
	Ledger string `yaml:"ledger"`
}

// LedgerConfig configures the ledger connection pool.
type LedgerConfig struct {
	PoolSize int `yaml:"pool_size"`
}

// DiscoveryConfig configures connection-file polling.
type DiscoveryConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// SessionConfig configures per-runtime sessions.
type SessionConfig struct {
	// DetachGrace bounds how long detach waits for the five
	// connections to close.
	DetachGrace time.Duration `yaml:"detach_grace"`

	// HeartbeatInterval is the liveness probe period. Zero disables
	// probing.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// Default returns the configuration used when a file omits a field.
func Default() *Config {
	return &Config{
		Environment: Development,
		LogLevel:    "info",
		Paths: PathsConfig{
			RuntimeDir: "${HOME}/.local/share/jupyter/runtime",
			Ledger:     "${HOME}/.cache/runtimed/runtimed.db",
		},
		Ledger:    LedgerConfig{PoolSize: 5},
		Discovery: DiscoveryConfig{Interval: 2 * time.Second},
		Session: SessionConfig{
			DetachGrace:       60 * time.Millisecond,
			HeartbeatInterval: 5 * time.Second,
		},
	}
}

// Load reads the file named by RUNTIMED_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your runtimed.yaml or use --config", EnvVar)
	}
	return LoadFile(path)
}

// LoadFile reads configuration from path over [Default], applies the
// matching environment section, and expands variables in paths.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.LogLevel != "" {
		c.LogLevel = overrides.LogLevel
	}
	if p := overrides.Paths; p != nil {
		if p.RuntimeDir != "" {
			c.Paths.RuntimeDir = p.RuntimeDir
		}
		if p.Ledger != "" {
			c.Paths.Ledger = p.Ledger
		}
	}
	if l := overrides.Ledger; l != nil && l.PoolSize != 0 {
		c.Ledger.PoolSize = l.PoolSize
	}
	if d := overrides.Discovery; d != nil && d.Interval != 0 {
		c.Discovery.Interval = d.Interval
	}
	if s := overrides.Session; s != nil {
		if s.DetachGrace != 0 {
			c.Session.DetachGrace = s.DetachGrace
		}
		if s.HeartbeatInterval != 0 {
			c.Session.HeartbeatInterval = s.HeartbeatInterval
		}
	}
}

func (c *Config) expandVariables() {
	vars := map[string]string{"HOME": os.Getenv("HOME")}
	c.Paths.RuntimeDir = expandVars(c.Paths.RuntimeDir, vars)
	c.Paths.Ledger = expandVars(c.Paths.Ledger, vars)
}

// varPattern matches ${NAME} and ${NAME:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, fallback := parts[1], parts[2]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return fallback
	})
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %q", c.Environment))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Paths.RuntimeDir == "" {
		errs = append(errs, errors.New("paths.runtime_dir is required"))
	}
	if c.Paths.Ledger == "" {
		errs = append(errs, errors.New("paths.ledger is required"))
	}
	if c.Ledger.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("ledger.pool_size must be positive, got %d", c.Ledger.PoolSize))
	}
	if c.Discovery.Interval <= 0 {
		errs = append(errs, fmt.Errorf("discovery.interval must be positive, got %v", c.Discovery.Interval))
	}
	if c.Session.DetachGrace <= 0 {
		errs = append(errs, fmt.Errorf("session.detach_grace must be positive, got %v", c.Session.DetachGrace))
	}
	if c.Session.HeartbeatInterval < 0 {
		errs = append(errs, fmt.Errorf("session.heartbeat_interval must not be negative, got %v", c.Session.HeartbeatInterval))
	}

	return errors.Join(errs...)
}

// SlogLevel converts LogLevel to a slog.Level.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log_level must be one of debug, info, warn, error; got %q", c.LogLevel)
}
