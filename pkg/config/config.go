// Package config loads host settings: defaults, then an optional YAML file,
// then environment overrides.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreFiles  = "files"
)

// Config holds the tapestry host configuration.
type Config struct {
	Addr     string `yaml:"addr"`
	Store    string `yaml:"store"`
	DataDir  string `yaml:"data_dir"`
	LogLevel string `yaml:"log_level"`
	// Autosave is how long a weave may stay unsaved; zero disables it.
	Autosave time.Duration `yaml:"autosave"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Addr:     ":8080",
		Store:    StoreSQLite,
		DataDir:  "data",
		LogLevel: "info",
		Autosave: 30 * time.Second,
	}
}

// Load builds the configuration. path may be empty, in which case
// TAPESTRY_CONFIG is consulted; a missing file is only an error when a path
// was given.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("TAPESTRY_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("TAPESTRY_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("TAPESTRY_STORE"); v != "" {
		c.Store = v
	}
	if v := os.Getenv("TAPESTRY_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("TAPESTRY_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("TAPESTRY_AUTOSAVE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TAPESTRY_AUTOSAVE: %w", err)
		}
		c.Autosave = d
	}
	return nil
}

// Validate checks that values are usable.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	switch c.Store {
	case StoreSQLite, StoreFiles:
	default:
		return fmt.Errorf("unsupported store %q (use %s or %s)", c.Store, StoreSQLite, StoreFiles)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Autosave < 0 {
		return fmt.Errorf("autosave must not be negative")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return l, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}
