// Package config loads the service's YAML configuration. Secrets (the
// database DSN, the bearer token) stay in the environment; this file
// only carries service settings.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Listen is the HTTP listen address of the schedule API.
	Listen string `yaml:"listen"`

	// BaseURL is the registration system's API root.
	BaseURL string `yaml:"base_url"`

	// RefreshCron is a cron-style spec for periodic full refetches.
	// Empty disables scheduled refetching.
	RefreshCron string `yaml:"refresh"`

	// CachePath is the SQLite file holding the aggregation cache.
	CachePath string `yaml:"cache_path"`

	// UserID selects whose personal events feed the aggregation.
	UserID string `yaml:"user_id"`

	// Semester pins an explicit semester code; empty follows the
	// server's active selection.
	Semester string `yaml:"semester"`
}

func Default() *Config {
	return &Config{
		Listen:      "127.0.0.1:3000",
		BaseURL:     "https://dkmh.tdmu.edu.vn/api",
		RefreshCron: "*/30 * * * *",
		CachePath:   "tkb-cache.db",
	}
}

// Load reads the config at path, falling back to defaults when the
// file does not exist.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("could not parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config with restrictive permissions, creating the
// file on first run.
func (c *Config) Save(path string) error {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}
