// Package config provides configuration management for netdisco.
//
// Config file locations (priority order):
//  1. $NETDISCO_CONFIG
//  2. ./netdisco.yaml
//  3. $XDG_CONFIG_HOME/netdisco/config.yaml
//  4. ~/.config/netdisco/config.yaml
//  5. /etc/netdisco/config.yaml
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, path, nil
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{
		Version:  1,
		Database: DatabaseConfig{Path: "./netdisco.db"},
		Credentials: []Credential{
			{Tag: "default_v2_readonly", Driver: "snmp", Community: "public"},
		},
	}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Database.Path == "" {
		c.Database.Path = "./netdisco.db"
	}
	if len(c.Discover.LocalNets) == 0 {
		// Addresses in these ranges are never valid management
		// addresses for a remote neighbor.
		c.Discover.LocalNets = []string{"169.254.0.0/16", "fe80::/10"}
	}
}
