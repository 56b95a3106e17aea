// Package config provides configuration management for quadmap.
//
// The config file says where the repository descriptor lives and how the
// process logs and reports metrics; the descriptor itself says which store
// owns which entity types.
//
// Config file locations (priority order):
//  1. $QUADMAP_CONFIG
//  2. ./quadmap.yaml
//  3. $XDG_CONFIG_HOME/quadmap/config.yaml
//  4. ~/.config/quadmap/config.yaml
//  5. /etc/quadmap/config.yaml
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"quadmap/internal/vocab"
)

// Config is the on-disk configuration.
type Config struct {
	Version  int    `yaml:"version"`
	LogLevel string `yaml:"log_level,omitempty"`
	// Namespace expands identity IRIs given on the command line without a
	// scheme.
	Namespace string `yaml:"namespace,omitempty"`
	// Repositories is the path of the repository descriptor. When empty a
	// single SQLite store at Database.Path owns everything.
	Repositories string         `yaml:"repositories,omitempty"`
	DefaultStore string         `yaml:"default_store,omitempty"`
	Database     DatabaseConfig `yaml:"database"`
	Metrics      MetricsConfig  `yaml:"metrics"`
}

// DatabaseConfig locates the fallback SQLite store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig controls Prometheus collection.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace,omitempty"`
	// Textfile is where one-shot commands write their metrics in the
	// node_exporter textfile format.
	Textfile string `yaml:"textfile,omitempty"`
}

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		// No config found - return defaults
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
	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Namespace == "" {
		c.Namespace = vocab.EntityNamespace
	}
	if c.DefaultStore == "" {
		c.DefaultStore = "default"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./quadmap.db"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "quadmap"
	}
}

// Validate rejects values the process cannot start with.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Namespace != "" && !strings.HasSuffix(c.Namespace, "/") && !strings.HasSuffix(c.Namespace, "#") {
		return fmt.Errorf("namespace %q must end with '/' or '#'", c.Namespace)
	}
	return nil
}

// ParseLevel maps a log level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	repos := c.Repositories
	if repos == "" {
		repos = "(single store at " + c.Database.Path + ")"
	}
	summary := fmt.Sprintf("Repositories: %s, default store: %s\n", repos, c.DefaultStore)
	summary += fmt.Sprintf("Log level: %s, metrics: %t", c.LogLevel, c.Metrics.Enabled)
	return summary
}
