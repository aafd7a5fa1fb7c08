// Package config provides configuration loading and validation for the
// attraction sync client.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	// API holds the remote backend settings.
	API APIConfig `yaml:"api"`

	// Database holds the local cache settings.
	Database DatabaseConfig `yaml:"database"`

	// Sync holds delta-sync tuning.
	Sync SyncConfig `yaml:"sync"`

	// Session holds token lifecycle tuning.
	Session SessionConfig `yaml:"session"`

	// Reactions holds the optimistic-update policy.
	Reactions ReactionConfig `yaml:"reactions"`

	// Connectivity holds probe settings.
	Connectivity ConnectivityConfig `yaml:"connectivity"`
}

// APIConfig defines the remote backend settings.
type APIConfig struct {
	// BaseURL is the backend root, e.g. https://api.example.org
	BaseURL string `yaml:"baseUrl"`

	// RequestTimeout is the total budget for one HTTP attempt. Generous
	// defaults suit high-latency cellular links.
	RequestTimeout time.Duration `yaml:"requestTimeout,omitempty"`

	// MaxTries is the total attempt budget for retryable calls.
	MaxTries uint `yaml:"maxTries,omitempty"`

	// BackoffBase is the initial retry delay; it doubles per attempt.
	BackoffBase time.Duration `yaml:"backoffBase,omitempty"`

	// BackoffMax caps the retry delay.
	BackoffMax time.Duration `yaml:"backoffMax,omitempty"`
}

// DatabaseConfig defines the local cache settings.
type DatabaseConfig struct {
	// DataDir is where the SQLite cache lives.
	DataDir string `yaml:"dataDir"`
}

// SyncConfig defines delta-sync tuning.
type SyncConfig struct {
	// ChunkSize bounds how many fetched records are applied per batch.
	ChunkSize int `yaml:"chunkSize,omitempty"`

	// Tombstones toggles tombstone consumption for attractions. Enabled
	// by default.
	Tombstones *bool `yaml:"tombstones,omitempty"`

	// ReviewStaleness is the per-attraction cache freshness window.
	ReviewStaleness time.Duration `yaml:"reviewStaleness,omitempty"`

	// ResetDelay is how long terminal orchestrator states stay visible.
	ResetDelay time.Duration `yaml:"resetDelay,omitempty"`
}

// SessionConfig defines token lifecycle tuning.
type SessionConfig struct {
	// RefreshMargin is how long before expiry a proactive refresh starts.
	RefreshMargin time.Duration `yaml:"refreshMargin,omitempty"`
}

// ReactionConfig defines the optimistic-update policy.
type ReactionConfig struct {
	// RollbackOnFailure restores the previous local state when the
	// background submission fails. Off by default: responsiveness wins,
	// and the next sync reconciles counters from the server aggregate.
	RollbackOnFailure bool `yaml:"rollbackOnFailure,omitempty"`
}

// ConnectivityConfig defines probe settings.
type ConnectivityConfig struct {
	// ProbeAddress is the host:port dialed to check reachability.
	ProbeAddress string `yaml:"probeAddress,omitempty"`
}

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		cfg.path = realPath
		return nil
	}
}

// Load reads, defaults, and validates the configuration.
func Load(opts ...Option) (*Config, error) {
	loader := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loader); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if loader.path != "" {
		data, err := os.ReadFile(loader.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every tunable at its default.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.API.RequestTimeout == 0 {
		c.API.RequestTimeout = 30 * time.Second
	}
	if c.API.MaxTries == 0 {
		c.API.MaxTries = 3
	}
	if c.API.BackoffBase == 0 {
		c.API.BackoffBase = 500 * time.Millisecond
	}
	if c.API.BackoffMax == 0 {
		c.API.BackoffMax = 10 * time.Second
	}
	if c.Database.DataDir == "" {
		c.Database.DataDir = defaultDataDir()
	}
	if c.Sync.ChunkSize == 0 {
		c.Sync.ChunkSize = 50
	}
	if c.Sync.Tombstones == nil {
		enabled := true
		c.Sync.Tombstones = &enabled
	}
	if c.Sync.ReviewStaleness == 0 {
		c.Sync.ReviewStaleness = 5 * time.Minute
	}
	if c.Sync.ResetDelay == 0 {
		c.Sync.ResetDelay = 3 * time.Second
	}
	if c.Session.RefreshMargin == 0 {
		c.Session.RefreshMargin = 60 * time.Second
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.baseUrl is required")
	}
	parsed, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("api.baseUrl is not a valid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("api.baseUrl must use http or https, got %q", parsed.Scheme)
	}
	if c.Sync.ChunkSize < 0 {
		return fmt.Errorf("sync.chunkSize must be positive")
	}
	if c.API.BackoffBase > c.API.BackoffMax {
		return fmt.Errorf("api.backoffBase must not exceed api.backoffMax")
	}
	return nil
}

func defaultDataDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "adyggis")
}
