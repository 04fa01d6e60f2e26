// Package config loads the daemon configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level daemon configuration.
type Config struct {
	// Listen is the HTTP API address.
	Listen string `yaml:"listen"`

	// DB is the SQLite preferences database path.
	DB string `yaml:"db"`

	Browser     BrowserConfig     `yaml:"browser"`
	Agent       AgentConfig       `yaml:"agent"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`

	// Pages are attached at startup.
	Pages []PageConfig `yaml:"pages"`

	// Domains seeds per-domain enablement rules.
	Domains []DomainRule `yaml:"domains"`
}

// BrowserConfig configures the Chrome connection.
type BrowserConfig struct {
	// Remote is the WebSocket URL of an external Chrome. Empty launches
	// a local one.
	Remote          string        `yaml:"remote"`
	Headful         bool          `yaml:"headful"`
	NavigateTimeout time.Duration `yaml:"navigate_timeout"`
	RecycleInterval time.Duration `yaml:"recycle_interval"`
}

// AgentConfig carries the per-page agent timing knobs.
type AgentConfig struct {
	RefreshThrottle     time.Duration `yaml:"refresh_throttle"`
	EmptyRetry          time.Duration `yaml:"empty_retry"`
	Debounce            time.Duration `yaml:"debounce"`
	Sweep               time.Duration `yaml:"sweep"`
	AutoRefreshEvery    time.Duration `yaml:"auto_refresh_every"`
	AutoRefreshAttempts int           `yaml:"auto_refresh_attempts"`
	InteractionReset    time.Duration `yaml:"interaction_reset"`
	SizeDelta           int           `yaml:"size_delta"`
	MaxLevel            int           `yaml:"max_level"`
}

// CoordinatorConfig configures injection behaviour.
type CoordinatorConfig struct {
	SettleDelay time.Duration `yaml:"settle_delay"`
}

// PageConfig is one page to attach at startup.
type PageConfig struct {
	URL string `yaml:"url"`
}

// DomainRule is a per-domain enablement override.
type DomainRule struct {
	Domain  string `yaml:"domain"`
	Allowed bool   `yaml:"allowed"`
}

// LoadFile reads and validates a YAML config file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8745"
	}
	if c.DB == "" {
		c.DB = "gentoc.db"
	}
	if c.Browser.NavigateTimeout <= 0 {
		c.Browser.NavigateTimeout = 30 * time.Second
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Agent.RefreshThrottle <= 0 {
		c.Agent.RefreshThrottle = 500 * time.Millisecond
	}
	if c.Agent.EmptyRetry <= 0 {
		c.Agent.EmptyRetry = 1500 * time.Millisecond
	}
	if c.Agent.Debounce <= 0 {
		c.Agent.Debounce = 2 * time.Second
	}
	if c.Agent.Sweep <= 0 {
		c.Agent.Sweep = 2 * time.Second
	}
	if c.Agent.AutoRefreshEvery <= 0 {
		c.Agent.AutoRefreshEvery = 3 * time.Second
	}
	if c.Agent.AutoRefreshAttempts <= 0 {
		c.Agent.AutoRefreshAttempts = 3
	}
	if c.Agent.InteractionReset <= 0 {
		c.Agent.InteractionReset = 10 * time.Second
	}
	if c.Agent.SizeDelta <= 0 {
		c.Agent.SizeDelta = 100
	}
	if c.Agent.MaxLevel <= 0 {
		c.Agent.MaxLevel = 3
	}
	if c.Coordinator.SettleDelay <= 0 {
		c.Coordinator.SettleDelay = 300 * time.Millisecond
	}
}
