// Package config loads and validates recoforge's settings: per-backend
// rate limits, sampling tiers, retention, health-check cadence, and plan
// cache sizing. Loading follows the teacher's load -> apply-defaults ->
// validate pipeline, re-typed onto YAML instead of JSON.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default settings applied when a config file omits a field.
const (
	DefaultRateLimitCapacity   = 60
	DefaultRateLimitPeriod     = time.Minute
	DefaultRateLimitQueueSize  = 20
	DefaultHealthCheckInterval = 5 * time.Minute
	DefaultHistoryRetention    = 10 * time.Minute
	DefaultHistoryMinInterval  = 5 * time.Second
	DefaultPlanCacheTTL        = 10 * time.Minute
	DefaultPlanCacheCapacity   = 256
	DefaultFetchDeadline       = 120 * time.Second
)

// BackendConfig describes one configured generator backend.
type BackendConfig struct {
	ID             string        `yaml:"id"`
	Kind           string        `yaml:"kind"` // "local" or "cloud"
	Host           string        `yaml:"host,omitempty"`
	Model          string        `yaml:"model"`
	ContextTokens  int           `yaml:"context_tokens"`
	PromptCeiling  int           `yaml:"prompt_ceiling,omitempty"`
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`
}

// RateLimitConfig configures a single resource's token bucket.
type RateLimitConfig struct {
	Resource     string        `yaml:"resource"`
	Capacity     int           `yaml:"capacity"`
	Period       time.Duration `yaml:"period"`
	MaxQueueSize int           `yaml:"max_queue_size"`
	Timeout      time.Duration `yaml:"timeout"`
}

// Config is the root settings document.
type Config struct {
	Backends   []BackendConfig   `yaml:"backends"`
	RateLimits []RateLimitConfig `yaml:"rate_limits"`

	HealthCheckInterval time.Duration `yaml:"health_check_interval,omitempty"`
	HistoryRetention    time.Duration `yaml:"history_retention,omitempty"`
	HistoryMinInterval  time.Duration `yaml:"history_min_interval,omitempty"`
	PlanCacheTTL        time.Duration `yaml:"plan_cache_ttl,omitempty"`
	PlanCacheCapacity   int           `yaml:"plan_cache_capacity,omitempty"`
	FetchDeadline       time.Duration `yaml:"fetch_deadline,omitempty"`
}

// Load reads, defaults, and validates a YAML config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is an operator-supplied config location
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HealthCheckInterval == 0 {
		cfg.HealthCheckInterval = DefaultHealthCheckInterval
	}
	if cfg.HistoryRetention == 0 {
		cfg.HistoryRetention = DefaultHistoryRetention
	}
	if cfg.HistoryMinInterval == 0 {
		cfg.HistoryMinInterval = DefaultHistoryMinInterval
	}
	if cfg.PlanCacheTTL == 0 {
		cfg.PlanCacheTTL = DefaultPlanCacheTTL
	}
	if cfg.PlanCacheCapacity == 0 {
		cfg.PlanCacheCapacity = DefaultPlanCacheCapacity
	}
	if cfg.FetchDeadline == 0 {
		cfg.FetchDeadline = DefaultFetchDeadline
	}
	for i := range cfg.RateLimits {
		rl := &cfg.RateLimits[i]
		if rl.Capacity == 0 {
			rl.Capacity = DefaultRateLimitCapacity
		}
		if rl.Period == 0 {
			rl.Period = DefaultRateLimitPeriod
		}
		if rl.MaxQueueSize == 0 {
			rl.MaxQueueSize = DefaultRateLimitQueueSize
		}
	}
}

// Validate checks the config for internal consistency, returning the
// first violation found.
func (c *Config) Validate() error {
	if len(c.Backends) == 0 {
		return fmt.Errorf("config: at least one backend must be configured")
	}

	seen := make(map[string]struct{}, len(c.Backends))
	for _, b := range c.Backends {
		if b.ID == "" {
			return fmt.Errorf("config: backend entry missing id")
		}
		if _, dup := seen[b.ID]; dup {
			return fmt.Errorf("config: duplicate backend id %q", b.ID)
		}
		seen[b.ID] = struct{}{}

		switch b.Kind {
		case "local", "cloud":
		default:
			return fmt.Errorf("config: backend %q has unknown kind %q", b.ID, b.Kind)
		}
		if b.Kind == "local" && b.Host == "" {
			return fmt.Errorf("config: local backend %q missing host", b.ID)
		}
		if b.ContextTokens <= 0 {
			return fmt.Errorf("config: backend %q must set a positive context_tokens", b.ID)
		}
	}

	for _, rl := range c.RateLimits {
		if rl.Resource == "" {
			return fmt.Errorf("config: rate limit entry missing resource")
		}
		if rl.Capacity <= 0 {
			return fmt.Errorf("config: rate limit %q must have positive capacity", rl.Resource)
		}
		if rl.Period <= 0 {
			return fmt.Errorf("config: rate limit %q must have positive period", rl.Resource)
		}
	}
	return nil
}

// BackendByID finds a configured backend by id.
func (c *Config) BackendByID(id string) (BackendConfig, bool) {
	for _, b := range c.Backends {
		if b.ID == id {
			return b, true
		}
	}
	return BackendConfig{}, false
}
