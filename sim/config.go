package sim

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RetryPolicy bounds transport reconnection. Intervals are in milliseconds
// so the struct round-trips through YAML cleanly.
type RetryPolicy struct {
	MaxAttempts       int     `yaml:"max_attempts"`        // reconnect attempts before the session is declared lost (must be > 0)
	InitialIntervalMs int     `yaml:"initial_interval_ms"` // delay before the first retry
	MaxIntervalMs     int     `yaml:"max_interval_ms"`     // cap on the backoff delay
	Multiplier        float64 `yaml:"multiplier"`          // backoff growth factor (default 2.0)
}

// DefaultRetryPolicy returns the default bounded backoff: 5 attempts,
// 100ms initial delay doubling up to 5s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       5,
		InitialIntervalMs: 100,
		MaxIntervalMs:     5000,
		Multiplier:        2.0,
	}
}

// Interval returns the backoff delay before retry attempt (1-based).
func (p RetryPolicy) Interval(attempt int) time.Duration {
	d := float64(p.InitialIntervalMs)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
	}
	if limit := float64(p.MaxIntervalMs); d > limit {
		d = limit
	}
	return time.Duration(d) * time.Millisecond
}

// Config groups the session parameters for one Simulator.
type Config struct {
	Brain      string      `yaml:"brain"`                 // brain name on the service the session attaches to
	Name       string      `yaml:"name"`                  // simulator name; must match the declared interaction contract
	URL        string      `yaml:"url"`                   // brain service base URL (e.g. "http://localhost:9000")
	Predict    bool        `yaml:"predict"`               // predict mode: no training parameters, rewards not required
	RecordFile string      `yaml:"record_file,omitempty"` // initial record sink path (optional)
	Retry      RetryPolicy `yaml:"retry"`                 // transport reconnect policy
}

// NewConfig returns a config with the default retry policy.
func NewConfig(brain, name, url string) *Config {
	return &Config{
		Brain: brain,
		Name:  name,
		URL:   url,
		Retry: DefaultRetryPolicy(),
	}
}

// LoadConfig reads a YAML config file. Retry fields left zero fall back to
// the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &Config{Retry: DefaultRetryPolicy()}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	cfg.applyRetryDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyRetryDefaults() {
	def := DefaultRetryPolicy()
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = def.MaxAttempts
	}
	if c.Retry.InitialIntervalMs == 0 {
		c.Retry.InitialIntervalMs = def.InitialIntervalMs
	}
	if c.Retry.MaxIntervalMs == 0 {
		c.Retry.MaxIntervalMs = def.MaxIntervalMs
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = def.Multiplier
	}
}

// Validate checks the fields a session cannot run without.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("config: simulator name is required")
	}
	if c.URL == "" {
		return fmt.Errorf("config: brain service URL is required")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("config: retry max_attempts must be positive, got %d", c.Retry.MaxAttempts)
	}
	return nil
}
