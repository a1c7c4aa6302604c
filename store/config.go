package store

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

const defaultWaitTimeout = 10 * time.Minute

// Config holds store-wide defaults: the deadline applied to wait primitives
// when no per-call timeout is given, the retry defaults merged under each
// action's RetryPolicy, and the name of the observability observer to
// resolve from the registry when none is injected directly.
type Config struct {
	WaitTimeout time.Duration `json:"wait_timeout,omitempty" env:"WAIT_TIMEOUT"`
	Retry       RetryOptions  `json:"retry,omitempty" envPrefix:"RETRY_"`
	Observer    string        `json:"observer,omitempty" env:"OBSERVER"`
}

// DefaultConfig returns a Config with the package defaults: a 10 minute
// wait deadline, 350ms/x2/3-retries/5s-cap backoff, and the noop observer.
func DefaultConfig() Config {
	return Config{
		WaitTimeout: defaultWaitTimeout,
		Retry: RetryOptions{
			InitialDelay: defaultRetryInitialDelay,
			Multiplier:   defaultRetryMultiplier,
			MaxRetries:   defaultRetryMaxRetries,
			MaxDelay:     defaultRetryMaxDelay,
		},
		Observer: "noop",
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.WaitTimeout > 0 {
		c.WaitTimeout = source.WaitTimeout
	}
	c.Retry = source.Retry.withDefaults(c.Retry)
	if source.Observer != "" {
		c.Observer = source.Observer
	}
}

// LoadConfig reads a JSON config file, merges it with defaults, and returns
// the resulting Config.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}

// ConfigFromEnv returns the defaults overridden by STATELOOP_* environment
// variables (STATELOOP_WAIT_TIMEOUT, STATELOOP_OBSERVER, and the
// STATELOOP_RETRY_* family).
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "STATELOOP_"}); err != nil {
		return cfg, fmt.Errorf("failed to parse env config: %w", err)
	}
	return cfg, nil
}
