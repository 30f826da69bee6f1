// Package config loads agentgraph settings from YAML with environment
// overrides.
//
// Resolution order is defaults, then the YAML file (if any), then the
// AGENTGRAPH_* environment variables. Durations use Go syntax ("250ms", "5s").
//
// Example bureau-style file:
//
//	endpoint: sqlite:///var/lib/agentgraph/kb.db
//	wait_time: 5s
//	poll_interval: 100ms
//	log:
//	  level: info
//	  format: json
//	  backend: zap
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentgraph/action"
	"github.com/hupe1980/agentgraph/logging"
	"github.com/hupe1980/agentgraph/server"
	"github.com/hupe1980/agentgraph/store"
)

// Environment variables consulted by ApplyEnv.
const (
	EnvEndpoint     = "AGENTGRAPH_ENDPOINT"
	EnvWaitTime     = "AGENTGRAPH_WAIT_TIME"
	EnvPollInterval = "AGENTGRAPH_POLL_INTERVAL"
	EnvLogLevel     = "AGENTGRAPH_LOG_LEVEL"
)

// Log backends.
const (
	BackendSlog = "slog"
	BackendZap  = "zap"
)

// Config is the top-level configuration.
type Config struct {
	// Endpoint names the knowledge store, e.g. "memory://" or
	// "sqlite:///path/to/kb.db".
	Endpoint string `yaml:"endpoint"`

	// WaitTime bounds how long ExecuteAgent waits for an action to finish.
	// Zero means do not wait.
	WaitTime time.Duration `yaml:"wait_time"`

	// PollInterval is the granularity of action waits.
	PollInterval time.Duration `yaml:"poll_interval"`

	// Log configures the logger built by NewLogger.
	Log LogConfig `yaml:"log"`
}

// LogConfig selects level, encoding and backend of the logger.
type LogConfig struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`  // json or text
	Backend string `yaml:"backend"` // slog or zap
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Endpoint:     store.DefaultEndpoint,
		WaitTime:     action.DefaultWaitTime,
		PollInterval: action.DefaultPollInterval,
		Log: LogConfig{
			Level:   "info",
			Format:  "json",
			Backend: BackendSlog,
		},
	}
}

// Load builds a configuration from defaults, the optional YAML file at path
// and the process environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile merges a YAML file into c.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, c)
}

// ApplyEnv overrides fields from environment variables found by lookup
// (normally os.LookupEnv). Empty values are ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvEndpoint); ok {
		c.Endpoint = v
	}

	if v, ok := get(EnvWaitTime); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvWaitTime, err)
		}
		c.WaitTime = d
	}

	if v, ok := get(EnvPollInterval); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPollInterval, err)
		}
		c.PollInterval = d
	}

	if v, ok := get(EnvLogLevel); ok {
		c.Log.Level = v
	}

	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if scheme, _, err := store.Parse(c.Endpoint); err != nil {
		errs = append(errs, fmt.Errorf("endpoint: %w", err))
	} else if scheme != store.SchemeMemory && scheme != store.SchemeSQLite {
		errs = append(errs, fmt.Errorf("endpoint: unsupported scheme %q", scheme))
	}

	if c.WaitTime < 0 {
		errs = append(errs, fmt.Errorf("wait_time must not be negative: %s", c.WaitTime))
	}

	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive: %s", c.PollInterval))
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	switch c.Log.Format {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text: %q", c.Log.Format))
	}

	switch c.Log.Backend {
	case "", BackendSlog, BackendZap:
	default:
		errs = append(errs, fmt.Errorf("log.backend must be slog or zap: %q", c.Log.Backend))
	}

	return errors.Join(errs...)
}

// NewLogger builds the logger described by c.Log. The slog backend yields a
// *logging.GraphLogger; the zap backend a *logging.ZapAdapter.
func (c *Config) NewLogger() (logging.Logger, error) {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}

	if c.Log.Backend == BackendZap {
		return logging.NewZapLogger(level, c.Log.Format)
	}

	return logging.NewSlogLogger(level, c.Log.Format, false), nil
}

// ServerOption applies the timing settings and logger to server options.
func (c *Config) ServerOption(logger logging.Logger) func(o *server.Options) {
	return func(o *server.Options) {
		o.WaitTime = c.WaitTime
		o.PollInterval = c.PollInterval
		if logger != nil {
			o.Logger = logger
		}
	}
}
