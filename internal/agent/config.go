package agent

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/brickdash/internal/csvlog"
	"github.com/ethpandaops/brickdash/internal/dashboard"
	"github.com/ethpandaops/brickdash/internal/export"
	"github.com/ethpandaops/brickdash/internal/plc"
	"github.com/ethpandaops/brickdash/internal/poller"
)

// EnvEndpoint overrides plc.endpoint when set.
const EnvEndpoint = "BRICKDASH_URL"

// Config is the top-level configuration for brickdash.
type Config struct {
	// LogLevel sets the logging verbosity (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// PLC configures the counter endpoint.
	PLC plc.Config `yaml:"plc"`

	// Poller configures the poll loop.
	Poller poller.Config `yaml:"poller"`

	// Log configures the daily CSV log.
	Log csvlog.Config `yaml:"log"`

	// Dashboard configures the HTML dashboard.
	Dashboard dashboard.Config `yaml:"dashboard"`

	// Health configures the optional Prometheus metrics listener.
	// Disabled unless addr is set.
	Health export.HealthConfig `yaml:"health"`

	// ShutdownTimeout bounds how long Stop waits for the poller.
	// Defaults to 5s.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		PLC: plc.Config{
			Endpoint: plc.DefaultEndpoint,
			Timeout:  plc.DefaultTimeout,
		},
		Poller: poller.Config{
			Interval: poller.DefaultInterval,
		},
		Log: csvlog.Config{
			Dir: csvlog.DefaultDir(),
		},
		Dashboard: dashboard.Config{
			Interval: dashboard.DefaultInterval,
			Points:   dashboard.DefaultPoints,
			Buckets:  dashboard.DefaultBuckets,
		},
		ShutdownTimeout: 5 * time.Second,
	}
}

// LoadConfig builds the configuration from defaults, the optional YAML
// file at path and the environment, then validates it. An empty path
// skips the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// ApplyEnv applies environment overrides using lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvEndpoint); ok && v != "" {
		c.PLC.Endpoint = v
	}
}

// Validate checks the configuration and fills derived defaults. The
// fetch timeout is clamped below the poll interval.
func (c *Config) Validate() error {
	if c.PLC.Endpoint == "" {
		return errors.New("plc.endpoint is required")
	}

	u, err := url.Parse(c.PLC.Endpoint)
	if err != nil {
		return fmt.Errorf("plc.endpoint: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("plc.endpoint must be an http(s) URL, got %q", c.PLC.Endpoint)
	}

	if c.Poller.Interval <= 0 {
		return errors.New("poller.interval must be positive")
	}

	if c.PLC.Timeout <= 0 {
		c.PLC.Timeout = plc.DefaultTimeout
	}

	if c.PLC.Timeout >= c.Poller.Interval {
		c.PLC.Timeout = c.Poller.Interval / 2
	}

	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown_timeout must be positive")
	}

	if c.Log.Dir == "" {
		c.Log.Dir = csvlog.DefaultDir()
	}

	if c.Dashboard.Path == "" {
		c.Dashboard.Path = filepath.Join(c.Log.Dir, dashboard.DefaultFileName)
	}

	c.Dashboard.ApplyDefaults()

	return nil
}
