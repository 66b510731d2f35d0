// Package config loads rendercrawl's configuration from a YAML file, .env
// files and RENDERCRAWL_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/rendercrawl/pkg/browser"
	"github.com/entrhq/rendercrawl/pkg/crawl"
)

// Config is the complete service configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" json:"server"`
	Browser BrowserConfig `yaml:"browser" json:"browser"`
	Crawl   CrawlConfig   `yaml:"crawl" json:"crawl"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

// ServerConfig defines the HTTP listener
type ServerConfig struct {
	Addr              string        `yaml:"addr" json:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" json:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// MaxConnections caps concurrently accepted connections; 0 disables the cap
	MaxConnections int `yaml:"max_connections" json:"max_connections"`

	// RateLimit is the sustained /crawl request rate per second; 0 disables limiting
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit"`
	RateBurst int     `yaml:"rate_burst" json:"rate_burst"`
}

// BrowserConfig defines the shared browser session
type BrowserConfig struct {
	MaxPages         int           `yaml:"max_pages" json:"max_pages"`
	AdmissionTimeout time.Duration `yaml:"admission_timeout" json:"admission_timeout"`
	Headless         bool          `yaml:"headless" json:"headless"`
	Args             []string      `yaml:"args" json:"args"`

	// SkipInstall assumes the Playwright driver and Chromium are preinstalled
	SkipInstall bool `yaml:"skip_install" json:"skip_install"`
}

// CrawlConfig defines per-crawl behaviour
type CrawlConfig struct {
	NavigationAttempts int           `yaml:"navigation_attempts" json:"navigation_attempts"`
	RetryDelay         time.Duration `yaml:"retry_delay" json:"retry_delay"`
	NavigationTimeout  time.Duration `yaml:"navigation_timeout" json:"navigation_timeout"`
	PageTimeout        time.Duration `yaml:"page_timeout" json:"page_timeout"`
	WaitUntil          string        `yaml:"wait_until" json:"wait_until"`
	UserAgent          string        `yaml:"user_agent" json:"user_agent"`
	AllowedHosts       []string      `yaml:"allowed_hosts" json:"allowed_hosts"`
	DeniedHosts        []string      `yaml:"denied_hosts" json:"denied_hosts"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Verbosity controls logging level: quiet, normal, verbose, debug
	Verbosity string `yaml:"verbosity" json:"verbosity"`

	// Dir enables JSON file logging into this directory
	Dir string `yaml:"dir" json:"dir"`
}

// MetricsConfig defines the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// TracingConfig defines OpenTelemetry span export
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	ServiceName string `yaml:"service_name" json:"service_name"`
	PrettyPrint bool   `yaml:"pretty_print" json:"pretty_print"`
}

// DefaultConfig returns a default configuration suitable for most use cases
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              "0.0.0.0:3000",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   30 * time.Second,
			RateBurst:         10,
		},
		Browser: BrowserConfig{
			MaxPages:         browser.DefaultMaxPages,
			AdmissionTimeout: browser.DefaultAdmissionTimeout,
			Headless:         true,
			Args:             append([]string(nil), browser.DefaultLaunchArgs...),
		},
		Crawl: CrawlConfig{
			NavigationAttempts: crawl.DefaultNavigationAttempts,
			RetryDelay:         crawl.DefaultRetryDelay,
			NavigationTimeout:  crawl.DefaultNavigationTimeout,
			PageTimeout:        crawl.DefaultPageTimeout,
			WaitUntil:          browser.WaitUntilNetworkIdle,
			UserAgent:          crawl.DefaultUserAgent,
		},
		Logging: LoggingConfig{
			Verbosity: "normal",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			ServiceName: "rendercrawl",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server address is required")
	}
	if c.Server.MaxConnections < 0 {
		return fmt.Errorf("max_connections cannot be negative")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("rate_limit cannot be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		return fmt.Errorf("rate_burst must be at least 1 when rate_limit is set")
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout cannot be negative")
	}

	if c.Browser.MaxPages < 1 {
		return fmt.Errorf("max_pages must be at least 1")
	}
	if c.Browser.AdmissionTimeout <= 0 {
		return fmt.Errorf("admission_timeout must be positive")
	}

	if c.Crawl.NavigationAttempts < 1 {
		return fmt.Errorf("navigation_attempts must be at least 1")
	}
	if c.Crawl.RetryDelay < 0 {
		return fmt.Errorf("retry_delay cannot be negative")
	}
	if c.Crawl.NavigationTimeout <= 0 {
		return fmt.Errorf("navigation_timeout must be positive")
	}
	if c.Crawl.PageTimeout <= 0 {
		return fmt.Errorf("page_timeout must be positive")
	}

	validWaitUntil := map[string]bool{
		browser.WaitUntilLoad:             true,
		browser.WaitUntilDOMContentLoaded: true,
		browser.WaitUntilNetworkIdle:      true,
		browser.WaitUntilCommit:           true,
	}
	if !validWaitUntil[c.Crawl.WaitUntil] {
		return fmt.Errorf("invalid wait_until: %s (must be 'load', 'domcontentloaded', 'networkidle', or 'commit')", c.Crawl.WaitUntil)
	}
	if _, err := crawl.NewHostPolicy(c.Crawl.AllowedHosts, c.Crawl.DeniedHosts); err != nil {
		return err
	}

	// Set default verbosity if not specified
	if c.Logging.Verbosity == "" {
		c.Logging.Verbosity = "normal"
	}

	validLevels := map[string]bool{
		"quiet":   true,
		"normal":  true,
		"verbose": true,
		"debug":   true,
	}
	if !validLevels[c.Logging.Verbosity] {
		return fmt.Errorf("invalid logging verbosity: %s (must be 'quiet', 'normal', 'verbose', or 'debug')", c.Logging.Verbosity)
	}

	if c.Metrics.Enabled && (c.Metrics.Path == "" || c.Metrics.Path[0] != '/') {
		return fmt.Errorf("metrics path must start with '/'")
	}

	return nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// LoadFile reads a YAML config file over the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (if any), then RENDERCRAWL_* environment overrides. The result is
// validated.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
