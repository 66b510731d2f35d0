package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/rendercrawl/pkg/browser"
	"github.com/entrhq/rendercrawl/pkg/crawl"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "0.0.0.0:3000", cfg.Server.Addr)
	assert.Equal(t, 10, cfg.Browser.MaxPages)
	assert.Equal(t, 5*time.Minute, cfg.Browser.AdmissionTimeout)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, browser.DefaultLaunchArgs, cfg.Browser.Args)
	assert.Equal(t, 3, cfg.Crawl.NavigationAttempts)
	assert.Equal(t, time.Second, cfg.Crawl.RetryDelay)
	assert.Equal(t, 30*time.Second, cfg.Crawl.NavigationTimeout)
	assert.Equal(t, 60*time.Second, cfg.Crawl.PageTimeout)
	assert.Equal(t, "networkidle", cfg.Crawl.WaitUntil)
	assert.Equal(t, crawl.DefaultUserAgent, cfg.Crawl.UserAgent)
	assert.Equal(t, "normal", cfg.Logging.Verbosity)
	assert.True(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Tracing.Enabled)

	require.NoError(t, cfg.Validate())
}

func TestDefaultConfig_ArgsAreCopied(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Browser.Args[0] = "--changed"
	assert.NotEqual(t, "--changed", browser.DefaultLaunchArgs[0])
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "empty address",
			mutate:  func(c *Config) { c.Server.Addr = "" },
			wantErr: "server address is required",
		},
		{
			name:    "negative max connections",
			mutate:  func(c *Config) { c.Server.MaxConnections = -1 },
			wantErr: "max_connections cannot be negative",
		},
		{
			name:    "rate limit without burst",
			mutate:  func(c *Config) { c.Server.RateLimit = 5; c.Server.RateBurst = 0 },
			wantErr: "rate_burst must be at least 1",
		},
		{
			name:    "zero max pages",
			mutate:  func(c *Config) { c.Browser.MaxPages = 0 },
			wantErr: "max_pages must be at least 1",
		},
		{
			name:    "zero admission timeout",
			mutate:  func(c *Config) { c.Browser.AdmissionTimeout = 0 },
			wantErr: "admission_timeout must be positive",
		},
		{
			name:    "zero navigation attempts",
			mutate:  func(c *Config) { c.Crawl.NavigationAttempts = 0 },
			wantErr: "navigation_attempts must be at least 1",
		},
		{
			name:    "negative retry delay",
			mutate:  func(c *Config) { c.Crawl.RetryDelay = -time.Second },
			wantErr: "retry_delay cannot be negative",
		},
		{
			name:    "unknown wait until",
			mutate:  func(c *Config) { c.Crawl.WaitUntil = "idle" },
			wantErr: "invalid wait_until: idle",
		},
		{
			name:    "bad host pattern",
			mutate:  func(c *Config) { c.Crawl.DeniedHosts = []string{"[oops"} },
			wantErr: "invalid denied host pattern",
		},
		{
			name:    "unknown verbosity",
			mutate:  func(c *Config) { c.Logging.Verbosity = "loud" },
			wantErr: "invalid logging verbosity: loud",
		},
		{
			name:    "relative metrics path",
			mutate:  func(c *Config) { c.Metrics.Path = "metrics" },
			wantErr: "metrics path must start with '/'",
		},
		{
			name:   "metrics path ignored when disabled",
			mutate: func(c *Config) { c.Metrics.Enabled = false; c.Metrics.Path = "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_Validate_DefaultsVerbosity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Verbosity = ""
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "normal", cfg.Logging.Verbosity)
}

func TestParse(t *testing.T) {
	data := []byte(`
server:
  addr: 127.0.0.1:8080
  rate_limit: 2.5
  rate_burst: 5
browser:
  max_pages: 4
  admission_timeout: 30s
  args: ["--no-sandbox"]
crawl:
  retry_delay: 250ms
  wait_until: load
  denied_hosts:
    - localhost
logging:
  verbosity: debug
tracing:
  enabled: true
`)

	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	assert.Equal(t, 2.5, cfg.Server.RateLimit)
	assert.Equal(t, 5, cfg.Server.RateBurst)
	assert.Equal(t, 4, cfg.Browser.MaxPages)
	assert.Equal(t, 30*time.Second, cfg.Browser.AdmissionTimeout)
	assert.Equal(t, []string{"--no-sandbox"}, cfg.Browser.Args)
	assert.Equal(t, 250*time.Millisecond, cfg.Crawl.RetryDelay)
	assert.Equal(t, "load", cfg.Crawl.WaitUntil)
	assert.Equal(t, []string{"localhost"}, cfg.Crawl.DeniedHosts)
	assert.Equal(t, "debug", cfg.Logging.Verbosity)
	assert.True(t, cfg.Tracing.Enabled)

	// Untouched fields keep their defaults
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 3, cfg.Crawl.NavigationAttempts)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("browser:\n  max_page: 3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestParse_BadDuration(t *testing.T) {
	_, err := Parse([]byte("crawl:\n  retry_delay: soon\n"))
	require.Error(t, err)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rendercrawl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("browser:\n  max_pages: 4\nserver:\n  addr: 127.0.0.1:9000\n"), 0600))
	t.Setenv("RENDERCRAWL_MAX_PAGES", "7")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Browser.MaxPages, "environment wins over the file")
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:3000", cfg.Server.Addr)
}

func TestLoad_InvalidAfterEnv(t *testing.T) {
	t.Setenv("RENDERCRAWL_MAX_PAGES", "0")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}
