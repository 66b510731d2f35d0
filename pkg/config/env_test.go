package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.ApplyEnv(lookupFrom(map[string]string{
		"RENDERCRAWL_ADDR":                "127.0.0.1:4000",
		"RENDERCRAWL_MAX_CONNECTIONS":     "64",
		"RENDERCRAWL_RATE_LIMIT":          "0.5",
		"RENDERCRAWL_MAX_PAGES":           "3",
		"RENDERCRAWL_ADMISSION_TIMEOUT":   "45s",
		"RENDERCRAWL_HEADLESS":            "false",
		"RENDERCRAWL_SKIP_INSTALL":        "true",
		"RENDERCRAWL_NAVIGATION_ATTEMPTS": "5",
		"RENDERCRAWL_RETRY_DELAY":         "2s",
		"RENDERCRAWL_ALLOWED_HOSTS":       "example.com, *.example.org ,",
		"RENDERCRAWL_LOG_VERBOSITY":       "quiet",
		"RENDERCRAWL_METRICS_ENABLED":     "0",
		"RENDERCRAWL_TRACING_ENABLED":     "1",
	}))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:4000", cfg.Server.Addr)
	assert.Equal(t, 64, cfg.Server.MaxConnections)
	assert.Equal(t, 0.5, cfg.Server.RateLimit)
	assert.Equal(t, 3, cfg.Browser.MaxPages)
	assert.Equal(t, 45*time.Second, cfg.Browser.AdmissionTimeout)
	assert.False(t, cfg.Browser.Headless)
	assert.True(t, cfg.Browser.SkipInstall)
	assert.Equal(t, 5, cfg.Crawl.NavigationAttempts)
	assert.Equal(t, 2*time.Second, cfg.Crawl.RetryDelay)
	assert.Equal(t, []string{"example.com", "*.example.org"}, cfg.Crawl.AllowedHosts)
	assert.Equal(t, "quiet", cfg.Logging.Verbosity)
	assert.False(t, cfg.Metrics.Enabled)
	assert.True(t, cfg.Tracing.Enabled)
}

func TestApplyEnv_BlankValuesIgnored(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv(lookupFrom(map[string]string{
		"RENDERCRAWL_ADDR":      "  ",
		"RENDERCRAWL_MAX_PAGES": "",
	})))
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestApplyEnv_ReportsEveryBadValue(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.ApplyEnv(lookupFrom(map[string]string{
		"RENDERCRAWL_MAX_PAGES":   "many",
		"RENDERCRAWL_HEADLESS":    "sometimes",
		"RENDERCRAWL_RETRY_DELAY": "1 second",
		"RENDERCRAWL_ADDR":        "127.0.0.1:1",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RENDERCRAWL_MAX_PAGES")
	assert.Contains(t, err.Error(), "RENDERCRAWL_HEADLESS")
	assert.Contains(t, err.Error(), "RENDERCRAWL_RETRY_DELAY")

	// Valid values are still applied, invalid ones leave the field alone
	assert.Equal(t, "127.0.0.1:1", cfg.Server.Addr)
	assert.Equal(t, 10, cfg.Browser.MaxPages)
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("RENDERCRAWL_TEST_FROM_FILE=file\nRENDERCRAWL_TEST_PRESET=file\n"), 0600))

	t.Setenv("RENDERCRAWL_TEST_PRESET", "process")
	t.Setenv("RENDERCRAWL_TEST_FROM_FILE", "")
	require.NoError(t, os.Unsetenv("RENDERCRAWL_TEST_FROM_FILE"))

	loaded, err := LoadEnvFiles(envFile, filepath.Join(dir, ".env.missing"))
	require.NoError(t, err)

	assert.Equal(t, []string{envFile}, loaded)
	assert.Equal(t, "file", os.Getenv("RENDERCRAWL_TEST_FROM_FILE"))
	assert.Equal(t, "process", os.Getenv("RENDERCRAWL_TEST_PRESET"), "process environment wins")
}
