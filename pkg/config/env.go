package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RENDERCRAWL_"

// LookupFunc reports the value of an environment variable. os.LookupEnv
// satisfies it.
type LookupFunc func(key string) (string, bool)

// LoadEnvFiles loads the given .env files into the process environment.
// Variables already set in the environment win. Missing files are skipped;
// the names of the files actually loaded are returned.
func LoadEnvFiles(files ...string) ([]string, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	loaded := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return loaded, fmt.Errorf("failed to load %s: %w", file, err)
		}
		loaded = append(loaded, file)
	}
	return loaded, nil
}

// ApplyEnv overrides fields from RENDERCRAWL_* variables. Every malformed
// value is reported; valid ones are still applied.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	e := envReader{lookup: lookup}

	e.str("ADDR", &c.Server.Addr)
	e.integer("MAX_CONNECTIONS", &c.Server.MaxConnections)
	e.float("RATE_LIMIT", &c.Server.RateLimit)
	e.integer("RATE_BURST", &c.Server.RateBurst)
	e.duration("SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)

	e.integer("MAX_PAGES", &c.Browser.MaxPages)
	e.duration("ADMISSION_TIMEOUT", &c.Browser.AdmissionTimeout)
	e.boolean("HEADLESS", &c.Browser.Headless)
	e.boolean("SKIP_INSTALL", &c.Browser.SkipInstall)

	e.integer("NAVIGATION_ATTEMPTS", &c.Crawl.NavigationAttempts)
	e.duration("RETRY_DELAY", &c.Crawl.RetryDelay)
	e.duration("NAVIGATION_TIMEOUT", &c.Crawl.NavigationTimeout)
	e.duration("PAGE_TIMEOUT", &c.Crawl.PageTimeout)
	e.str("WAIT_UNTIL", &c.Crawl.WaitUntil)
	e.str("USER_AGENT", &c.Crawl.UserAgent)
	e.list("ALLOWED_HOSTS", &c.Crawl.AllowedHosts)
	e.list("DENIED_HOSTS", &c.Crawl.DeniedHosts)

	e.str("LOG_VERBOSITY", &c.Logging.Verbosity)
	e.str("LOG_DIR", &c.Logging.Dir)

	e.boolean("METRICS_ENABLED", &c.Metrics.Enabled)
	e.str("METRICS_PATH", &c.Metrics.Path)

	e.boolean("TRACING_ENABLED", &c.Tracing.Enabled)
	e.str("TRACING_SERVICE_NAME", &c.Tracing.ServiceName)

	return errors.Join(e.errs...)
}

type envReader struct {
	lookup LookupFunc
	errs   []error
}

func (e *envReader) get(name string) (string, bool) {
	v, ok := e.lookup(EnvPrefix + name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envReader) fail(name, value string, err error) {
	e.errs = append(e.errs, fmt.Errorf("invalid %s%s=%q: %w", EnvPrefix, name, value, err))
}

func (e *envReader) str(name string, dst *string) {
	if v, ok := e.get(name); ok {
		*dst = v
	}
}

func (e *envReader) list(name string, dst *[]string) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

func (e *envReader) integer(name string, dst *int) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(name, v, err)
		return
	}
	*dst = n
}

func (e *envReader) float(name string, dst *float64) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(name, v, err)
		return
	}
	*dst = f
}

func (e *envReader) boolean(name string, dst *bool) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(name, v, err)
		return
	}
	*dst = b
}

func (e *envReader) duration(name string, dst *time.Duration) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(name, v, err)
		return
	}
	*dst = d
}
