package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/entrhq/rendercrawl/pkg/browser"
	"github.com/entrhq/rendercrawl/pkg/config"
	"github.com/entrhq/rendercrawl/pkg/crawl"
	"github.com/entrhq/rendercrawl/pkg/logging"
	"github.com/entrhq/rendercrawl/pkg/metrics"
	"github.com/entrhq/rendercrawl/pkg/telemetry"
)

// engineFactory builds the browser engine and the function that stops its
// driver. Tests replace it with an in-memory engine.
var engineFactory = func(cfg *config.Config, logger *logging.Logger) (browser.Engine, func() error) {
	engine := browser.NewPlaywrightEngine(
		browser.WithSkipInstall(cfg.Browser.SkipInstall),
		browser.WithDriverOutput(logger.Writer()),
	)
	return engine, engine.Stop
}

// app is the wired component graph shared by serve and crawl.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	loggers  []*logging.Logger
	manager  *browser.Manager
	crawler  *crawl.Crawler
	registry *prometheus.Registry
	tracing  *telemetry.TracerProvider

	stopEngine func() error
}

func newApp(cfg *config.Config) (*app, error) {
	logging.Configure(logging.Settings{Dir: cfg.Logging.Dir, Verbosity: cfg.Logging.Verbosity})

	a := &app{cfg: cfg}
	a.logger = a.componentLogger("rendercrawl")
	if path := a.logger.LogPath(); path != "" {
		a.logger.Infof("logging to %s", path)
	}

	tracing, err := telemetry.NewTracerProvider(telemetry.Settings{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		PrettyPrint:    cfg.Tracing.PrettyPrint,
	})
	if err != nil {
		a.closeLoggers()
		return nil, err
	}
	a.tracing = tracing

	hosts, err := crawl.NewHostPolicy(cfg.Crawl.AllowedHosts, cfg.Crawl.DeniedHosts)
	if err != nil {
		a.closeLoggers()
		return nil, err
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.New(a.registry)

	browserLogger := a.componentLogger("browser")
	engine, stop := engineFactory(cfg, browserLogger)
	a.stopEngine = stop

	a.manager = browser.NewManager(engine,
		browser.WithMaxPages(cfg.Browser.MaxPages),
		browser.WithAdmissionTimeout(cfg.Browser.AdmissionTimeout),
		browser.WithLaunchOptions(browser.LaunchOptions{
			Headless: cfg.Browser.Headless,
			Args:     cfg.Browser.Args,
		}),
		browser.WithLogger(browserLogger),
		browser.WithObserver(collector),
	)
	metrics.RegisterSessionGauges(a.registry, a.manager.Snapshot)

	a.crawler = crawl.New(a.manager,
		crawl.WithNavigationAttempts(cfg.Crawl.NavigationAttempts),
		crawl.WithRetryDelay(cfg.Crawl.RetryDelay),
		crawl.WithNavigationTimeout(cfg.Crawl.NavigationTimeout),
		crawl.WithPageTimeout(cfg.Crawl.PageTimeout),
		crawl.WithWaitUntil(cfg.Crawl.WaitUntil),
		crawl.WithUserAgent(cfg.Crawl.UserAgent),
		crawl.WithHostPolicy(hosts),
		crawl.WithLogger(a.componentLogger("crawl")),
		crawl.WithRecorder(collector),
		crawl.WithTracer(tracing.Tracer("github.com/entrhq/rendercrawl/pkg/crawl")),
	)
	return a, nil
}

// componentLogger opens a logger for component, falling back to stderr on
// file errors.
func (a *app) componentLogger(component string) *logging.Logger {
	// On error l is a stderr fallback that has already logged why
	l, _ := logging.NewLogger(component)
	a.loggers = append(a.loggers, l)
	return l
}

func (a *app) metricsHandler() http.Handler {
	if !a.cfg.Metrics.Enabled {
		return nil
	}
	return promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry})
}

// shutdownBrowser closes the shared browser. Safe to call more than once.
func (a *app) shutdownBrowser() {
	if err := a.manager.Shutdown(); err != nil {
		a.logger.Errorf("browser shutdown: %v", err)
	}
}

// Close releases everything newApp created: the browser, the engine driver,
// the tracer and the log files.
func (a *app) Close(ctx context.Context) error {
	a.shutdownBrowser()

	var errs []error
	if a.stopEngine != nil {
		if err := a.stopEngine(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.tracing.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush traces: %w", err))
	}
	err := errors.Join(errs...)
	if err != nil {
		a.logger.Errorf("shutdown: %v", err)
	}
	a.closeLoggers()
	return err
}

func (a *app) closeLoggers() {
	for _, l := range a.loggers {
		_ = l.Close()
	}
}
