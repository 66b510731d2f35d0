package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/entrhq/rendercrawl/pkg/config"
	"github.com/entrhq/rendercrawl/pkg/server"
)

type serveOptions struct {
	addr     string
	maxPages int
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API.

Endpoints:
  POST /crawl    {"url": "..."} renders the page and returns its HTML and title
  GET  /health   browser connection state and page usage
  GET  /metrics  Prometheus metrics (when metrics.enabled)

On SIGINT or SIGTERM the browser is closed first, then in-flight requests are
drained and the listener is closed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = opts.addr
			}
			if cmd.Flags().Changed("max-pages") {
				cfg.Browser.MaxPages = opts.maxPages
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address (default from config, 0.0.0.0:3000)")
	cmd.Flags().IntVar(&opts.maxPages, "max-pages", 0, "Maximum concurrently open pages (default from config, 10)")
	return cmd
}

// runServe serves until ctx ends. A listener bind failure still shuts the
// browser session down before returning.
func runServe(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Addr:              cfg.Server.Addr,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
		MaxConnections:    cfg.Server.MaxConnections,
		RateLimit:         cfg.Server.RateLimit,
		RateBurst:         cfg.Server.RateBurst,
		MetricsPath:       cfg.Metrics.Path,
		MetricsHandler:    a.metricsHandler(),
		BeforeShutdown:    a.shutdownBrowser,
	}, a.crawler, a.manager, a.componentLogger("server"))

	ln, err := srv.Listen()
	if err != nil {
		a.logger.Errorf("%v", err)
		_ = a.Close(context.Background())
		return err
	}

	runErr := srv.Run(ctx, ln)
	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	closeErr := a.Close(closeCtx)
	if runErr != nil {
		return runErr
	}
	return closeErr
}
