// Package server exposes the crawler over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/netutil"
	"golang.org/x/time/rate"

	"github.com/entrhq/rendercrawl/pkg/browser"
	"github.com/entrhq/rendercrawl/pkg/crawl"
	"github.com/entrhq/rendercrawl/pkg/logging"
)

// Crawler renders a URL. *crawl.Crawler satisfies it.
type Crawler interface {
	Crawl(ctx context.Context, url string) crawl.Result
}

// HealthSource reports session health. *browser.Manager satisfies it.
type HealthSource interface {
	Snapshot() browser.Snapshot
}

// Config configures the HTTP server.
type Config struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration

	// MaxConnections caps concurrently accepted connections; 0 disables the cap
	MaxConnections int

	// RateLimit is the sustained /crawl rate per second; 0 disables limiting
	RateLimit float64
	RateBurst int

	// MetricsPath and MetricsHandler mount a metrics endpoint when both are set
	MetricsPath    string
	MetricsHandler http.Handler

	// BeforeShutdown runs once the serve context ends, before the listener
	// is closed
	BeforeShutdown func()
}

// Server serves POST /crawl and GET /health.
type Server struct {
	cfg     Config
	crawler Crawler
	health  HealthSource
	logger  *logging.Logger
	limiter *rate.Limiter
	router  chi.Router
	now     func() time.Time
}

// New builds the server and its routes. Nothing listens until Run.
func New(cfg Config, crawler Crawler, health HealthSource, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop("server")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}

	s := &Server{
		cfg:     cfg,
		crawler: crawler,
		health:  health,
		logger:  logger,
		now:     time.Now,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	router := chi.NewRouter()
	router.Use(requestIDMiddleware)
	router.Use(s.accessLogMiddleware)
	router.Use(s.recoverMiddleware)
	router.Use(securityHeadersMiddleware)

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	router.With(s.rateLimitMiddleware).Post("/crawl", s.handleCrawl)
	router.Get("/health", s.handleHealth)

	if s.cfg.MetricsPath != "" && s.cfg.MetricsHandler != nil {
		router.Method(http.MethodGet, s.cfg.MetricsPath, s.cfg.MetricsHandler)
	}
	return router
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Listen opens the TCP listener, applying the connection cap.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}
	return ln, nil
}

// Run serves on ln until ctx ends, then runs BeforeShutdown and drains
// in-flight requests for up to ShutdownTimeout.
func (s *Server) Run(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Infof("server running on http://%s", ln.Addr())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err, ok := <-serverErr:
		if ok {
			return err
		}
		return nil
	}

	s.logger.Infof("shutting down server")
	if s.cfg.BeforeShutdown != nil {
		s.cfg.BeforeShutdown()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	// Serve has returned ErrServerClosed by now
	<-serverErr
	return nil
}
