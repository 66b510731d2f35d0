package crawl

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/entrhq/rendercrawl/pkg/browser"
	"github.com/entrhq/rendercrawl/pkg/logging"
)

const (
	// DefaultNavigationAttempts is the total number of navigation attempts.
	DefaultNavigationAttempts = 3

	// DefaultRetryDelay is the fixed pause between navigation attempts.
	DefaultRetryDelay = time.Second

	// DefaultNavigationTimeout bounds a single navigation attempt.
	DefaultNavigationTimeout = 30 * time.Second

	// DefaultPageTimeout is set as the page's default operation and navigation timeout.
	DefaultPageTimeout = 60 * time.Second

	// DefaultUserAgent is sent with every request the page makes.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

	tracerName = "github.com/entrhq/rendercrawl/pkg/crawl"
)

// PageSource hands out leased pages and reports session health.
// *browser.Manager satisfies it.
type PageSource interface {
	AcquirePage(ctx context.Context) (*browser.Page, error)
	Snapshot() browser.Snapshot
}

// Recorder receives per-crawl measurements. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ObserveCrawl(outcome string, stage Stage, took time.Duration)
	ObserveNavigationRetry()
	ObserveReleaseFailure()
}

type nopRecorder struct{}

func (nopRecorder) ObserveCrawl(string, Stage, time.Duration) {}
func (nopRecorder) ObserveNavigationRetry()                   {}
func (nopRecorder) ObserveReleaseFailure()                    {}

// Crawler renders URLs on pages leased from a PageSource.
type Crawler struct {
	pages       PageSource
	attempts    int
	retryDelay  time.Duration
	navTimeout  time.Duration
	pageTimeout time.Duration
	waitUntil   string
	userAgent   string
	hosts       *HostPolicy
	logger      *logging.Logger
	recorder    Recorder
	tracer      trace.Tracer
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithNavigationAttempts sets the total number of navigation attempts.
func WithNavigationAttempts(n int) Option {
	return func(c *Crawler) {
		c.attempts = n
	}
}

// WithRetryDelay sets the fixed pause between navigation attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Crawler) {
		c.retryDelay = d
	}
}

// WithNavigationTimeout sets the per-attempt navigation timeout.
func WithNavigationTimeout(d time.Duration) Option {
	return func(c *Crawler) {
		c.navTimeout = d
	}
}

// WithPageTimeout sets the page's default operation timeout.
func WithPageTimeout(d time.Duration) Option {
	return func(c *Crawler) {
		c.pageTimeout = d
	}
}

// WithWaitUntil sets when a navigation counts as finished.
func WithWaitUntil(state string) Option {
	return func(c *Crawler) {
		c.waitUntil = state
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Crawler) {
		c.userAgent = ua
	}
}

// WithHostPolicy restricts which hosts may be crawled.
func WithHostPolicy(p *HostPolicy) Option {
	return func(c *Crawler) {
		c.hosts = p
	}
}

// WithLogger sets the crawler's logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Crawler) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Crawler) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithTracer sets the tracer used for crawl spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Crawler) {
		if t != nil {
			c.tracer = t
		}
	}
}

// New creates a Crawler that leases pages from pages.
func New(pages PageSource, opts ...Option) *Crawler {
	c := &Crawler{
		pages:       pages,
		attempts:    DefaultNavigationAttempts,
		retryDelay:  DefaultRetryDelay,
		navTimeout:  DefaultNavigationTimeout,
		pageTimeout: DefaultPageTimeout,
		waitUntil:   browser.WaitUntilNetworkIdle,
		userAgent:   DefaultUserAgent,
		logger:      logging.Nop("crawl"),
		recorder:    nopRecorder{},
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.attempts < 1 {
		c.attempts = 1
	}
	if c.retryDelay < 0 {
		c.retryDelay = 0
	}
	return c
}

// Crawl renders rawURL and returns its HTML and title. It never returns an
// error: every failure, including a panic, is reported in the Result.
func (c *Crawler) Crawl(ctx context.Context, rawURL string) (res Result) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "crawl", trace.WithAttributes(attribute.String("crawl.url", rawURL)))

	res = Result{URL: rawURL}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorf("panic while crawling %s: %v", rawURL, r)
			res.Success = false
			res.Title, res.HTML = "", ""
			res.Err = fmt.Errorf("internal error: %v", r)
			res.Error = res.Err.Error()
		}

		took := time.Since(start)
		res.ResponseTimeMs = took.Milliseconds()
		res.Stats = c.pages.Snapshot()
		if res.Success {
			res.FailedAt = StageDone
		}

		span.SetAttributes(
			attribute.Int("crawl.attempts", res.Attempts),
			attribute.String("crawl.outcome", res.Outcome()),
			attribute.Int64("crawl.response_time_ms", res.ResponseTimeMs),
		)
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Error)
			span.SetAttributes(attribute.String("crawl.failed_stage", string(res.FailedAt)))
		}
		span.End()

		c.recorder.ObserveCrawl(res.Outcome(), res.FailedAt, took)
	}()

	c.run(ctx, rawURL, &res)
	if res.Err != nil {
		res.Error = res.Err.Error()
		c.logger.Warnw("crawl failed", "url", rawURL, "stage", string(res.FailedAt), "error", res.Error)
	} else {
		res.Success = true
		c.logger.Debugf("crawled %s in %d attempt(s)", rawURL, res.Attempts)
	}
	return res
}

// run drives one crawl through its stages. res.FailedAt tracks the current
// stage so that an error or panic is attributed to where it happened. A
// leased page is released on every exit path.
func (c *Crawler) run(ctx context.Context, rawURL string, res *Result) {
	res.FailedAt = StageValidating
	if res.Err = c.validate(rawURL); res.Err != nil {
		return
	}

	res.FailedAt = StageAcquiring
	page, err := c.pages.AcquirePage(ctx)
	if err != nil {
		res.Err = err
		return
	}
	defer func() {
		stage := res.FailedAt
		res.FailedAt = StageReleasing
		c.release(rawURL, page)
		res.FailedAt = stage
	}()

	res.FailedAt = StageConfiguring
	if res.Err = c.configure(page); res.Err != nil {
		return
	}

	res.FailedAt = StageNavigating
	res.Attempts, res.Err = c.navigate(ctx, page, rawURL)
	if res.Err != nil {
		return
	}

	res.FailedAt = StageExtracting
	res.HTML, res.Title, res.Err = c.extract(ctx, page)
}

// hostRequired lists schemes that are meaningless without a host. Others,
// such as file and data, are accepted without one.
var hostRequired = map[string]bool{
	"http":  true,
	"https": true,
	"ws":    true,
	"wss":   true,
	"ftp":   true,
}

func (c *Crawler) validate(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() {
		return &InvalidInputError{URL: rawURL, Err: ErrInvalidURL}
	}
	if u.Host == "" && hostRequired[strings.ToLower(u.Scheme)] {
		return &InvalidInputError{URL: rawURL, Err: ErrInvalidURL}
	}
	if !c.hosts.Allowed(u.Hostname()) {
		return &InvalidInputError{URL: rawURL, Err: ErrHostNotAllowed}
	}
	return nil
}

func (c *Crawler) configure(page *browser.Page) error {
	page.SetDefaultTimeout(c.pageTimeout)
	page.SetDefaultNavigationTimeout(c.pageTimeout)
	if err := page.SetExtraHTTPHeaders(map[string]string{"User-Agent": c.userAgent}); err != nil {
		return fmt.Errorf("failed to set request headers: %w", err)
	}
	return nil
}

// navigate loads rawURL, retrying with a fixed delay. It returns the number
// of attempts made.
func (c *Crawler) navigate(ctx context.Context, page *browser.Page, rawURL string) (int, error) {
	attempts := 0
	policy := retrypolicy.NewBuilder[any]().
		WithMaxAttempts(c.attempts).
		WithDelay(c.retryDelay).
		ReturnLastFailure().
		OnRetry(func(failsafe.ExecutionEvent[any]) {
			c.recorder.ObserveNavigationRetry()
			c.logger.Infof("retrying navigation to %s, %d attempts left", rawURL, c.attempts-attempts)
		}).
		Build()

	opts := browser.GotoOptions{WaitUntil: c.waitUntil, Timeout: c.navTimeout}
	err := failsafe.With[any](policy).WithContext(ctx).Run(func() error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, c.navTimeout)
		defer cancel()
		return page.Goto(attemptCtx, rawURL, opts)
	})
	if err != nil {
		return attempts, &NavigationError{URL: rawURL, Attempts: attempts, Err: err}
	}
	return attempts, nil
}

// extract reads the rendered HTML and title concurrently.
func (c *Crawler) extract(ctx context.Context, page *browser.Page) (string, string, error) {
	var html, title string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if html, err = page.Content(gctx); err != nil {
			return &ExtractionError{Target: "content", Err: err}
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if title, err = page.Title(gctx); err != nil {
			return &ExtractionError{Target: "title", Err: err}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return "", "", err
	}
	return html, title, nil
}

// release closes the page. A close failure never changes the crawl outcome.
func (c *Crawler) release(rawURL string, page *browser.Page) {
	if err := page.Close(); err != nil {
		relErr := &ReleaseError{URL: rawURL, Err: err}
		c.recorder.ObserveReleaseFailure()
		c.logger.Errorf("%v", relErr)
	}
}
