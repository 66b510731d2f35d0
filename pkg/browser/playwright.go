package browser

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

var (
	_ Engine     = (*PlaywrightEngine)(nil)
	_ Browser    = (*playwrightBrowser)(nil)
	_ EnginePage = (*playwrightPage)(nil)
)

// PlaywrightEngine launches Chromium through a Playwright driver. The driver
// is installed and started on the first launch and kept until Stop.
type PlaywrightEngine struct {
	mu          sync.Mutex
	pw          *playwright.Playwright
	skipInstall bool
	output      io.Writer
}

// PlaywrightOption configures a PlaywrightEngine.
type PlaywrightOption func(*PlaywrightEngine)

// WithSkipInstall skips downloading the driver and browsers, for images that
// ship them preinstalled.
func WithSkipInstall(skip bool) PlaywrightOption {
	return func(e *PlaywrightEngine) {
		e.skipInstall = skip
	}
}

// WithDriverOutput sends driver install/run output to w instead of discarding it.
func WithDriverOutput(w io.Writer) PlaywrightOption {
	return func(e *PlaywrightEngine) {
		if w != nil {
			e.output = w
		}
	}
}

// NewPlaywrightEngine creates an engine. No process is started until Launch.
func NewPlaywrightEngine(opts ...PlaywrightOption) *PlaywrightEngine {
	e := &PlaywrightEngine{output: io.Discard}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *PlaywrightEngine) driver() (*playwright.Playwright, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pw != nil {
		return e.pw, nil
	}

	opts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   e.output,
		Stderr:   e.output,
	}

	if !e.skipInstall {
		if err := playwright.Install(opts); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	e.pw = pw
	return pw, nil
}

// Launch starts a Chromium process.
func (e *PlaywrightEngine) Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pw, err := e.driver()
	if err != nil {
		return nil, err
	}

	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     opts.Args,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return &playwrightBrowser{browser: b}, nil
}

// Stop shuts the Playwright driver down. Launch starts a new one if called again.
func (e *PlaywrightEngine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pw == nil {
		return nil
	}
	err := e.pw.Stop()
	e.pw = nil
	if err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}

type playwrightBrowser struct {
	browser playwright.Browser
}

func (b *playwrightBrowser) IsConnected() bool {
	return b.browser.IsConnected()
}

func (b *playwrightBrowser) NewPage(ctx context.Context) (EnginePage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page, err := b.browser.NewPage()
	if err != nil {
		return nil, err
	}
	return &playwrightPage{page: page}, nil
}

func (b *playwrightBrowser) OnDisconnected(fn func()) {
	b.browser.OnDisconnected(func(playwright.Browser) {
		fn()
	})
}

func (b *playwrightBrowser) Close() error {
	return b.browser.Close()
}

type playwrightPage struct {
	page playwright.Page
}

func (p *playwrightPage) Goto(ctx context.Context, url string, opts GotoOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	gotoOpts := playwright.PageGotoOptions{}
	if opts.WaitUntil != "" {
		waitUntil := playwright.WaitUntilState(opts.WaitUntil)
		gotoOpts.WaitUntil = &waitUntil
	}

	// Playwright has no context support; fold the ctx deadline into the timeout
	timeout := opts.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); timeout == 0 || remaining < timeout {
			timeout = remaining
		}
	}
	if timeout > 0 {
		gotoOpts.Timeout = playwright.Float(float64(timeout.Milliseconds()))
	}

	_, err := p.page.Goto(url, gotoOpts)
	return err
}

func (p *playwrightPage) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.Content()
}

func (p *playwrightPage) Title(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.Title()
}

func (p *playwrightPage) SetDefaultTimeout(timeout time.Duration) {
	p.page.SetDefaultTimeout(float64(timeout.Milliseconds()))
}

func (p *playwrightPage) SetDefaultNavigationTimeout(timeout time.Duration) {
	p.page.SetDefaultNavigationTimeout(float64(timeout.Milliseconds()))
}

func (p *playwrightPage) SetExtraHTTPHeaders(headers map[string]string) error {
	return p.page.SetExtraHTTPHeaders(headers)
}

func (p *playwrightPage) OnClose(fn func()) {
	p.page.OnClose(func(playwright.Page) {
		fn()
	})
}

func (p *playwrightPage) Close() error {
	return p.page.Close()
}
