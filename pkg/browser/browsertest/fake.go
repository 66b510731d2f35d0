// Package browsertest provides an in-memory browser engine for tests.
package browsertest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/entrhq/rendercrawl/pkg/browser"
)

// ErrClosed is returned by operations on a closed fake browser or page.
var ErrClosed = errors.New("target page, context or browser has been closed")

// Engine is a fake browser.Engine that records launches.
type Engine struct {
	mu          sync.Mutex
	launchErr   error
	launchDelay time.Duration
	configure   func(*Page)
	browsers    []*Browser
	launches    atomic.Int32
}

// NewEngine returns an engine whose launches succeed immediately.
func NewEngine() *Engine {
	return &Engine{}
}

// SetLaunchError makes subsequent launches fail with err (nil to clear).
func (e *Engine) SetLaunchError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.launchErr = err
}

// SetLaunchDelay makes every launch take d.
func (e *Engine) SetLaunchDelay(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.launchDelay = d
}

// OnNewPage registers fn to customise every page before it is handed out.
func (e *Engine) OnNewPage(fn func(*Page)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.configure = fn
}

// Launch implements browser.Engine.
func (e *Engine) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Browser, error) {
	e.launches.Add(1)

	e.mu.Lock()
	delay, err := e.launchDelay, e.launchErr
	e.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	b := &Browser{engine: e, Options: opts}
	b.connected.Store(true)

	e.mu.Lock()
	e.browsers = append(e.browsers, b)
	e.mu.Unlock()
	return b, nil
}

// Launches returns how many times Launch was called.
func (e *Engine) Launches() int {
	return int(e.launches.Load())
}

// LastBrowser returns the most recently launched browser, or nil.
func (e *Engine) LastBrowser() *Browser {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.browsers) == 0 {
		return nil
	}
	return e.browsers[len(e.browsers)-1]
}

func (e *Engine) configurePage(p *Page) {
	e.mu.Lock()
	fn := e.configure
	e.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

// Browser is a fake browser.Browser.
type Browser struct {
	Options browser.LaunchOptions

	engine     *Engine
	connected  atomic.Bool
	closeCalls atomic.Int32
	mu         sync.Mutex
	handlers   []func()
	pages      []*Page
	closeErr   error
	newPageErr error
}

// IsConnected implements browser.Browser.
func (b *Browser) IsConnected() bool {
	return b.connected.Load()
}

// NewPage implements browser.Browser.
func (b *Browser) NewPage(ctx context.Context) (browser.EnginePage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !b.IsConnected() {
		return nil, ErrClosed
	}

	b.mu.Lock()
	err := b.newPageErr
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	p := &Page{HTML: "<html><head><title>Fake</title></head><body></body></html>", TitleText: "Fake"}
	b.engine.configurePage(p)

	b.mu.Lock()
	b.pages = append(b.pages, p)
	b.mu.Unlock()
	return p, nil
}

// OnDisconnected implements browser.Browser.
func (b *Browser) OnDisconnected(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, fn)
}

// Close implements browser.Browser. The disconnect handlers fire if the
// browser was still connected.
func (b *Browser) Close() error {
	b.closeCalls.Add(1)
	b.mu.Lock()
	err := b.closeErr
	b.mu.Unlock()
	b.Disconnect()
	return err
}

// CloseCalls returns how many times Close was called.
func (b *Browser) CloseCalls() int {
	return int(b.closeCalls.Load())
}

// SetCloseError makes Close report err.
func (b *Browser) SetCloseError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeErr = err
}

// SetNewPageError makes NewPage fail with err.
func (b *Browser) SetNewPageError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.newPageErr = err
}

// Disconnect simulates the browser process dying: it marks the browser
// disconnected and fires the disconnect handlers once.
func (b *Browser) Disconnect() {
	if b.connected.CompareAndSwap(true, false) {
		b.FireDisconnected()
	}
}

// Kill marks the browser disconnected without notifying anyone.
func (b *Browser) Kill() {
	b.connected.Store(false)
}

// FireDisconnected runs the disconnect handlers without changing state.
func (b *Browser) FireDisconnected() {
	b.mu.Lock()
	handlers := make([]func(), len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.Unlock()
	for _, fn := range handlers {
		fn()
	}
}

// Pages returns every page opened on this browser.
func (b *Browser) Pages() []*Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	pages := make([]*Page, len(b.pages))
	copy(pages, b.pages)
	return pages
}

// GotoFunc decides the outcome of one navigation attempt.
type GotoFunc func(ctx context.Context, url string, opts browser.GotoOptions) error

// Page is a fake browser.EnginePage. Exported fields must be set before the
// page is handed out (for example from Engine.OnNewPage).
type Page struct {
	HTML      string
	TitleText string

	GotoFunc   GotoFunc
	ContentErr error
	TitleErr   error
	CloseErr   error

	mu             sync.Mutex
	gotoCalls      int
	lastGoto       browser.GotoOptions
	defaultTimeout time.Duration
	navTimeout     time.Duration
	headers        map[string]string
	onClose        []func()
	closed         atomic.Bool
	closeCalls     atomic.Int32
}

// Goto implements browser.EnginePage.
func (p *Page) Goto(ctx context.Context, url string, opts browser.GotoOptions) error {
	p.mu.Lock()
	p.gotoCalls++
	p.lastGoto = opts
	p.mu.Unlock()

	if p.closed.Load() {
		return ErrClosed
	}
	if p.GotoFunc != nil {
		return p.GotoFunc(ctx, url, opts)
	}
	return ctx.Err()
}

// Content implements browser.EnginePage.
func (p *Page) Content(ctx context.Context) (string, error) {
	if p.ContentErr != nil {
		return "", p.ContentErr
	}
	return p.HTML, ctx.Err()
}

// Title implements browser.EnginePage.
func (p *Page) Title(ctx context.Context) (string, error) {
	if p.TitleErr != nil {
		return "", p.TitleErr
	}
	return p.TitleText, ctx.Err()
}

// SetDefaultTimeout implements browser.EnginePage.
func (p *Page) SetDefaultTimeout(timeout time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.defaultTimeout = timeout
}

// SetDefaultNavigationTimeout implements browser.EnginePage.
func (p *Page) SetDefaultNavigationTimeout(timeout time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navTimeout = timeout
}

// SetExtraHTTPHeaders implements browser.EnginePage.
func (p *Page) SetExtraHTTPHeaders(headers map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.headers = make(map[string]string, len(headers))
	for k, v := range headers {
		p.headers[k] = v
	}
	return nil
}

// OnClose implements browser.EnginePage.
func (p *Page) OnClose(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClose = append(p.onClose, fn)
}

// Close implements browser.EnginePage. A configured CloseErr leaves the page
// open.
func (p *Page) Close() error {
	p.closeCalls.Add(1)
	if p.CloseErr != nil {
		return p.CloseErr
	}
	p.CloseByEngine()
	return nil
}

// CloseByEngine simulates the engine closing the page on its own.
func (p *Page) CloseByEngine() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.mu.Lock()
	handlers := make([]func(), len(p.onClose))
	copy(handlers, p.onClose)
	p.mu.Unlock()
	for _, fn := range handlers {
		fn()
	}
}

// Closed reports whether the page has been closed.
func (p *Page) Closed() bool {
	return p.closed.Load()
}

// CloseCalls returns how many times Close was called.
func (p *Page) CloseCalls() int {
	return int(p.closeCalls.Load())
}

// GotoCalls returns how many navigation attempts were made.
func (p *Page) GotoCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gotoCalls
}

// LastGotoOptions returns the options of the most recent navigation.
func (p *Page) LastGotoOptions() browser.GotoOptions {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastGoto
}

// Timeouts returns the default and default-navigation timeouts set on the page.
func (p *Page) Timeouts() (time.Duration, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.defaultTimeout, p.navTimeout
}

// Headers returns the extra HTTP headers set on the page.
func (p *Page) Headers() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]string, len(p.headers))
	for k, v := range p.headers {
		out[k] = v
	}
	return out
}

// FailFirst returns a GotoFunc that fails the first n attempts with err and
// succeeds afterwards.
func FailFirst(n int, err error) GotoFunc {
	var calls atomic.Int32
	return func(ctx context.Context, _ string, _ browser.GotoOptions) error {
		if int(calls.Add(1)) <= n {
			return err
		}
		return ctx.Err()
	}
}

// Delay returns a GotoFunc that takes d to navigate.
func Delay(d time.Duration) GotoFunc {
	return func(ctx context.Context, _ string, _ browser.GotoOptions) error {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

var (
	_ browser.Engine     = (*Engine)(nil)
	_ browser.Browser    = (*Browser)(nil)
	_ browser.EnginePage = (*Page)(nil)
)
