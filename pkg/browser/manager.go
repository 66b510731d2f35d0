package browser

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/entrhq/rendercrawl/pkg/logging"
)

const launchKey = "browser"

// Observer receives lifecycle events from a Manager. Implementations must be
// safe for concurrent use and must not call back into the Manager.
type Observer interface {
	BrowserLaunched(took time.Duration, err error)
	BrowserDisconnected()
	PageAdmitted(waited time.Duration)
	AdmissionRejected(waited time.Duration)
}

type nopObserver struct{}

func (nopObserver) BrowserLaunched(time.Duration, error) {}
func (nopObserver) BrowserDisconnected()                 {}
func (nopObserver) PageAdmitted(time.Duration)           {}
func (nopObserver) AdmissionRejected(time.Duration)      {}

// Manager owns the single shared browser process and bounds how many pages
// may be open on it at once.
//
// The browser is launched lazily on first use. Concurrent callers during a
// cold start share one launch. When the engine reports the process gone, the
// manager drops the handle and every open lease, and the next caller
// relaunches.
type Manager struct {
	engine           Engine
	launchOpts       LaunchOptions
	maxPages         int
	admissionTimeout time.Duration
	logger           *logging.Logger
	observer         Observer

	// slots is held once per admitted page; waiters queue in FIFO order
	slots  *semaphore.Weighted
	launch singleflight.Group

	mu         sync.Mutex
	browser    Browser
	generation uint64
	leases     map[*Page]struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxPages sets the maximum number of concurrently open pages.
func WithMaxPages(n int) Option {
	return func(m *Manager) {
		m.maxPages = n
	}
}

// WithAdmissionTimeout sets how long AcquirePage waits for a free slot.
func WithAdmissionTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.admissionTimeout = d
	}
}

// WithLaunchOptions overrides the headless/hardening launch configuration.
func WithLaunchOptions(opts LaunchOptions) Option {
	return func(m *Manager) {
		m.launchOpts = opts
	}
}

// WithLogger sets the manager's logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithObserver attaches lifecycle hooks, typically metrics.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.observer = o
		}
	}
}

// NewManager creates a manager that launches browsers through engine.
func NewManager(engine Engine, opts ...Option) *Manager {
	m := &Manager{
		engine:           engine,
		launchOpts:       DefaultLaunchOptions(),
		maxPages:         DefaultMaxPages,
		admissionTimeout: DefaultAdmissionTimeout,
		logger:           logging.Nop("browser"),
		observer:         nopObserver{},
		leases:           make(map[*Page]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.maxPages < 1 {
		m.maxPages = 1
	}
	if m.admissionTimeout <= 0 {
		m.admissionTimeout = DefaultAdmissionTimeout
	}
	m.slots = semaphore.NewWeighted(int64(m.maxPages))
	return m
}

// MaxPages returns the configured page cap.
func (m *Manager) MaxPages() int {
	return m.maxPages
}

// Browser returns a connected browser, launching one if needed.
//
// A ctx that ends while a launch is in flight only stops this caller from
// waiting; the launch itself continues for everyone else.
func (m *Manager) Browser(ctx context.Context) (Browser, error) {
	m.mu.Lock()
	b := m.browser
	m.mu.Unlock()

	if b != nil && b.IsConnected() {
		return b, nil
	}
	if m.engine == nil {
		return nil, &InitializationError{Err: ErrNoEngine}
	}

	ch := m.launch.DoChan(launchKey, func() (interface{}, error) {
		return m.initialize(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Browser), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// initialize launches a browser and publishes it. Only ever runs inside the
// singleflight group, so at most one launch is in progress.
func (m *Manager) initialize(ctx context.Context) (Browser, error) {
	m.mu.Lock()
	stale := m.browser
	m.mu.Unlock()

	if stale != nil {
		if stale.IsConnected() {
			return stale, nil
		}
		m.logger.Warnf("browser handle is no longer connected, relaunching")
		if err := stale.Close(); err != nil {
			m.logger.Debugf("closing stale browser: %v", err)
		}
	}

	m.logger.Infof("initializing browser (headless=%t, args=%v)", m.launchOpts.Headless, m.launchOpts.Args)
	start := time.Now()
	b, err := m.engine.Launch(ctx, m.launchOpts)
	m.observer.BrowserLaunched(time.Since(start), err)
	if err != nil {
		m.logger.Errorf("failed to initialize browser: %v", err)
		return nil, &InitializationError{Err: err}
	}

	m.mu.Lock()
	m.generation++
	gen := m.generation
	m.mu.Unlock()

	b.OnDisconnected(func() {
		m.handleDisconnect(gen)
	})

	m.mu.Lock()
	if m.generation == gen {
		m.browser = b
	}
	m.mu.Unlock()

	m.logger.Infof("browser initialized successfully")
	return b, nil
}

// handleDisconnect resets session state when the browser of generation gen
// goes away. Events for an older generation are ignored.
func (m *Manager) handleDisconnect(gen uint64) {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return
	}
	dropped := len(m.leases)
	m.resetLocked()
	m.mu.Unlock()

	m.observer.BrowserDisconnected()
	m.logger.Warnf("browser disconnected, resetting (dropped %d open pages)", dropped)
}

// resetLocked clears the browser handle and every lease, returning their
// slots. Callers must hold m.mu.
func (m *Manager) resetLocked() {
	m.browser = nil
	m.generation++
	if n := len(m.leases); n > 0 {
		m.slots.Release(int64(n))
		m.leases = make(map[*Page]struct{})
	}
}

// AcquirePage waits for a free page slot, then opens a page on the shared
// browser. Waiters are admitted in arrival order as soon as a slot frees.
//
// Returns a *CapacityExceededError if no slot frees within the admission
// timeout, or an *InitializationError if the browser cannot be launched.
// The caller owns the page until it calls Close.
func (m *Manager) AcquirePage(ctx context.Context) (*Page, error) {
	start := time.Now()
	admitCtx, cancel := context.WithTimeout(ctx, m.admissionTimeout)
	err := m.slots.Acquire(admitCtx, 1)
	cancel()
	waited := time.Since(start)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		m.observer.AdmissionRejected(waited)
		m.logger.Warnf("no page slot became available within %s (max %d)", m.admissionTimeout, m.maxPages)
		return nil, &CapacityExceededError{MaxPages: m.maxPages, Waited: m.admissionTimeout}
	}
	m.observer.PageAdmitted(waited)

	b, err := m.Browser(ctx)
	if err != nil {
		m.slots.Release(1)
		return nil, err
	}

	ep, err := b.NewPage(ctx)
	if err != nil {
		m.slots.Release(1)
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	p := &Page{EnginePage: ep, manager: m}
	m.mu.Lock()
	m.leases[p] = struct{}{}
	m.mu.Unlock()

	ep.OnClose(p.release)
	return p, nil
}

// release returns p's slot if it is still counted. Safe to call any number of
// times from any goroutine.
func (m *Manager) release(p *Page) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.leases[p]; !ok {
		return
	}
	delete(m.leases, p)
	m.slots.Release(1)
}

// Shutdown closes the browser and resets all session state. It is a no-op
// when no browser is live. State is reset even if closing fails; the close
// error is logged and returned.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	b := m.browser
	if b == nil {
		m.mu.Unlock()
		return nil
	}
	m.resetLocked()
	m.mu.Unlock()

	if err := b.Close(); err != nil {
		m.logger.Errorf("error closing browser: %v", err)
		return fmt.Errorf("failed to close browser: %w", err)
	}
	m.logger.Infof("browser closed successfully")
	return nil
}

// Snapshot returns the current health fields. It never waits on the engine.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	b := m.browser
	active := len(m.leases)
	m.mu.Unlock()

	return Snapshot{
		Connected:   b != nil && b.IsConnected(),
		ActivePages: active,
		MaxPages:    m.maxPages,
	}
}

// Page is an engine page leased from a Manager. Closing it returns the slot.
type Page struct {
	EnginePage

	manager *Manager
	closed  atomic.Bool
}

// Close closes the underlying page and releases its slot. Only the first call
// does anything; later calls return nil. The slot is released even when the
// engine fails to close the page.
func (p *Page) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := p.EnginePage.Close()
	p.release()
	return err
}

func (p *Page) release() {
	p.manager.release(p)
}
