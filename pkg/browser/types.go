package browser

import (
	"context"
	"time"
)

// Engine launches browser processes. The Playwright-backed implementation is
// PlaywrightEngine; tests substitute their own.
type Engine interface {
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)
}

// Browser is a single live browser process.
type Browser interface {
	// IsConnected reports whether the engine still considers the process alive
	IsConnected() bool

	// NewPage opens a fresh rendering context
	NewPage(ctx context.Context) (EnginePage, error)

	// OnDisconnected registers fn to run when the process goes away for any reason
	OnDisconnected(fn func())

	// Close terminates the process
	Close() error
}

// EnginePage is one rendering context as exposed by the engine.
type EnginePage interface {
	Goto(ctx context.Context, url string, opts GotoOptions) error
	Content(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)

	SetDefaultTimeout(timeout time.Duration)
	SetDefaultNavigationTimeout(timeout time.Duration)
	SetExtraHTTPHeaders(headers map[string]string) error

	// OnClose registers fn to run once the page has been closed
	OnClose(fn func())
	Close() error
}

// LaunchOptions configures how the browser process is started.
type LaunchOptions struct {
	// Headless controls whether the browser runs without a visible window
	Headless bool

	// Args are extra command line flags passed to the browser binary
	Args []string
}

// GotoOptions configures page navigation behavior.
type GotoOptions struct {
	// WaitUntil specifies when to consider navigation successful
	// Valid values: "load", "domcontentloaded", "networkidle", "commit"
	WaitUntil string

	// Timeout bounds a single navigation attempt (0 means the page default)
	Timeout time.Duration
}

// Snapshot is a point-in-time copy of the manager's health fields.
type Snapshot struct {
	Connected   bool `json:"isConnected"`
	ActivePages int  `json:"activePagesCount"`
	MaxPages    int  `json:"maxPages"`
}

// Navigation completion policies understood by the engine.
const (
	WaitUntilLoad             = "load"
	WaitUntilDOMContentLoaded = "domcontentloaded"
	WaitUntilNetworkIdle      = "networkidle"
	WaitUntilCommit           = "commit"
)

// Default values for the session manager
const (
	DefaultMaxPages         = 10
	DefaultAdmissionTimeout = 5 * time.Minute
)

// DefaultLaunchArgs are the hardening flags every browser is launched with.
var DefaultLaunchArgs = []string{
	"--no-sandbox",
	"--disable-dev-shm-usage",
	"--disable-gpu",
	"--disable-web-security",
	"--disable-features=VizDisplayCompositor",
}

// DefaultLaunchOptions returns a headless launch with the hardening flags.
func DefaultLaunchOptions() LaunchOptions {
	args := make([]string, len(DefaultLaunchArgs))
	copy(args, DefaultLaunchArgs)
	return LaunchOptions{
		Headless: true,
		Args:     args,
	}
}
