// Package browser manages the single shared browser process used for rendering.
//
// # Architecture
//
// The package is built around three concepts:
//
//  1. Engine: launches browser processes (PlaywrightEngine in production)
//  2. Manager: owns the one live Browser, deduplicates launches, and bounds open pages
//  3. Page: an engine page leased from the Manager; closing it frees the slot
//
// # Lifecycle
//
// The browser is launched on first use with headless mode and a fixed set of
// hardening flags. Concurrent callers during a cold start share one launch.
// If the process dies, the engine's disconnect notification resets the manager
// and the next request relaunches transparently.
//
// # Admission
//
// At most MaxPages pages are open at once. Callers beyond the cap wait in
// arrival order and are admitted as soon as a page closes, up to the admission
// timeout (5 minutes by default), after which AcquirePage fails with a
// *CapacityExceededError.
//
// # Example Usage
//
//	engine := browser.NewPlaywrightEngine()
//	defer engine.Stop()
//
//	manager := browser.NewManager(engine, browser.WithMaxPages(10))
//	defer manager.Shutdown()
//
//	page, err := manager.AcquirePage(ctx)
//	if err != nil {
//	    return err
//	}
//	defer page.Close()
//
//	err = page.Goto(ctx, "https://example.com", browser.GotoOptions{
//	    WaitUntil: browser.WaitUntilNetworkIdle,
//	    Timeout:   30 * time.Second,
//	})
package browser
