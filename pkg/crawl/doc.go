// Package crawl renders a single URL end to end on a leased browser page.
//
// A crawl moves through fixed stages:
//
//	validating -> acquiring -> configuring -> navigating -> extracting -> releasing -> done
//
// Any stage may fail. Whatever happens, a page that was acquired is closed
// before Crawl returns, and the caller receives a Result rather than an
// error. Navigation is the only step that is retried; admission and browser
// launch failures are reported as-is.
//
// # Example Usage
//
//	manager := browser.NewManager(browser.NewPlaywrightEngine())
//	defer manager.Shutdown()
//
//	crawler := crawl.New(manager, crawl.WithLogger(logger))
//	res := crawler.Crawl(ctx, "https://example.com")
//	if !res.Success {
//		log.Printf("crawl failed: %s", res.Error)
//	}
package crawl
