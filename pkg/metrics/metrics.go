// Package metrics exposes Prometheus collectors for the browser session and
// crawl pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/entrhq/rendercrawl/pkg/browser"
	"github.com/entrhq/rendercrawl/pkg/crawl"
)

const namespace = "rendercrawl"

var (
	_ browser.Observer = (*Collector)(nil)
	_ crawl.Recorder   = (*Collector)(nil)
)

// SnapshotFunc reports the current session health for the live gauges.
type SnapshotFunc func() browser.Snapshot

// Collector records crawl and browser lifecycle metrics. It implements both
// browser.Observer and crawl.Recorder.
type Collector struct {
	CrawlsTotal          *prometheus.CounterVec
	CrawlDuration        *prometheus.HistogramVec
	NavigationRetries    prometheus.Counter
	PageReleaseFailures  prometheus.Counter
	BrowserLaunches      *prometheus.CounterVec
	BrowserLaunchSeconds prometheus.Histogram
	BrowserDisconnects   prometheus.Counter
	AdmissionWait        *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		CrawlsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "crawls_total",
				Help:      "Total number of crawls by outcome and final stage",
			},
			[]string{"outcome", "stage"},
		),
		CrawlDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "crawl_duration_seconds",
				Help:      "Wall-clock crawl duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3.4m
			},
			[]string{"outcome"},
		),
		NavigationRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "navigation_retries_total",
				Help:      "Total number of navigation attempts that were retried",
			},
		),
		PageReleaseFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "page_release_failures_total",
				Help:      "Total number of pages that failed to close",
			},
		),
		BrowserLaunches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "browser_launches_total",
				Help:      "Total number of browser launches",
			},
			[]string{"result"}, // "success" or "failure"
		),
		BrowserLaunchSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "browser_launch_duration_seconds",
				Help:      "Browser launch duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
			},
		),
		BrowserDisconnects: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "browser_disconnects_total",
				Help:      "Total number of unexpected browser disconnects",
			},
		),
		AdmissionWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "admission_wait_seconds",
				Help:      "Time spent waiting for a page slot",
				Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4.4m
			},
			[]string{"result"}, // "admitted" or "rejected"
		),
	}
}

// RegisterSessionGauges exposes live page and connection gauges computed from
// snapshot on every scrape.
func RegisterSessionGauges(reg prometheus.Registerer, snapshot SnapshotFunc) {
	factory := promauto.With(reg)

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pages_active",
		Help:      "Number of currently open pages",
	}, func() float64 {
		return float64(snapshot().ActivePages)
	})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pages_max",
		Help:      "Maximum number of concurrently open pages",
	}, func() float64 {
		return float64(snapshot().MaxPages)
	})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "browser_connected",
		Help:      "1 if the shared browser is connected, 0 otherwise",
	}, func() float64 {
		if snapshot().Connected {
			return 1
		}
		return 0
	})
}

// BrowserLaunched implements browser.Observer.
func (c *Collector) BrowserLaunched(took time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.BrowserLaunches.WithLabelValues(result).Inc()
	c.BrowserLaunchSeconds.Observe(took.Seconds())
}

// BrowserDisconnected implements browser.Observer.
func (c *Collector) BrowserDisconnected() {
	c.BrowserDisconnects.Inc()
}

// PageAdmitted implements browser.Observer.
func (c *Collector) PageAdmitted(waited time.Duration) {
	c.AdmissionWait.WithLabelValues("admitted").Observe(waited.Seconds())
}

// AdmissionRejected implements browser.Observer.
func (c *Collector) AdmissionRejected(waited time.Duration) {
	c.AdmissionWait.WithLabelValues("rejected").Observe(waited.Seconds())
}

// ObserveCrawl implements crawl.Recorder.
func (c *Collector) ObserveCrawl(outcome string, stage crawl.Stage, took time.Duration) {
	c.CrawlsTotal.WithLabelValues(outcome, string(stage)).Inc()
	c.CrawlDuration.WithLabelValues(outcome).Observe(took.Seconds())
}

// ObserveNavigationRetry implements crawl.Recorder.
func (c *Collector) ObserveNavigationRetry() {
	c.NavigationRetries.Inc()
}

// ObserveReleaseFailure implements crawl.Recorder.
func (c *Collector) ObserveReleaseFailure() {
	c.PageReleaseFailures.Inc()
}
