package observability

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for importsize.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Cache metrics
	cacheHitsTotal      *prometheus.CounterVec
	cacheMissesTotal    *prometheus.CounterVec
	cacheEvictionsTotal *prometheus.CounterVec

	// Loader metrics
	fetchesTotal  *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec

	// Resolver metrics
	resolutionsTotal *prometheus.CounterVec

	// Bundler metrics
	buildsTotal   *prometheus.CounterVec
	buildDuration prometheus.Histogram
	bundleBytes   *prometheus.HistogramVec
	warningsTotal prometheus.Counter

	// System metrics
	systemUptime prometheus.Gauge
}

// NewMetrics creates all metrics and registers them with reg.
// When reg is nil the default Prometheus registry is used.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: gatherer,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "importsize_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "importsize_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path", "status"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "importsize_http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),

		cacheHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "importsize_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache"},
		),
		cacheMissesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "importsize_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache"},
		),
		cacheEvictionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "importsize_cache_evictions_total",
				Help: "Total number of entries evicted from a cache",
			},
			[]string{"cache"},
		),

		fetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "importsize_fetches_total",
				Help: "Total number of module fetches by host and outcome",
			},
			[]string{"host", "outcome"},
		),
		fetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "importsize_fetch_duration_seconds",
				Help:    "Module fetch latency in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"host"},
		),

		resolutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "importsize_resolutions_total",
				Help: "Total number of specifier resolutions by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),

		buildsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "importsize_builds_total",
				Help: "Total number of bundle builds by outcome",
			},
			[]string{"outcome"},
		),
		buildDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "importsize_build_duration_seconds",
				Help:    "Bundle build latency in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		bundleBytes: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "importsize_bundle_bytes",
				Help:    "Bundle size in bytes by measurement",
				Buckets: prometheus.ExponentialBuckets(256, 4, 10),
			},
			[]string{"kind"},
		),
		warningsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "importsize_build_warnings_total",
				Help: "Total number of warnings reported by builds",
			},
		),

		systemUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "importsize_system_uptime_seconds",
				Help: "System uptime in seconds",
			},
		),
	}
}

// MetricsMiddleware returns a Fiber middleware that collects HTTP metrics
func (m *Metrics) MetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m == nil {
			return c.Next()
		}
		start := time.Now()
		m.httpRequestsInFlight.Inc()
		defer m.httpRequestsInFlight.Dec()

		path := normalizePath(c.Path())
		method := c.Method()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := statusClass(c.Response().StatusCode())

		m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)

		return err
	}
}

// RecordCacheHit records a hit on the named cache
func (m *Metrics) RecordCacheHit(cache string) {
	if m == nil {
		return
	}
	m.cacheHitsTotal.WithLabelValues(cache).Inc()
}

// RecordCacheMiss records a miss on the named cache
func (m *Metrics) RecordCacheMiss(cache string) {
	if m == nil {
		return
	}
	m.cacheMissesTotal.WithLabelValues(cache).Inc()
}

// RecordCacheEviction records an eviction from the named cache
func (m *Metrics) RecordCacheEviction(cache string) {
	if m == nil {
		return
	}
	m.cacheEvictionsTotal.WithLabelValues(cache).Inc()
}

// RecordFetch records a module fetch. outcome is one of ok, error, status.
func (m *Metrics) RecordFetch(host, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.fetchesTotal.WithLabelValues(host, outcome).Inc()
	m.fetchDuration.WithLabelValues(host).Observe(duration.Seconds())
}

// RecordResolution records a specifier resolution
func (m *Metrics) RecordResolution(kind string, err error) {
	if m == nil {
		return
	}
	outcome := "resolved"
	if err != nil {
		outcome = "unresolvable"
	}
	m.resolutionsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordBuild records a finished build and its sizes.
// Sizes are only observed for successful builds.
func (m *Metrics) RecordBuild(succeeded bool, duration time.Duration, warnings int, bundled, minified, gzip int) {
	if m == nil {
		return
	}
	outcome := "failed"
	if succeeded {
		outcome = "succeeded"
		m.bundleBytes.WithLabelValues("bundled").Observe(float64(bundled))
		m.bundleBytes.WithLabelValues("minified").Observe(float64(minified))
		m.bundleBytes.WithLabelValues("gzip").Observe(float64(gzip))
	}
	m.buildsTotal.WithLabelValues(outcome).Inc()
	m.buildDuration.Observe(duration.Seconds())
	m.warningsTotal.Add(float64(warnings))
}

// UpdateUptime updates the system uptime metric
func (m *Metrics) UpdateUptime(startTime time.Time) {
	if m == nil {
		return
	}
	m.systemUptime.Set(time.Since(startTime).Seconds())
}

// Handler returns a Fiber handler serving the Prometheus exposition format
func (m *Metrics) Handler() fiber.Handler {
	gatherer := prometheus.DefaultGatherer
	if m != nil && m.gatherer != nil {
		gatherer = m.gatherer
	}
	return adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}

// normalizePath keeps label cardinality bounded
func normalizePath(path string) string {
	if len(path) > 50 {
		return "long_path"
	}
	return path
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "unknown"
	}
}
