package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface, the cache, the database and the matching engine.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec

	matchRuns        prometheus.Counter
	matchAssignments prometheus.Counter
	matchSkipped     prometheus.Counter
	matchDuration    prometheus.Histogram
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
}

func newHistogram(name, help string, buckets []float64) prometheus.Histogram {
	if buckets == nil {
		buckets = prometheus.DefBuckets
	}
	return prometheus.NewHistogram(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets})
}

// NewMetricsService registers the core Prometheus collectors on a private
// registry.
func NewMetricsService() *MetricsService {
	cacheLatency := newHistogram("cache_latency_seconds", "Latency for cache lookups", nil)
	cacheWrite := newHistogram("cache_write_seconds", "Latency for cache set operations", nil)

	m := &MetricsService{
		registry: prometheus.NewRegistry(),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHits:       newCounter("cache_hits_total", "Total cache hits"),
		cacheMisses:     newCounter("cache_misses_total", "Total cache misses"),
		dbQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of database queries",
			Buckets: prometheus.DefBuckets,
		}, []string{"query"}),
		matchRuns:        newCounter("matching_runs_total", "Total matching engine runs"),
		matchAssignments: newCounter("matching_assignments_created_total", "Assignments created across all matching runs"),
		matchSkipped:     newCounter("matching_skipped_total", "Candidates passed over across all matching runs"),
		matchDuration: newHistogram("matching_run_duration_seconds",
			"End-to-end matching run duration including persistence",
			[]float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	m.registry.MustRegister(m.requestDuration, m.requestTotal,
		cacheLatency, cacheWrite, m.cacheHits, m.cacheMisses, m.dbQueryDuration,
		m.matchRuns, m.matchAssignments, m.matchSkipped, m.matchDuration, goroutines)

	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records one handled request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache lookup and its outcome.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveCacheWrite tracks the duration of cache set operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records database query timing under a short label.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// RecordMatchingRun records the outcome of one matching run.
func (m *MetricsService) RecordMatchingRun(created, skipped int, duration time.Duration) {
	if m == nil {
		return
	}
	m.matchRuns.Inc()
	m.matchAssignments.Add(float64(created))
	m.matchSkipped.Add(float64(skipped))
	m.matchDuration.Observe(duration.Seconds())
}

// RegisterQueueDepth exposes a background queue's buffered depth as a
// gauge. Call once per queue at wiring time.
func (m *MetricsService) RegisterQueueDepth(queue string, depth func() float64) {
	if m == nil || depth == nil {
		return
	}
	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "jobs_queue_depth",
		Help:        "Jobs waiting in an in-process queue",
		ConstLabels: prometheus.Labels{"queue": queue},
	}, depth)
	m.registry.MustRegister(gauge)
}
