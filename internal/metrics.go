package internal

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "verp"

// Metrics holds the engine collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry     *prometheus.Registry
	inFlight     prometheus.Gauge
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
	cacheBuilds  prometheus.Counter
	retries      prometheus.Counter
	reroutes     prometheus.Counter
	sessionsGCed prometheus.Counter
}

// NewMetrics creates the collectors on a fresh registry, including the
// process and Go runtime collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"type", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"type"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "routing",
			Name:      "cache_hits_total",
			Help:      "Routing table cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "routing",
			Name:      "cache_misses_total",
			Help:      "Routing table cache misses.",
		}),
		cacheBuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "routing",
			Name:      "table_builds_total",
			Help:      "Routing tables built.",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "dispatch",
			Name:      "serialization_retries_total",
			Help:      "Handler re-runs after a serialization failure.",
		}),
		reroutes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "dispatch",
			Name:      "reroutes_total",
			Help:      "Internal reroutes performed by the canonicalizer.",
		}),
		sessionsGCed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "session",
			Name:      "gc_removed_total",
			Help:      "Sessions removed by garbage collection.",
		}),
	}
	m.registry.MustRegister(
		m.inFlight, m.requests, m.duration,
		m.cacheHits, m.cacheMisses, m.cacheBuilds,
		m.retries, m.reroutes, m.sessionsGCed,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry for extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) requestStarted() func(routeType string, status int) {
	if m == nil {
		return func(string, int) {}
	}
	start := time.Now()
	m.inFlight.Inc()
	return func(routeType string, status int) {
		m.inFlight.Dec()
		m.requests.WithLabelValues(routeType, strconv.Itoa(status)).Inc()
		m.duration.WithLabelValues(routeType).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) cacheHit() {
	if m != nil {
		m.cacheHits.Inc()
	}
}

func (m *Metrics) cacheMiss() {
	if m != nil {
		m.cacheMisses.Inc()
	}
}

func (m *Metrics) cacheBuild() {
	if m != nil {
		m.cacheBuilds.Inc()
	}
}

func (m *Metrics) retried() {
	if m != nil {
		m.retries.Inc()
	}
}

func (m *Metrics) rerouted() {
	if m != nil {
		m.reroutes.Inc()
	}
}

func (m *Metrics) sessionsCollected(n int) {
	if m != nil {
		m.sessionsGCed.Add(float64(n))
	}
}
