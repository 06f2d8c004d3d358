package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application
type Collector struct {
	// Registry for this collector instance
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Engine metrics
	GraphBuilds    prometheus.Counter
	EventsLoaded   *prometheus.CounterVec
	BuildDuration  prometheus.Histogram
	PlaybackTicks  prometheus.Counter
	ActiveSessions prometheus.Gauge

	// Bus metrics
	Dispatches       *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
}

// NewCollector creates a new metrics collector with the given namespace.
// Each collector owns its registry so tests can build as many as they like.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	graphBuilds := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_builds_total",
			Help:      "Total number of graph rebuilds",
		},
	)

	eventsLoaded := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_loaded_total",
			Help:      "Telemetry events seen by the engine, by outcome",
		},
		[]string{"outcome"},
	)

	buildDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "graph_build_duration_seconds",
			Help:      "Time spent normalizing and building a graph",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
	)

	playbackTicks := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_ticks_total",
			Help:      "Total number of applied playback ticks",
		},
	)

	activeSessions := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of live engine sessions",
		},
	)

	dispatches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_dispatches_total",
			Help:      "Commands and queries dispatched through the buses",
		},
		[]string{"kind", "name", "status"},
	)

	dispatchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bus_dispatch_duration_seconds",
			Help:      "Command and query handling duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind", "name"},
	)

	// Register all metrics with the registry
	registry.MustRegister(
		httpRequests,
		httpDuration,
		graphBuilds,
		eventsLoaded,
		buildDuration,
		playbackTicks,
		activeSessions,
		dispatches,
		dispatchDuration,
	)

	return &Collector{
		registry:         registry,
		HTTPRequests:     httpRequests,
		HTTPDuration:     httpDuration,
		GraphBuilds:      graphBuilds,
		EventsLoaded:     eventsLoaded,
		BuildDuration:    buildDuration,
		PlaybackTicks:    playbackTicks,
		ActiveSessions:   activeSessions,
		Dispatches:       dispatches,
		DispatchDuration: dispatchDuration,
	}
}

// RecordLoad records one graph rebuild
func (c *Collector) RecordLoad(accepted, rejected, dropped int, duration time.Duration) {
	c.GraphBuilds.Inc()
	c.EventsLoaded.WithLabelValues("accepted").Add(float64(accepted))
	c.EventsLoaded.WithLabelValues("rejected").Add(float64(rejected))
	c.EventsLoaded.WithLabelValues("dropped").Add(float64(dropped))
	c.BuildDuration.Observe(duration.Seconds())
}

// RecordTick counts an applied playback tick
func (c *Collector) RecordTick() {
	c.PlaybackTicks.Inc()
}

// SetActiveSessions sets the live session gauge
func (c *Collector) SetActiveSessions(n int) {
	c.ActiveSessions.Set(float64(n))
}

// ObserveDispatch records a command or query passing through a bus
func (c *Collector) ObserveDispatch(kind, name string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.Dispatches.WithLabelValues(kind, name, status).Inc()
	c.DispatchDuration.WithLabelValues(kind, name).Observe(duration.Seconds())
}

// RecordHTTPRequest records a served HTTP request
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware records request counts and latency by chi route pattern
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.RecordHTTPRequest(r.Method, route, status, time.Since(start))
	})
}

// Handler exposes the registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// GetRegistry returns the Prometheus registry for this collector
func (c *Collector) GetRegistry() *prometheus.Registry {
	return c.registry
}
