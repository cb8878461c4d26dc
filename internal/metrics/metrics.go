// =============================================================================
// OBSERVABILITY WITH PROMETHEUS - CORE METRICS INFRASTRUCTURE
// =============================================================================
//
// A Registry wraps its own prometheus.Registry instead of using the client's
// global default:
//   - test isolation (each test builds a fresh registry)
//   - optional Go runtime / process collectors
//   - metrics can be disabled wholesale via config
//
// NAMING: {namespace}_{subsystem}_{name}_{unit}, Prometheus conventions.
// Labels stay bounded: operation names and outcomes, never group or member
// ids (unbounded cardinality).
//
// =============================================================================

package metrics

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all coordinator metrics and the Prometheus registry behind
// them.
type Registry struct {
	promRegistry *prometheus.Registry
	config       Config
	logger       *slog.Logger
	enabled      bool

	Coordinator *CoordinatorMetrics
}

// Config holds metrics configuration.
type Config struct {
	// Enabled turns metrics collection on or off. When off, every metric
	// operation is a no-op.
	Enabled bool

	// Namespace is the prefix for all metrics.
	Namespace string

	// IncludeGoCollector adds Go runtime metrics (goroutines, GC, memory).
	IncludeGoCollector bool

	// IncludeProcessCollector adds process metrics (CPU, RSS, fds).
	IncludeProcessCollector bool

	// HistogramBuckets for latency measurements, in seconds.
	HistogramBuckets []float64
}

// DefaultConfig returns defaults tuned for coordinator command latencies,
// which sit in the sub-millisecond to low-millisecond range.
func DefaultConfig() Config {
	return Config{
		Enabled:                 true,
		Namespace:               "groupcoord",
		IncludeGoCollector:      true,
		IncludeProcessCollector: true,
		HistogramBuckets: []float64{
			0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005,
			0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
		},
	}
}

// =============================================================================
// GLOBAL REGISTRY
// =============================================================================
//
// Global singleton for production wiring, NewRegistry for isolated tests.

var (
	globalRegistry *Registry
	globalOnce     sync.Once
)

// Init initializes the global metrics registry. Call once at startup.
func Init(config Config) *Registry {
	globalOnce.Do(func() {
		globalRegistry = NewRegistry(config)
	})
	return globalRegistry
}

// Get returns the global metrics registry, nil before Init.
func Get() *Registry {
	return globalRegistry
}

// NewRegistry creates an isolated metrics registry.
func NewRegistry(config Config) *Registry {
	logger := slog.Default().With("component", "metrics")

	r := &Registry{
		promRegistry: prometheus.NewRegistry(),
		config:       config,
		logger:       logger,
		enabled:      config.Enabled,
	}

	if !config.Enabled {
		logger.Info("metrics collection disabled")
		return r
	}

	if config.IncludeGoCollector {
		r.promRegistry.MustRegister(collectors.NewGoCollector())
	}
	if config.IncludeProcessCollector {
		r.promRegistry.MustRegister(collectors.NewProcessCollector(
			collectors.ProcessCollectorOpts{},
		))
	}

	r.Coordinator = newCoordinatorMetrics(r)

	logger.Info("metrics registry initialized", "namespace", config.Namespace)
	return r
}

// =============================================================================
// HTTP HANDLER
// =============================================================================

// Handler returns the HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	if !r.enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("# Metrics disabled\n"))
		})
	}

	return promhttp.HandlerFor(r.promRegistry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorLog:          &promLogger{logger: r.logger},
		Registry:          r.promRegistry,
	})
}

// promLogger adapts slog to the Prometheus error logging interface.
type promLogger struct {
	logger *slog.Logger
}

func (l *promLogger) Println(v ...interface{}) {
	l.logger.Error("prometheus handler error", "error", v)
}

// Enabled reports whether metrics collection is enabled.
func (r *Registry) Enabled() bool {
	return r.enabled
}

// PrometheusRegistry returns the underlying Prometheus registry. Used by
// tests that assert on metric values.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.promRegistry
}

// =============================================================================
// REGISTRATION HELPERS
// =============================================================================

func (r *Registry) newCounter(opts prometheus.CounterOpts) prometheus.Counter {
	opts.Namespace = r.config.Namespace
	counter := prometheus.NewCounter(opts)
	r.promRegistry.MustRegister(counter)
	return counter
}

func (r *Registry) newCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	opts.Namespace = r.config.Namespace
	counterVec := prometheus.NewCounterVec(opts, labelNames)
	r.promRegistry.MustRegister(counterVec)
	return counterVec
}

func (r *Registry) newGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	opts.Namespace = r.config.Namespace
	gauge := prometheus.NewGauge(opts)
	r.promRegistry.MustRegister(gauge)
	return gauge
}

func (r *Registry) newHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
	opts.Namespace = r.config.Namespace
	if opts.Buckets == nil {
		opts.Buckets = r.config.HistogramBuckets
	}
	histogramVec := prometheus.NewHistogramVec(opts, labelNames)
	r.promRegistry.MustRegister(histogramVec)
	return histogramVec
}

// =============================================================================
// TIMING HELPER
// =============================================================================

// Timer measures the duration of an operation.
//
//	timer := metrics.NewTimer(reg.Coordinator.CommandLatency.WithLabelValues("heartbeat"))
//	defer timer.ObserveDuration()
type Timer struct {
	start    time.Time
	observer prometheus.Observer
}

// NewTimer creates a timer that observes into the given histogram.
func NewTimer(observer prometheus.Observer) *Timer {
	return &Timer{start: time.Now(), observer: observer}
}

// ObserveDuration records the elapsed time since the timer was created.
func (t *Timer) ObserveDuration() time.Duration {
	elapsed := time.Since(t.start)
	if t.observer != nil {
		t.observer.Observe(elapsed.Seconds())
	}
	return elapsed
}
