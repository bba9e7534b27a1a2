// Package observability exports server metrics to Prometheus. Thread
// lifecycle is observed through the bus; request and connection counters
// are fed directly by the server.
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/stokehttp/stoker/core/bus"
)

// Config configures the Prometheus collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "stoker").
	Namespace string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for request duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

func (c *Config) normalize() {
	if c.Namespace == "" {
		c.Namespace = "stoker"
	}
	if c.Buckets == nil {
		c.Buckets = prometheus.DefBuckets
	}
	if c.Registry == nil {
		c.Registry = prometheus.DefaultRegisterer
	}
}

// Metrics holds the server's Prometheus collectors. It implements the
// core.RequestObserver interface.
type Metrics struct {
	workerThreads   prometheus.Gauge
	connectionsOpen prometheus.Gauge
	requestsTotal   *prometheus.CounterVec
	requestDuration prometheus.Histogram
}

// New registers the collectors and returns the metrics instance.
func New(cfg Config) *Metrics {
	cfg.normalize()
	factory := promauto.With(cfg.Registry)

	return &Metrics{
		workerThreads: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Name:        "worker_threads",
			Help:        "Live worker threads in the pool",
			ConstLabels: cfg.ConstLabels,
		}),

		connectionsOpen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Name:        "connections_open",
			Help:        "Currently open client connections",
			ConstLabels: cfg.ConstLabels,
		}),

		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "requests_total",
			Help:        "Requests served, labeled by status class",
			ConstLabels: cfg.ConstLabels,
		}, []string{"class"}),

		requestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Name:        "request_duration_seconds",
			Help:        "Request dispatch duration in seconds",
			Buckets:     cfg.Buckets,
			ConstLabels: cfg.ConstLabels,
		}),
	}
}

// Bind subscribes the thread gauge to the bus thread-lifecycle channels.
func (m *Metrics) Bind(b *bus.Bus) {
	b.Subscribe(bus.ChStartThread, "metrics", bus.DefaultPriority, func(...interface{}) error {
		m.workerThreads.Inc()
		return nil
	})
	b.Subscribe(bus.ChStopThread, "metrics", bus.DefaultPriority, func(...interface{}) error {
		m.workerThreads.Dec()
		return nil
	})
}

// ObserveRequest records one completed request.
func (m *Metrics) ObserveRequest(status int, d time.Duration) {
	m.requestsTotal.WithLabelValues(statusClass(status)).Inc()
	if d > 0 {
		m.requestDuration.Observe(d.Seconds())
	}
}

// ConnOpened increments the open-connection gauge.
func (m *Metrics) ConnOpened() {
	m.connectionsOpen.Inc()
}

// ConnClosed decrements the open-connection gauge.
func (m *Metrics) ConnClosed() {
	m.connectionsOpen.Dec()
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "other"
	}
	return strconv.Itoa(status/100) + "xx"
}
