// Package metrics defines the prometheus collectors exported by the servers
// and the load client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "archbench").
	Namespace string

	// Buckets are the histogram buckets, in seconds.
	Buckets []float64

	// Registry is where collectors are registered. Default: a private
	// registry, so independent instances never collide.
	Registry prometheus.Registerer
}

// Option configures the collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func newConfig(opts []Option) Config {
	config := Config{
		Namespace: "archbench",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 18), // 100us to ~13s
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}
	return config
}

// Server holds the server side collectors for one architecture.
type Server struct {
	Connections    prometheus.Gauge
	Accepted       prometheus.Counter
	FramesIn       prometheus.Counter
	FramesOut      prometheus.Counter
	ProtocolErrors prometheus.Counter
	SortDuration   prometheus.Observer
}

// NewServer registers the server collectors labelled with arch.
func NewServer(arch string, opts ...Option) *Server {
	config := newConfig(opts)
	factory := promauto.With(config.Registry)
	labels := prometheus.Labels{"arch": arch}

	return &Server{
		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   "server",
			Name:        "connections",
			Help:        "Number of live connections",
			ConstLabels: labels,
		}),
		Accepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   "server",
			Name:        "accepted_total",
			Help:        "Total number of accepted connections",
			ConstLabels: labels,
		}),
		FramesIn: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   "server",
			Name:        "frames_received_total",
			Help:        "Total number of complete request frames",
			ConstLabels: labels,
		}),
		FramesOut: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   "server",
			Name:        "frames_sent_total",
			Help:        "Total number of response frames fully written",
			ConstLabels: labels,
		}),
		ProtocolErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   "server",
			Name:        "protocol_errors_total",
			Help:        "Total number of connections closed for a protocol error",
			ConstLabels: labels,
		}),
		SortDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   "server",
			Name:        "sort_duration_seconds",
			Help:        "Time spent decoding, sorting and encoding one request",
			ConstLabels: labels,
			Buckets:     config.Buckets,
		}),
	}
}

// Client holds the load client collectors.
type Client struct {
	Latency  prometheus.Observer
	Requests prometheus.Counter
	Failures prometheus.Counter
}

// NewClient registers the client collectors.
func NewClient(opts ...Option) *Client {
	config := newConfig(opts)
	factory := promauto.With(config.Registry)

	return &Client{
		Latency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: "client",
			Name:      "round_trip_seconds",
			Help:      "Request round trip latency",
			Buckets:   config.Buckets,
		}),
		Requests: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Total number of requests answered",
		}),
		Failures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: "client",
			Name:      "failures_total",
			Help:      "Total number of clients that failed",
		}),
	}
}
