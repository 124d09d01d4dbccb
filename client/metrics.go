package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the channel metrics
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "realtime").
	Namespace string

	// Subsystem is the metrics subsystem (default: "channel").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// unregisteredType labels the frames whose type has no dedicated handler,
// the set of label values stays bounded by the registered types
const unregisteredType = "other"

// Metrics holds the Prometheus collectors shared by one or more channels.
// A nil *Metrics records nothing.
type Metrics struct {
	framesReceived   *prometheus.CounterVec
	framesDropped    *prometheus.CounterVec
	handlerPanics    *prometheus.CounterVec
	framesSent       prometheus.Counter
	framesDiscarded  prometheus.Counter
	reconnects       prometheus.Counter
	connectionErrors prometheus.Counter
	openConnections  prometheus.Gauge
}

// NewMetrics creates and registers the channel collectors
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := MetricsConfig{
		Namespace: "realtime",
		Subsystem: "channel",
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&config)
	}

	factory := promauto.With(config.Registry)
	newOpts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}
	}

	return &Metrics{
		framesReceived: factory.NewCounterVec(
			prometheus.CounterOpts(newOpts("frames_received_total", "Inbound frames dispatched, by registered frame type")),
			[]string{"type"},
		),
		framesDropped: factory.NewCounterVec(
			prometheus.CounterOpts(newOpts("frames_dropped_total", "Inbound frames dropped before dispatch, by reason")),
			[]string{"reason"},
		),
		handlerPanics: factory.NewCounterVec(
			prometheus.CounterOpts(newOpts("handler_panics_total", "Handlers that panicked, by registered frame type")),
			[]string{"type"},
		),
		framesSent: factory.NewCounter(
			prometheus.CounterOpts(newOpts("frames_sent_total", "Outbound frames written to the peer")),
		),
		framesDiscarded: factory.NewCounter(
			prometheus.CounterOpts(newOpts("frames_discarded_total", "Outbound frames discarded while disconnected")),
		),
		reconnects: factory.NewCounter(
			prometheus.CounterOpts(newOpts("reconnect_attempts_total", "Scheduled reconnection attempts")),
		),
		connectionErrors: factory.NewCounter(
			prometheus.CounterOpts(newOpts("connection_errors_total", "Failed connection attempts")),
		),
		openConnections: factory.NewGauge(
			prometheus.GaugeOpts(newOpts("open_connections", "Currently established connections")),
		),
	}
}

func (m *Metrics) frameReceived(kind string) {
	if m != nil {
		m.framesReceived.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) frameDropped(reason string) {
	if m != nil {
		m.framesDropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) handlerPanic(kind string) {
	if m != nil {
		m.handlerPanics.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) frameSent() {
	if m != nil {
		m.framesSent.Inc()
	}
}

func (m *Metrics) frameDiscarded() {
	if m != nil {
		m.framesDiscarded.Inc()
	}
}

func (m *Metrics) reconnectScheduled() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *Metrics) connectionError() {
	if m != nil {
		m.connectionErrors.Inc()
	}
}

func (m *Metrics) connectionOpened() {
	if m != nil {
		m.openConnections.Inc()
	}
}

func (m *Metrics) connectionLost() {
	if m != nil {
		m.openConnections.Dec()
	}
}
