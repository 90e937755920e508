package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all Prometheus metrics for the gateway. Metrics are bound
// to a private registry so multiple instances can coexist in tests.
type Registry struct {
	reg *prometheus.Registry

	// Radio metrics
	PacketsReceived *prometheus.CounterVec
	RadioReconnects prometheus.Gauge

	// Pipeline metrics
	ReportsAccepted prometheus.Counter
	ReportsRejected *prometheus.CounterVec
	QueuePending    prometheus.Gauge

	// Upstream metrics
	PublishAttempts *prometheus.CounterVec

	// Notification metrics
	AcksSent *prometheus.CounterVec
}

// NewRegistry initializes and returns a new Registry with all metrics.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,

		// Radio metrics
		PacketsReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_packets_received_total",
				Help: "Total inbound mesh packets by kind",
			},
			[]string{"kind"},
		),
		RadioReconnects: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_radio_reconnects",
				Help: "Serial reconnect attempts since process start",
			},
		),

		// Pipeline metrics
		ReportsAccepted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_reports_accepted_total",
				Help: "Total note reports accepted into the queue",
			},
		),
		ReportsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_reports_rejected_total",
				Help: "Total note reports rejected by reason",
			},
			[]string{"reason"},
		),
		QueuePending: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_queue_pending",
				Help: "Current number of pending reports in the store",
			},
		),

		// Upstream metrics
		PublishAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_publish_attempts_total",
				Help: "Total upstream publish attempts by result",
			},
			[]string{"result"},
		),

		// Notification metrics
		AcksSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_acks_sent_total",
				Help: "Total directed acknowledgements by kind",
			},
			[]string{"kind"},
		),
	}
}

// Gatherer exposes the underlying registry for the /metrics handler.
func (r *Registry) Gatherer() *prometheus.Registry {
	return r.reg
}
