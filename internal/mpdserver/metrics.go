package mpdserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics of the daemon
type Metrics struct {
	CommandsTotal    *prometheus.CounterVec
	ConnectedClients prometheus.Gauge
	OutputChanges    prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		CommandsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mpdoutputs",
				Name:      "commands_total",
				Help:      "Total number of protocol commands processed",
			},
			[]string{"command", "status"}, // status=ok/ack
		),
		ConnectedClients: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "mpdoutputs",
				Name:      "connected_clients",
				Help:      "Number of connected clients",
			},
		),
		OutputChanges: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "mpdoutputs",
				Name:      "output_changes_total",
				Help:      "Total number of output state changes",
			},
		),
	}
}
