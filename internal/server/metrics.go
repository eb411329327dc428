// Package server exposes Prometheus metrics for the hub: connection
// counts, fan-out volume, and failure counters.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the hub's Prometheus collectors on a private registry
// so multiple server instances (tests in particular) never collide.
type Metrics struct {
	registry *prometheus.Registry

	ConnectedClients  prometheus.Gauge
	EventsBroadcast   prometheus.Counter
	MessagesPersisted prometheus.Counter
	SendFailures      prometheus.Counter
	Evictions         prometheus.Counter
	EventsRejected    prometheus.Counter
}

// NewMetrics creates and registers the hub collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ConnectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chatgenius_connected_clients",
			Help: "Number of currently connected WebSocket clients.",
		}),
		EventsBroadcast: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatgenius_events_broadcast_total",
			Help: "Events fanned out to connected clients.",
		}),
		MessagesPersisted: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatgenius_messages_persisted_total",
			Help: "Messages durably appended to the store.",
		}),
		SendFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatgenius_send_failures_total",
			Help: "Per-connection delivery failures during fan-out.",
		}),
		Evictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatgenius_evictions_total",
			Help: "Connections evicted from the registry.",
		}),
		EventsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatgenius_events_rejected_total",
			Help: "Inbound events dropped by validation or authorization.",
		}),
	}
}

// Handler serves the metrics registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
