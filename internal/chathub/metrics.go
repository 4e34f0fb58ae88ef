package chathub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the realtime core's Prometheus collectors.
type Metrics struct {
	Connections       prometheus.Gauge
	OnlineUsers       prometheus.Gauge
	EventsDelivered   *prometheus.CounterVec
	EventsDropped     *prometheus.CounterVec
	MessagesPersisted prometheus.Counter
	OperationFailures *prometheus.CounterVec
}

// NewMetrics builds the collectors and registers them on reg. A nil reg
// yields working but unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "marketchat",
			Name:      "connections",
			Help:      "Live websocket connections on this instance.",
		}),
		OnlineUsers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "marketchat",
			Name:      "online_users",
			Help:      "Distinct authenticated users with at least one connection.",
		}),
		EventsDelivered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketchat",
			Name:      "events_delivered_total",
			Help:      "Events enqueued to a connection.",
		}, []string{"type"}),
		EventsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketchat",
			Name:      "events_dropped_total",
			Help:      "Events skipped because the connection was closing or saturated.",
		}, []string{"type"}),
		MessagesPersisted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "marketchat",
			Name:      "messages_persisted_total",
			Help:      "Direct messages stored.",
		}),
		OperationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketchat",
			Name:      "operation_failures_total",
			Help:      "Failed client operations by operation and error code.",
		}, []string{"op", "code"}),
	}
}
