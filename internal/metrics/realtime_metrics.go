package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RealtimeMetrics contains Prometheus metrics for the push transport and hooks
type RealtimeMetrics struct {
	// Transport
	Connects        *prometheus.CounterVec
	ConnectionsOpen prometheus.Gauge
	HandleRefs      prometheus.Gauge

	// Channels and bindings
	SubscriptionsActive prometheus.Gauge
	SubscribeErrors     prometheus.Counter

	// Events
	EventsReceived *prometheus.CounterVec
	EventsApplied  *prometheus.CounterVec
	EventsDropped  *prometheus.CounterVec
}

// NewRealtimeMetrics initializes and registers realtime metrics
func NewRealtimeMetrics() *RealtimeMetrics {
	m := &RealtimeMetrics{}

	m.Connects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lista_realtime_connects_total",
			Help: "Total number of push transport connection attempts",
		},
		[]string{"result"}, // ok, error
	)

	m.ConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lista_realtime_connections_open",
			Help: "Number of open push transport connections",
		},
	)

	m.HandleRefs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lista_realtime_handle_refs",
			Help: "Number of outstanding references to the shared push transport",
		},
	)

	m.SubscriptionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lista_realtime_subscriptions_active",
			Help: "Number of push channels currently subscribed",
		},
	)

	m.SubscribeErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lista_realtime_subscribe_errors_total",
			Help: "Total number of failed channel subscriptions",
		},
	)

	m.EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lista_realtime_events_received_total",
			Help: "Total number of events received from the push service",
		},
		[]string{"event"},
	)

	m.EventsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lista_realtime_events_applied_total",
			Help: "Total number of events applied to local state by a hook",
		},
		[]string{"hook"},
	)

	m.EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lista_realtime_events_dropped_total",
			Help: "Total number of events dropped before reaching a hook",
		},
		[]string{"reason"}, // unsubscribed, unbound, unknown_event, malformed, buffer_full, inactive
	)

	return m
}
