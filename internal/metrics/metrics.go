package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// singleton instance
	instance *Metrics
	once     sync.Once
)

// Metrics holds Prometheus metrics for Lista
type Metrics struct {
	// Gateway metrics
	GatewayRequestsTotal   *prometheus.CounterVec
	GatewayRequestDuration *prometheus.HistogramVec

	// Store metrics
	StoreMutationsTotal *prometheus.CounterVec
	StoreRollbacksTotal *prometheus.CounterVec
	NotificationsShown  *prometheus.CounterVec

	// Realtime metrics
	Realtime *RealtimeMetrics

	// Dev content API metrics
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec

	// Dev push service metrics
	PushConnectionsActive prometheus.Gauge
	PushEventsPublished   *prometheus.CounterVec
	PushEventsDropped     prometheus.Counter

	// Storage metrics
	StorageOperations        *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec
}

// GetMetrics returns the metrics singleton
func GetMetrics() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

// newMetrics initializes and registers all metrics
func newMetrics() *Metrics {
	m := &Metrics{}

	m.GatewayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lista_gateway_requests_total",
			Help: "Total number of requests issued to the content API",
		},
		[]string{"op", "status"},
	)

	m.GatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lista_gateway_request_duration_seconds",
			Help:    "Content API request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // from 5ms to ~10s
		},
		[]string{"op"},
	)

	m.StoreMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lista_store_mutations_total",
			Help: "Total number of optimistic store mutations by outcome",
		},
		[]string{"store", "op", "outcome"}, // outcome: applied, reverted, cancelled
	)

	m.StoreRollbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lista_store_rollbacks_total",
			Help: "Total number of optimistic updates reverted after a failure",
		},
		[]string{"store", "op"},
	)

	m.NotificationsShown = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lista_notifications_shown_total",
			Help: "Total number of notifications shown",
		},
		[]string{"type"},
	)

	m.Realtime = NewRealtimeMetrics()

	m.APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lista_api_requests_total",
			Help: "Total number of requests served by the dev content API",
		},
		[]string{"method", "route", "status"},
	)

	m.APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lista_api_request_duration_seconds",
			Help:    "Dev content API request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "route"},
	)

	m.PushConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lista_push_connections_active",
			Help: "Number of websocket clients connected to the dev push service",
		},
	)

	m.PushEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lista_push_events_published_total",
			Help: "Total number of events delivered by the dev push service",
		},
		[]string{"event"},
	)

	m.PushEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lista_push_events_dropped_total",
			Help: "Total number of events dropped because a client buffer was full",
		},
	)

	m.StorageOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lista_storage_operations_total",
			Help: "Total number of storage operations",
		},
		[]string{"operation", "success"},
	)

	m.StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lista_storage_operation_duration_seconds",
			Help:    "Duration of storage operations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15), // from 0.1ms to ~1.6s
		},
		[]string{"operation"},
	)

	return m
}
