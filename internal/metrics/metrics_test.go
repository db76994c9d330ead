package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMetrics(t *testing.T) {
	metrics := GetMetrics()
	assert.NotNil(t, metrics, "Metrics should not be nil")

	// Registration happens once; a second call must return the same instance
	assert.Same(t, metrics, GetMetrics())
}

func TestAllMetricsInitialized(t *testing.T) {
	m := GetMetrics()

	assert.NotNil(t, m.GatewayRequestsTotal)
	assert.NotNil(t, m.GatewayRequestDuration)
	assert.NotNil(t, m.StoreMutationsTotal)
	assert.NotNil(t, m.StoreRollbacksTotal)
	assert.NotNil(t, m.NotificationsShown)
	assert.NotNil(t, m.APIRequestsTotal)
	assert.NotNil(t, m.APIRequestDuration)
	assert.NotNil(t, m.PushConnectionsActive)
	assert.NotNil(t, m.PushEventsPublished)
	assert.NotNil(t, m.PushEventsDropped)
	assert.NotNil(t, m.StorageOperations)
	assert.NotNil(t, m.StorageOperationDuration)

	require.NotNil(t, m.Realtime)
	assert.NotNil(t, m.Realtime.Connects)
	assert.NotNil(t, m.Realtime.ConnectionsOpen)
	assert.NotNil(t, m.Realtime.HandleRefs)
	assert.NotNil(t, m.Realtime.SubscriptionsActive)
	assert.NotNil(t, m.Realtime.SubscribeErrors)
	assert.NotNil(t, m.Realtime.EventsReceived)
	assert.NotNil(t, m.Realtime.EventsApplied)
	assert.NotNil(t, m.Realtime.EventsDropped)
}

func TestMetricsOperations(t *testing.T) {
	// Isolated registry so values do not depend on other tests
	registry := prometheus.NewRegistry()
	rollbacks := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "test_rollbacks_total", Help: "test"},
		[]string{"store", "op"},
	)
	registry.MustRegister(rollbacks)

	rollbacks.WithLabelValues("lists", "reorder").Inc()
	rollbacks.WithLabelValues("lists", "reorder").Inc()
	rollbacks.WithLabelValues("products", "add").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(rollbacks.WithLabelValues("lists", "reorder")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rollbacks.WithLabelValues("products", "add")))
	assert.Equal(t, 2, testutil.CollectAndCount(rollbacks))
}

func TestRealtimeGaugeMovesBothWays(t *testing.T) {
	g := GetMetrics().Realtime.HandleRefs
	before := testutil.ToFloat64(g)

	g.Inc()
	g.Inc()
	g.Dec()

	assert.Equal(t, before+1, testutil.ToFloat64(g))
	g.Dec()
}
