package prometrics

import (
	"testing"

	"github.com/brewtopia/cafepos/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterIsRegisteredOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New("cafepos", "", reg)

	c1 := r.Counter("orders_total", "help", "outcome")
	c2 := r.Counter("orders_total", "help", "outcome")
	c1.Add(1, observability.L("outcome", "success"))
	c2.Bind(observability.L("outcome", "success")).Add(2)

	n, err := testutil.GatherAndCount(reg, "cafepos_orders_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cv, ok := r.(*registry).counters.Load("orders_total")
	require.True(t, ok)
	assert.InDelta(t, 3.0, testutil.ToFloat64(cv.(*prometheus.CounterVec).WithLabelValues("success")), 1e-9)
}

func TestRegisterDefaultsCoversMetricKeys(t *testing.T) {
	reg := prometheus.NewRegistry()
	inst := RegisterDefaults(New("", "", reg))

	assert.Contains(t, inst.Counters, observability.MUsecaseRequests)
	assert.Contains(t, inst.Counters, observability.MEventPublishFailures)
	assert.Contains(t, inst.Histograms, observability.MUsecaseDuration)
	assert.Contains(t, inst.Gauges, observability.MRealtimeSubscribers)

	g := inst.Gauges[observability.MRealtimeSubscribers]
	g.Add(2)
	g.Add(-1)
	n, err := testutil.GatherAndCount(reg, string(observability.MRealtimeSubscribers))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
