package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndGauge(t *testing.T) {
	m := New()
	m.ObserveCheckout("online", "ok")
	m.ObserveCheckout("online", "ok")
	m.ObserveCheckout("offline", "rejected")
	m.ObserveRefresh("error")
	m.ObserveReplay("applied")
	m.SetQueueDepth(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.checkouts.WithLabelValues("online", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checkouts.WithLabelValues("offline", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshes.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.replays.WithLabelValues("applied")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.queueDepth))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.SetQueueDepth(1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pos_offline_queue_depth 1")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCheckout("online", "ok")
		m.ObserveRefresh("ok")
		m.ObserveReplay("conflict")
		m.SetQueueDepth(2)
	})
}
