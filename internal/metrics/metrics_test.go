package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordMutation(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RecordMutation("ORDER_CREATE", "applied", "")
	m.RecordMutation("ORDER_CREATE", "applied", "")
	m.RecordMutation("ORDER_CREATE", "rejected", "QUOTA_EXCEEDED")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.mutationsTotal.WithLabelValues("ORDER_CREATE", "applied", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mutationsTotal.WithLabelValues("ORDER_CREATE", "rejected", "QUOTA_EXCEEDED")))
}

func TestRecordHTTPRequest(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RecordHTTPRequest("POST", "/api/sync/push", 200, 15*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("POST", "/api/sync/push", "200")))

	m.IncRequestsInFlight()
	m.IncRequestsInFlight()
	m.DecRequestsInFlight()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsInFlight))
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RecordPulledChanges(3)
	m.RecordInvoiceClaimed(50)
	m.RecordRateLimited()
	m.RecordSideEffectFailure("notify")

	assert.Equal(t, 3.0, testutil.ToFloat64(m.pulledChanges))
	assert.Equal(t, 50.0, testutil.ToFloat64(m.invoiceClaimed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rateLimited))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sideEffectFailure.WithLabelValues("notify")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordMutation("ORDER_CREATE", "applied", "")
		m.RecordHTTPRequest("GET", "/healthz", 200, time.Millisecond)
		m.IncRequestsInFlight()
		m.DecRequestsInFlight()
		m.RecordPushBatch(3)
		m.RecordPulledChanges(1)
		m.RecordInvoiceClaimed(1)
		m.RecordRateLimited()
		m.RecordSideEffectFailure("audit")
	})
	assert.Nil(t, m.Registry())
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New(nil)
	m.RecordPushBatch(4)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "laundrysync_push_batch_size")
	assert.Contains(t, string(body), "go_goroutines")
}
