package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounters(t *testing.T) {
	r := New()
	r.RecordDecision("EURUSD", "rejected", "confidence_below_minimum")
	r.RecordDecision("EURUSD", "rejected", "confidence_below_minimum")
	r.RecordAdmission("EURUSD", "LONG", "scalp")
	r.RecordCircuitState("broker", "OPEN")
	r.RecordScores("EURUSD", 0.61, 42, 55)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.decisions.WithLabelValues("EURUSD", "rejected", "confidence_below_minimum")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.admitted.WithLabelValues("EURUSD", "LONG", "scalp")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.circuitState.WithLabelValues("broker")))
	assert.Equal(t, 0.61, testutil.ToFloat64(r.hurst.WithLabelValues("EURUSD")))
}

func TestRecordersDoNotCollide(t *testing.T) {
	a, b := New(), New()
	a.RecordAuditlogError()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.auditlogErrs))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.auditlogErrs))
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := New()
	r.RecordRun("schedule", 0.2)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "rtb_run_duration_seconds")
}
