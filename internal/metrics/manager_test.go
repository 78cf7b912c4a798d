package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagersAreIndependent(t *testing.T) {
	first := NewManager()
	second := NewManager()

	first.GetPrometheusMetrics().RecordTxResult("MINT", "SUCCEEDED")
	first.GetPrometheusMetrics().RecordTxResult("MINT", "SUCCEEDED")

	assert.Equal(t, 2.0, testutil.ToFloat64(first.GetPrometheusMetrics().TxResultsTotal.WithLabelValues("MINT", "SUCCEEDED")))
	assert.Equal(t, 0.0, testutil.ToFloat64(second.GetPrometheusMetrics().TxResultsTotal.WithLabelValues("MINT", "SUCCEEDED")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewManager()
	m.GetPrometheusMetrics().RecordSweep("success", 3, 10*time.Millisecond)
	m.GetPrometheusMetrics().RecordMissingEvent("BURN")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "ibet_wst_pending_transactions 3")
	assert.Contains(t, string(body), `ibet_wst_missing_events_total{tx_type="BURN"} 1`)
}
