package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BoostryJP/ibet-prime-wst/internal/config"
	"github.com/BoostryJP/ibet-prime-wst/internal/metrics"
	"github.com/BoostryJP/ibet-prime-wst/internal/models"
	"github.com/BoostryJP/ibet-prime-wst/internal/monitor"
	"github.com/BoostryJP/ibet-prime-wst/internal/storage"
	"github.com/BoostryJP/ibet-prime-wst/internal/storage/storagetest"
)

const (
	wstAddress      = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	tokenAddress    = "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"
	exchangeAddress = "0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0"
	accountAddress  = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

type stubMonitor struct {
	healthy bool
}

func (m *stubMonitor) Start(ctx context.Context) error { return nil }
func (m *stubMonitor) Stop() error                    { return nil }
func (m *stubMonitor) IsRunning() bool                { return true }
func (m *stubMonitor) RunOnce(ctx context.Context) (*monitor.SweepResult, error) {
	return &monitor.SweepResult{}, nil
}
func (m *stubMonitor) GetStats() *monitor.MonitorStats { return &monitor.MonitorStats{TotalSweeps: 3} }
func (m *stubMonitor) GetHealth() *monitor.HealthStatus {
	return &monitor.HealthStatus{Healthy: m.healthy, Running: true}
}

func newTestServer(t *testing.T, mon monitor.Monitor) (*HTTPServer, storage.Storage, *metrics.Manager) {
	t.Helper()
	store := storagetest.NewSQLite(t)
	manager := metrics.NewManager()
	cfg := &config.ServerConfig{Host: "127.0.0.1", Port: 0, EnableHealth: true, EnableMetrics: true}
	return NewHTTPServer(cfg, store, mon, manager, "test"), store, manager
}

func get(t *testing.T, s *HTTPServer, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), "Response should be JSON")
	}
	return rec, body
}

func seedTx(t *testing.T, store storage.Storage, id string, txType models.TxType, params models.TxParams) {
	t.Helper()
	target := wstAddress
	tx, err := models.NewEthIbetWSTTx(id, txType, "1", accountAddress, &target, params)
	require.NoError(t, err)
	require.NoError(t, store.CreateTx(context.Background(), tx))
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t, &stubMonitor{healthy: true})
	rec, body := get(t, s, "/api/v1/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["version"])

	s, _, _ = newTestServer(t, &stubMonitor{healthy: false})
	rec, body = get(t, s, "/api/v1/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", body["status"])
}

func TestMonitorStatus(t *testing.T) {
	s, _, _ := newTestServer(t, &stubMonitor{healthy: true})
	rec, body := get(t, s, "/api/v1/monitor/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["running"])
	assert.NotNil(t, body["stats"])

	s, _, _ = newTestServer(t, nil)
	rec, _ = get(t, s, "/api/v1/monitor/status")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTransactions(t *testing.T) {
	s, store, _ := newTestServer(t, nil)
	seedTx(t, store, "tx-1", models.TxTypeMint, &models.MintParams{ToAddress: accountAddress, Value: 10})
	seedTx(t, store, "tx-2", models.TxTypeAddWhitelist, &models.AddWhitelistParams{
		AccountAddress: accountAddress, SCAccountAddressIn: accountAddress, SCAccountAddressOut: accountAddress,
	})
	require.NoError(t, store.MarkTxSent(context.Background(), "tx-2", "0xabc"))

	rec, body := get(t, s, "/api/v1/transactions/tx-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MINT", body["tx_type"])
	assert.Equal(t, "PENDING", body["status"])

	rec, _ = get(t, s, "/api/v1/transactions/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = get(t, s, "/api/v1/transactions")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["count"])

	rec, body = get(t, s, "/api/v1/transactions?status=SENT")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])

	rec, body = get(t, s, "/api/v1/transactions?type=MINT&status=PENDING")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])

	rec, _ = get(t, s, "/api/v1/transactions?status=DONE")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = get(t, s, "/api/v1/transactions?limit=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTokenAndWhitelist(t *testing.T) {
	s, store, _ := newTestServer(t, nil)
	ctx := context.Background()

	require.NoError(t, store.CreateToken(ctx, &models.Token{TokenAddress: tokenAddress, IssuerAddress: accountAddress}))
	_, err := store.AddWhitelist(ctx, &models.WhitelistEntry{
		IbetWSTAddress:      wstAddress,
		AccountAddress:      accountAddress,
		SCAccountAddressIn:  accountAddress,
		SCAccountAddressOut: accountAddress,
	})
	require.NoError(t, err)

	rec, body := get(t, s, "/api/v1/tokens/"+strings.ToLower(tokenAddress))
	require.Equal(t, http.StatusOK, rec.Code, "Lowercase addresses should resolve")
	assert.Equal(t, tokenAddress, body["token_address"])
	assert.Equal(t, false, body["ibet_wst_deployed"])

	rec, _ = get(t, s, "/api/v1/tokens/not-an-address")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = get(t, s, "/api/v1/tokens/"+wstAddress)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = get(t, s, "/api/v1/whitelists/"+wstAddress)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])
}

func TestDeliveries(t *testing.T) {
	s, store, _ := newTestServer(t, nil)
	ctx := context.Background()

	require.NoError(t, store.CreateDelivery(ctx, &models.DVPDelivery{
		ExchangeAddress: exchangeAddress,
		DeliveryID:      4,
		TokenAddress:    tokenAddress,
		SellerAddress:   accountAddress,
		BuyerAddress:    wstAddress,
		AgentAddress:    tokenAddress,
		Amount:          5,
		Status:          models.DeliveryStatusCreated,
		Valid:           true,
	}))

	rec, body := get(t, s, "/api/v1/deliveries/"+exchangeAddress+"/4")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(4), body["delivery_id"])
	assert.Equal(t, true, body["valid"])

	rec, _ = get(t, s, "/api/v1/deliveries/"+exchangeAddress+"/5")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = get(t, s, "/api/v1/deliveries/"+exchangeAddress+"/abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = get(t, s, "/api/v1/deliveries?exchange_address="+exchangeAddress)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])

	rec, body = get(t, s, "/api/v1/deliveries?status=2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), body["count"])
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, manager := newTestServer(t, nil)

	get(t, s, "/api/v1/transactions/none")
	assert.Equal(t, float64(1), testutil.ToFloat64(
		manager.GetPrometheusMetrics().HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/transactions/{tx_id}", "404")))

	rec, _ := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ibet_wst_http_requests_total")
}
