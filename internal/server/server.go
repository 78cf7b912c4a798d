package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/BoostryJP/ibet-prime-wst/internal/config"
	"github.com/BoostryJP/ibet-prime-wst/internal/metrics"
	"github.com/BoostryJP/ibet-prime-wst/internal/models"
	"github.com/BoostryJP/ibet-prime-wst/internal/monitor"
	"github.com/BoostryJP/ibet-prime-wst/internal/storage"
	"github.com/BoostryJP/ibet-prime-wst/pkg/utils"
)

const maxListLimit = 500

// HTTPServer exposes read-only views of transaction records and projections
type HTTPServer struct {
	config         *config.ServerConfig
	server         *http.Server
	router         *mux.Router
	storage        storage.Storage
	monitor        monitor.Monitor
	metricsManager *metrics.Manager
	version        string
	logger         *logrus.Entry
	stopCh         chan struct{}
}

// NewHTTPServer creates a new HTTP server. monitor and metricsManager may be nil.
func NewHTTPServer(
	cfg *config.ServerConfig,
	store storage.Storage,
	txMonitor monitor.Monitor,
	metricsManager *metrics.Manager,
	version string,
) *HTTPServer {
	s := &HTTPServer{
		config:         cfg,
		storage:        store,
		monitor:        txMonitor,
		metricsManager: metricsManager,
		version:        version,
		logger:         utils.ComponentLogger("server"),
		stopCh:         make(chan struct{}),
	}

	s.setupRouter()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the router, mainly for tests
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	s.router.Use(s.loggingMiddleware)
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()

	if s.config.EnableHealth {
		api.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	}
	if s.config.EnableMetrics && s.metricsManager != nil {
		s.router.Handle("/metrics", s.metricsManager.Handler())
	}

	api.HandleFunc("/monitor/status", s.monitorStatusHandler).Methods(http.MethodGet)

	api.HandleFunc("/transactions", s.listTransactionsHandler).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{tx_id}", s.getTransactionHandler).Methods(http.MethodGet)

	api.HandleFunc("/tokens/{token_address}", s.getTokenHandler).Methods(http.MethodGet)
	api.HandleFunc("/whitelists/{ibet_wst_address}", s.listWhitelistHandler).Methods(http.MethodGet)

	api.HandleFunc("/deliveries", s.listDeliveriesHandler).Methods(http.MethodGet)
	api.HandleFunc("/deliveries/{exchange_address}/{delivery_id}", s.getDeliveryHandler).Methods(http.MethodGet)
}

// Start starts listening in the background. Binding errors are returned.
func (s *HTTPServer) Start() error {
	s.logger.WithFields(logrus.Fields{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
	}).Info("Starting HTTP server")

	if s.metricsManager != nil {
		s.updateComponentHealth()
		go s.systemMetricsUpdater()
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("HTTP server error")
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

func (s *HTTPServer) systemMetricsUpdater() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.updateComponentHealth()
		case <-s.stopCh:
			return
		}
	}
}

func (s *HTTPServer) updateComponentHealth() {
	s.metricsManager.UpdateSystemMetrics()
	prom := s.metricsManager.GetPrometheusMetrics()
	prom.UpdateComponentHealth("storage", s.storage.Ping() == nil)
	if s.monitor != nil {
		prom.UpdateComponentHealth("monitor", s.monitor.GetHealth().Healthy)
	}
}

// Stop gracefully shuts the server down
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	close(s.stopCh)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	components := map[string]any{}
	healthy := true

	if err := s.storage.Ping(); err != nil {
		healthy = false
		components["storage"] = map[string]any{"healthy": false, "error": err.Error()}
	} else {
		components["storage"] = map[string]any{"healthy": true}
	}
	if s.monitor != nil {
		h := s.monitor.GetHealth()
		healthy = healthy && h.Healthy
		components["monitor"] = h
	}

	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "unhealthy"
	}

	s.writeJSON(w, status, map[string]any{
		"status":     state,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		"version":    s.version,
		"components": components,
	})
}

func (s *HTTPServer) monitorStatusHandler(w http.ResponseWriter, r *http.Request) {
	if s.monitor == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Monitor is not configured", nil)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"running":   s.monitor.IsRunning(),
		"health":    s.monitor.GetHealth(),
		"stats":     s.monitor.GetStats(),
		"timestamp": time.Now().UTC(),
	})
}

func (s *HTTPServer) listTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, offset, err := pagination(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid pagination", err)
		return
	}
	filter := models.TxFilter{Limit: limit, Offset: offset}

	if v := query.Get("status"); v != "" {
		status := models.TxStatus(v)
		if !status.Valid() {
			s.writeError(w, http.StatusBadRequest, "Invalid status", fmt.Errorf("unknown status %q", v))
			return
		}
		filter.Status = &status
	}
	if v := query.Get("type"); v != "" {
		txType := models.TxType(v)
		if !txType.Valid() {
			s.writeError(w, http.StatusBadRequest, "Invalid type", fmt.Errorf("unknown tx_type %q", v))
			return
		}
		filter.TxType = &txType
	}

	txs, err := s.storage.ListTxs(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to list transactions", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"transactions": txs, "count": len(txs)})
}

func (s *HTTPServer) getTransactionHandler(w http.ResponseWriter, r *http.Request) {
	tx, err := s.storage.GetTx(r.Context(), mux.Vars(r)["tx_id"])
	if err != nil {
		s.writeStorageError(w, "Transaction", err)
		return
	}
	s.writeJSON(w, http.StatusOK, tx)
}

func (s *HTTPServer) getTokenHandler(w http.ResponseWriter, r *http.Request) {
	address, ok := s.addressVar(w, r, "token_address")
	if !ok {
		return
	}
	token, err := s.storage.GetToken(r.Context(), address)
	if err != nil {
		s.writeStorageError(w, "Token", err)
		return
	}
	s.writeJSON(w, http.StatusOK, token)
}

func (s *HTTPServer) listWhitelistHandler(w http.ResponseWriter, r *http.Request) {
	address, ok := s.addressVar(w, r, "ibet_wst_address")
	if !ok {
		return
	}
	entries, err := s.storage.ListWhitelist(r.Context(), address)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to list whitelist", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"whitelist": entries, "count": len(entries)})
}

func (s *HTTPServer) listDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid pagination", err)
		return
	}
	filter := models.DeliveryFilter{Limit: limit, Offset: offset}

	if v := r.URL.Query().Get("exchange_address"); v != "" {
		if !utils.IsValidAddress(v) {
			s.writeError(w, http.StatusBadRequest, "Invalid exchange_address", nil)
			return
		}
		filter.ExchangeAddress = utils.ChecksumAddress(v)
	}
	if v := r.URL.Query().Get("status"); v != "" {
		n, err := strconv.Atoi(v)
		status := models.DeliveryStatus(n)
		if err != nil || !status.Valid() {
			s.writeError(w, http.StatusBadRequest, "Invalid status", fmt.Errorf("unknown delivery status %q", v))
			return
		}
		filter.Status = &status
	}

	deliveries, err := s.storage.ListDeliveries(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to list deliveries", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"deliveries": deliveries, "count": len(deliveries)})
}

func (s *HTTPServer) getDeliveryHandler(w http.ResponseWriter, r *http.Request) {
	exchange, ok := s.addressVar(w, r, "exchange_address")
	if !ok {
		return
	}
	id, err := strconv.ParseUint(mux.Vars(r)["delivery_id"], 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid delivery_id", err)
		return
	}

	delivery, err := s.storage.GetDelivery(r.Context(), exchange, id)
	if err != nil {
		s.writeStorageError(w, "Delivery", err)
		return
	}
	s.writeJSON(w, http.StatusOK, delivery)
}

// addressVar reads and checksums an address path variable, answering 400 when malformed
func (s *HTTPServer) addressVar(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := mux.Vars(r)[name]
	if !utils.IsValidAddress(v) {
		s.writeError(w, http.StatusBadRequest, "Invalid "+name, fmt.Errorf("%q is not an address", v))
		return "", false
	}
	return utils.ChecksumAddress(v), true
}

func pagination(r *http.Request) (limit, offset int, err error) {
	limit = 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit <= 0 {
			return 0, 0, fmt.Errorf("limit must be a positive integer")
		}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}

func (s *HTTPServer) writeStorageError(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, what+" not found", nil)
		return
	}
	s.writeError(w, http.StatusInternalServerError, "Failed to retrieve "+what, err)
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := map[string]any{
		"error":     message,
		"status":    status,
		"timestamp": time.Now().UTC(),
	}

	if err != nil {
		resp["details"] = err.Error()
		s.logger.WithFields(logrus.Fields{
			"status":  status,
			"message": message,
		}).WithError(err).Warn("HTTP error")
	}

	s.writeJSON(w, status, resp)
}
