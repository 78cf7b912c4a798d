package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the settlement service
type PrometheusMetrics struct {
	// Monitor metrics
	SweepsTotal           *prometheus.CounterVec
	SweepDuration         prometheus.Histogram
	PendingTransactions   prometheus.Gauge
	TxResultsTotal        *prometheus.CounterVec
	ReceiptsNotFoundTotal prometheus.Counter
	TxFinalizedTotal      *prometheus.CounterVec
	FinalityDeferredTotal prometheus.Counter
	MissingEventsTotal    *prometheus.CounterVec
	RecordErrorsTotal     *prometheus.CounterVec
	LatestFinalizedBlock  prometheus.Gauge
	DeliveryTransitions   *prometheus.CounterVec
	SubmittedTransactions *prometheus.CounterVec

	// Connection metrics
	ConnectionErrorsTotal *prometheus.CounterVec
	RPCRequestsTotal      *prometheus.CounterVec
	RPCRequestDuration    *prometheus.HistogramVec

	// Storage metrics
	DatabaseOperationsTotal   *prometheus.CounterVec
	DatabaseOperationDuration *prometheus.HistogramVec

	// Notification metrics
	NotificationsSentTotal    *prometheus.CounterVec
	NotificationFailuresTotal *prometheus.CounterVec

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	ComponentHealth   *prometheus.GaugeVec
}

// NewPrometheusMetrics creates all metrics and registers them on reg
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		SweepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ibet_wst_monitor_sweeps_total",
				Help: "Total number of monitor sweeps",
			},
			[]string{"status"},
		),

		SweepDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ibet_wst_monitor_sweep_duration_seconds",
				Help:    "Time spent on one full sweep of pending transactions",
				Buckets: prometheus.DefBuckets,
			},
		),

		PendingTransactions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ibet_wst_pending_transactions",
				Help: "Number of transactions awaiting a receipt or finality",
			},
		),

		TxResultsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ibet_wst_tx_results_total",
				Help: "Total number of receipt outcomes recorded",
			},
			[]string{"tx_type", "status"},
		),

		ReceiptsNotFoundTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ibet_wst_receipts_not_found_total",
				Help: "Total number of receipt lookups that found nothing yet",
			},
		),

		TxFinalizedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ibet_wst_tx_finalized_total",
				Help: "Total number of finalized transactions",
			},
			[]string{"tx_type"},
		),

		FinalityDeferredTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ibet_wst_finality_deferred_total",
				Help: "Total number of succeeded transactions not yet deep enough to finalize",
			},
		),

		MissingEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ibet_wst_missing_events_total",
				Help: "Total number of succeeded transactions whose expected event was absent",
			},
			[]string{"tx_type"},
		),

		RecordErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ibet_wst_record_errors_total",
				Help: "Total number of per-record processing errors",
			},
			[]string{"stage"},
		),

		LatestFinalizedBlock: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ibet_wst_latest_finalized_block",
				Help: "Latest block number considered final",
			},
		),

		DeliveryTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ibet_wst_delivery_transitions_total",
				Help: "Total number of projected delivery status changes",
			},
			[]string{"status"},
		),

		SubmittedTransactions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ibet_wst_submitted_transactions_total",
				Help: "Total number of settlement transactions submitted",
			},
			[]string{"tx_type", "status"},
		),

		ConnectionErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ibet_wst_connection_errors_total",
				Help: "Total number of connection errors to chain nodes",
			},
			[]string{"endpoint", "error_type"},
		),

		RPCRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ibet_wst_rpc_requests_total",
				Help: "Total number of RPC requests made to chain nodes",
			},
			[]string{"method", "status"},
		),

		RPCRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ibet_wst_rpc_request_duration_seconds",
				Help:    "Duration of RPC requests to chain nodes",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),

		DatabaseOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ibet_wst_database_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "table", "status"},
		),

		DatabaseOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ibet_wst_database_operation_duration_seconds",
				Help:    "Duration of database operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),

		NotificationsSentTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ibet_wst_notifications_sent_total",
				Help: "Total number of notifications sent",
			},
			[]string{"channel", "type"},
		),

		NotificationFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ibet_wst_notification_failures_total",
				Help: "Total number of failed notifications",
			},
			[]string{"channel", "type"},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ibet_wst_http_requests_total",
				Help: "Total number of HTTP requests received",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ibet_wst_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ApplicationUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ibet_wst_application_uptime_seconds",
				Help: "Application uptime in seconds",
			},
		),

		ComponentHealth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ibet_wst_component_health",
				Help: "Health status of application components (1=healthy, 0=unhealthy)",
			},
			[]string{"component"},
		),
	}
}

// RecordSweep records one monitor sweep
func (m *PrometheusMetrics) RecordSweep(status string, pending int, duration time.Duration) {
	m.SweepsTotal.WithLabelValues(status).Inc()
	m.SweepDuration.Observe(duration.Seconds())
	m.PendingTransactions.Set(float64(pending))
}

// RecordTxResult records a SUCCEEDED or FAILED receipt outcome
func (m *PrometheusMetrics) RecordTxResult(txType, status string) {
	m.TxResultsTotal.WithLabelValues(txType, status).Inc()
}

// RecordReceiptNotFound records a receipt that is not available yet
func (m *PrometheusMetrics) RecordReceiptNotFound() {
	m.ReceiptsNotFoundTotal.Inc()
}

// RecordTxFinalized records a finalized transaction
func (m *PrometheusMetrics) RecordTxFinalized(txType string) {
	m.TxFinalizedTotal.WithLabelValues(txType).Inc()
}

// RecordFinalityDeferred records a record left for a later cycle
func (m *PrometheusMetrics) RecordFinalityDeferred() {
	m.FinalityDeferredTotal.Inc()
}

// RecordMissingEvent records a succeeded transaction without its expected event
func (m *PrometheusMetrics) RecordMissingEvent(txType string) {
	m.MissingEventsTotal.WithLabelValues(txType).Inc()
}

// RecordRecordError records a per-record failure at the given stage
func (m *PrometheusMetrics) RecordRecordError(stage string) {
	m.RecordErrorsTotal.WithLabelValues(stage).Inc()
}

// UpdateLatestFinalizedBlock updates the finalized block gauge
func (m *PrometheusMetrics) UpdateLatestFinalizedBlock(blockNumber uint64) {
	m.LatestFinalizedBlock.Set(float64(blockNumber))
}

// RecordDeliveryTransition records a projected delivery status
func (m *PrometheusMetrics) RecordDeliveryTransition(status string) {
	m.DeliveryTransitions.WithLabelValues(status).Inc()
}

// RecordSubmission records a settlement transaction submission
func (m *PrometheusMetrics) RecordSubmission(txType, status string) {
	m.SubmittedTransactions.WithLabelValues(txType, status).Inc()
}

// RecordConnectionError records a connection error
func (m *PrometheusMetrics) RecordConnectionError(endpoint, errorType string) {
	m.ConnectionErrorsTotal.WithLabelValues(endpoint, errorType).Inc()
}

// RecordRPCRequest records an RPC request
func (m *PrometheusMetrics) RecordRPCRequest(method, status string, duration time.Duration) {
	m.RPCRequestsTotal.WithLabelValues(method, status).Inc()
	m.RPCRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordDatabaseOperation records a database operation
func (m *PrometheusMetrics) RecordDatabaseOperation(operation, table, status string, duration time.Duration) {
	m.DatabaseOperationsTotal.WithLabelValues(operation, table, status).Inc()
	m.DatabaseOperationDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordNotificationSent records a sent notification
func (m *PrometheusMetrics) RecordNotificationSent(channel, notificationType string) {
	m.NotificationsSentTotal.WithLabelValues(channel, notificationType).Inc()
}

// RecordNotificationFailure records a failed notification
func (m *PrometheusMetrics) RecordNotificationFailure(channel, notificationType string) {
	m.NotificationFailuresTotal.WithLabelValues(channel, notificationType).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateApplicationUptime updates the application uptime metric
func (m *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	m.ApplicationUptime.Set(time.Since(startTime).Seconds())
}

// UpdateComponentHealth updates the health status of a component
func (m *PrometheusMetrics) UpdateComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.ComponentHealth.WithLabelValues(component).Set(value)
}
