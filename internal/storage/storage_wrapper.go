package storage

import (
	"context"
	"time"

	"github.com/BoostryJP/ibet-prime-wst/internal/metrics"
	"github.com/BoostryJP/ibet-prime-wst/internal/models"
)

// StorageWithMetrics wraps a storage implementation with metrics
type StorageWithMetrics struct {
	Storage
	metricsManager *metrics.Manager
}

// NewStorageWithMetrics creates a storage wrapper with metrics
func NewStorageWithMetrics(storage Storage, metricsManager *metrics.Manager) *StorageWithMetrics {
	return &StorageWithMetrics{
		Storage:        storage,
		metricsManager: metricsManager,
	}
}

func (s *StorageWithMetrics) record(operation, table string, start time.Time, err error) {
	if s.metricsManager == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metricsManager.GetPrometheusMetrics().RecordDatabaseOperation(operation, table, status, time.Since(start))
}

// CreateTx creates a transaction record and records metrics
func (s *StorageWithMetrics) CreateTx(ctx context.Context, tx *models.EthIbetWSTTx) error {
	start := time.Now()
	err := s.Storage.CreateTx(ctx, tx)
	s.record("insert", "ibet_wst_tx", start, err)
	return err
}

// ListPendingTxs lists the polling queue and records metrics
func (s *StorageWithMetrics) ListPendingTxs(ctx context.Context, limit int) ([]*models.EthIbetWSTTx, error) {
	start := time.Now()
	txs, err := s.Storage.ListPendingTxs(ctx, limit)
	s.record("select_pending", "ibet_wst_tx", start, err)
	return txs, err
}

// ListPendingTxsPage lists one page of the polling queue and records metrics
func (s *StorageWithMetrics) ListPendingTxsPage(ctx context.Context, after *models.EthIbetWSTTx, limit int) ([]*models.EthIbetWSTTx, error) {
	start := time.Now()
	txs, err := s.Storage.ListPendingTxsPage(ctx, after, limit)
	s.record("select_pending", "ibet_wst_tx", start, err)
	return txs, err
}

// MarkTxSent records submission and records metrics
func (s *StorageWithMetrics) MarkTxSent(ctx context.Context, txID, txHash string) error {
	start := time.Now()
	err := s.Storage.MarkTxSent(ctx, txID, txHash)
	s.record("mark_sent", "ibet_wst_tx", start, err)
	return err
}

// MarkTxResult records a receipt outcome and records metrics
func (s *StorageWithMetrics) MarkTxResult(ctx context.Context, txID string, status models.TxStatus, blockNumber, gasUsed uint64) (bool, error) {
	start := time.Now()
	changed, err := s.Storage.MarkTxResult(ctx, txID, status, blockNumber, gasUsed)
	s.record("mark_result", "ibet_wst_tx", start, err)
	return changed, err
}

// Transaction runs fn in a database transaction and records metrics
func (s *StorageWithMetrics) Transaction(ctx context.Context, fn func(repo Repository) error) error {
	start := time.Now()
	err := s.Storage.Transaction(ctx, fn)
	s.record("transaction", "*", start, err)
	return err
}
