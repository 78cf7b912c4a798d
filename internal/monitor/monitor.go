package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BoostryJP/ibet-prime-wst/internal/applier"
	"github.com/BoostryJP/ibet-prime-wst/internal/config"
	"github.com/BoostryJP/ibet-prime-wst/internal/connection"
	"github.com/BoostryJP/ibet-prime-wst/internal/metrics"
	"github.com/BoostryJP/ibet-prime-wst/internal/models"
	"github.com/BoostryJP/ibet-prime-wst/internal/notification"
	"github.com/BoostryJP/ibet-prime-wst/internal/storage"
	"github.com/BoostryJP/ibet-prime-wst/pkg/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Monitor defines the transaction receipt monitor interface
type Monitor interface {
	// Lifecycle management
	Start(ctx context.Context) error
	Stop() error
	IsRunning() bool

	// RunOnce performs one sweep over the pending transactions
	RunOnce(ctx context.Context) (*SweepResult, error)

	// Statistics and monitoring
	GetStats() *MonitorStats
	GetHealth() *HealthStatus
}

// Outcome of processing one record in a sweep
type Outcome string

const (
	OutcomeNotFound  Outcome = "not_found"
	OutcomeFailed    Outcome = "failed"
	OutcomeDeferred  Outcome = "deferred"
	OutcomeFinalized Outcome = "finalized"
	OutcomeError     Outcome = "error"
)

// SweepResult summarizes one sweep
type SweepResult struct {
	StartedAt time.Time          `json:"started_at"`
	Duration  time.Duration      `json:"duration"`
	Pending   int                `json:"pending"`
	Outcomes  map[string]Outcome `json:"outcomes"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	NotFound  int                `json:"not_found"`
	Deferred  int                `json:"deferred"`
	Finalized int                `json:"finalized"`
	Errors    int                `json:"errors"`
}

// MonitorStats provides monitoring statistics
type MonitorStats struct {
	StartTime      time.Time    `json:"start_time"`
	Uptime         string       `json:"uptime"`
	IsRunning      bool         `json:"is_running"`
	TotalSweeps    uint64       `json:"total_sweeps"`
	TotalSucceeded uint64       `json:"total_succeeded"`
	TotalFailed    uint64       `json:"total_failed"`
	TotalFinalized uint64       `json:"total_finalized"`
	ErrorCount     uint64       `json:"error_count"`
	LastSweep      *SweepResult `json:"last_sweep,omitempty"`
	LastError      *string      `json:"last_error,omitempty"`
	LastErrorTime  *time.Time   `json:"last_error_time,omitempty"`
}

// HealthStatus provides health information
type HealthStatus struct {
	Healthy       bool      `json:"healthy"`
	Running       bool      `json:"running"`
	LastSweepAt   time.Time `json:"last_sweep_at"`
	StorageHealth bool      `json:"storage_healthy"`
	Issues        []string  `json:"issues,omitempty"`
}

// stageError tags a per-record error with the step that failed
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return fmt.Sprintf("%s: %v", e.stage, e.err) }
func (e *stageError) Unwrap() error { return e.err }

func atStage(stage string, err error) error {
	return &stageError{stage: stage, err: err}
}

// TxMonitor reconciles sent transactions with their on-chain receipts, applies the
// events of successful ones and finalizes them once their block is irreversible
type TxMonitor struct {
	// Dependencies
	storage  storage.Storage
	chain    Chain
	gate     FinalityGate
	applier  *applier.Applier
	notifier notification.Notifier
	logger   *logrus.Logger

	// Configuration
	config *config.MonitorConfig

	// State management
	mu       sync.RWMutex
	running  bool
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	sweeps   singleflight.Group
	runCtx   context.Context

	// Statistics
	stats          *MonitorStats
	metricsManager *metrics.Manager
}

// NewTxMonitor creates a new transaction monitor
func NewTxMonitor(
	store storage.Storage,
	chain Chain,
	gate FinalityGate,
	eventApplier *applier.Applier,
	notifier notification.Notifier,
	cfg *config.MonitorConfig,
) *TxMonitor {
	if notifier == nil {
		notifier = notification.Nop{}
	}
	return &TxMonitor{
		storage:  store,
		chain:    chain,
		gate:     gate,
		applier:  eventApplier,
		notifier: notifier,
		config:   cfg,
		logger:   utils.GetLogger(),
		stopChan: make(chan struct{}),
		runCtx:   context.Background(),
		stats: &MonitorStats{
			StartTime: time.Now(),
		},
	}
}

// SetLogger replaces the logger, used to capture output
func (m *TxMonitor) SetLogger(logger *logrus.Logger) {
	m.logger = logger
}

// SetMetricsManager enables monitor metrics
func (m *TxMonitor) SetMetricsManager(metricsManager *metrics.Manager) {
	m.metricsManager = metricsManager
}

func (m *TxMonitor) prometheus() *metrics.PrometheusMetrics {
	if m.metricsManager == nil {
		return nil
	}
	return m.metricsManager.GetPrometheusMetrics()
}

// Start runs a sweep immediately and then on every poll interval until Stop or ctx is done
func (m *TxMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return utils.NewAppError(utils.ErrCodeInternal, "Monitor already running", "")
	}

	m.running = true
	m.runCtx = ctx
	m.stats.StartTime = time.Now()
	m.stats.IsRunning = true

	m.wg.Add(1)
	go m.monitoringLoop(ctx)

	m.logger.WithFields(logrus.Fields{
		"poll_interval":   m.config.PollInterval,
		"receipt_timeout": m.config.ReceiptTimeout,
		"concurrent_jobs": m.config.ConcurrentJobs,
		"finality_mode":   m.config.FinalityMode,
	}).Info("Transaction monitor started")
	return nil
}

// Stop stops the monitor and waits for the running sweep to end
func (m *TxMonitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.logger.Info("Stopping transaction monitor")
	m.running = false
	m.stats.IsRunning = false
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
	m.mu.Unlock()

	m.wg.Wait()

	m.logger.Info("Transaction monitor stopped")
	return nil
}

// IsRunning returns whether the monitor is running
func (m *TxMonitor) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// monitoringLoop is the main polling loop
func (m *TxMonitor) monitoringLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	m.runSweep(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Monitoring loop stopped by context")
			return
		case <-m.stopChan:
			m.logger.Info("Monitoring loop stopped by stop signal")
			return
		case <-ticker.C:
			m.runSweep(ctx)
		}
	}
}

// runSweep waits for the sweep to end even when it was started by another caller,
// so Stop returns only after in-flight work is done
func (m *TxMonitor) runSweep(ctx context.Context) {
	if _, err := m.sweepResult(<-m.startSweep(ctx)); err != nil && !errors.Is(err, context.Canceled) {
		m.logger.WithError(err).Error("Error running monitor sweep")
	}
}

// RunOnce performs one sweep. Concurrent callers share the sweep already in flight.
// The shared sweep does not inherit any caller's cancellation: it is interrupted only by
// Stop or by the context given to Start. A caller whose ctx ends returns ctx.Err() early.
func (m *TxMonitor) RunOnce(ctx context.Context) (*SweepResult, error) {
	select {
	case res := <-m.startSweep(ctx):
		return m.sweepResult(res)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *TxMonitor) startSweep(ctx context.Context) <-chan singleflight.Result {
	return m.sweeps.DoChan("sweep", func() (any, error) {
		m.mu.RLock()
		runCtx := m.runCtx
		m.mu.RUnlock()

		sweepCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
		go func() {
			select {
			case <-m.stopChan:
			case <-runCtx.Done():
			case <-sweepCtx.Done():
			}
			cancel()
		}()
		return m.sweep(sweepCtx)
	})
}

func (m *TxMonitor) sweepResult(res singleflight.Result) (*SweepResult, error) {
	if res.Shared {
		m.logger.Debug("Joined sweep already in progress")
	}
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Val.(*SweepResult), nil
}

func (m *TxMonitor) sweep(ctx context.Context) (*SweepResult, error) {
	result := &SweepResult{StartedAt: time.Now(), Outcomes: make(map[string]Outcome)}

	// batch_size bounds one page, not the sweep: every pending record is visited, so
	// records that never resolve cannot starve newer ones
	var after *models.EthIbetWSTTx
	for ctx.Err() == nil {
		page, err := m.storage.ListPendingTxsPage(ctx, after, m.config.BatchSize)
		if err != nil {
			m.recordError(err)
			if prom := m.prometheus(); prom != nil {
				prom.RecordSweep("error", result.Pending, time.Since(result.StartedAt))
			}
			return nil, utils.WrapAppError(utils.ErrCodeDatabase, "Failed to list pending transactions", err)
		}
		result.Pending += len(page)
		m.processPage(ctx, page, result)

		if m.config.BatchSize <= 0 || len(page) < m.config.BatchSize {
			break
		}
		after = page[len(page)-1]
	}

	result.Duration = time.Since(result.StartedAt)
	m.updateStats(result)

	if prom := m.prometheus(); prom != nil {
		status := "success"
		if result.Errors > 0 {
			status = "partial"
		}
		prom.RecordSweep(status, result.Pending, result.Duration)
	}

	m.logger.WithFields(logrus.Fields{
		"pending":   result.Pending,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
		"not_found": result.NotFound,
		"deferred":  result.Deferred,
		"finalized": result.Finalized,
		"errors":    result.Errors,
		"duration":  result.Duration,
	}).Debug("Monitor sweep completed")

	return result, ctx.Err()
}

// processPage processes one page of pending records with bounded concurrency
func (m *TxMonitor) processPage(ctx context.Context, page []*models.EthIbetWSTTx, result *SweepResult) {
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	if m.config.ConcurrentJobs > 0 {
		g.SetLimit(m.config.ConcurrentJobs)
	}

	// pages are disjoint and list each tx_id once, so no two goroutines touch the same record
	for _, tx := range page {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcome, succeeded, err := m.processTx(ctx, tx)
			if err != nil {
				if ctx.Err() != nil {
					// Shutdown interrupted the record; it stays pending
					return nil
				}
				outcome = OutcomeError
				m.handleRecordError(tx, err)
			}

			mu.Lock()
			defer mu.Unlock()
			result.Outcomes[tx.TxID] = outcome
			if succeeded {
				result.Succeeded++
			}
			switch outcome {
			case OutcomeNotFound:
				result.NotFound++
			case OutcomeFailed:
				result.Failed++
			case OutcomeDeferred:
				result.Deferred++
			case OutcomeFinalized:
				result.Finalized++
			case OutcomeError:
				result.Errors++
			}
			return nil
		})
	}
	_ = g.Wait()
}

// processTx advances one record as far as the chain allows. The bool reports that
// the record moved to SUCCEEDED in this call.
func (m *TxMonitor) processTx(ctx context.Context, tx *models.EthIbetWSTTx) (Outcome, bool, error) {
	m.logger.Infof("Monitor transaction: id=%s, type=%s", tx.TxID, tx.TxType)

	if tx.TxHash == nil || *tx.TxHash == "" {
		return "", false, atStage("receipt", utils.NewAppError(utils.ErrCodeInvariantViolation,
			"Sent transaction has no hash", tx.TxID))
	}

	receipt, err := m.chain.WaitForTransactionReceipt(ctx, common.HexToHash(*tx.TxHash), m.config.ReceiptTimeout)
	if err != nil {
		if errors.Is(err, connection.ErrReceiptNotFound) {
			m.logger.Infof("Transaction receipt not found, skipping processing: id=%s", tx.TxID)
			if prom := m.prometheus(); prom != nil {
				prom.RecordReceiptNotFound()
			}
			return OutcomeNotFound, false, nil
		}
		return "", false, atStage("receipt", err)
	}

	blockNumber := receipt.BlockNumber.Uint64()
	gasUsed := receipt.GasUsed

	if receipt.Status != types.ReceiptStatusSuccessful {
		changed, err := m.storage.MarkTxResult(ctx, tx.TxID, models.TxStatusFailed, blockNumber, gasUsed)
		if err != nil {
			return "", false, atStage("mark_result", err)
		}
		if changed {
			m.logger.Infof("Transaction failed: id=%s, block_number=%d, gas_used=%d", tx.TxID, blockNumber, gasUsed)
			m.recordResult(tx, models.TxStatusFailed)
			m.notifyFailed(ctx, tx, blockNumber, gasUsed)
		}
		return OutcomeFailed, false, nil
	}

	changed, err := m.storage.MarkTxResult(ctx, tx.TxID, models.TxStatusSucceeded, blockNumber, gasUsed)
	if err != nil {
		return "", false, atStage("mark_result", err)
	}
	if changed {
		m.logger.Infof("Transaction succeeded: id=%s, block_number=%d, gas_used=%d", tx.TxID, blockNumber, gasUsed)
		m.recordResult(tx, models.TxStatusSucceeded)
	}

	finalizedBlock, err := m.gate.FinalizedBlock(ctx)
	if err != nil {
		return "", changed, atStage("finality", err)
	}
	if prom := m.prometheus(); prom != nil {
		prom.UpdateLatestFinalizedBlock(finalizedBlock)
	}
	if blockNumber > finalizedBlock {
		m.logger.WithFields(logrus.Fields{
			"tx_id":           tx.TxID,
			"block_number":    blockNumber,
			"finalized_block": finalizedBlock,
		}).Debug("Transaction block not finalized yet")
		if prom := m.prometheus(); prom != nil {
			prom.RecordFinalityDeferred()
		}
		return OutcomeDeferred, changed, nil
	}

	applied, err := m.finalize(ctx, tx, receipt)
	if err != nil {
		return "", changed, atStage("finalize", err)
	}

	m.logger.Infof("Transaction finalized: id=%s, block_number=%d, gas_used=%d", tx.TxID, blockNumber, gasUsed)
	if prom := m.prometheus(); prom != nil {
		prom.RecordTxFinalized(string(tx.TxType))
		if applied.EventLog == nil {
			prom.RecordMissingEvent(string(tx.TxType))
		}
		if applied.Delivery != nil {
			prom.RecordDeliveryTransition(applied.Delivery.Status.String())
		}
	}
	m.notifyFinalized(ctx, tx, applied, blockNumber, gasUsed)

	return OutcomeFinalized, changed, nil
}

// finalize applies the event projection and marks the record finalized in one
// storage transaction
func (m *TxMonitor) finalize(ctx context.Context, tx *models.EthIbetWSTTx, receipt *types.Receipt) (*applier.Result, error) {
	var applied *applier.Result
	err := m.storage.Transaction(ctx, func(repo storage.Repository) error {
		result, err := m.applier.Apply(ctx, repo, tx, receipt)
		if err != nil {
			return err
		}
		if err := repo.MarkTxFinalized(ctx, tx.TxID, result.EventLog); err != nil {
			return err
		}
		applied = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

func (m *TxMonitor) notifyFinalized(ctx context.Context, tx *models.EthIbetWSTTx, applied *applier.Result, blockNumber, gasUsed uint64) {
	event := notification.NewTxEvent(notification.TypeTxFinalized, tx)
	event.Status = models.TxStatusSucceeded
	event.BlockNumber = blockNumber
	event.GasUsed = gasUsed
	event.EventLog = applied.EventLog
	event.Delivery = applied.Delivery

	if err := m.notifier.NotifyTxFinalized(ctx, event); err != nil {
		m.logger.WithError(err).WithField("tx_id", tx.TxID).Warn("Failed to send finalization notification")
	}
}

func (m *TxMonitor) notifyFailed(ctx context.Context, tx *models.EthIbetWSTTx, blockNumber, gasUsed uint64) {
	event := notification.NewTxEvent(notification.TypeTxFailed, tx)
	event.Status = models.TxStatusFailed
	event.BlockNumber = blockNumber
	event.GasUsed = gasUsed

	if err := m.notifier.NotifyTxFailed(ctx, event); err != nil {
		m.logger.WithError(err).WithField("tx_id", tx.TxID).Warn("Failed to send failure notification")
	}
}

func (m *TxMonitor) recordResult(tx *models.EthIbetWSTTx, status models.TxStatus) {
	if prom := m.prometheus(); prom != nil {
		prom.RecordTxResult(string(tx.TxType), string(status))
	}
}

func (m *TxMonitor) handleRecordError(tx *models.EthIbetWSTTx, err error) {
	stage := "unknown"
	var se *stageError
	if errors.As(err, &se) {
		stage = se.stage
	}

	entry := m.logger.WithFields(logrus.Fields{
		"tx_id":   tx.TxID,
		"tx_type": tx.TxType,
		"stage":   stage,
		"error":   err.Error(),
	})
	if code := utils.ErrorCode(err); code != "" {
		entry = entry.WithField("code", code)
	}
	entry.Error("Failed to process transaction")

	m.recordError(err)
	if prom := m.prometheus(); prom != nil {
		prom.RecordRecordError(stage)
	}
}

func (m *TxMonitor) recordError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.ErrorCount++
	msg := err.Error()
	now := time.Now()
	m.stats.LastError = &msg
	m.stats.LastErrorTime = &now
}

func (m *TxMonitor) updateStats(result *SweepResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.TotalSweeps++
	m.stats.TotalSucceeded += uint64(result.Succeeded)
	m.stats.TotalFailed += uint64(result.Failed)
	m.stats.TotalFinalized += uint64(result.Finalized)
	m.stats.LastSweep = result
}

// GetStats returns a copy of the monitor statistics
func (m *TxMonitor) GetStats() *MonitorStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := *m.stats
	stats.IsRunning = m.running
	stats.Uptime = time.Since(m.stats.StartTime).Round(time.Second).String()
	return &stats
}

// GetHealth returns the monitor health
func (m *TxMonitor) GetHealth() *HealthStatus {
	m.mu.RLock()
	health := &HealthStatus{
		Healthy: true,
		Running: m.running,
	}
	if m.stats.LastSweep != nil {
		health.LastSweepAt = m.stats.LastSweep.StartedAt
	}
	m.mu.RUnlock()

	health.StorageHealth = m.storage.Ping() == nil
	if !health.StorageHealth {
		health.Healthy = false
		health.Issues = append(health.Issues, "storage unreachable")
	}
	if health.Running && !health.LastSweepAt.IsZero() && time.Since(health.LastSweepAt) > 3*m.config.PollInterval+m.config.ReceiptTimeout {
		health.Healthy = false
		health.Issues = append(health.Issues, "no sweep completed recently")
	}
	return health
}
