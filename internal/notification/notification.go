package notification

import (
	"context"
	"errors"
	"time"

	"github.com/BoostryJP/ibet-prime-wst/internal/models"
)

// Event types
const (
	TypeTxFinalized = "tx.finalized"
	TypeTxFailed    = "tx.failed"
)

// Notifier receives transaction outcomes from the monitor. Implementations must not
// block the monitor for long; delivery failures are returned for logging only.
type Notifier interface {
	NotifyTxFinalized(ctx context.Context, event *TxEvent) error
	NotifyTxFailed(ctx context.Context, event *TxEvent) error
	Close() error
}

// TxEvent describes one resolved transaction
type TxEvent struct {
	Type        string              `json:"type"`
	TxID        string              `json:"tx_id"`
	TxType      models.TxType       `json:"tx_type"`
	Status      models.TxStatus     `json:"status"`
	TxHash      string              `json:"tx_hash,omitempty"`
	Contract    string              `json:"ibet_wst_address,omitempty"`
	BlockNumber uint64              `json:"block_number"`
	GasUsed     uint64              `json:"gas_used"`
	EventLog    models.EventLog     `json:"event_log,omitempty"`
	Delivery    *models.DVPDelivery `json:"delivery,omitempty"`
	Timestamp   time.Time           `json:"timestamp"`
}

// NewTxEvent builds an event of eventType from a transaction record
func NewTxEvent(eventType string, tx *models.EthIbetWSTTx) *TxEvent {
	event := &TxEvent{
		Type:      eventType,
		TxID:      tx.TxID,
		TxType:    tx.TxType,
		Status:    tx.Status,
		EventLog:  tx.EventLog,
		Timestamp: time.Now().UTC(),
	}
	if tx.TxHash != nil {
		event.TxHash = *tx.TxHash
	}
	if tx.IbetWSTAddress != nil {
		event.Contract = *tx.IbetWSTAddress
	}
	if tx.BlockNumber != nil {
		event.BlockNumber = *tx.BlockNumber
	}
	if tx.GasUsed != nil {
		event.GasUsed = *tx.GasUsed
	}
	return event
}

// Multi fans an event out to several notifiers
type Multi []Notifier

// NotifyTxFinalized implements Notifier
func (m Multi) NotifyTxFinalized(ctx context.Context, event *TxEvent) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyTxFinalized(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NotifyTxFailed implements Notifier
func (m Multi) NotifyTxFailed(ctx context.Context, event *TxEvent) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyTxFailed(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Notifier
func (m Multi) Close() error {
	var errs []error
	for _, n := range m {
		if err := n.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards every event
type Nop struct{}

// NotifyTxFinalized implements Notifier
func (Nop) NotifyTxFinalized(context.Context, *TxEvent) error {
	return nil
}

// NotifyTxFailed implements Notifier
func (Nop) NotifyTxFailed(context.Context, *TxEvent) error {
	return nil
}

// Close implements Notifier
func (Nop) Close() error {
	return nil
}
