package notification

import (
	"context"

	"github.com/BoostryJP/ibet-prime-wst/pkg/utils"
	"github.com/sirupsen/logrus"
)

// LogNotifier writes transaction outcomes to the application log
type LogNotifier struct {
	logger *logrus.Entry
}

// NewLogNotifier creates a log notifier
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: utils.ComponentLogger("notification")}
}

func (n *LogNotifier) fields(event *TxEvent) logrus.Fields {
	fields := logrus.Fields{
		"type":         event.Type,
		"tx_id":        event.TxID,
		"tx_type":      event.TxType,
		"status":       event.Status,
		"block_number": event.BlockNumber,
		"gas_used":     event.GasUsed,
	}
	if event.TxHash != "" {
		fields["tx_hash"] = event.TxHash
	}
	if event.Delivery != nil {
		fields["delivery_id"] = event.Delivery.DeliveryID
		fields["delivery_status"] = event.Delivery.Status.String()
	}
	return fields
}

// NotifyTxFinalized implements Notifier
func (n *LogNotifier) NotifyTxFinalized(_ context.Context, event *TxEvent) error {
	entry := n.logger.WithFields(n.fields(event))
	if event.EventLog != nil {
		entry = entry.WithField("event_log", event.EventLog)
	}
	entry.Info("Transaction finalized notification")
	return nil
}

// NotifyTxFailed implements Notifier
func (n *LogNotifier) NotifyTxFailed(_ context.Context, event *TxEvent) error {
	n.logger.WithFields(n.fields(event)).Warn("Transaction failed notification")
	return nil
}

// Close implements Notifier
func (n *LogNotifier) Close() error {
	return nil
}
