package notification

import (
	"context"

	"github.com/BoostryJP/ibet-prime-wst/internal/metrics"
)

// NotifierWithMetrics counts deliveries of a wrapped notifier
type NotifierWithMetrics struct {
	Notifier
	channel        string
	metricsManager *metrics.Manager
}

// NewNotifierWithMetrics wraps notifier, labelling its metrics with channel
func NewNotifierWithMetrics(notifier Notifier, channel string, metricsManager *metrics.Manager) *NotifierWithMetrics {
	return &NotifierWithMetrics{
		Notifier:       notifier,
		channel:        channel,
		metricsManager: metricsManager,
	}
}

func (n *NotifierWithMetrics) record(notificationType string, err error) error {
	prometheus := n.metricsManager.GetPrometheusMetrics()
	if err != nil {
		prometheus.RecordNotificationFailure(n.channel, notificationType)
	} else {
		prometheus.RecordNotificationSent(n.channel, notificationType)
	}
	return err
}

// NotifyTxFinalized implements Notifier
func (n *NotifierWithMetrics) NotifyTxFinalized(ctx context.Context, event *TxEvent) error {
	return n.record(TypeTxFinalized, n.Notifier.NotifyTxFinalized(ctx, event))
}

// NotifyTxFailed implements Notifier
func (n *NotifierWithMetrics) NotifyTxFailed(ctx context.Context, event *TxEvent) error {
	return n.record(TypeTxFailed, n.Notifier.NotifyTxFailed(ctx, event))
}
