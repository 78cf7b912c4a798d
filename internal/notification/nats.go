package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BoostryJP/ibet-prime-wst/internal/config"
	"github.com/BoostryJP/ibet-prime-wst/pkg/utils"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// publisher is the subset of *nats.Conn used for publishing
type publisher interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Close()
}

// NATSNotifier publishes transaction outcomes as JSON on <prefix>.tx.finalized and
// <prefix>.tx.failed
type NATSNotifier struct {
	conn    publisher
	prefix  string
	timeout time.Duration
	logger  *logrus.Entry
}

// NewNATSNotifier connects to the configured NATS server
func NewNATSNotifier(cfg *config.NotificationConfig) (*NATSNotifier, error) {
	logger := utils.ComponentLogger("nats")

	conn, err := nats.Connect(cfg.NATSURL,
		nats.Name("ibet-wst-settlement"),
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.WithError(err).Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, utils.WrapAppError(utils.ErrCodeConnection, "Failed to connect to NATS", err)
	}

	logger.WithField("url", cfg.NATSURL).Info("Connected to NATS")
	return newNATSNotifier(conn, cfg.SubjectPrefix, cfg.Timeout), nil
}

func newNATSNotifier(conn publisher, prefix string, timeout time.Duration) *NATSNotifier {
	return &NATSNotifier{
		conn:    conn,
		prefix:  prefix,
		timeout: timeout,
		logger:  utils.ComponentLogger("nats"),
	}
}

// Subject returns the subject events of eventType are published on
func (n *NATSNotifier) Subject(eventType string) string {
	if n.prefix == "" {
		return eventType
	}
	return n.prefix + "." + eventType
}

func (n *NATSNotifier) publish(event *TxEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.Type, err)
	}

	subject := n.Subject(event.Type)
	if err := n.conn.Publish(subject, payload); err != nil {
		return utils.WrapAppError(utils.ErrCodeConnection, "Failed to publish to NATS", err)
	}
	if n.timeout > 0 {
		if err := n.conn.FlushTimeout(n.timeout); err != nil {
			return utils.WrapAppError(utils.ErrCodeConnection, "Failed to flush NATS connection", err)
		}
	}

	n.logger.WithFields(logrus.Fields{"subject": subject, "tx_id": event.TxID}).Debug("Event published")
	return nil
}

// NotifyTxFinalized implements Notifier
func (n *NATSNotifier) NotifyTxFinalized(_ context.Context, event *TxEvent) error {
	return n.publish(event)
}

// NotifyTxFailed implements Notifier
func (n *NATSNotifier) NotifyTxFailed(_ context.Context, event *TxEvent) error {
	return n.publish(event)
}

// Close implements Notifier
func (n *NATSNotifier) Close() error {
	n.conn.Close()
	return nil
}
