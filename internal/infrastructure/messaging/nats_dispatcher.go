// Package messaging hands notifications to the delivery channel over NATS.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/propledger/backend/internal/domain/notification"
	"go.uber.org/zap"
)

// DefaultSubjectPrefix is prepended to the notification kind
const DefaultSubjectPrefix = "notifications"

// Config holds the NATS connection settings
type Config struct {
	URL           string
	Name          string
	SubjectPrefix string
	ReconnectWait time.Duration
}

// publisher is the part of *nats.Conn the dispatcher needs
type publisher interface {
	Publish(subject string, data []byte) error
}

// NatsDispatcher publishes each notification on notifications.<kind>
type NatsDispatcher struct {
	conn   publisher
	prefix string
	logger *zap.Logger
}

// Connect opens a NATS connection that reconnects forever
func Connect(cfg Config, logger *zap.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	wait := cfg.ReconnectWait
	if wait <= 0 {
		wait = 2 * time.Second
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(wait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

// NewNatsDispatcher creates a dispatcher on an open connection
func NewNatsDispatcher(conn publisher, subjectPrefix string, logger *zap.Logger) *NatsDispatcher {
	if subjectPrefix == "" {
		subjectPrefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NatsDispatcher{conn: conn, prefix: subjectPrefix, logger: logger}
}

// Subject returns the subject a notification kind is published on
func (d *NatsDispatcher) Subject(kind notification.Kind) string {
	return d.prefix + "." + string(kind)
}

// Dispatch publishes the notification as JSON
func (d *NatsDispatcher) Dispatch(ctx context.Context, n *notification.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	subject := d.Subject(n.Kind)
	if err := d.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish notification on %s: %w", subject, err)
	}
	d.logger.Debug("Notification dispatched",
		zap.String("subject", subject),
		zap.String("recipient_id", n.RecipientID.String()))
	return nil
}

// LoggingDispatcher logs notifications when no broker is configured
type LoggingDispatcher struct {
	logger *zap.Logger
}

// NewLoggingDispatcher creates a new LoggingDispatcher
func NewLoggingDispatcher(logger *zap.Logger) *LoggingDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingDispatcher{logger: logger}
}

// Dispatch logs the notification
func (d *LoggingDispatcher) Dispatch(_ context.Context, n *notification.Notification) error {
	d.logger.Info("Notification",
		zap.String("kind", string(n.Kind)),
		zap.String("recipient_id", n.RecipientID.String()),
		zap.String("title", n.Title))
	return nil
}

var (
	_ notification.Dispatcher = (*NatsDispatcher)(nil)
	_ notification.Dispatcher = (*LoggingDispatcher)(nil)
	_ publisher               = (*nats.Conn)(nil)
)
