package messagebroker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSClient wraps a core NATS connection for publishing and queue subscriptions.
type NATSClient struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewNATSClient connects to NATS with reconnect handling. appName is used as
// the connection name so connections are attributable in the NATS monitor.
func NewNATSClient(url string, logger *slog.Logger, appName string) (*NATSClient, error) {
	l := logger.With("component", "nats_client")

	opts := []nats.Option{
		nats.Name(appName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			l.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			l.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			l.Info("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	l.Info("Connected to NATS", "url", conn.ConnectedUrl())

	return &NATSClient{conn: conn, logger: l}, nil
}

// Publish sends data to a subject.
func (c *NATSClient) Publish(ctx context.Context, subject string, data []byte) error {
	if err := c.conn.Publish(subject, data); err != nil {
		c.logger.ErrorContext(ctx, "Failed to publish NATS message", "subject", subject, "error", err)
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}

// SubscribeWithQueue subscribes to subject within a queue group and invokes
// handler for each message. It blocks until ctx is cancelled, then drains the
// subscription so in-flight handlers can finish.
func (c *NATSClient) SubscribeWithQueue(ctx context.Context, subject, queueGroup string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.QueueSubscribe(subject, queueGroup, handler)
	if err != nil {
		return fmt.Errorf("subscribing to %s (queue %s): %w", subject, queueGroup, err)
	}
	c.logger.InfoContext(ctx, "Subscribed to NATS subject", "subject", subject, "queue_group", queueGroup)

	<-ctx.Done()

	if err := sub.Drain(); err != nil {
		c.logger.Warn("Error draining NATS subscription", "subject", subject, "error", err)
	}
	return ctx.Err()
}

// Close drains and closes the underlying connection.
func (c *NATSClient) Close() {
	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Drain(); err != nil {
			c.logger.Warn("Error draining NATS connection", "error", err)
		}
	}
}
