package app

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/maxnutrition/whatsapp-gateway/internal/platform/messagebroker"
)

// RawWebhookEvent is one raw vendor webhook body plus the provider name
// extracted from the NATS subject. Parsing happens downstream in the
// processor; the consumer only moves bytes.
type RawWebhookEvent struct {
	ProviderName string
	Payload      []byte
	ReceivedAt   time.Time
}

// WebhookConsumer consumes raw webhook payloads from NATS and hands them to
// the processing stage through a buffered channel.
type WebhookConsumer struct {
	natsClient *messagebroker.NATSClient
	logger     *slog.Logger
	outputChan chan<- RawWebhookEvent
}

func NewWebhookConsumer(natsClient *messagebroker.NATSClient, logger *slog.Logger, outputChan chan<- RawWebhookEvent) *WebhookConsumer {
	return &WebhookConsumer{
		natsClient: natsClient,
		logger:     logger.With("component", "webhook_consumer"),
		outputChan: outputChan,
	}
}

// StartConsuming subscribes to subject (e.g. "whatsapp.incoming.raw.*") in
// queueGroup and blocks until ctx is cancelled.
func (c *WebhookConsumer) StartConsuming(ctx context.Context, subject, queueGroup string) error {
	msgHandler := func(msg *nats.Msg) {
		webhooksReceivedTotal.WithLabelValues(msg.Subject).Inc()

		// Subject layout: whatsapp.incoming.raw.<provider>
		parts := strings.Split(msg.Subject, ".")
		if len(parts) < 4 || parts[0] != "whatsapp" || parts[1] != "incoming" || parts[2] != "raw" {
			c.logger.ErrorContext(ctx, "Unexpected NATS subject for raw webhook", "subject", msg.Subject)
			return
		}
		providerName := parts[3]
		if providerName == "" || providerName == "*" || providerName == ">" {
			c.logger.ErrorContext(ctx, "Could not determine provider name from subject", "subject", msg.Subject)
			return
		}

		event := RawWebhookEvent{
			ProviderName: providerName,
			Payload:      msg.Data,
			ReceivedAt:   time.Now().UTC(),
		}

		sendCtx, cancelSend := context.WithTimeout(ctx, 5*time.Second)
		defer cancelSend()

		select {
		case c.outputChan <- event:
			c.logger.DebugContext(ctx, "Queued raw webhook for processing", "provider", providerName, "payload_len", len(msg.Data))
		case <-sendCtx.Done():
			c.logger.ErrorContext(ctx, "Timed out queueing raw webhook, dropping", "provider", providerName)
		case <-ctx.Done():
		}
	}

	c.logger.InfoContext(ctx, "Starting NATS subscription", "subject", subject, "queue_group", queueGroup)
	if err := c.natsClient.SubscribeWithQueue(ctx, subject, queueGroup, msgHandler); err != nil && ctx.Err() == nil {
		c.logger.ErrorContext(ctx, "NATS subscription failed", "error", err, "subject", subject)
		return err
	}
	c.logger.InfoContext(ctx, "NATS subscription ended", "subject", subject)
	return nil
}
