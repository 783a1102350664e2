package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/domain"
	"github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/provider"
	"github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/repository"
)

// Dispatcher sends outbound messages through the configured provider chain
// and appends exactly one delivery record per send, whatever the outcome.
//
// The chain is the ordered priority list from config: the first adapter is
// primary, the second is the only fallback candidate, and the fallback fires
// only on transient failures (network, timeout, rate limit). Permanent
// failures would fail identically anywhere, so they are not retried.
type Dispatcher struct {
	providers   map[string]provider.Adapter
	priority    []string
	deliveryLog repository.DeliveryLogRepository
	logger      *slog.Logger
}

func NewDispatcher(
	providers map[string]provider.Adapter,
	priority []string,
	deliveryLog repository.DeliveryLogRepository,
	logger *slog.Logger,
) (*Dispatcher, error) {
	if len(priority) == 0 {
		return nil, fmt.Errorf("provider priority list is empty")
	}
	for _, name := range priority {
		if _, ok := providers[name]; !ok {
			return nil, fmt.Errorf("%w: %q in priority list has no adapter", domain.ErrUnknownProvider, name)
		}
	}
	return &Dispatcher{
		providers:   providers,
		priority:    priority,
		deliveryLog: deliveryLog,
		logger:      logger.With("component", "dispatcher"),
	}, nil
}

// SendMessage normalizes the recipient, attempts the send and logs it.
// A phone that cannot be normalized fails before any attempt and before any
// record is written; everything after that point produces exactly one record.
func (d *Dispatcher) SendMessage(ctx context.Context, msg domain.OutboundMessage) (*domain.SendResult, error) {
	normalized, err := domain.NormalizePhone(msg.RecipientPhone)
	if err != nil {
		d.logger.WarnContext(ctx, "Rejecting send with unusable phone", "phone", msg.RecipientPhone, "error", err)
		return nil, err
	}
	msg.RecipientPhone = normalized

	primaryName := d.priority[0]
	result, sendErr := d.attempt(ctx, primaryName, msg)

	if sendErr != nil {
		if perr, ok := domain.AsProviderError(sendErr); ok && perr.Transient() && len(d.priority) > 1 {
			fallbackName := d.priority[1]
			d.logger.WarnContext(ctx, "Primary provider failed transiently, trying fallback",
				"primary", primaryName, "fallback", fallbackName, "error_kind", perr.Kind, "error", sendErr)
			fallbackTotal.WithLabelValues(primaryName, string(perr.Kind)).Inc()

			result, sendErr = d.attempt(ctx, fallbackName, msg)
		}
	}

	record := d.buildRecord(msg, result, sendErr)
	if insertErr := d.deliveryLog.Insert(ctx, record); insertErr != nil {
		// The message may already be with the vendor; the log write failing
		// must not make the caller believe the send itself failed.
		d.logger.ErrorContext(ctx, "Failed to append delivery record", "record_id", record.ID, "error", insertErr)
		if sendErr == nil {
			return result, fmt.Errorf("message sent but delivery record insert failed: %w", insertErr)
		}
	}

	if sendErr != nil {
		return result, sendErr
	}
	d.logger.InfoContext(ctx, "Message dispatched",
		"provider", result.ProviderName, "recipient", msg.RecipientPhone, "template_key", msg.TemplateKey, "record_id", record.ID)
	return result, nil
}

func (d *Dispatcher) attempt(ctx context.Context, providerName string, msg domain.OutboundMessage) (*domain.SendResult, error) {
	adapter := d.providers[providerName]

	start := time.Now()
	result, err := adapter.Send(ctx, msg)
	sendDurationSeconds.WithLabelValues(providerName).Observe(time.Since(start).Seconds())

	status := "sent"
	if err != nil {
		status = "failed"
	}
	messagesSentTotal.WithLabelValues(providerName, status).Inc()

	if result == nil {
		result = &domain.SendResult{Success: err == nil, ProviderName: providerName}
		if err != nil {
			result.ErrorMessage = err.Error()
		}
	}
	return result, err
}

func (d *Dispatcher) buildRecord(msg domain.OutboundMessage, result *domain.SendResult, sendErr error) *domain.DeliveryRecord {
	record := &domain.DeliveryRecord{
		ID:             uuid.New(),
		UserID:         msg.UserID,
		Phone:          msg.RecipientPhone,
		Direction:      domain.DirectionOutbound,
		MessageType:    msg.Type,
		Status:         domain.DeliveryStatusSent,
		ContentPreview: domain.Preview(previewContent(msg)),
		CreatedAt:      time.Now().UTC(),
	}
	if msg.TemplateKey != "" {
		record.TemplateKey = sql.NullString{String: msg.TemplateKey, Valid: true}
	}
	if result != nil {
		record.ProviderName = sql.NullString{String: result.ProviderName, Valid: result.ProviderName != ""}
		if result.ProviderMessageID != "" {
			record.ProviderMessageID = sql.NullString{String: result.ProviderMessageID, Valid: true}
		}
	}
	if sendErr != nil {
		record.Status = domain.DeliveryStatusFailed
		record.ErrorMessage = sql.NullString{String: sendErr.Error(), Valid: true}
	}
	return record
}

func previewContent(msg domain.OutboundMessage) string {
	if msg.Interactive != nil && msg.Interactive.Body != "" {
		return msg.Interactive.Body
	}
	if msg.Text != "" {
		return msg.Text
	}
	return msg.ImageURL
}
