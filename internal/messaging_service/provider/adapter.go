// Package provider contains the WhatsApp vendor adapters. Each adapter owns
// its HTTP shape, auth headers and webhook payload parsing; everything above
// this package speaks only domain types.
package provider

import (
	"context"

	"github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/domain"
)

// Adapter is implemented once per WhatsApp vendor.
//
// Send returns a SendResult on success. On failure it returns a
// *domain.ProviderError (possibly wrapped) and a SendResult carrying the
// error message, so callers can log a uniform shape either way.
//
// ParseWebhook converts a raw vendor webhook body into zero or more inbound
// events. Payloads the vendor sends that carry nothing actionable (status
// callbacks, group chatter) yield an empty slice and no error; only a
// structurally unreadable body is an error.
type Adapter interface {
	Name() string
	Send(ctx context.Context, msg domain.OutboundMessage) (*domain.SendResult, error)
	ParseWebhook(raw []byte) ([]domain.InboundEvent, error)
}
