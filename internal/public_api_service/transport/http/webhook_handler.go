package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// maxWebhookBodyBytes caps vendor payloads; anything larger is hostile.
const maxWebhookBodyBytes = 1 << 20

// Publisher is the slice of the message broker the webhook handler needs.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// WebhookHandler accepts raw vendor webhooks and forwards them to NATS.
// It always acks with 200 once a body was read: vendors retry on 5xx, and a
// payload we cannot process now will not become processable on retry.
type WebhookHandler struct {
	publisher Publisher
	logger    *slog.Logger
}

func NewWebhookHandler(publisher Publisher, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		publisher: publisher,
		logger:    logger.With("component", "webhook_handler"),
	}
}

// HandleIncoming serves POST /webhooks/whatsapp/{provider_name}.
func (h *WebhookHandler) HandleIncoming(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider_name")
	if providerName == "" {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "provider_name is required"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to read webhook body", "provider", providerName, "error", err)
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "unreadable body"})
		return
	}

	subject := "whatsapp.incoming.raw." + providerName
	if err := h.publisher.Publish(r.Context(), subject, body); err != nil {
		// Still ack: losing one webhook beats triggering a vendor retry storm
		// against a broker that is already struggling.
		h.logger.ErrorContext(r.Context(), "Failed to publish webhook to NATS", "subject", subject, "error", err)
	} else {
		h.logger.InfoContext(r.Context(), "Webhook accepted", "provider", providerName, "payload_len", len(body))
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
