package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/domain"
)

const evolutionProviderName = "evolution"

var numberEmojis = []string{"1️⃣", "2️⃣", "3️⃣", "4️⃣", "5️⃣", "6️⃣", "7️⃣", "8️⃣", "9️⃣", "🔟"}

// EvolutionProvider talks to an Evolution API instance. Evolution has no
// reliable interactive-message support, so interactive content is degraded to
// a numbered text menu before sending. That degradation is policy, not a
// fallback: every interactive message through this adapter goes out as text.
type EvolutionProvider struct {
	logger     *slog.Logger
	httpClient *http.Client
	apiURL     string
	apiKey     string
	instance   string
}

func NewEvolutionProvider(logger *slog.Logger, apiURL, apiKey, instance string, httpClient *http.Client) *EvolutionProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &EvolutionProvider{
		logger:     logger.With("provider", evolutionProviderName),
		httpClient: httpClient,
		apiURL:     apiURL,
		apiKey:     apiKey,
		instance:   instance,
	}
}

func (p *EvolutionProvider) Name() string { return evolutionProviderName }

type evolutionTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

type evolutionMediaRequest struct {
	Number    string `json:"number"`
	MediaType string `json:"mediatype"`
	Media     string `json:"media"`
	Caption   string `json:"caption,omitempty"`
}

type evolutionSendResponse struct {
	Key struct {
		ID string `json:"id"`
	} `json:"key"`
	Message json.RawMessage `json:"message"`
	Error   string          `json:"error"`
}

func (p *EvolutionProvider) Send(ctx context.Context, msg domain.OutboundMessage) (*domain.SendResult, error) {
	var (
		path    string
		payload any
	)

	switch msg.Type {
	case domain.MessageTypeText:
		path = "/message/sendText/" + p.instance
		payload = evolutionTextRequest{Number: msg.RecipientPhone, Text: msg.Text}

	case domain.MessageTypeInteractive:
		if msg.Interactive == nil {
			perr := &domain.ProviderError{ProviderName: evolutionProviderName, Kind: domain.ErrKindValidation, Message: "interactive message without content"}
			return p.failure(perr), perr
		}
		path = "/message/sendText/" + p.instance
		payload = evolutionTextRequest{Number: msg.RecipientPhone, Text: RenderInteractiveAsText(msg.Interactive)}

	case domain.MessageTypeImage:
		path = "/message/sendMedia/" + p.instance
		payload = evolutionMediaRequest{Number: msg.RecipientPhone, MediaType: "image", Media: msg.ImageURL, Caption: msg.Text}

	default:
		perr := &domain.ProviderError{ProviderName: evolutionProviderName, Kind: domain.ErrKindValidation, Message: fmt.Sprintf("unknown message type %q", msg.Type)}
		return p.failure(perr), perr
	}

	reqBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling evolution request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+path, bytes.NewBuffer(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("creating evolution HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("apikey", p.apiKey)

	p.logger.DebugContext(ctx, "Sending request to Evolution", "path", path, "recipient", msg.RecipientPhone, "type", msg.Type)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		kind := domain.ErrKindNetwork
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = domain.ErrKindTimeout
		}
		perr := &domain.ProviderError{ProviderName: evolutionProviderName, Kind: kind, Message: err.Error()}
		p.logger.ErrorContext(ctx, "Evolution request failed", "error", err, "kind", kind)
		return p.failure(perr), perr
	}
	defer httpResp.Body.Close()

	respBytes, readErr := io.ReadAll(httpResp.Body)
	if readErr != nil {
		perr := &domain.ProviderError{ProviderName: evolutionProviderName, Kind: domain.ErrKindNetwork, StatusCode: httpResp.StatusCode, Message: fmt.Sprintf("reading response body: %v", readErr)}
		return p.failure(perr), perr
	}

	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
		var resp evolutionSendResponse
		if err := json.Unmarshal(respBytes, &resp); err != nil {
			p.logger.WarnContext(ctx, "Evolution accepted the message but the response body was unparseable", "status_code", httpResp.StatusCode)
			return &domain.SendResult{Success: true, ProviderName: evolutionProviderName}, nil
		}
		p.logger.InfoContext(ctx, "Message sent via Evolution", "provider_message_id", resp.Key.ID, "recipient", msg.RecipientPhone)
		return &domain.SendResult{
			Success:           true,
			ProviderName:      evolutionProviderName,
			ProviderMessageID: resp.Key.ID,
		}, nil
	}

	perr := p.statusError(httpResp.StatusCode, respBytes)
	p.logger.WarnContext(ctx, "Evolution send rejected", "status_code", httpResp.StatusCode, "kind", perr.Kind, "message", perr.Message)
	return p.failure(perr), perr
}

func (p *EvolutionProvider) statusError(statusCode int, body []byte) *domain.ProviderError {
	var kind domain.ErrorKind
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		kind = domain.ErrKindAuth
	case statusCode == http.StatusTooManyRequests:
		kind = domain.ErrKindRateLimited
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		kind = domain.ErrKindTimeout
	case statusCode >= 500:
		kind = domain.ErrKindNetwork
	default:
		kind = domain.ErrKindRejected
	}

	message := fmt.Sprintf("evolution returned status %d", statusCode)
	var resp evolutionSendResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Error != "" {
		message = resp.Error
	}
	return &domain.ProviderError{ProviderName: evolutionProviderName, Kind: kind, StatusCode: statusCode, Message: message}
}

func (p *EvolutionProvider) failure(perr *domain.ProviderError) *domain.SendResult {
	return &domain.SendResult{Success: false, ProviderName: evolutionProviderName, ErrorMessage: perr.Message}
}

// RenderInteractiveAsText flattens interactive content into a numbered text
// menu. Buttons and list rows become numbered options; the user replies with
// the option number or its text.
func RenderInteractiveAsText(ic *domain.InteractiveContent) string {
	var b strings.Builder
	b.WriteString(ic.Body)

	switch ic.Action {
	case domain.ActionButtons:
		if len(ic.Buttons) > 0 {
			b.WriteString("\n")
			for i, btn := range ic.Buttons {
				b.WriteString(fmt.Sprintf("\n%s %s", numberEmoji(i), btn.Label))
			}
			b.WriteString("\n\n_Responda com o número da opção._")
		}
	case domain.ActionList:
		n := 0
		for _, s := range ic.Sections {
			if s.Title != "" {
				b.WriteString(fmt.Sprintf("\n\n*%s*", s.Title))
			}
			for _, row := range s.Rows {
				b.WriteString(fmt.Sprintf("\n%s %s", numberEmoji(n), row.Title))
				if row.Description != "" {
					b.WriteString(" - " + row.Description)
				}
				n++
			}
		}
		if n > 0 {
			b.WriteString("\n\n_Responda com o número da opção._")
		}
	}

	if ic.Footer != "" {
		b.WriteString("\n\n_" + ic.Footer + "_")
	}
	return b.String()
}

func numberEmoji(i int) string {
	if i < len(numberEmojis) {
		return numberEmojis[i]
	}
	return fmt.Sprintf("%d.", i+1)
}

// Evolution webhook payload. Only "messages.upsert" events carry user input;
// everything else is ignored.
type evolutionWebhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		Key struct {
			RemoteJid string `json:"remoteJid"`
			FromMe    bool   `json:"fromMe"`
			ID        string `json:"id"`
		} `json:"key"`
		MessageTimestamp int64 `json:"messageTimestamp"`
		Message          struct {
			Conversation        string `json:"conversation"`
			ExtendedTextMessage struct {
				Text string `json:"text"`
			} `json:"extendedTextMessage"`
			ButtonsResponseMessage struct {
				SelectedButtonID    string `json:"selectedButtonId"`
				SelectedDisplayText string `json:"selectedDisplayText"`
			} `json:"buttonsResponseMessage"`
			ListResponseMessage struct {
				SingleSelectReply struct {
					SelectedRowID string `json:"selectedRowId"`
				} `json:"singleSelectReply"`
			} `json:"listResponseMessage"`
			ImageMessage struct {
				URL     string `json:"url"`
				Caption string `json:"caption"`
			} `json:"imageMessage"`
		} `json:"message"`
	} `json:"data"`
}

func (p *EvolutionProvider) ParseWebhook(raw []byte) ([]domain.InboundEvent, error) {
	var payload evolutionWebhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("unmarshaling evolution webhook: %w", err)
	}

	if payload.Event != "messages.upsert" || payload.Data.Key.FromMe {
		return nil, nil
	}

	phone, err := domain.NormalizePhone(payload.Data.Key.RemoteJid)
	if err != nil {
		p.logger.Warn("Skipping evolution message with unusable sender", "remote_jid", payload.Data.Key.RemoteJid, "error", err)
		return nil, nil
	}

	ev := domain.InboundEvent{
		ProviderName: evolutionProviderName,
		Phone:        phone,
		Timestamp:    time.Unix(payload.Data.MessageTimestamp, 0),
	}
	m := payload.Data.Message

	switch {
	case m.ButtonsResponseMessage.SelectedButtonID != "":
		ev.Type = domain.InboundEventButton
		ev.ReplyID = m.ButtonsResponseMessage.SelectedButtonID
		ev.Text = m.ButtonsResponseMessage.SelectedDisplayText
	case m.ListResponseMessage.SingleSelectReply.SelectedRowID != "":
		ev.Type = domain.InboundEventListReply
		ev.ReplyID = m.ListResponseMessage.SingleSelectReply.SelectedRowID
	case m.ImageMessage.URL != "":
		ev.Type = domain.InboundEventMedia
		ev.MediaURL = m.ImageMessage.URL
		ev.Text = m.ImageMessage.Caption
	case m.Conversation != "":
		ev.Type = domain.InboundEventText
		ev.Text = m.Conversation
	case m.ExtendedTextMessage.Text != "":
		ev.Type = domain.InboundEventText
		ev.Text = m.ExtendedTextMessage.Text
	default:
		return nil, nil
	}

	return []domain.InboundEvent{ev}, nil
}
