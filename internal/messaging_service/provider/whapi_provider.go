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
	"time"

	"github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/domain"
)

const whapiProviderName = "whapi"

// WhapiProvider talks to the Whapi Cloud REST API. Interactive messages are
// sent natively (quick-reply buttons and list sections).
type WhapiProvider struct {
	logger     *slog.Logger
	httpClient *http.Client
	apiURL     string
	token      string
	channelID  string
}

func NewWhapiProvider(logger *slog.Logger, apiURL, token, channelID string, httpClient *http.Client) *WhapiProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &WhapiProvider{
		logger:     logger.With("provider", whapiProviderName),
		httpClient: httpClient,
		apiURL:     apiURL,
		token:      token,
		channelID:  channelID,
	}
}

func (p *WhapiProvider) Name() string { return whapiProviderName }

type whapiTextRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type whapiImageRequest struct {
	To      string `json:"to"`
	Media   string `json:"media"`
	Caption string `json:"caption,omitempty"`
}

type whapiButton struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	ID    string `json:"id"`
}

type whapiListRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type whapiListSection struct {
	Title string         `json:"title,omitempty"`
	Rows  []whapiListRow `json:"rows"`
}

type whapiInteractiveRequest struct {
	To     string `json:"to"`
	Type   string `json:"type"` // "button" or "list"
	Body   struct {
		Text string `json:"text"`
	} `json:"body"`
	Footer *struct {
		Text string `json:"text"`
	} `json:"footer,omitempty"`
	Action struct {
		Buttons []whapiButton    `json:"buttons,omitempty"`
		List    *whapiListAction `json:"list,omitempty"`
	} `json:"action"`
}

type whapiListAction struct {
	Label    string             `json:"label"`
	Sections []whapiListSection `json:"sections"`
}

type whapiSendResponse struct {
	Sent    bool `json:"sent"`
	Message struct {
		ID string `json:"id"`
	} `json:"message"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *WhapiProvider) Send(ctx context.Context, msg domain.OutboundMessage) (*domain.SendResult, error) {
	path, payload, buildErr := p.buildRequest(msg)
	if buildErr != nil {
		// Content never left the process; no HTTP call is attempted.
		return p.failure(buildErr), buildErr
	}

	reqBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling whapi request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+path, bytes.NewBuffer(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("creating whapi HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.token)
	if p.channelID != "" {
		httpReq.Header.Set("X-Channel-Id", p.channelID)
	}

	p.logger.DebugContext(ctx, "Sending request to Whapi", "path", path, "recipient", msg.RecipientPhone, "type", msg.Type)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		perr := p.transportError(ctx, err)
		p.logger.ErrorContext(ctx, "Whapi request failed", "error", err, "kind", perr.Kind)
		return p.failure(perr), perr
	}
	defer httpResp.Body.Close()

	respBytes, readErr := io.ReadAll(httpResp.Body)
	if readErr != nil {
		perr := &domain.ProviderError{ProviderName: whapiProviderName, Kind: domain.ErrKindNetwork, StatusCode: httpResp.StatusCode, Message: fmt.Sprintf("reading response body: %v", readErr)}
		return p.failure(perr), perr
	}

	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
		var resp whapiSendResponse
		if err := json.Unmarshal(respBytes, &resp); err != nil {
			p.logger.WarnContext(ctx, "Whapi accepted the message but the response body was unparseable", "status_code", httpResp.StatusCode)
			return &domain.SendResult{Success: true, ProviderName: whapiProviderName}, nil
		}
		p.logger.InfoContext(ctx, "Message sent via Whapi", "provider_message_id", resp.Message.ID, "recipient", msg.RecipientPhone)
		return &domain.SendResult{
			Success:           true,
			ProviderName:      whapiProviderName,
			ProviderMessageID: resp.Message.ID,
		}, nil
	}

	perr := p.statusError(httpResp.StatusCode, respBytes)
	p.logger.WarnContext(ctx, "Whapi send rejected", "status_code", httpResp.StatusCode, "kind", perr.Kind, "message", perr.Message)
	return p.failure(perr), perr
}

// buildRequest validates the message against WhatsApp's interactive limits and
// picks the endpoint. Limit violations fail fast instead of truncating.
func (p *WhapiProvider) buildRequest(msg domain.OutboundMessage) (string, any, *domain.ProviderError) {
	switch msg.Type {
	case domain.MessageTypeText:
		return "/messages/text", whapiTextRequest{To: msg.RecipientPhone, Body: msg.Text}, nil

	case domain.MessageTypeImage:
		return "/messages/image", whapiImageRequest{To: msg.RecipientPhone, Media: msg.ImageURL, Caption: msg.Text}, nil

	case domain.MessageTypeInteractive:
		ic := msg.Interactive
		if ic == nil {
			return "", nil, p.validationError("interactive message without content")
		}
		req := whapiInteractiveRequest{To: msg.RecipientPhone}
		req.Body.Text = ic.Body
		if ic.Footer != "" {
			req.Footer = &struct {
				Text string `json:"text"`
			}{Text: ic.Footer}
		}

		switch ic.Action {
		case domain.ActionButtons:
			if len(ic.Buttons) == 0 {
				return "", nil, p.validationError("button action with no buttons")
			}
			if len(ic.Buttons) > domain.MaxQuickReplyButtons {
				return "", nil, p.validationError(fmt.Sprintf("%d quick-reply buttons exceeds the limit of %d", len(ic.Buttons), domain.MaxQuickReplyButtons))
			}
			req.Type = "button"
			for _, b := range ic.Buttons {
				req.Action.Buttons = append(req.Action.Buttons, whapiButton{Type: "quick_reply", Title: b.Label, ID: b.ID})
			}

		case domain.ActionList:
			if len(ic.Sections) == 0 {
				return "", nil, p.validationError("list action with no sections")
			}
			list := &whapiListAction{Label: "Ver opções"}
			for _, s := range ic.Sections {
				if len(s.Rows) > domain.MaxRowsPerSection {
					return "", nil, p.validationError(fmt.Sprintf("section %q has %d rows, limit is %d", s.Title, len(s.Rows), domain.MaxRowsPerSection))
				}
				sec := whapiListSection{Title: s.Title}
				for _, r := range s.Rows {
					sec.Rows = append(sec.Rows, whapiListRow{ID: r.ID, Title: r.Title, Description: r.Description})
				}
				list.Sections = append(list.Sections, sec)
			}
			req.Type = "list"
			req.Action.List = list

		case domain.ActionNone:
			// No action block: goes out as plain text.
			return "/messages/text", whapiTextRequest{To: msg.RecipientPhone, Body: ic.Body}, nil

		default:
			return "", nil, p.validationError(fmt.Sprintf("unknown interactive action %q", ic.Action))
		}
		return "/messages/interactive", req, nil

	default:
		return "", nil, p.validationError(fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

func (p *WhapiProvider) validationError(msg string) *domain.ProviderError {
	return &domain.ProviderError{ProviderName: whapiProviderName, Kind: domain.ErrKindValidation, Message: msg}
}

func (p *WhapiProvider) transportError(ctx context.Context, err error) *domain.ProviderError {
	kind := domain.ErrKindNetwork
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		kind = domain.ErrKindTimeout
	}
	return &domain.ProviderError{ProviderName: whapiProviderName, Kind: kind, Message: err.Error()}
}

func (p *WhapiProvider) statusError(statusCode int, body []byte) *domain.ProviderError {
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

	message := fmt.Sprintf("whapi returned status %d", statusCode)
	var resp whapiSendResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Error.Message != "" {
		message = resp.Error.Message
	}
	return &domain.ProviderError{ProviderName: whapiProviderName, Kind: kind, StatusCode: statusCode, Message: message}
}

func (p *WhapiProvider) failure(perr *domain.ProviderError) *domain.SendResult {
	return &domain.SendResult{Success: false, ProviderName: whapiProviderName, ErrorMessage: perr.Message}
}

// Whapi webhook payload: {"messages": [{...}]}. Outgoing echoes carry
// from_me=true and are skipped.
type whapiWebhookPayload struct {
	Messages []struct {
		ID        string `json:"id"`
		FromMe    bool   `json:"from_me"`
		Type      string `json:"type"`
		ChatID    string `json:"chat_id"`
		From      string `json:"from"`
		Timestamp int64  `json:"timestamp"`
		Text      struct {
			Body string `json:"body"`
		} `json:"text"`
		Image struct {
			Link string `json:"link"`
		} `json:"image"`
		Interactive struct {
			Type        string `json:"type"`
			ButtonReply struct {
				ID    string `json:"id"`
				Title string `json:"title"`
			} `json:"button_reply"`
			ListReply struct {
				ID    string `json:"id"`
				Title string `json:"title"`
			} `json:"list_reply"`
		} `json:"interactive"`
		Reply struct {
			Type    string `json:"type"`
			Buttons struct {
				ID string `json:"id"`
			} `json:"buttons_reply"`
		} `json:"reply"`
	} `json:"messages"`
}

func (p *WhapiProvider) ParseWebhook(raw []byte) ([]domain.InboundEvent, error) {
	var payload whapiWebhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("unmarshaling whapi webhook: %w", err)
	}

	var events []domain.InboundEvent
	for _, m := range payload.Messages {
		if m.FromMe {
			continue
		}
		sender := m.From
		if sender == "" {
			sender = m.ChatID
		}
		phone, err := domain.NormalizePhone(sender)
		if err != nil {
			p.logger.Warn("Skipping whapi message with unusable sender", "sender", sender, "error", err)
			continue
		}

		ev := domain.InboundEvent{
			ProviderName: whapiProviderName,
			Phone:        phone,
			Timestamp:    time.Unix(m.Timestamp, 0),
		}

		switch {
		case m.Interactive.ButtonReply.ID != "":
			ev.Type = domain.InboundEventButton
			ev.ReplyID = m.Interactive.ButtonReply.ID
			ev.Text = m.Interactive.ButtonReply.Title
		case m.Interactive.ListReply.ID != "":
			ev.Type = domain.InboundEventListReply
			ev.ReplyID = m.Interactive.ListReply.ID
			ev.Text = m.Interactive.ListReply.Title
		case m.Reply.Buttons.ID != "":
			ev.Type = domain.InboundEventButton
			ev.ReplyID = m.Reply.Buttons.ID
		case m.Type == "image" && m.Image.Link != "":
			ev.Type = domain.InboundEventMedia
			ev.MediaURL = m.Image.Link
			ev.Text = m.Text.Body
		case m.Text.Body != "":
			ev.Type = domain.InboundEventText
			ev.Text = m.Text.Body
		default:
			continue // status updates, reactions, etc.
		}
		events = append(events, ev)
	}
	return events, nil
}
