package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	msgdomain "github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/domain"
	"github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/repository"
	"github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/template"
)

// MessageDispatcher is the outbound side the notify endpoints need.
type MessageDispatcher interface {
	SendMessage(ctx context.Context, msg msgdomain.OutboundMessage) (*msgdomain.SendResult, error)
}

// NotifyHandler serves the operator-facing send endpoints.
type NotifyHandler struct {
	dispatcher MessageDispatcher
	wellness   repository.WellnessRepository
	validate   *validator.Validate
	logger     *slog.Logger
}

func NewNotifyHandler(dispatcher MessageDispatcher, wellness repository.WellnessRepository, logger *slog.Logger) *NotifyHandler {
	return &NotifyHandler{
		dispatcher: dispatcher,
		wellness:   wellness,
		validate:   validator.New(),
		logger:     logger.With("component", "notify_handler"),
	}
}

// HandleSend serves POST /notify/send: an ad-hoc plain-text message.
func (h *NotifyHandler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	msg := msgdomain.OutboundMessage{
		RecipientPhone: req.Phone,
		Type:           msgdomain.MessageTypeText,
		Text:           req.Message,
	}
	if user, err := h.wellness.GetUserByPhone(r.Context(), req.Phone); err == nil {
		msg.UserID = uuid.NullUUID{UUID: user.ID, Valid: true}
	}

	h.respondWithResult(w, r, msg)
}

// HandleTemplate serves POST /notify/template: renders a built-in template
// for a registered user, enriching the data bag with live wellness values.
func (h *NotifyHandler) HandleTemplate(w http.ResponseWriter, r *http.Request) {
	var req SendTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	user, err := h.wellness.GetUserByPhone(r.Context(), req.Phone)
	if err != nil {
		if errors.Is(err, msgdomain.ErrUserNotFound) {
			respondJSON(w, http.StatusNotFound, errorResponse{Error: "no user registered with this phone"})
			return
		}
		h.logger.ErrorContext(r.Context(), "Failed to resolve user for template send", "error", err)
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "user lookup failed"})
		return
	}

	data := template.Data{}
	for k, v := range req.Data {
		data[k] = v
	}
	if _, ok := data["nome"]; !ok {
		data["nome"] = user.FirstName()
	}
	h.enrichTemplateData(r.Context(), user, req.TemplateKey, data)

	content, err := template.Render(req.TemplateKey, data)
	if err != nil {
		if errors.Is(err, template.ErrUnknownTemplate) {
			respondJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
			return
		}
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	msg := msgdomain.OutboundMessage{
		RecipientPhone: user.Phone,
		UserID:         uuid.NullUUID{UUID: user.ID, Valid: true},
		Type:           msgdomain.MessageTypeInteractive,
		Interactive:    &content,
		TemplateKey:    req.TemplateKey,
	}
	h.respondWithResult(w, r, msg)
}

// enrichTemplateData fills template fields the caller did not supply from
// live data, so operators can fire e.g. a water reminder with just a phone.
func (h *NotifyHandler) enrichTemplateData(ctx context.Context, user *msgdomain.User, templateKey string, data template.Data) {
	switch templateKey {
	case template.KeyWaterReminder, template.KeyDailySummary:
		if _, ok := data["meta_ml"]; !ok {
			data["meta_ml"] = user.WaterGoalML
		}
		needsWater := false
		if _, ok := data["atual_ml"]; !ok && templateKey == template.KeyWaterReminder {
			needsWater = true
		}
		if _, ok := data["agua_ml"]; !ok && templateKey == template.KeyDailySummary {
			needsWater = true
		}
		if needsWater {
			if water, err := h.wellness.GetTodayWaterML(ctx, user.ID); err == nil {
				data["atual_ml"] = water
				data["agua_ml"] = water
			}
		}

	case template.KeyWeighingReminder:
		if _, ok := data["ultimo_peso"]; !ok {
			if last, err := h.wellness.GetLastWeight(ctx, user.ID); err == nil {
				data["ultimo_peso"] = last.WeightKg
			}
		}
	}
}

func (h *NotifyHandler) respondWithResult(w http.ResponseWriter, r *http.Request, msg msgdomain.OutboundMessage) {
	result, err := h.dispatcher.SendMessage(r.Context(), msg)
	if err != nil {
		if errors.Is(err, msgdomain.ErrInvalidPhone) {
			respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		resp := SendResponse{Success: false, Error: err.Error()}
		if result != nil {
			resp.Provider = result.ProviderName
		}
		respondJSON(w, http.StatusBadGateway, resp)
		return
	}
	respondJSON(w, http.StatusOK, SendResponse{
		Success:           true,
		Provider:          result.ProviderName,
		ProviderMessageID: result.ProviderMessageID,
	})
}
