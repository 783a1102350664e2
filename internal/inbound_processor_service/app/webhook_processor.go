package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maxnutrition/whatsapp-gateway/internal/inbound_processor_service/domain"
	msgdomain "github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/domain"
	"github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/provider"
	"github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/repository"
	"github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/template"
)

// Plausible human ranges; anything outside is treated as not-a-measurement.
const (
	minWeightKg = 30
	maxWeightKg = 300
	minWaistCm  = 40
	maxWaistCm  = 250
)

var (
	numberPattern = regexp.MustCompile(`^\d{1,3}(?:[.,]\d{1,2})?$`)
	waterPattern  = regexp.MustCompile(`(?i)^[áa]gua\s+(\d{2,4})\s*(?:ml)?$`)
)

// MessageDispatcher is the outbound side the processor needs for replies.
type MessageDispatcher interface {
	SendMessage(ctx context.Context, msg msgdomain.OutboundMessage) (*msgdomain.SendResult, error)
}

// WebhookProcessor turns raw vendor webhooks into business actions and
// replies. All events for one phone are serialized through a per-phone mutex,
// so two simultaneous messages from the same user can never interleave flow
// reads and writes; different phones proceed in parallel.
type WebhookProcessor struct {
	adapters   map[string]provider.Adapter
	flows      domain.FlowRepository
	wellness   repository.WellnessRepository
	dispatcher MessageDispatcher
	logger     *slog.Logger

	mu         sync.Mutex
	phoneLocks map[string]*sync.Mutex
}

func NewWebhookProcessor(
	adapters map[string]provider.Adapter,
	flows domain.FlowRepository,
	wellness repository.WellnessRepository,
	dispatcher MessageDispatcher,
	logger *slog.Logger,
) *WebhookProcessor {
	return &WebhookProcessor{
		adapters:   adapters,
		flows:      flows,
		wellness:   wellness,
		dispatcher: dispatcher,
		logger:     logger.With("component", "webhook_processor"),
		phoneLocks: make(map[string]*sync.Mutex),
	}
}

// Start consumes events from inputChan until it closes or ctx is cancelled.
func (p *WebhookProcessor) Start(ctx context.Context, inputChan <-chan RawWebhookEvent) {
	p.logger.InfoContext(ctx, "Webhook processor started")
	for {
		select {
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "Webhook processor stopping")
			return
		case event, ok := <-inputChan:
			if !ok {
				p.logger.InfoContext(ctx, "Webhook processor input channel closed")
				return
			}
			p.Process(ctx, event)
		}
	}
}

// Process parses one raw webhook and handles each inbound event it carries.
// Unparseable payloads are counted and dropped; a vendor retrying a payload
// we cannot read would just fail again.
func (p *WebhookProcessor) Process(ctx context.Context, raw RawWebhookEvent) {
	adapter, ok := p.adapters[raw.ProviderName]
	if !ok {
		p.logger.WarnContext(ctx, "Webhook for unknown provider, dropping", "provider", raw.ProviderName)
		unparseableWebhooksTotal.WithLabelValues(raw.ProviderName).Inc()
		return
	}

	events, err := adapter.ParseWebhook(raw.Payload)
	if err != nil {
		p.logger.WarnContext(ctx, "Unparseable webhook payload, dropping",
			"provider", raw.ProviderName, "payload_len", len(raw.Payload), "error", err)
		unparseableWebhooksTotal.WithLabelValues(raw.ProviderName).Inc()
		return
	}

	for _, ev := range events {
		p.handleEvent(ctx, ev)
	}
}

func (p *WebhookProcessor) handleEvent(ctx context.Context, ev msgdomain.InboundEvent) {
	start := time.Now()
	defer func() {
		eventProcessingSeconds.WithLabelValues(ev.ProviderName).Observe(time.Since(start).Seconds())
	}()

	lock := p.lockFor(ev.Phone)
	lock.Lock()
	defer lock.Unlock()

	user, err := p.wellness.GetUserByPhone(ctx, ev.Phone)
	if err != nil {
		if errors.Is(err, msgdomain.ErrUserNotFound) {
			p.logger.InfoContext(ctx, "Inbound message from unregistered phone", "phone", ev.Phone)
			eventsProcessedTotal.WithLabelValues(ev.ProviderName, "unknown_user").Inc()
			p.replyTemplate(ctx, ev.Phone, uuid.NullUUID{}, template.KeyUserNotFound, template.Data{})
			return
		}
		p.logger.ErrorContext(ctx, "Failed to resolve user for inbound event", "phone", ev.Phone, "error", err)
		eventsProcessedTotal.WithLabelValues(ev.ProviderName, "error").Inc()
		return
	}

	var outcome string
	switch ev.Type {
	case msgdomain.InboundEventButton, msgdomain.InboundEventListReply:
		outcome = p.handleReply(ctx, user, ev)
	case msgdomain.InboundEventText:
		outcome = p.handleText(ctx, user, ev)
	case msgdomain.InboundEventMedia:
		// Photo analysis runs elsewhere; acknowledge so the user is not left hanging.
		p.replyText(ctx, user, "📸 Foto recebida! A Sofia vai analisar sua refeição e já te responde.")
		outcome = "media_ack"
	default:
		outcome = "ignored"
	}
	eventsProcessedTotal.WithLabelValues(ev.ProviderName, outcome).Inc()
}

func (p *WebhookProcessor) lockFor(phone string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.phoneLocks[phone]
	if !ok {
		l = &sync.Mutex{}
		p.phoneLocks[phone] = l
	}
	return l
}

// handleReply routes a tapped button or list row by its stable id.
func (p *WebhookProcessor) handleReply(ctx context.Context, user *msgdomain.User, ev msgdomain.InboundEvent) string {
	p.logger.InfoContext(ctx, "Handling interactive reply", "user_id", user.ID, "reply_id", ev.ReplyID)

	switch ev.ReplyID {
	case template.BtnWater250:
		return p.recordWater(ctx, user, 250)
	case template.BtnWater500:
		return p.recordWater(ctx, user, 500)
	case template.BtnWaterNotYet:
		p.replyText(ctx, user, "Tudo bem! Te lembro de novo mais tarde. 💧")
		return "water_snoozed"

	case template.BtnWeighNow:
		return p.startWeighingFlow(ctx, user, ev.Phone)
	case template.BtnWeighLater:
		p.replyText(ctx, user, "Sem problema! Volto a falar da pesagem depois. ⚖️")
		return "weighing_snoozed"

	case template.BtnFeelingGreat:
		return p.recordMood(ctx, user, 5, "great")
	case template.BtnFeelingOK:
		return p.recordMood(ctx, user, 3, "ok")
	case template.BtnFeelingBad:
		return p.recordMood(ctx, user, 1, "bad")

	case template.BtnSofiaConfirm:
		return p.confirmAnalysis(ctx, user)
	case template.BtnSofiaEdit:
		p.replyText(ctx, user, "✏️ Sem problema! Me diga o que ajustar na análise que eu corrijo.")
		return "analysis_edit"

	case template.BtnMenu:
		p.replyTemplate(ctx, user.Phone, userRef(user), template.KeyMainMenu, template.Data{})
		return "menu"
	case template.BtnHelp:
		p.replyTemplate(ctx, user.Phone, userRef(user), template.KeyHelpMenu, template.Data{})
		return "help"

	case template.RowProgress:
		return p.sendProgress(ctx, user)
	case template.RowHistory:
		return p.sendHistory(ctx, user)

	default:
		p.logger.WarnContext(ctx, "Unknown reply id", "reply_id", ev.ReplyID, "user_id", user.ID)
		p.replyText(ctx, user, "🤔 Não reconheci essa opção. Digite *menu* para ver o que posso fazer.")
		return "unknown_reply"
	}
}

// handleText feeds free text into the active flow, or interprets it as a
// command when no flow is pending.
func (p *WebhookProcessor) handleText(ctx context.Context, user *msgdomain.User, ev msgdomain.InboundEvent) string {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return "ignored"
	}

	flow, err := p.flows.Get(ctx, ev.Phone)
	if err != nil && !errors.Is(err, domain.ErrFlowNotFound) {
		p.logger.ErrorContext(ctx, "Failed to load flow state", "phone", ev.Phone, "error", err)
		return "error"
	}
	if flow != nil {
		return p.advanceFlow(ctx, user, flow, text)
	}

	lower := strings.ToLower(text)
	switch lower {
	case "menu", "oi", "olá", "ola":
		p.replyTemplate(ctx, user.Phone, userRef(user), template.KeyMainMenu, template.Data{})
		return "menu"
	case "ajuda", "help":
		p.replyTemplate(ctx, user.Phone, userRef(user), template.KeyHelpMenu, template.Data{})
		return "help"
	}

	if m := waterPattern.FindStringSubmatch(text); m != nil {
		amount, _ := strconv.Atoi(m[1])
		if amount > 0 && amount <= 5000 {
			return p.recordWater(ctx, user, amount)
		}
	}

	// A bare plausible number with no flow pending is a quick weight log.
	if value, ok := parseMeasurement(text); ok && value >= minWeightKg && value <= maxWeightKg {
		return p.quickWeightLog(ctx, user, value)
	}

	p.logger.DebugContext(ctx, "Unhandled free text", "user_id", user.ID, "text_len", len(text))
	p.replyText(ctx, user, "🤔 Não entendi. Digite *menu* para ver as opções ou *ajuda* para saber o que posso fazer.")
	return "unknown_text"
}

// advanceFlow feeds text into the flow's current step. Invalid input
// re-prompts and leaves the flow untouched.
func (p *WebhookProcessor) advanceFlow(ctx context.Context, user *msgdomain.User, flow *domain.PendingInteractionFlow, text string) string {
	switch flow.Step {
	case domain.StepAwaitingWeight:
		weight, ok := parseMeasurement(text)
		if !ok || weight < minWeightKg || weight > maxWeightKg {
			p.replyText(ctx, user, fmt.Sprintf("⚖️ Esse valor não parece um peso válido. Digite um número entre %d e %d kg, por exemplo *75.5*.", minWeightKg, maxWeightKg))
			return "flow_invalid_input"
		}

		if err := p.wellness.RecordWeight(ctx, user.ID, weight); err != nil {
			p.logger.ErrorContext(ctx, "Failed to record weight", "user_id", user.ID, "error", err)
			p.replyText(ctx, user, "😕 Não consegui salvar seu peso agora. Tente de novo em instantes.")
			return "error"
		}

		flow.WeightKg = weight
		flow.Step = domain.StepAwaitingWaist
		if err := p.flows.Save(ctx, flow); err != nil {
			p.logger.ErrorContext(ctx, "Failed to advance flow", "phone", flow.Phone, "error", err)
			return "error"
		}
		p.replyTemplate(ctx, user.Phone, userRef(user), template.KeyWeighingPromptWaist, template.Data{"peso": weight})
		return "flow_weight_recorded"

	case domain.StepAwaitingWaist:
		waist, ok := parseMeasurement(text)
		if !ok || waist < minWaistCm || waist > maxWaistCm {
			p.replyText(ctx, user, fmt.Sprintf("📏 Esse valor não parece uma circunferência válida. Digite um número entre %d e %d cm, por exemplo *85*.", minWaistCm, maxWaistCm))
			return "flow_invalid_input"
		}

		if err := p.wellness.RecordWaistCircumference(ctx, user.ID, waist); err != nil {
			p.logger.ErrorContext(ctx, "Failed to record waist circumference", "user_id", user.ID, "error", err)
			p.replyText(ctx, user, "😕 Não consegui salvar sua medida agora. Tente de novo em instantes.")
			return "error"
		}

		if err := p.flows.Delete(ctx, flow.Phone); err != nil {
			p.logger.ErrorContext(ctx, "Failed to delete completed flow", "phone", flow.Phone, "error", err)
		}

		data := template.Data{"peso": flow.WeightKg, "cintura": waist}
		if flow.PreviousWeightKg > 0 {
			data["peso_anterior"] = flow.PreviousWeightKg
		}
		p.replyTemplate(ctx, user.Phone, userRef(user), template.KeyWeighingComplete, data)
		return "flow_completed"

	default:
		p.logger.WarnContext(ctx, "Flow in unknown step, discarding", "phone", flow.Phone, "step", flow.Step)
		_ = p.flows.Delete(ctx, flow.Phone)
		return "flow_discarded"
	}
}

func (p *WebhookProcessor) startWeighingFlow(ctx context.Context, user *msgdomain.User, phone string) string {
	flow := &domain.PendingInteractionFlow{
		Phone:     phone,
		UserID:    user.ID,
		Type:      domain.FlowWeighing,
		Step:      domain.StepAwaitingWeight,
		StartedAt: time.Now().UTC(),
	}
	// Snapshot the previous weight now: once the new one is recorded it would
	// be indistinguishable from the baseline for the trend line.
	if last, err := p.wellness.GetLastWeight(ctx, user.ID); err == nil {
		flow.PreviousWeightKg = last.WeightKg
	} else if !errors.Is(err, msgdomain.ErrNoMeasurements) {
		p.logger.WarnContext(ctx, "Could not load previous weight for trend", "user_id", user.ID, "error", err)
	}

	if err := p.flows.Save(ctx, flow); err != nil {
		p.logger.ErrorContext(ctx, "Failed to start weighing flow", "phone", phone, "error", err)
		p.replyText(ctx, user, "😕 Não consegui iniciar a pesagem agora. Tente de novo em instantes.")
		return "error"
	}
	p.replyTemplate(ctx, user.Phone, userRef(user), template.KeyWeighingPromptWeight, template.Data{})
	return "flow_started"
}

func (p *WebhookProcessor) quickWeightLog(ctx context.Context, user *msgdomain.User, weight float64) string {
	var previous float64
	if last, err := p.wellness.GetLastWeight(ctx, user.ID); err == nil {
		previous = last.WeightKg
	}

	if err := p.wellness.RecordWeight(ctx, user.ID, weight); err != nil {
		p.logger.ErrorContext(ctx, "Failed to record quick weight", "user_id", user.ID, "error", err)
		p.replyText(ctx, user, "😕 Não consegui salvar seu peso agora. Tente de novo em instantes.")
		return "error"
	}

	data := template.Data{"peso": weight}
	if previous > 0 {
		data["peso_anterior"] = previous
	}
	p.replyTemplate(ctx, user.Phone, userRef(user), template.KeyWeighingComplete, data)
	return "quick_weight"
}

func (p *WebhookProcessor) recordWater(ctx context.Context, user *msgdomain.User, amountML int) string {
	total, err := p.wellness.RecordWater(ctx, user.ID, amountML)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to record water", "user_id", user.ID, "amount_ml", amountML, "error", err)
		p.replyText(ctx, user, "😕 Não consegui registrar sua água agora. Tente de novo em instantes.")
		return "error"
	}
	p.replyTemplate(ctx, user.Phone, userRef(user), template.KeyWaterConfirmation, template.Data{
		"adicionado_ml": amountML,
		"total_ml":      total,
		"meta_ml":       user.WaterGoalML,
	})
	return "water_recorded"
}

func (p *WebhookProcessor) recordMood(ctx context.Context, user *msgdomain.User, score int, mood string) string {
	if err := p.wellness.RecordMood(ctx, user.ID, score); err != nil {
		p.logger.ErrorContext(ctx, "Failed to record mood", "user_id", user.ID, "error", err)
	}
	p.replyTemplate(ctx, user.Phone, userRef(user), template.KeyCheckinResponse, template.Data{"humor": mood})
	return "mood_recorded"
}

func (p *WebhookProcessor) confirmAnalysis(ctx context.Context, user *msgdomain.User) string {
	analysis, err := p.wellness.GetPendingAnalysis(ctx, user.ID)
	if err != nil {
		if errors.Is(err, msgdomain.ErrNoPendingAnalysis) {
			p.replyText(ctx, user, "🤔 Não encontrei nenhuma análise pendente. Mande uma foto da refeição para a Sofia analisar!")
			return "no_pending_analysis"
		}
		p.logger.ErrorContext(ctx, "Failed to load pending analysis", "user_id", user.ID, "error", err)
		return "error"
	}

	if err := p.wellness.ConfirmAnalysis(ctx, analysis.ID); err != nil {
		p.logger.ErrorContext(ctx, "Failed to confirm analysis", "analysis_id", analysis.ID, "error", err)
		p.replyText(ctx, user, "😕 Não consegui confirmar a refeição agora. Tente de novo em instantes.")
		return "error"
	}
	p.replyTemplate(ctx, user.Phone, userRef(user), template.KeyFoodConfirmed, template.Data{"calorias": analysis.Calories})
	return "analysis_confirmed"
}

func (p *WebhookProcessor) sendProgress(ctx context.Context, user *msgdomain.User) string {
	water, err := p.wellness.GetTodayWaterML(ctx, user.ID)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to load today's water", "user_id", user.ID, "error", err)
		return "error"
	}
	p.replyTemplate(ctx, user.Phone, userRef(user), template.KeyDailySummary, template.Data{
		"nome":    user.FirstName(),
		"agua_ml": water,
		"meta_ml": user.WaterGoalML,
	})
	return "progress"
}

func (p *WebhookProcessor) sendHistory(ctx context.Context, user *msgdomain.User) string {
	last, err := p.wellness.GetLastWeight(ctx, user.ID)
	if err != nil {
		if errors.Is(err, msgdomain.ErrNoMeasurements) {
			p.replyText(ctx, user, "📈 Você ainda não registrou nenhuma pesagem. Digite *menu* e escolha Pesagem para começar!")
			return "history_empty"
		}
		p.logger.ErrorContext(ctx, "Failed to load weight history", "user_id", user.ID, "error", err)
		return "error"
	}
	body := fmt.Sprintf("📈 Sua última pesagem: *%.1f kg* em %s.", last.WeightKg, last.MeasuredAt.Format("02/01/2006"))
	if last.WaistCm > 0 {
		body += fmt.Sprintf("\nCircunferência: *%.0f cm*.", last.WaistCm)
	}
	p.replyText(ctx, user, body)
	return "history"
}

func (p *WebhookProcessor) replyTemplate(ctx context.Context, phone string, userID uuid.NullUUID, key string, data template.Data) {
	content, err := template.Render(key, data)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to render reply template", "template_key", key, "error", err)
		return
	}
	msg := msgdomain.OutboundMessage{
		RecipientPhone: phone,
		UserID:         userID,
		Type:           msgdomain.MessageTypeInteractive,
		Interactive:    &content,
		TemplateKey:    key,
	}
	if _, err := p.dispatcher.SendMessage(ctx, msg); err != nil {
		p.logger.ErrorContext(ctx, "Failed to send templated reply", "template_key", key, "phone", phone, "error", err)
	}
}

func (p *WebhookProcessor) replyText(ctx context.Context, user *msgdomain.User, text string) {
	msg := msgdomain.OutboundMessage{
		RecipientPhone: user.Phone,
		UserID:         userRef(user),
		Type:           msgdomain.MessageTypeText,
		Text:           text,
	}
	if _, err := p.dispatcher.SendMessage(ctx, msg); err != nil {
		p.logger.ErrorContext(ctx, "Failed to send text reply", "phone", user.Phone, "error", err)
	}
}

func userRef(user *msgdomain.User) uuid.NullUUID {
	return uuid.NullUUID{UUID: user.ID, Valid: true}
}

// parseMeasurement reads a human-typed number ("75.5", "75,5", "85").
func parseMeasurement(text string) (float64, bool) {
	if !numberPattern.MatchString(text) {
		return 0, false
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(text, ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
