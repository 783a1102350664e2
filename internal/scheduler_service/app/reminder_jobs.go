package app

import (
	"fmt"

	"github.com/google/uuid"

	msgdomain "github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/domain"
	"github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/template"
)

// buildReminderMessage renders the template for one job and candidate.
func buildReminderMessage(job msgdomain.ReminderJob, c msgdomain.ReminderCandidate) (msgdomain.OutboundMessage, error) {
	key, data, err := reminderTemplateData(job, c)
	if err != nil {
		return msgdomain.OutboundMessage{}, err
	}

	content, err := template.Render(key, data)
	if err != nil {
		return msgdomain.OutboundMessage{}, fmt.Errorf("rendering %s reminder: %w", job, err)
	}

	return msgdomain.OutboundMessage{
		RecipientPhone: c.User.Phone,
		UserID:         uuid.NullUUID{UUID: c.User.ID, Valid: true},
		Type:           msgdomain.MessageTypeInteractive,
		Interactive:    &content,
		TemplateKey:    key,
	}, nil
}

func reminderTemplateData(job msgdomain.ReminderJob, c msgdomain.ReminderCandidate) (string, template.Data, error) {
	switch job {
	case msgdomain.ReminderJobWater:
		return template.KeyWaterReminder, template.Data{
			"nome":     c.User.FirstName(),
			"atual_ml": c.CurrentWaterML,
			"meta_ml":  c.User.WaterGoalML,
		}, nil

	case msgdomain.ReminderJobWeighing:
		data := template.Data{"nome": c.User.FirstName()}
		if c.LastWeightKg > 0 {
			data["ultimo_peso"] = c.LastWeightKg
		}
		if c.DaysSinceWeighing >= 0 {
			data["dias"] = c.DaysSinceWeighing
		}
		return template.KeyWeighingReminder, data, nil

	case msgdomain.ReminderJobGreeting:
		return template.KeyGoodMorning, template.Data{"nome": c.User.FirstName()}, nil

	case msgdomain.ReminderJobCheckin:
		return template.KeyDailyCheckin, template.Data{"nome": c.User.FirstName()}, nil

	case msgdomain.ReminderJobSummary:
		return template.KeyDailySummary, template.Data{
			"nome":     c.User.FirstName(),
			"agua_ml":  c.CurrentWaterML,
			"meta_ml":  c.User.WaterGoalML,
			"calorias": c.CaloriesToday,
		}, nil

	default:
		return "", nil, fmt.Errorf("unknown reminder job %q", job)
	}
}
