// Package template renders the built-in WhatsApp message templates. Rendering
// is pure: no I/O, no clock, just data in and InteractiveContent out. Missing
// required fields fail rendering instead of leaking placeholders to users.
package template

import (
	"fmt"
	"strings"

	"github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/domain"
)

type builder func(d Data) (domain.InteractiveContent, error)

var registry = map[string]builder{
	KeyWaterReminder:        waterReminder,
	KeyWaterConfirmation:    waterConfirmation,
	KeyWeighingReminder:     weighingReminder,
	KeyWeighingPromptWeight: weighingPromptWeight,
	KeyWeighingPromptWaist:  weighingPromptWaist,
	KeyWeighingComplete:     weighingComplete,
	KeyDailyCheckin:         dailyCheckin,
	KeyCheckinResponse:      checkinResponse,
	KeyGoodMorning:          goodMorning,
	KeyDailySummary:         dailySummary,
	KeyWelcome:              welcome,
	KeyMainMenu:             mainMenu,
	KeyHelpMenu:             helpMenu,
	KeyFoodAnalysisComplete: foodAnalysisComplete,
	KeyFoodConfirmed:        foodConfirmed,
	KeyUserNotFound:         userNotFound,
}

// Keys returns every registered template key.
func Keys() []string {
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	return keys
}

// Render builds the content for key from data.
func Render(key string, data Data) (domain.InteractiveContent, error) {
	b, ok := registry[key]
	if !ok {
		return domain.InteractiveContent{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, key)
	}
	content, err := b(data)
	if err != nil {
		return domain.InteractiveContent{}, fmt.Errorf("template %q: %w", key, err)
	}
	return content, nil
}

func waterReminder(d Data) (domain.InteractiveContent, error) {
	name, err := d.String("nome")
	if err != nil {
		return domain.InteractiveContent{}, err
	}
	current, err := d.Int("atual_ml")
	if err != nil {
		return domain.InteractiveContent{}, err
	}
	goal, err := d.Int("meta_ml")
	if err != nil {
		return domain.InteractiveContent{}, err
	}

	body := fmt.Sprintf("💧 Olá, %s! Hora de se hidratar!\n\nVocê já bebeu *%dml* de *%dml* hoje.\n%s", name, current, goal, progressBar(current, goal))
	return domain.InteractiveContent{
		Body:   body,
		Footer: "MaxNutrition",
		Action: domain.ActionButtons,
		Buttons: []domain.Button{
			{ID: BtnWater250, Label: "+250ml 💧"},
			{ID: BtnWater500, Label: "+500ml 💧💧"},
			{ID: BtnWaterNotYet, Label: "Ainda não"},
		},
	}, nil
}

func waterConfirmation(d Data) (domain.InteractiveContent, error) {
	added, err := d.Int("adicionado_ml")
	if err != nil {
		return domain.InteractiveContent{}, err
	}
	total, err := d.Int("total_ml")
	if err != nil {
		return domain.InteractiveContent{}, err
	}
	goal, err := d.Int("meta_ml")
	if err != nil {
		return domain.InteractiveContent{}, err
	}

	var status string
	if total >= goal {
		status = "🎉 Meta de hidratação batida! Parabéns!"
	} else {
		status = fmt.Sprintf("Faltam *%dml* para a meta de hoje. Continue assim! 💪", goal-total)
	}
	body := fmt.Sprintf("✅ +%dml registrados!\n\nTotal de hoje: *%dml* de %dml\n%s\n\n%s", added, total, goal, progressBar(total, goal), status)
	return domain.InteractiveContent{Body: body, Action: domain.ActionNone}, nil
}

func weighingReminder(d Data) (domain.InteractiveContent, error) {
	name, err := d.String("nome")
	if err != nil {
		return domain.InteractiveContent{}, err
	}

	body := fmt.Sprintf("⚖️ Bom dia, %s! Hoje é dia de pesagem.", name)
	if last := d.OptFloat("ultimo_peso", 0); last > 0 {
		days := d.OptInt("dias", 0)
		body += fmt.Sprintf("\n\nSua última pesagem foi de *%.1f kg*", last)
		if days > 0 {
			body += fmt.Sprintf(" há %d dias", days)
		}
		body += "."
	}
	body += "\n\nVamos registrar seu peso?"

	return domain.InteractiveContent{
		Body:   body,
		Footer: "MaxNutrition",
		Action: domain.ActionButtons,
		Buttons: []domain.Button{
			{ID: BtnWeighNow, Label: "Pesar agora ⚖️"},
			{ID: BtnWeighLater, Label: "Mais tarde"},
		},
	}, nil
}

func weighingPromptWeight(Data) (domain.InteractiveContent, error) {
	return domain.InteractiveContent{
		Body:   "⚖️ Digite seu peso atual em kg.\n\nExemplo: *75.5*",
		Action: domain.ActionNone,
	}, nil
}

func weighingPromptWaist(d Data) (domain.InteractiveContent, error) {
	weight, err := d.Float("peso")
	if err != nil {
		return domain.InteractiveContent{}, err
	}
	body := fmt.Sprintf("✅ Peso de *%.1f kg* registrado!\n\nAgora me diga sua circunferência abdominal em cm.\n\nExemplo: *85*", weight)
	return domain.InteractiveContent{Body: body, Action: domain.ActionNone}, nil
}

func weighingComplete(d Data) (domain.InteractiveContent, error) {
	weight, err := d.Float("peso")
	if err != nil {
		return domain.InteractiveContent{}, err
	}

	body := fmt.Sprintf("🎉 Pesagem concluída!\n\nPeso: *%.1f kg*", weight)
	if waist := d.OptFloat("cintura", 0); waist > 0 {
		body += fmt.Sprintf("\nCircunferência: *%.0f cm*", waist)
	}
	if prev := d.OptFloat("peso_anterior", 0); prev > 0 {
		diff := weight - prev
		switch {
		case diff < -0.05:
			body += fmt.Sprintf("\n\n⬇️ Você perdeu *%.1f kg* desde a última pesagem. Excelente!", -diff)
		case diff > 0.05:
			body += fmt.Sprintf("\n\n⬆️ Você ganhou *%.1f kg* desde a última pesagem.", diff)
		default:
			body += "\n\n➡️ Peso estável desde a última pesagem."
		}
	}
	return domain.InteractiveContent{Body: body, Footer: "MaxNutrition", Action: domain.ActionNone}, nil
}

func dailyCheckin(d Data) (domain.InteractiveContent, error) {
	name, err := d.String("nome")
	if err != nil {
		return domain.InteractiveContent{}, err
	}
	body := fmt.Sprintf("👋 Oi, %s! Como você está se sentindo hoje?", name)
	return domain.InteractiveContent{
		Body:   body,
		Action: domain.ActionButtons,
		Buttons: []domain.Button{
			{ID: BtnFeelingGreat, Label: "Ótimo! 😄"},
			{ID: BtnFeelingOK, Label: "Normal 🙂"},
			{ID: BtnFeelingBad, Label: "Não muito bem 😕"},
		},
	}, nil
}

func checkinResponse(d Data) (domain.InteractiveContent, error) {
	mood, err := d.String("humor")
	if err != nil {
		return domain.InteractiveContent{}, err
	}

	var body string
	switch mood {
	case "great":
		body = "😄 Que ótimo! Energia lá em cima ajuda muito nos resultados. Aproveite o dia!"
	case "ok":
		body = "🙂 Entendido! Dia normal também conta. Pequenos passos somam."
	case "bad":
		body = "😕 Sinto muito. Dias difíceis acontecem. Beba água, respire fundo e seja gentil com você. Estou aqui se precisar."
	default:
		return domain.InteractiveContent{}, fmt.Errorf("%w: humor %q is not one of great/ok/bad", ErrMissingField, mood)
	}
	return domain.InteractiveContent{Body: body, Action: domain.ActionNone}, nil
}

func goodMorning(d Data) (domain.InteractiveContent, error) {
	name, err := d.String("nome")
	if err != nil {
		return domain.InteractiveContent{}, err
	}
	body := fmt.Sprintf("☀️ Bom dia, %s!\n\nMais um dia para cuidar de você. Que tal começar agora?", name)
	return domain.InteractiveContent{
		Body:   body,
		Footer: "MaxNutrition",
		Action: domain.ActionButtons,
		Buttons: []domain.Button{
			{ID: BtnWater250, Label: "Beber água 💧"},
			{ID: BtnWeighNow, Label: "Pesar ⚖️"},
			{ID: BtnMenu, Label: "Ver menu"},
		},
	}, nil
}

func dailySummary(d Data) (domain.InteractiveContent, error) {
	name, err := d.String("nome")
	if err != nil {
		return domain.InteractiveContent{}, err
	}
	water, err := d.Int("agua_ml")
	if err != nil {
		return domain.InteractiveContent{}, err
	}
	goal, err := d.Int("meta_ml")
	if err != nil {
		return domain.InteractiveContent{}, err
	}

	body := fmt.Sprintf("🌙 Resumo do dia, %s:\n\n💧 Água: *%dml* de %dml\n%s", name, water, goal, progressBar(water, goal))
	if cal := d.OptInt("calorias", 0); cal > 0 {
		body += fmt.Sprintf("\n🍽️ Calorias registradas: *%d kcal*", cal)
	}
	if water >= goal {
		body += "\n\n🎉 Meta de hidratação batida hoje!"
	}
	body += "\n\nDescanse bem. Amanhã tem mais! 💤"
	return domain.InteractiveContent{Body: body, Footer: "MaxNutrition", Action: domain.ActionNone}, nil
}

func welcome(d Data) (domain.InteractiveContent, error) {
	name, err := d.String("nome")
	if err != nil {
		return domain.InteractiveContent{}, err
	}
	body := fmt.Sprintf("👋 Bem-vindo(a), %s!\n\nEu sou a *Sofia*, sua assistente de nutrição da MaxNutrition. Vou te ajudar com hidratação, pesagens e suas refeições, tudo por aqui mesmo.", name)
	return domain.InteractiveContent{
		Body:   body,
		Action: domain.ActionButtons,
		Buttons: []domain.Button{
			{ID: BtnMenu, Label: "Ver menu 📋"},
			{ID: BtnHelp, Label: "Como funciona?"},
		},
	}, nil
}

func mainMenu(Data) (domain.InteractiveContent, error) {
	return domain.InteractiveContent{
		Body:   "📋 *Menu principal*\n\nO que você quer fazer?",
		Footer: "MaxNutrition",
		Action: domain.ActionList,
		Sections: []domain.ListSection{
			{
				Title: "Registrar",
				Rows: []domain.ListRow{
					{ID: BtnWater250, Title: "Água +250ml", Description: "Registrar um copo de água"},
					{ID: BtnWater500, Title: "Água +500ml", Description: "Registrar uma garrafa de água"},
					{ID: BtnWeighNow, Title: "Pesagem", Description: "Registrar peso e circunferência"},
				},
			},
			{
				Title: "Acompanhar",
				Rows: []domain.ListRow{
					{ID: RowProgress, Title: "Meu progresso", Description: "Resumo do dia"},
					{ID: RowHistory, Title: "Histórico", Description: "Últimas pesagens"},
				},
			},
			{
				Title: "Ajuda",
				Rows: []domain.ListRow{
					{ID: BtnHelp, Title: "Como funciona", Description: "Comandos e dicas"},
				},
			},
		},
	}, nil
}

func helpMenu(Data) (domain.InteractiveContent, error) {
	body := strings.Join([]string{
		"🤝 *Como funciona*",
		"",
		"Você pode me mandar:",
		"• *menu* para ver as opções",
		"• *água 250* para registrar água",
		"• Um número (ex: *75.5*) para registrar seu peso",
		"• Uma foto da refeição para a Sofia analisar",
		"",
		"Eu também te lembro de beber água e de se pesar. 😉",
	}, "\n")
	return domain.InteractiveContent{Body: body, Footer: "MaxNutrition", Action: domain.ActionNone}, nil
}

func foodAnalysisComplete(d Data) (domain.InteractiveContent, error) {
	foods, err := d.String("alimentos")
	if err != nil {
		return domain.InteractiveContent{}, err
	}
	calories, err := d.Int("calorias")
	if err != nil {
		return domain.InteractiveContent{}, err
	}

	body := fmt.Sprintf("🍽️ *Análise da Sofia*\n\n%s\n\n🔥 *%d kcal*", foods, calories)
	protein := d.OptFloat("proteinas", 0)
	carbs := d.OptFloat("carboidratos", 0)
	fat := d.OptFloat("gorduras", 0)
	if protein > 0 || carbs > 0 || fat > 0 {
		body += fmt.Sprintf("\n🥩 Proteínas: %.0fg  🍞 Carboidratos: %.0fg  🥑 Gorduras: %.0fg", protein, carbs, fat)
	}
	if score := d.OptInt("pontuacao", 0); score > 0 {
		body += fmt.Sprintf("\n\n⭐ Nota da refeição: *%d/10*", score)
	}
	body += "\n\nEstá correto?"

	return domain.InteractiveContent{
		Body:   body,
		Footer: "Sofia · MaxNutrition",
		Action: domain.ActionButtons,
		Buttons: []domain.Button{
			{ID: BtnSofiaConfirm, Label: "Confirmar ✅"},
			{ID: BtnSofiaEdit, Label: "Corrigir ✏️"},
		},
	}, nil
}

func foodConfirmed(d Data) (domain.InteractiveContent, error) {
	calories, err := d.Int("calorias")
	if err != nil {
		return domain.InteractiveContent{}, err
	}
	body := fmt.Sprintf("✅ Refeição confirmada!\n\n*%d kcal* adicionadas ao seu diário de hoje.", calories)
	return domain.InteractiveContent{Body: body, Action: domain.ActionNone}, nil
}

func userNotFound(Data) (domain.InteractiveContent, error) {
	body := "🤔 Não encontrei seu cadastro.\n\nSe você já é cliente MaxNutrition, confira se este é o número cadastrado. Caso contrário, fale com nosso time para começar!"
	return domain.InteractiveContent{Body: body, Action: domain.ActionNone}, nil
}

// progressBar renders a 10-slot text progress bar.
func progressBar(current, goal int) string {
	if goal <= 0 {
		return ""
	}
	filled := current * 10 / goal
	if filled > 10 {
		filled = 10
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("🟦", filled) + strings.Repeat("⬜", 10-filled)
}
