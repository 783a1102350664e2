package template

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/domain"
)

// fullData carries every field any template could ask for.
func fullData() Data {
	return Data{
		"nome":          "Maria",
		"atual_ml":      750,
		"meta_ml":       2500,
		"adicionado_ml": 250,
		"total_ml":      1000,
		"peso":          75.5,
		"peso_anterior": 76.2,
		"cintura":       85.0,
		"ultimo_peso":   76.2,
		"dias":          7,
		"humor":         "great",
		"agua_ml":       1800,
		"calorias":      1650,
		"alimentos":     "Arroz, feijão e frango grelhado",
		"proteinas":     42.0,
		"carboidratos":  80.0,
		"gorduras":      18.0,
		"pontuacao":     8,
	}
}

func TestRenderAllTemplatesWithFullData(t *testing.T) {
	data := fullData()
	for _, key := range Keys() {
		t.Run(key, func(t *testing.T) {
			content, err := Render(key, data)
			require.NoError(t, err)
			assert.NotEmpty(t, content.Body)
			assert.NotContains(t, content.Body, "{{")
			assert.NotContains(t, content.Body, "%!")

			switch content.Action {
			case domain.ActionButtons:
				require.NotEmpty(t, content.Buttons)
				assert.LessOrEqual(t, len(content.Buttons), domain.MaxQuickReplyButtons)
				for _, b := range content.Buttons {
					assert.NotEmpty(t, b.ID)
					assert.NotEmpty(t, b.Label)
				}
			case domain.ActionList:
				require.NotEmpty(t, content.Sections)
				for _, s := range content.Sections {
					assert.LessOrEqual(t, len(s.Rows), domain.MaxRowsPerSection)
				}
			case domain.ActionNone:
				assert.Empty(t, content.Buttons)
				assert.Empty(t, content.Sections)
			default:
				t.Fatalf("unexpected action %q", content.Action)
			}
		})
	}
}

func TestRenderMissingFieldNamesTheField(t *testing.T) {
	_, err := Render(KeyWaterReminder, Data{"nome": "Maria", "meta_ml": 2500})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingField)
	assert.Contains(t, err.Error(), "atual_ml")
	assert.Contains(t, err.Error(), KeyWaterReminder)
}

func TestRenderUnknownKey(t *testing.T) {
	_, err := Render("no_such_template", Data{})
	assert.ErrorIs(t, err, ErrUnknownTemplate)
}

func TestWaterReminderContent(t *testing.T) {
	content, err := Render(KeyWaterReminder, Data{"nome": "Maria", "atual_ml": 0, "meta_ml": 2500})
	require.NoError(t, err)

	assert.Contains(t, content.Body, "0ml")
	assert.Contains(t, content.Body, "2500ml")
	require.Len(t, content.Buttons, 3)
	assert.Equal(t, BtnWater250, content.Buttons[0].ID)
	assert.Equal(t, BtnWater500, content.Buttons[1].ID)
	assert.Equal(t, BtnWaterNotYet, content.Buttons[2].ID)
}

func TestWeighingCompleteTrend(t *testing.T) {
	down, err := Render(KeyWeighingComplete, Data{"peso": 75.0, "peso_anterior": 76.0})
	require.NoError(t, err)
	assert.Contains(t, down.Body, "perdeu")
	assert.Contains(t, down.Body, "1.0 kg")

	up, err := Render(KeyWeighingComplete, Data{"peso": 77.0, "peso_anterior": 76.0})
	require.NoError(t, err)
	assert.Contains(t, up.Body, "ganhou")

	flat, err := Render(KeyWeighingComplete, Data{"peso": 76.0, "peso_anterior": 76.0})
	require.NoError(t, err)
	assert.Contains(t, flat.Body, "estável")

	first, err := Render(KeyWeighingComplete, Data{"peso": 76.0})
	require.NoError(t, err)
	assert.NotContains(t, first.Body, "última pesagem")
}

func TestCheckinResponseRejectsUnknownMood(t *testing.T) {
	_, err := Render(KeyCheckinResponse, Data{"humor": "meh"})
	assert.Error(t, err)
}

func TestDataNumericCoercion(t *testing.T) {
	d := Data{"a": float64(42), "b": "43", "c": int64(44), "f": "75.5"}

	a, err := d.Int("a")
	require.NoError(t, err)
	assert.Equal(t, 42, a)

	b, err := d.Int("b")
	require.NoError(t, err)
	assert.Equal(t, 43, b)

	c, err := d.Int("c")
	require.NoError(t, err)
	assert.Equal(t, 44, c)

	f, err := d.Float("f")
	require.NoError(t, err)
	assert.InDelta(t, 75.5, f, 0.001)
}

func TestProgressBarBounds(t *testing.T) {
	assert.Equal(t, 10, strings.Count(progressBar(5000, 2500), "🟦"))
	assert.Equal(t, 10, strings.Count(progressBar(0, 2500), "⬜"))
	assert.Empty(t, progressBar(100, 0))
}
