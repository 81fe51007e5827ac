package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nutrilens/v1/internal/ports/inbound"
)

func newTestParser() *Parser {
	return NewParser(zap.NewNop())
}

func TestParse_CleanJSON(t *testing.T) {
	parser := newTestParser()

	parsed, err := parser.Parse(`{"meal_name":"Grilled Salmon","calories":520,"protein_g":42,"carbs_g":8,"fats_g":34}`)

	require.NoError(t, err)
	assert.Equal(t, inbound.SourceModel, parsed.Source)
	assert.Equal(t, "Grilled Salmon", parsed.Object["meal_name"])
	assert.Equal(t, 520.0, parsed.Object["calories"])
}

func TestParse_FencedJSONWithProse(t *testing.T) {
	parser := newTestParser()
	raw := "Here is the analysis you asked for:\n```json\n{\"meal_name\":\"Oatmeal\",\"calories\":310}\n```\nLet me know if you need more detail."

	parsed, err := parser.Parse(raw)

	require.NoError(t, err)
	assert.Equal(t, inbound.SourceModel, parsed.Source)
	assert.Equal(t, "Oatmeal", parsed.Object["meal_name"])
	assert.Equal(t, 310.0, parsed.Object["calories"])
}

func TestParse_RefusalDetection(t *testing.T) {
	parser := newTestParser()

	refusals := []string{
		"I'm sorry, I cannot analyze this image.",
		"I am unable to identify the contents of this photo.",
		"Lo siento, no puedo analizar esta imagen.",
		"Извините, не могу определить содержимое фотографии.",
	}
	for _, raw := range refusals {
		_, err := parser.Parse(raw)
		assert.ErrorIs(t, err, ErrModelRefusal, "input: %s", raw)
	}
}

func TestParse_RefusalMarkerInsideJSONIsNotRefusal(t *testing.T) {
	parser := newTestParser()
	raw := `{"meal_name":"Humble Pie","calories":410,"health_notes":["i cannot overstate how much sugar this has"]}`

	parsed, err := parser.Parse(raw)

	require.NoError(t, err)
	assert.Equal(t, inbound.SourceModel, parsed.Source)
	assert.Equal(t, "Humble Pie", parsed.Object["meal_name"])
}

func TestParse_TrailingCommaRepaired(t *testing.T) {
	parser := newTestParser()

	parsed, err := parser.Parse(`{"meal_name":"Tacos","calories":640,"protein_g":28,}`)

	require.NoError(t, err)
	assert.Equal(t, inbound.SourceRepaired, parsed.Source)
	assert.Equal(t, 640.0, parsed.Object["calories"])
}

func TestParse_TruncatedAfterValueRepaired(t *testing.T) {
	parser := newTestParser()

	parsed, err := parser.Parse(`{"meal_name":"Toast","calories":300,`)

	require.NoError(t, err)
	assert.Equal(t, inbound.SourceRepaired, parsed.Source)
	assert.Equal(t, "Toast", parsed.Object["meal_name"])
	assert.Equal(t, 300.0, parsed.Object["calories"])
}

func TestParse_TruncatedMidKeyMined(t *testing.T) {
	parser := newTestParser()

	parsed, err := parser.Parse(`{"meal_name":"Pasta","calories":450,"protein_g":12.5,"ingredi`)

	require.NoError(t, err)
	assert.Equal(t, inbound.SourceMined, parsed.Source)
	assert.Equal(t, "Pasta", parsed.Object["meal_name"])
	assert.Equal(t, 450.0, parsed.Object["calories"])
	assert.Equal(t, 12.5, parsed.Object["protein_g"])
	assert.NotEmpty(t, parsed.Object["ingredients"])
}

func TestParse_StrayCloserRepaired(t *testing.T) {
	parser := newTestParser()

	parsed, err := parser.Parse(`{"meal_name":"Rice Bowl","calories":480}}`)

	require.NoError(t, err)
	assert.Equal(t, inbound.SourceRepaired, parsed.Source)
	assert.Equal(t, "Rice Bowl", parsed.Object["meal_name"])
}

func TestParse_ProseKeyValuesMined(t *testing.T) {
	parser := newTestParser()
	raw := "calories: 450\nprotein_g: 20\nThe plate holds chicken with rice and some broccoli."

	parsed, err := parser.Parse(raw)

	require.NoError(t, err)
	assert.Equal(t, inbound.SourceMined, parsed.Source)
	assert.Equal(t, 450.0, parsed.Object["calories"])
	assert.Equal(t, 20.0, parsed.Object["protein_g"])

	ingredients, ok := parsed.Object["ingredients"].([]interface{})
	require.True(t, ok)
	var names []string
	for _, el := range ingredients {
		stub := el.(map[string]interface{})
		names = append(names, stub["name"].(string))
	}
	assert.Contains(t, names, "chicken")
	assert.Contains(t, names, "rice")
	assert.Contains(t, names, "broccoli")
}

func TestParse_GarbageStillYieldsIngredientStub(t *testing.T) {
	parser := newTestParser()

	parsed, err := parser.Parse("%%%% completely unusable output %%%%")

	require.NoError(t, err)
	assert.Equal(t, inbound.SourceMined, parsed.Source)
	assert.NotEmpty(t, parsed.Object["ingredients"])
}

func TestStripWrappers_KeepsTailWhenNoClosingBrace(t *testing.T) {
	out := stripWrappers(`preamble {"meal_name":"Soup","calories":2`)
	assert.Equal(t, `{"meal_name":"Soup","calories":2`, out)
}

func TestBalanceDelimiters_ClosesNestedStructures(t *testing.T) {
	out := balanceDelimiters(`{"a":[{"b":1}`)
	assert.Equal(t, `{"a":[{"b":1}]}`, out)
}

func TestStripTrailingCommas_NestedAndWhitespace(t *testing.T) {
	out := stripTrailingCommas("{\"a\":[1,2, ],\n}")
	assert.Equal(t, "{\"a\":[1,2]}", out)
}
