package analysis

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutrilens/v1/internal/domain/nutrition"
	"github.com/nutrilens/v1/internal/ports/inbound"
)

// fixedClock returns a constant instant, keeping timestamps deterministic.
type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time { return c.t }

func newTestNormalizer() *Normalizer {
	return NewNormalizer(fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)})
}

func ptr(v float64) *float64 { return &v }

func TestNormalize_AlternateKeys(t *testing.T) {
	n := newTestNormalizer()
	parsed := &ParsedMeal{
		Object: map[string]interface{}{
			"name":    "Veggie Bowl",
			"kcal":    430.0,
			"protein": 18.0,
			"carbs":   55.0,
			"fat":     12.0,
			"fiber":   9.0,
		},
		Source: inbound.SourceModel,
	}

	rec := n.Normalize(parsed, nil)

	assert.Equal(t, "Veggie Bowl", rec.Name)
	assert.Equal(t, 430.0, rec.Calories)
	assert.Equal(t, 18.0, rec.ProteinG)
	assert.Equal(t, 55.0, rec.CarbsG)
	assert.Equal(t, 12.0, rec.FatsG)
	assert.Equal(t, 9.0, rec.FiberG)
}

func TestNormalize_DefaultsAndClamps(t *testing.T) {
	n := newTestNormalizer()
	parsed := &ParsedMeal{
		Object: map[string]interface{}{
			"calories":  -120.0,
			"protein_g": "12.5",
			"sodium_mg": "not a number",
		},
	}

	rec := n.Normalize(parsed, nil)

	assert.Equal(t, defaultMealName, rec.Name)
	assert.Equal(t, 0.0, rec.Calories, "negative values clamp to zero")
	assert.Equal(t, 12.5, rec.ProteinG, "numeric strings are coerced")
	assert.Equal(t, 0.0, rec.SodiumMg, "unparseable values fall back to the default")
	assert.Equal(t, defaultConfidence, rec.Confidence)
}

func TestNormalize_NilParsedProducesValidRecord(t *testing.T) {
	n := newTestNormalizer()

	rec := n.Normalize(nil, nil)

	assert.Equal(t, defaultMealName, rec.Name)
	assert.GreaterOrEqual(t, rec.Calories, 0.0)
	assert.NotZero(t, rec.ID)
}

func TestNormalize_ConfidenceRescale(t *testing.T) {
	n := newTestNormalizer()

	cases := []struct {
		name string
		in   interface{}
		want float64
	}{
		{"fractional scale", 0.85, 85.0},
		{"already percent", 72.0, 72.0},
		{"above range", 140.0, 100.0},
		{"negative", -5.0, 0.0},
		{"tiny fractional floors to one", 0.005, 1.0},
		{"exactly one is already percent", 1.0, 1.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := n.Normalize(&ParsedMeal{Object: map[string]interface{}{"confidence": tc.in}}, nil)
			assert.Equal(t, tc.want, rec.Confidence)

			// Re-normalizing the output must not change it.
			again := n.Normalize(&ParsedMeal{Object: map[string]interface{}{"confidence": rec.Confidence}}, nil)
			assert.Equal(t, rec.Confidence, again.Confidence)
		})
	}
}

func TestNormalize_EditedIngredientsRecomputeAggregates(t *testing.T) {
	n := newTestNormalizer()
	// Aggregate totals from the model are deliberately wrong: the edited
	// list must win.
	parsed := &ParsedMeal{
		Object: map[string]interface{}{
			"meal_name": "Chicken Plate",
			"calories":  9999.0,
			"protein_g": 1.0,
			"allergens": []interface{}{"soy"},
		},
	}
	edited := []nutrition.IngredientRecord{
		{
			Name: "chicken breast", Calories: 220, ProteinG: 41, CarbsG: 0, FatsG: 5,
			Vitamins:      map[string]float64{"b6": 0.9},
			Allergens:     []string{},
			GlycemicIndex: ptr(0),
		},
		{
			Name: "white rice", Calories: 205, ProteinG: 4.3, CarbsG: 44.5, FatsG: 0.4,
			Vitamins:      map[string]float64{"b6": 0.1},
			Minerals:      map[string]float64{"iron": 1.9},
			GlycemicIndex: ptr(73),
		},
		{
			Name: "peanut sauce", Calories: 90, ProteinG: 3.5, CarbsG: 4.1, FatsG: 7.2,
			Allergens: []string{"peanut"},
		},
	}

	rec := n.Normalize(parsed, edited)

	assert.Equal(t, 220.0+205.0+90.0, rec.Calories)
	assert.InDelta(t, 41.0+4.3+3.5, rec.ProteinG, 1e-9)
	assert.InDelta(t, 44.5+4.1, rec.CarbsG, 1e-9)
	assert.InDelta(t, 5.0+0.4+7.2, rec.FatsG, 1e-9)
	assert.Equal(t, rec.IngredientCalorieSum(), rec.Calories, "totals are exact sums")

	assert.Equal(t, map[string]float64{"b6": 1.0}, rec.Vitamins)
	assert.Equal(t, map[string]float64{"iron": 1.9}, rec.Minerals)
	assert.Equal(t, []string{"peanut"}, rec.Allergens, "model allergens are replaced, not merged")

	// Only the two ingredients declaring a glycemic index participate.
	assert.Equal(t, (0.0+73.0)/2.0, rec.GlycemicIndex)
	assert.Equal(t, 0.0, rec.InsulinIndex, "no ingredient declares an insulin index")
}

func TestNormalize_IngredientVisualTags(t *testing.T) {
	n := newTestNormalizer()
	parsed := &ParsedMeal{
		Object: map[string]interface{}{
			"meal_name":   "Breakfast",
			"ingredients": []interface{}{map[string]interface{}{"name": "banana", "calories": 105.0}},
		},
	}

	rec := n.Normalize(parsed, nil)

	require.Len(t, rec.Ingredients, 1)
	wantEmoji, wantColor := nutrition.VisualTag("banana")
	assert.Equal(t, wantEmoji, rec.Ingredients[0].Emoji)
	assert.Equal(t, wantColor, rec.Ingredients[0].Color)
}

func TestNormalize_Idempotent(t *testing.T) {
	n := newTestNormalizer()
	first := n.Normalize(&ParsedMeal{
		Object: map[string]interface{}{
			"meal_name":  "Lentil Soup",
			"calories":   320.0,
			"protein_g":  18.0,
			"carbs_g":    50.0,
			"fats_g":     4.0,
			"confidence": 88.0,
			"ingredients": []interface{}{
				map[string]interface{}{"name": "lentils", "calories": 230.0},
				map[string]interface{}{"name": "carrot", "calories": 25.0},
			},
		},
	}, nil)

	// Round-trip the record through JSON and normalize again.
	data, err := json.Marshal(first)
	require.NoError(t, err)
	var obj map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &obj))
	second := n.Normalize(&ParsedMeal{Object: obj}, nil)

	// Identity fields are regenerated each pass; everything else must match.
	second.ID = first.ID
	second.AnalyzedAt = first.AnalyzedAt
	assert.Equal(t, first, second)
}
