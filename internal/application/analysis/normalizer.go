package analysis

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/nutrilens/v1/internal/domain/nutrition"
	"github.com/nutrilens/v1/internal/ports/outbound"
)

// Defaults used when a field cannot be recovered at all. Absent numerics
// become these constants, never NaN.
const (
	defaultMealName   = "Unknown Meal"
	defaultConfidence = 50.0
)

// fieldAliases maps each canonical field to the alternate key names the
// model is known to emit. First present wins.
var fieldAliases = map[string][]string{
	"meal_name":      {"meal_name", "name", "title"},
	"calories":       {"calories", "kcal", "calorie"},
	"protein_g":      {"protein_g", "protein"},
	"carbs_g":        {"carbs_g", "carbs", "carbohydrates_g", "carbohydrates"},
	"fats_g":         {"fats_g", "fat_g", "fats", "fat"},
	"fiber_g":        {"fiber_g", "fiber"},
	"sugar_g":        {"sugar_g", "sugar"},
	"sodium_mg":      {"sodium_mg", "sodium"},
	"cholesterol_mg": {"cholesterol_mg", "cholesterol"},
	"weight_g":       {"weight_g", "weight", "portion_g"},
	"confidence":     {"confidence", "confidence_score"},
	"glycemic_index": {"glycemic_index", "gi"},
	"insulin_index":  {"insulin_index", "ii"},
	"cooking_method": {"cooking_method", "method"},
	"food_category":  {"food_category", "category"},
	"health_notes":   {"health_notes", "notes"},
	"ingredients":    {"ingredients", "items", "components"},
	"vitamins":       {"vitamins"},
	"minerals":       {"minerals", "micronutrients"},
	"allergens":      {"allergens"},
}

// Normalizer turns a loosely-typed ParsedMeal into a fully-typed Record.
// Every numeric field it emits is finite and non-negative.
type Normalizer struct {
	clock outbound.Clock
}

// NewNormalizer creates a normalizer with the given clock.
func NewNormalizer(clock outbound.Clock) *Normalizer {
	return &Normalizer{clock: clock}
}

// Normalize produces the canonical Record for a parsed meal. When the
// caller supplies user-edited ingredients, the model's aggregate totals are
// ignored entirely and every aggregate is recomputed from the edited list:
// user-provided ground truth always wins over inferred totals.
func (n *Normalizer) Normalize(parsed *ParsedMeal, edited []nutrition.IngredientRecord) nutrition.Record {
	obj := map[string]interface{}{}
	if parsed != nil && parsed.Object != nil {
		obj = parsed.Object
	}

	rec := nutrition.Record{
		ID:         uuid.New(),
		Name:       pickString(obj, "meal_name", defaultMealName),
		AnalyzedAt: n.clock.Now(),
	}

	rec.Calories = clamp(pickNumber(obj, "calories", 0))
	rec.ProteinG = clamp(pickNumber(obj, "protein_g", 0))
	rec.CarbsG = clamp(pickNumber(obj, "carbs_g", 0))
	rec.FatsG = clamp(pickNumber(obj, "fats_g", 0))
	rec.FiberG = clamp(pickNumber(obj, "fiber_g", 0))
	rec.SugarG = clamp(pickNumber(obj, "sugar_g", 0))
	rec.SodiumMg = clamp(pickNumber(obj, "sodium_mg", 0))
	rec.CholesterolMg = clamp(pickNumber(obj, "cholesterol_mg", 0))
	rec.Confidence = normalizeConfidence(pickNumber(obj, "confidence", defaultConfidence))
	rec.GlycemicIndex = clamp(pickNumber(obj, "glycemic_index", 0))
	rec.InsulinIndex = clamp(pickNumber(obj, "insulin_index", 0))
	rec.CookingMethod = pickString(obj, "cooking_method", "")
	rec.FoodCategory = pickString(obj, "food_category", "")
	rec.HealthNotes = pickStringSlice(obj, "health_notes")
	rec.Vitamins = pickNumberMap(obj, "vitamins")
	rec.Minerals = pickNumberMap(obj, "minerals")
	rec.Allergens = pickStringSlice(obj, "allergens")
	rec.Ingredients = n.normalizeIngredients(obj)

	if len(edited) > 0 {
		n.applyEditedIngredients(&rec, edited)
	} else if len(rec.Ingredients) > 0 {
		fillIndexesFromIngredients(&rec)
	}

	return rec
}

// normalizeIngredients coerces the parsed ingredient list, clamping every
// number and deriving the visual tag from the name.
func (n *Normalizer) normalizeIngredients(obj map[string]interface{}) []nutrition.IngredientRecord {
	raw := pickSlice(obj, "ingredients")
	out := make([]nutrition.IngredientRecord, 0, len(raw))

	for _, el := range raw {
		var ing nutrition.IngredientRecord
		switch v := el.(type) {
		case string:
			ing.Name = v
		case map[string]interface{}:
			ing.Name = pickString(v, "meal_name", "")
			ing.Calories = clamp(pickNumber(v, "calories", 0))
			ing.ProteinG = clamp(pickNumber(v, "protein_g", 0))
			ing.CarbsG = clamp(pickNumber(v, "carbs_g", 0))
			ing.FatsG = clamp(pickNumber(v, "fats_g", 0))
			ing.WeightG = clamp(pickNumber(v, "weight_g", 0))
			ing.Vitamins = pickNumberMap(v, "vitamins")
			ing.Minerals = pickNumberMap(v, "minerals")
			ing.Allergens = pickStringSlice(v, "allergens")
			if gi, ok := lookupNumber(v, "glycemic_index"); ok {
				gi = clamp(gi)
				ing.GlycemicIndex = &gi
			}
			if ii, ok := lookupNumber(v, "insulin_index"); ok {
				ii = clamp(ii)
				ing.InsulinIndex = &ii
			}
		default:
			continue
		}
		if ing.Name == "" {
			continue
		}
		ing.Emoji, ing.Color = nutrition.VisualTag(ing.Name)
		out = append(out, ing)
	}
	return out
}

// applyEditedIngredients replaces the ingredient list with the user's
// corrections and recomputes every aggregate as an exact sum over it.
func (n *Normalizer) applyEditedIngredients(rec *nutrition.Record, edited []nutrition.IngredientRecord) {
	ingredients := make([]nutrition.IngredientRecord, len(edited))
	copy(ingredients, edited)

	var calories, protein, carbs, fats float64
	vitamins := map[string]float64{}
	minerals := map[string]float64{}
	allergenSet := map[string]struct{}{}

	for i := range ingredients {
		ing := &ingredients[i]
		ing.Calories = clamp(ing.Calories)
		ing.ProteinG = clamp(ing.ProteinG)
		ing.CarbsG = clamp(ing.CarbsG)
		ing.FatsG = clamp(ing.FatsG)
		ing.WeightG = clamp(ing.WeightG)
		if ing.Emoji == "" {
			ing.Emoji, ing.Color = nutrition.VisualTag(ing.Name)
		}

		calories += ing.Calories
		protein += ing.ProteinG
		carbs += ing.CarbsG
		fats += ing.FatsG

		for k, v := range ing.Vitamins {
			vitamins[k] += v
		}
		for k, v := range ing.Minerals {
			minerals[k] += v
		}
		for _, a := range ing.Allergens {
			allergenSet[a] = struct{}{}
		}
	}

	rec.Ingredients = ingredients
	rec.Calories = calories
	rec.ProteinG = protein
	rec.CarbsG = carbs
	rec.FatsG = fats
	if len(vitamins) > 0 {
		rec.Vitamins = vitamins
	} else {
		rec.Vitamins = nil
	}
	if len(minerals) > 0 {
		rec.Minerals = minerals
	} else {
		rec.Minerals = nil
	}
	rec.Allergens = sortedKeys(allergenSet)
	rec.GlycemicIndex = 0
	rec.InsulinIndex = 0
	fillIndexesFromIngredients(rec)
}

// fillIndexesFromIngredients derives meal-level glycemic and insulin
// indexes as the arithmetic mean of the ingredients that declare a value.
// Ingredients without one are excluded from the average, not counted as
// zero. Already-set meal-level values are kept.
func fillIndexesFromIngredients(rec *nutrition.Record) {
	if rec.GlycemicIndex == 0 {
		if mean, ok := meanOf(rec.Ingredients, func(i nutrition.IngredientRecord) *float64 { return i.GlycemicIndex }); ok {
			rec.GlycemicIndex = mean
		}
	}
	if rec.InsulinIndex == 0 {
		if mean, ok := meanOf(rec.Ingredients, func(i nutrition.IngredientRecord) *float64 { return i.InsulinIndex }); ok {
			rec.InsulinIndex = mean
		}
	}
}

func meanOf(ingredients []nutrition.IngredientRecord, get func(nutrition.IngredientRecord) *float64) (float64, bool) {
	var sum float64
	var count int
	for _, ing := range ingredients {
		if v := get(ing); v != nil {
			sum += *v
			count++
		}
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

// normalizeConfidence rescales a fractional (0,1) confidence to the 0-100
// scale, then clamps to [0,100]. Rescaled values are floored to 1 so the
// output is never itself fractional; a value of exactly 1 is taken as an
// already-percent input. Normalization is therefore idempotent.
func normalizeConfidence(v float64) float64 {
	if v > 0 && v < 1 {
		v *= 100
		if v < 1 {
			v = 1
		}
	}
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// clamp forces a numeric value to be finite and non-negative.
func clamp(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// coerceNumber accepts the numeric encodings that show up in loose model
// output: JSON numbers, integers, and numeric strings.
func coerceNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func lookupNumber(obj map[string]interface{}, canonical string) (float64, bool) {
	for _, key := range fieldAliases[canonical] {
		if raw, ok := obj[key]; ok {
			if v, ok := coerceNumber(raw); ok {
				return v, true
			}
		}
	}
	return 0, false
}

func pickNumber(obj map[string]interface{}, canonical string, def float64) float64 {
	if v, ok := lookupNumber(obj, canonical); ok {
		return v
	}
	return def
}

func pickString(obj map[string]interface{}, canonical string, def string) string {
	for _, key := range fieldAliases[canonical] {
		if raw, ok := obj[key]; ok {
			if s, ok := raw.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return def
}

func pickSlice(obj map[string]interface{}, canonical string) []interface{} {
	for _, key := range fieldAliases[canonical] {
		if raw, ok := obj[key]; ok {
			if s, ok := raw.([]interface{}); ok {
				return s
			}
		}
	}
	return nil
}

func pickStringSlice(obj map[string]interface{}, canonical string) []string {
	raw := pickSlice(obj, canonical)
	if raw == nil {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, el := range raw {
		if s, ok := el.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func pickNumberMap(obj map[string]interface{}, canonical string) map[string]float64 {
	for _, key := range fieldAliases[canonical] {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		m, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		out := make(map[string]float64, len(m))
		for k, v := range m {
			if f, ok := coerceNumber(v); ok {
				out[k] = clamp(f)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
