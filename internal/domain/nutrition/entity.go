// Package nutrition contains the core domain model for meal analysis results.
// A Record is the canonical, fully-typed output of the analysis pipeline; it is
// created once per request and never mutated after being returned.
package nutrition

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Record is the canonical per-meal nutrition result.
type Record struct {
	ID            uuid.UUID          `json:"id"`
	Name          string             `json:"name"`
	Calories      float64            `json:"calories"`
	ProteinG      float64            `json:"protein_g"`
	CarbsG        float64            `json:"carbs_g"`
	FatsG         float64            `json:"fats_g"`
	FiberG        float64            `json:"fiber_g"`
	SugarG        float64            `json:"sugar_g"`
	SodiumMg      float64            `json:"sodium_mg"`
	CholesterolMg float64            `json:"cholesterol_mg"`
	Vitamins      map[string]float64 `json:"vitamins,omitempty"`
	Minerals      map[string]float64 `json:"minerals,omitempty"`
	Allergens     []string           `json:"allergens,omitempty"`
	GlycemicIndex float64            `json:"glycemic_index"`
	InsulinIndex  float64            `json:"insulin_index"`

	// Confidence is on a 0-100 scale.
	Confidence float64 `json:"confidence"`

	Ingredients   []IngredientRecord `json:"ingredients"`
	CookingMethod string             `json:"cooking_method,omitempty"`
	FoodCategory  string             `json:"food_category,omitempty"`
	HealthNotes   []string           `json:"health_notes,omitempty"`

	AnalyzedAt time.Time `json:"analyzed_at"`
}

// IngredientRecord is a single ingredient contribution within a Record.
// Index fields are pointers because an ingredient that does not declare a
// value is excluded from meal-level averaging, not treated as zero.
type IngredientRecord struct {
	Name          string             `json:"name"`
	Calories      float64            `json:"calories"`
	ProteinG      float64            `json:"protein_g"`
	CarbsG        float64            `json:"carbs_g"`
	FatsG         float64            `json:"fats_g"`
	WeightG       float64            `json:"weight_g,omitempty"`
	GlycemicIndex *float64           `json:"glycemic_index,omitempty"`
	InsulinIndex  *float64           `json:"insulin_index,omitempty"`
	Vitamins      map[string]float64 `json:"vitamins,omitempty"`
	Minerals      map[string]float64 `json:"minerals,omitempty"`
	Allergens     []string           `json:"allergens,omitempty"`
	Emoji         string             `json:"emoji,omitempty"`
	Color         string             `json:"color,omitempty"`
}

// MacroCalories returns the caloric value implied by the macro fields
// (4 kcal/g protein, 4 kcal/g carbohydrate, 9 kcal/g fat).
func (r Record) MacroCalories() float64 {
	return r.ProteinG*4 + r.CarbsG*4 + r.FatsG*9
}

// CalorieDeviation reports how far the stated calories diverge from the
// macro-implied value, as a fraction of the stated calories. It is
// informational: downstream consumers may flag large deviations, but
// nothing in the pipeline rejects a record because of one.
func (r Record) CalorieDeviation() float64 {
	if r.Calories <= 0 {
		return 0
	}
	return math.Abs(r.Calories-r.MacroCalories()) / r.Calories
}

// IngredientCalorieSum returns the total calories contributed by ingredients.
func (r Record) IngredientCalorieSum() float64 {
	var sum float64
	for _, ing := range r.Ingredients {
		sum += ing.Calories
	}
	return sum
}
