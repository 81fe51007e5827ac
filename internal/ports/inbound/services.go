// Package inbound defines the interfaces for inbound ports (primary/driving adapters)
// These are the contracts the HTTP layer and other callers program against.
package inbound

import (
	"context"

	"github.com/nutrilens/v1/internal/domain/nutrition"
	"github.com/nutrilens/v1/internal/domain/pricing"
)

// AnalysisRequest carries one meal analysis request across the boundary.
type AnalysisRequest struct {
	// ImageBase64 is the opaque encoded image payload. Empty for
	// description-only analysis.
	ImageBase64 string

	// Note is the optional free-text user note about the meal.
	Note string

	// EditedIngredients are prior user corrections. When present, aggregate
	// totals are recomputed from them instead of trusting the model.
	EditedIngredients []nutrition.IngredientRecord

	// Locale is the caller's BCP 47 locale tag ("en", "es", "ru").
	Locale string
}

// ResultSource names the tier that produced a result.
type ResultSource string

const (
	SourceModel     ResultSource = "model"
	SourceRepaired  ResultSource = "repaired"
	SourceMined     ResultSource = "mined"
	SourceSynthetic ResultSource = "synthetic"
)

// AnalysisResult is the layered outcome of an analysis: the record itself
// plus how degraded the path that produced it was. Callers can log or
// surface degradation without the pipeline resorting to throw/catch chains.
type AnalysisResult struct {
	Record         nutrition.Record `json:"record"`
	Source         ResultSource     `json:"source"`
	Degraded       bool             `json:"degraded"`
	DegradedReason string           `json:"degraded_reason,omitempty"`
}

// AnalysisService is the fallback-ladder entrypoint. Both operations are
// total: they only return an error for caller-input mistakes, never for
// external-dependency or internal parse failures.
type AnalysisService interface {
	AnalyzeImage(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error)
	AnalyzeDescription(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error)
}

// MealPlanProfile is the structured profile a weekly plan is generated for.
type MealPlanProfile struct {
	DailyCalorieTarget float64  `json:"daily_calorie_target"`
	ProteinTargetG     float64  `json:"protein_target_g"`
	CarbsTargetG       float64  `json:"carbs_target_g"`
	FatsTargetG        float64  `json:"fats_target_g"`
	MealsPerDay        int      `json:"meals_per_day"`
	SnacksPerDay       int      `json:"snacks_per_day"`
	Allergies          []string `json:"allergies,omitempty"`
	Preferences        []string `json:"preferences,omitempty"`
	CookingSkill       string   `json:"cooking_skill,omitempty"`
	Equipment          []string `json:"equipment,omitempty"`
	Locale             string   `json:"locale,omitempty"`
}

// PlannedMeal is one meal slot in a day plan, reusing the Record shape.
type PlannedMeal struct {
	Slot   string           `json:"slot"`
	Record nutrition.Record `json:"record"`
}

// DayPlan covers a single day of the weekly plan.
type DayPlan struct {
	Day   string        `json:"day"`
	Meals []PlannedMeal `json:"meals"`
}

// WeeklySummary aggregates the plan's daily averages.
type WeeklySummary struct {
	AvgDailyCalories float64 `json:"avg_daily_calories"`
	AvgProteinG      float64 `json:"avg_protein_g"`
	AvgCarbsG        float64 `json:"avg_carbs_g"`
	AvgFatsG         float64 `json:"avg_fats_g"`
}

// MealPlan is the full 7-day structured plan.
type MealPlan struct {
	Days         []DayPlan     `json:"days"`
	Summary      WeeklySummary `json:"summary"`
	ShoppingList []string      `json:"shopping_list"`
	PrepTips     []string      `json:"prep_tips"`

	// FromTemplate marks a deterministic substitute plan produced after
	// the model path failed.
	FromTemplate bool `json:"from_template"`
}

// MealPlanService generates weekly meal plans. Always succeeds: on any
// failure a template-based plan is substituted.
type MealPlanService interface {
	GenerateWeek(ctx context.Context, profile MealPlanProfile) (*MealPlan, error)
}

// ChatContext is the caller-supplied personalization context.
type ChatContext struct {
	Name               string   `json:"name,omitempty"`
	Goal               string   `json:"goal,omitempty"`
	DailyCalorieTarget float64  `json:"daily_calorie_target,omitempty"`
	RecentMeals        []string `json:"recent_meals,omitempty"`
	Restrictions       []string `json:"restrictions,omitempty"`
}

// ChatRequest is one conversational nutrition-advice request.
type ChatRequest struct {
	Message string      `json:"message"`
	Locale  string      `json:"locale,omitempty"`
	Context ChatContext `json:"context"`
}

// NutritionChatService answers free-text nutrition questions. External-call
// failures yield a canned localized reply, never an error to the end user;
// the error return is reserved for caller-input mistakes.
type NutritionChatService interface {
	Reply(ctx context.Context, req ChatRequest) (string, error)
}

// PriceService estimates ingredient and product prices, cache-first.
type PriceService interface {
	Estimate(ctx context.Context, item pricing.Item) (*pricing.Estimate, error)
	EstimateBatch(ctx context.Context, items []pricing.Item) (map[string]pricing.Estimate, error)
}
