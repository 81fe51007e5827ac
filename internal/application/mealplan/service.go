// Package mealplan generates structured 7-day meal plans. The model path
// reuses the recovery parser, and any failure substitutes a deterministic
// template plan so callers always receive a complete week.
package mealplan

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nutrilens/v1/internal/application/analysis"
	"github.com/nutrilens/v1/internal/domain/nutrition"
	"github.com/nutrilens/v1/internal/ports/inbound"
	"github.com/nutrilens/v1/internal/ports/outbound"
	apperrors "github.com/nutrilens/v1/pkg/errors"
)

const planSystemPrompt = `You are a meal planning service. Generate a 7-day meal plan matching the user's profile. Respond with ONLY a JSON object: {"days":[{"day":"Monday","meals":[{"slot":"breakfast","meal_name":...,"calories":...,"protein_g":...,"carbs_g":...,"fats_g":...,"ingredients":[{"name":...,"calories":...}]}]}],"shopping_list":[...],"prep_tips":[...]}. Exactly 7 days. Respect all allergies strictly.`

var weekdays = []string{
	"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
}

// Options carries the model tunables.
type Options struct {
	MaxTokens      int
	Temperature    float64
	RequestTimeout time.Duration
}

// Service generates weekly plans, model-first with a template substitute.
type Service struct {
	model      outbound.ModelClient
	parser     *analysis.Parser
	normalizer *analysis.Normalizer
	clock      outbound.Clock
	logger     *zap.Logger
	opts       Options
}

// NewService creates the meal plan service.
func NewService(model outbound.ModelClient, parser *analysis.Parser, normalizer *analysis.Normalizer, clock outbound.Clock, logger *zap.Logger, opts Options) *Service {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	return &Service{
		model:      model,
		parser:     parser,
		normalizer: normalizer,
		clock:      clock,
		logger:     logger.Named("mealplan"),
		opts:       opts,
	}
}

// GenerateWeek produces a full 7-day plan. It only errors on an unusable
// profile; model and parse failures substitute the template plan.
func (s *Service) GenerateWeek(ctx context.Context, profile inbound.MealPlanProfile) (*inbound.MealPlan, error) {
	if profile.DailyCalorieTarget < 0 {
		return nil, apperrors.NewValidationError("daily calorie target cannot be negative")
	}
	normalizeProfile(&profile)

	if plan := s.generateWithModel(ctx, profile); plan != nil {
		return plan, nil
	}
	s.logger.Info("substituting template meal plan",
		zap.Float64("daily_calorie_target", profile.DailyCalorieTarget))
	return s.templatePlan(profile), nil
}

func normalizeProfile(p *inbound.MealPlanProfile) {
	if p.DailyCalorieTarget == 0 {
		p.DailyCalorieTarget = 2000
	}
	if p.MealsPerDay <= 0 || p.MealsPerDay > 6 {
		p.MealsPerDay = 3
	}
	if p.SnacksPerDay < 0 || p.SnacksPerDay > 4 {
		p.SnacksPerDay = 0
	}
}

// generateWithModel returns nil on any failure so the caller can substitute
// the template.
func (s *Service) generateWithModel(ctx context.Context, profile inbound.MealPlanProfile) *inbound.MealPlan {
	if s.model == nil || !s.model.Available() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	payload, _ := json.Marshal(profile)
	raw, err := s.model.CompleteText(ctx, outbound.ModelPrompt{
		System:      planSystemPrompt,
		User:        fmt.Sprintf("Profile: %s", payload),
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
	})
	if err != nil {
		s.logger.Warn("meal plan model call failed", zap.Error(err))
		return nil
	}

	parsed, err := s.parser.Parse(raw)
	if err != nil {
		s.logger.Warn("meal plan output unparseable", zap.Error(err))
		return nil
	}

	plan := s.planFromObject(parsed.Object)
	if plan == nil {
		s.logger.Warn("meal plan output structurally incomplete")
	}
	return plan
}

// planFromObject rebuilds the typed plan from the loose parsed object. A
// plan missing any of the 7 days, or with an empty day, is rejected.
func (s *Service) planFromObject(obj map[string]interface{}) *inbound.MealPlan {
	rawDays, ok := obj["days"].([]interface{})
	if !ok || len(rawDays) != len(weekdays) {
		return nil
	}

	plan := &inbound.MealPlan{}
	for i, rawDay := range rawDays {
		dayObj, ok := rawDay.(map[string]interface{})
		if !ok {
			return nil
		}
		day := inbound.DayPlan{Day: weekdays[i]}
		if name, ok := dayObj["day"].(string); ok && name != "" {
			day.Day = name
		}

		rawMeals, ok := dayObj["meals"].([]interface{})
		if !ok || len(rawMeals) == 0 {
			return nil
		}
		for _, rawMeal := range rawMeals {
			mealObj, ok := rawMeal.(map[string]interface{})
			if !ok {
				continue
			}
			slot, _ := mealObj["slot"].(string)
			if slot == "" {
				slot = "meal"
			}
			record := s.normalizer.Normalize(&analysis.ParsedMeal{Object: mealObj, Source: inbound.SourceModel}, nil)
			day.Meals = append(day.Meals, inbound.PlannedMeal{Slot: slot, Record: record})
		}
		if len(day.Meals) == 0 {
			return nil
		}
		plan.Days = append(plan.Days, day)
	}

	plan.Summary = summarize(plan.Days)
	plan.ShoppingList = stringSlice(obj["shopping_list"])
	if len(plan.ShoppingList) == 0 {
		plan.ShoppingList = shoppingListFrom(plan.Days)
	}
	plan.PrepTips = stringSlice(obj["prep_tips"])
	if len(plan.PrepTips) == 0 {
		plan.PrepTips = defaultPrepTips
	}
	return plan
}

// mealTemplate is one entry in the fixed template library.
type mealTemplate struct {
	name        string
	slot        string
	calories    float64
	proteinG    float64
	carbsG      float64
	fatsG       float64
	ingredients []string
	allergens   []string
}

var templateLibrary = []mealTemplate{
	{"Greek Yogurt with Berries", "breakfast", 280, 20, 32, 8, []string{"yogurt", "berries", "honey"}, []string{"dairy"}},
	{"Oatmeal with Banana", "breakfast", 320, 10, 58, 7, []string{"oats", "banana", "milk"}, []string{"dairy"}},
	{"Scrambled Eggs on Toast", "breakfast", 350, 21, 28, 16, []string{"egg", "bread", "butter"}, []string{"egg", "gluten", "dairy"}},
	{"Grilled Chicken Salad", "lunch", 420, 38, 18, 22, []string{"chicken", "lettuce", "tomato", "avocado"}, nil},
	{"Lentil Soup with Bread", "lunch", 390, 19, 60, 8, []string{"lentils", "carrot", "onion", "bread"}, []string{"gluten"}},
	{"Tuna Rice Bowl", "lunch", 450, 32, 52, 11, []string{"fish", "rice", "cucumber"}, []string{"fish"}},
	{"Baked Salmon with Quinoa", "dinner", 540, 40, 42, 22, []string{"salmon", "quinoa", "broccoli"}, []string{"fish"}},
	{"Beef Stir Fry", "dinner", 560, 36, 48, 24, []string{"beef", "rice", "pepper", "onion"}, []string{"soy"}},
	{"Tofu Vegetable Curry", "dinner", 480, 22, 55, 18, []string{"tofu", "rice", "spinach", "garlic"}, []string{"soy"}},
	{"Apple with Peanut Butter", "snack", 190, 5, 22, 10, []string{"apple", "peanut butter"}, []string{"peanut"}},
	{"Carrot Sticks with Hummus", "snack", 150, 5, 18, 7, []string{"carrot", "hummus"}, []string{"sesame"}},
	{"Mixed Nuts", "snack", 170, 6, 7, 14, []string{"nuts"}, []string{"nuts"}},
}

var defaultPrepTips = []string{
	"Cook grains for the week in one batch and refrigerate.",
	"Wash and chop vegetables right after shopping.",
	"Portion snacks into containers to avoid overeating.",
}

// templatePlan builds the deterministic substitute week: templates are
// filtered by the profile's allergies, rotated across the week, and scaled
// toward the daily calorie target.
func (s *Service) templatePlan(profile inbound.MealPlanProfile) *inbound.MealPlan {
	slots := planSlots(profile)
	bySlot := allowedTemplates(profile.Allergies)

	plan := &inbound.MealPlan{FromTemplate: true}
	for dayIdx, weekday := range weekdays {
		day := inbound.DayPlan{Day: weekday}
		dayCalories := 0.0
		picks := make([]mealTemplate, 0, len(slots))
		for slotIdx, slot := range slots {
			candidates := bySlot[slot]
			if len(candidates) == 0 {
				candidates = bySlot["lunch"]
			}
			if len(candidates) == 0 {
				continue
			}
			tmpl := candidates[(dayIdx+slotIdx)%len(candidates)]
			picks = append(picks, tmpl)
			dayCalories += tmpl.calories
		}

		scale := 1.0
		if dayCalories > 0 && profile.DailyCalorieTarget > 0 {
			scale = profile.DailyCalorieTarget / dayCalories
		}
		for _, tmpl := range picks {
			day.Meals = append(day.Meals, inbound.PlannedMeal{
				Slot:   tmpl.slot,
				Record: s.recordFromTemplate(tmpl, scale),
			})
		}
		plan.Days = append(plan.Days, day)
	}

	plan.Summary = summarize(plan.Days)
	plan.ShoppingList = shoppingListFrom(plan.Days)
	plan.PrepTips = defaultPrepTips
	return plan
}

func planSlots(profile inbound.MealPlanProfile) []string {
	mealSlots := []string{"breakfast", "lunch", "dinner", "lunch", "dinner", "lunch"}
	slots := append([]string{}, mealSlots[:profile.MealsPerDay]...)
	for i := 0; i < profile.SnacksPerDay; i++ {
		slots = append(slots, "snack")
	}
	return slots
}

// allowedTemplates drops every template carrying one of the profile's
// allergens and groups the rest by slot.
func allowedTemplates(allergies []string) map[string][]mealTemplate {
	blocked := make(map[string]struct{}, len(allergies))
	for _, a := range allergies {
		blocked[strings.ToLower(strings.TrimSpace(a))] = struct{}{}
	}

	out := make(map[string][]mealTemplate)
	for _, tmpl := range templateLibrary {
		safe := true
		for _, allergen := range tmpl.allergens {
			if _, hit := blocked[allergen]; hit {
				safe = false
				break
			}
		}
		if safe {
			out[tmpl.slot] = append(out[tmpl.slot], tmpl)
		}
	}
	return out
}

func (s *Service) recordFromTemplate(tmpl mealTemplate, scale float64) nutrition.Record {
	rec := nutrition.Record{
		ID:           uuid.New(),
		Name:         tmpl.name,
		Calories:     tmpl.calories * scale,
		ProteinG:     tmpl.proteinG * scale,
		CarbsG:       tmpl.carbsG * scale,
		FatsG:        tmpl.fatsG * scale,
		Confidence:   60,
		FoodCategory: tmpl.slot,
		AnalyzedAt:   s.clock.Now(),
	}
	share := 1.0
	if len(tmpl.ingredients) > 0 {
		share = 1.0 / float64(len(tmpl.ingredients))
	}
	for _, name := range tmpl.ingredients {
		emoji, color := nutrition.VisualTag(name)
		rec.Ingredients = append(rec.Ingredients, nutrition.IngredientRecord{
			Name:     name,
			Calories: rec.Calories * share,
			ProteinG: rec.ProteinG * share,
			CarbsG:   rec.CarbsG * share,
			FatsG:    rec.FatsG * share,
			Emoji:    emoji,
			Color:    color,
		})
	}
	return rec
}

func summarize(days []inbound.DayPlan) inbound.WeeklySummary {
	if len(days) == 0 {
		return inbound.WeeklySummary{}
	}
	var summary inbound.WeeklySummary
	for _, day := range days {
		for _, meal := range day.Meals {
			summary.AvgDailyCalories += meal.Record.Calories
			summary.AvgProteinG += meal.Record.ProteinG
			summary.AvgCarbsG += meal.Record.CarbsG
			summary.AvgFatsG += meal.Record.FatsG
		}
	}
	n := float64(len(days))
	summary.AvgDailyCalories /= n
	summary.AvgProteinG /= n
	summary.AvgCarbsG /= n
	summary.AvgFatsG /= n
	return summary
}

func shoppingListFrom(days []inbound.DayPlan) []string {
	set := map[string]struct{}{}
	for _, day := range days {
		for _, meal := range day.Meals {
			for _, ing := range meal.Record.Ingredients {
				set[strings.ToLower(ing.Name)] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func stringSlice(raw interface{}) []string {
	arr, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, el := range arr {
		if s, ok := el.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
