package mealplan

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nutrilens/v1/internal/application/analysis"
	"github.com/nutrilens/v1/internal/ports/inbound"
	"github.com/nutrilens/v1/internal/ports/outbound"
)

type stubModel struct {
	available bool
	response  string
	err       error
	calls     int
}

func (m *stubModel) CompleteText(ctx context.Context, prompt outbound.ModelPrompt) (string, error) {
	m.calls++
	return m.response, m.err
}

func (m *stubModel) CompleteVision(ctx context.Context, prompt outbound.ModelPrompt, imageBase64 string) (string, error) {
	return "", outbound.ErrModelUnavailable
}

func (m *stubModel) Available() bool { return m.available }

type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time { return c.t }

func newTestService(model outbound.ModelClient) *Service {
	logger := zap.NewNop()
	clock := fixedClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	return NewService(model, analysis.NewParser(logger), analysis.NewNormalizer(clock), clock, logger, Options{MaxTokens: 4000})
}

// weekResponse builds a minimal but complete 7-day model reply.
func weekResponse() string {
	var days []string
	for _, weekday := range weekdays {
		days = append(days, `{"day":"`+weekday+`","meals":[{"slot":"breakfast","meal_name":"Oatmeal","calories":320,"protein_g":10,"carbs_g":58,"fats_g":7,"ingredients":[{"name":"oats","calories":300}]},{"slot":"dinner","meal_name":"Salmon Bowl","calories":540,"protein_g":40,"carbs_g":42,"fats_g":22,"ingredients":[{"name":"salmon","calories":350}]}]}`)
	}
	return `{"days":[` + strings.Join(days, ",") + `],"shopping_list":["oats","salmon"],"prep_tips":["batch cook"]}`
}

func TestGenerateWeek_ModelPath(t *testing.T) {
	model := &stubModel{available: true, response: weekResponse()}
	svc := newTestService(model)

	plan, err := svc.GenerateWeek(context.Background(), inbound.MealPlanProfile{DailyCalorieTarget: 1800})

	require.NoError(t, err)
	assert.False(t, plan.FromTemplate)
	require.Len(t, plan.Days, 7)
	assert.Equal(t, "Monday", plan.Days[0].Day)
	assert.Len(t, plan.Days[0].Meals, 2)
	assert.Equal(t, "Oatmeal", plan.Days[0].Meals[0].Record.Name)
	assert.Equal(t, []string{"oats", "salmon"}, plan.ShoppingList)
	assert.Equal(t, []string{"batch cook"}, plan.PrepTips)
	assert.InDelta(t, 860.0, plan.Summary.AvgDailyCalories, 0.001)
}

func TestGenerateWeek_ModelFailureFallsBackToTemplate(t *testing.T) {
	model := &stubModel{available: true, err: context.DeadlineExceeded}
	svc := newTestService(model)

	plan, err := svc.GenerateWeek(context.Background(), inbound.MealPlanProfile{})

	require.NoError(t, err)
	assert.True(t, plan.FromTemplate)
	require.Len(t, plan.Days, 7)
	for _, day := range plan.Days {
		assert.NotEmpty(t, day.Meals, "day %s has meals", day.Day)
	}
	assert.NotEmpty(t, plan.ShoppingList)
	assert.NotEmpty(t, plan.PrepTips)
}

func TestGenerateWeek_IncompleteModelPlanFallsBackToTemplate(t *testing.T) {
	// Only three days come back; the template must replace the whole plan.
	model := &stubModel{
		available: true,
		response:  `{"days":[{"day":"Monday","meals":[{"slot":"lunch","meal_name":"Soup","calories":300}]},{"day":"Tuesday","meals":[{"slot":"lunch","meal_name":"Salad","calories":280}]},{"day":"Wednesday","meals":[{"slot":"lunch","meal_name":"Bowl","calories":450}]}]}`,
	}
	svc := newTestService(model)

	plan, err := svc.GenerateWeek(context.Background(), inbound.MealPlanProfile{})

	require.NoError(t, err)
	assert.True(t, plan.FromTemplate)
	assert.Len(t, plan.Days, 7)
}

func TestGenerateWeek_TemplateRespectsAllergies(t *testing.T) {
	svc := newTestService(&stubModel{available: false})

	plan, err := svc.GenerateWeek(context.Background(), inbound.MealPlanProfile{
		Allergies:    []string{"fish", "peanut"},
		SnacksPerDay: 1,
	})

	require.NoError(t, err)
	for _, day := range plan.Days {
		for _, meal := range day.Meals {
			name := strings.ToLower(meal.Record.Name)
			assert.NotContains(t, name, "salmon", "day %s", day.Day)
			assert.NotContains(t, name, "tuna", "day %s", day.Day)
			assert.NotContains(t, name, "peanut", "day %s", day.Day)
		}
	}
}

func TestGenerateWeek_TemplateScalesTowardCalorieTarget(t *testing.T) {
	svc := newTestService(&stubModel{available: false})
	target := 2400.0

	plan, err := svc.GenerateWeek(context.Background(), inbound.MealPlanProfile{DailyCalorieTarget: target})

	require.NoError(t, err)
	for _, day := range plan.Days {
		var total float64
		for _, meal := range day.Meals {
			total += meal.Record.Calories
		}
		assert.InDelta(t, target, total, 1.0, "day %s total", day.Day)
	}
}

func TestGenerateWeek_NegativeTargetRejected(t *testing.T) {
	svc := newTestService(&stubModel{available: true})

	_, err := svc.GenerateWeek(context.Background(), inbound.MealPlanProfile{DailyCalorieTarget: -100})
	require.Error(t, err)
}

func TestGenerateWeek_SummaryAveragesOverDays(t *testing.T) {
	svc := newTestService(&stubModel{available: false})

	plan, err := svc.GenerateWeek(context.Background(), inbound.MealPlanProfile{DailyCalorieTarget: 2000})

	require.NoError(t, err)
	assert.InDelta(t, 2000.0, plan.Summary.AvgDailyCalories, 1.0)
	assert.Greater(t, plan.Summary.AvgProteinG, 0.0)
}
