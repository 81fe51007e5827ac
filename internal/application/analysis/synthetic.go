package analysis

import (
	"math/rand"
	"strings"
	"sync"

	"github.com/nutrilens/v1/internal/ports/inbound"
)

// Synthesizer produces a plausible estimate when every model-backed tier
// has failed. It never calls the model: values come from bounded random
// ranges nudged by keywords found in the user's note. One instance is
// shared across requests, so the rng is mutex-guarded.
type Synthesizer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSynthesizer creates a synthesizer seeded from the given source.
func NewSynthesizer(seed int64) *Synthesizer {
	return &Synthesizer{rng: rand.New(rand.NewSource(seed))}
}

// nudge scales selected fields when its keyword appears in the note.
type nudge struct {
	keywords []string
	apply    func(obj map[string]interface{})
}

var nudges = []nudge{
	{
		keywords: []string{"large", "double", "big", "grande"},
		apply: func(obj map[string]interface{}) {
			scaleFields(obj, 1.4, "calories", "protein_g", "carbs_g", "fats_g")
		},
	},
	{
		keywords: []string{"small", "half", "light", "mini"},
		apply: func(obj map[string]interface{}) {
			scaleFields(obj, 0.6, "calories", "protein_g", "carbs_g", "fats_g")
		},
	},
	{
		keywords: []string{"salad", "greens", "vegetable"},
		apply: func(obj map[string]interface{}) {
			scaleFields(obj, 0.6, "calories", "fats_g")
			addToField(obj, "fiber_g", 5)
		},
	},
	{
		keywords: []string{"fried", "crispy", "battered"},
		apply: func(obj map[string]interface{}) {
			scaleFields(obj, 1.5, "fats_g")
			scaleFields(obj, 1.2, "calories")
		},
	},
	{
		keywords: []string{"dessert", "cake", "sweet", "chocolate", "ice cream"},
		apply: func(obj map[string]interface{}) {
			scaleFields(obj, 2.0, "sugar_g")
		},
	},
	{
		keywords: []string{"protein", "chicken", "steak", "fish", "eggs"},
		apply: func(obj map[string]interface{}) {
			scaleFields(obj, 1.5, "protein_g")
		},
	},
}

// Synthesize builds a loose meal object for the note. It returns a
// ParsedMeal so the result flows through the same normalization path as
// genuine model output.
func (s *Synthesizer) Synthesize(note string) *ParsedMeal {
	obj := map[string]interface{}{
		"meal_name":      s.mealName(note),
		"calories":       s.between(250, 700),
		"protein_g":      s.between(10, 40),
		"carbs_g":        s.between(20, 80),
		"fats_g":         s.between(8, 35),
		"fiber_g":        s.between(2, 10),
		"sugar_g":        s.between(3, 20),
		"sodium_mg":      s.between(200, 900),
		"cholesterol_mg": s.between(0, 90),
		"confidence":     s.between(15, 30),
		"food_category":  "estimated",
	}

	lower := strings.ToLower(note)
	for _, n := range nudges {
		for _, kw := range n.keywords {
			if strings.Contains(lower, kw) {
				n.apply(obj)
				break
			}
		}
	}

	obj["ingredients"] = s.ingredients(lower, obj)
	return &ParsedMeal{Object: obj, Source: inbound.SourceSynthetic}
}

// mealName derives a display name from the note, falling back to a fixed
// label for image-only requests.
func (s *Synthesizer) mealName(note string) string {
	note = strings.TrimSpace(note)
	if note == "" {
		return "Estimated Meal"
	}
	if len(note) > 48 {
		note = strings.TrimSpace(note[:48])
	}
	words := strings.Fields(strings.ToLower(note))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// ingredients mentions food words found in the note, splitting the
// synthesized totals evenly across them.
func (s *Synthesizer) ingredients(lowerNote string, obj map[string]interface{}) []interface{} {
	var names []string
	for _, food := range foodVocabulary {
		if strings.Contains(lowerNote, food) {
			names = append(names, food)
		}
		if len(names) == 4 {
			break
		}
	}
	if len(names) == 0 {
		names = []string{"mixed ingredients"}
	}

	share := 1.0 / float64(len(names))
	out := make([]interface{}, 0, len(names))
	for _, name := range names {
		out = append(out, map[string]interface{}{
			"name":      name,
			"calories":  numField(obj, "calories") * share,
			"protein_g": numField(obj, "protein_g") * share,
			"carbs_g":   numField(obj, "carbs_g") * share,
			"fats_g":    numField(obj, "fats_g") * share,
		})
	}
	return out
}

func (s *Synthesizer) between(lo, hi float64) float64 {
	s.mu.Lock()
	f := s.rng.Float64()
	s.mu.Unlock()
	return lo + f*(hi-lo)
}

func numField(obj map[string]interface{}, key string) float64 {
	if v, ok := obj[key].(float64); ok {
		return v
	}
	return 0
}

func scaleFields(obj map[string]interface{}, factor float64, keys ...string) {
	for _, key := range keys {
		obj[key] = numField(obj, key) * factor
	}
}

func addToField(obj map[string]interface{}, key string, delta float64) {
	obj[key] = numField(obj, key) + delta
}
