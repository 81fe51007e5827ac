package nutrition

import (
	"hash/fnv"
	"strings"
)

// visualTag pairs a presentation emoji with a hex accent color.
type visualTag struct {
	emoji string
	color string
}

// keywordTags maps food-name keywords to their presentation tag. Order of
// lookup is defined by tagKeywords so the result is deterministic.
var keywordTags = map[string]visualTag{
	"chicken":  {"🍗", "#E8A87C"},
	"beef":     {"🥩", "#C0392B"},
	"steak":    {"🥩", "#C0392B"},
	"fish":     {"🐟", "#5DADE2"},
	"salmon":   {"🍣", "#F1948A"},
	"shrimp":   {"🍤", "#F5B7B1"},
	"egg":      {"🥚", "#F9E79F"},
	"rice":     {"🍚", "#FDFEFE"},
	"pasta":    {"🍝", "#F5CBA7"},
	"noodle":   {"🍜", "#F5CBA7"},
	"bread":    {"🍞", "#D4AC6E"},
	"potato":   {"🥔", "#D5B895"},
	"salad":    {"🥗", "#58D68D"},
	"tomato":   {"🍅", "#E74C3C"},
	"carrot":   {"🥕", "#E67E22"},
	"broccoli": {"🥦", "#229954"},
	"avocado":  {"🥑", "#7DCEA0"},
	"cheese":   {"🧀", "#F4D03F"},
	"milk":     {"🥛", "#FBFCFC"},
	"yogurt":   {"🥛", "#FBFCFC"},
	"apple":    {"🍎", "#EC7063"},
	"banana":   {"🍌", "#F7DC6F"},
	"berry":    {"🫐", "#6C3483"},
	"soup":     {"🍲", "#EB984E"},
	"pizza":    {"🍕", "#E59866"},
	"burger":   {"🍔", "#DC7633"},
	"bean":     {"🫘", "#A04000"},
	"nut":      {"🥜", "#B9770E"},
	"oil":      {"🫒", "#82A67D"},
	"butter":   {"🧈", "#F8E187"},
}

// tagKeywords fixes the match order for VisualTag. More specific words come
// before generic ones so "salmon salad" tags as salmon.
var tagKeywords = []string{
	"salmon", "shrimp", "chicken", "steak", "beef", "fish", "egg",
	"noodle", "pasta", "rice", "bread", "potato",
	"broccoli", "avocado", "carrot", "tomato", "salad",
	"cheese", "yogurt", "milk", "butter", "oil",
	"banana", "berry", "apple", "bean", "nut",
	"pizza", "burger", "soup",
}

var fallbackTags = []visualTag{
	{"🍽️", "#95A5A6"},
	{"🥘", "#D35400"},
	{"🍱", "#7F8C8D"},
	{"🥙", "#CA9A66"},
}

// VisualTag derives the presentation emoji and accent color for a food name.
// It is a pure function: the same name always yields the same tag, with no
// external calls involved.
func VisualTag(name string) (emoji, color string) {
	lower := strings.ToLower(name)
	for _, kw := range tagKeywords {
		if strings.Contains(lower, kw) {
			tag := keywordTags[kw]
			return tag.emoji, tag.color
		}
	}

	// Unknown foods hash to a stable generic tag.
	h := fnv.New32a()
	h.Write([]byte(lower))
	tag := fallbackTags[int(h.Sum32())%len(fallbackTags)]
	return tag.emoji, tag.color
}
