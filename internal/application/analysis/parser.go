// Package analysis provides the application layer for the AI-assisted
// nutrition analysis pipeline: recovery parsing of raw model output,
// normalization into typed records, and the fallback ladder that guarantees
// every request receives a usable result.
package analysis

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/nutrilens/v1/internal/ports/inbound"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// ErrModelRefusal marks output where the model declined to answer. It is
// the only total parse failure: every other malformed input degrades to
// some structurally valid object.
var ErrModelRefusal = errors.New("model declined to analyze the input")

// ParsedMeal is the loosely-typed intermediate between raw model text and a
// typed record. Fields are genuinely best-effort at this point, so it keeps
// a loose map rather than a strict struct; only the normalizer's output is
// fully typed.
type ParsedMeal struct {
	// Object holds whatever field values could be recovered, keyed by the
	// model's own (possibly alternate) key names.
	Object map[string]interface{}

	// Source tags which tier produced the object: a clean parse, a
	// structural repair, or field-level mining.
	Source inbound.ResultSource
}

// refusalMarkers are language-agnostic signals that the model declined to
// answer, covering English plus the app's supported locales.
var refusalMarkers = []string{
	"i'm sorry", "i am sorry", "i apologize",
	"i cannot", "i can't", "i'm unable", "i am unable",
	"unable to analyze", "cannot assist", "can't help with",
	"as an ai", "not able to identify",
	"lo siento", "no puedo", "no es posible analizar",
	"извините", "не могу", "к сожалению",
}

var (
	numberFieldPattern = `"?%s"?\s*[:=]\s*"?(-?[0-9]+(?:\.[0-9]+)?)`
	stringFieldPattern = `"%s"\s*:\s*"([^"]*)"`
)

// Parser recovers a structurally valid object from raw model output.
type Parser struct {
	logger *zap.Logger
}

// NewParser creates a new recovery parser.
func NewParser(logger *zap.Logger) *Parser {
	return &Parser{logger: logger.Named("parser")}
}

// Parse extracts a ParsedMeal from raw model output. Tiers, in order:
// refusal detection, strict parse, structural repair, then per-field
// mining. Only refusal detection fails; the mining tier always produces
// something.
func (p *Parser) Parse(raw string) (*ParsedMeal, error) {
	if p.isRefusal(raw) {
		return nil, ErrModelRefusal
	}

	cleaned := stripWrappers(raw)

	// Tier 2: strict parse of the unwrapped core.
	if obj, ok := tryUnmarshal(cleaned); ok {
		return &ParsedMeal{Object: obj, Source: inbound.SourceModel}, nil
	}

	// Tier 3: structural repair, one re-attempt.
	repaired := repairStructure(cleaned)
	if obj, ok := tryUnmarshal(repaired); ok {
		p.logger.Debug("parsed after structural repair",
			zap.Int("raw_len", len(raw)),
			zap.Int("repaired_len", len(repaired)))
		return &ParsedMeal{Object: obj, Source: inbound.SourceRepaired}, nil
	}

	// Tier 4/5: mine whatever fields are individually recognizable.
	obj := p.mineFields(raw, cleaned)
	p.logger.Debug("recovered fields by mining", zap.Int("fields", len(obj)))
	return &ParsedMeal{Object: obj, Source: inbound.SourceMined}, nil
}

// isRefusal scans for refusal markers in the prose portion of the output.
// Text containing structure is only scanned up to the first opening brace,
// so a health note mentioning "sorry" inside valid JSON does not trip it.
func (p *Parser) isRefusal(raw string) bool {
	scan := raw
	if idx := strings.IndexByte(raw, '{'); idx >= 0 {
		scan = raw[:idx]
	}
	scan = strings.ToLower(scan)
	for _, marker := range refusalMarkers {
		if strings.Contains(scan, marker) {
			return true
		}
	}
	return false
}

// stripWrappers removes markdown code fences and surrounding prose,
// keeping the span from the first opening brace to the last closing one
// when both exist.
func stripWrappers(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		} else {
			s = ""
		}
		if end := strings.LastIndex(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	if start >= 0 {
		// Truncated output with no closing brace: keep the tail for repair.
		return s[start:]
	}
	return s
}

func tryUnmarshal(s string) (map[string]interface{}, bool) {
	if s == "" {
		return nil, false
	}
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// repairStructure fixes the malformed-JSON mistakes models actually make:
// trailing separators before closing delimiters, and unbalanced nesting
// from truncated output.
func repairStructure(s string) string {
	s = stripTrailingCommas(s)
	s = balanceDelimiters(s)
	return stripTrailingCommas(s)
}

// stripTrailingCommas removes commas that precede a closing brace or
// bracket, together with any whitespace between the comma and the closer.
func stripTrailingCommas(s string) string {
	for {
		changed := false
		var b strings.Builder
		b.Grow(len(s))
		for i := 0; i < len(s); i++ {
			if s[i] == ',' {
				j := i + 1
				for j < len(s) && (s[j] == ' ' || s[j] == '\n' || s[j] == '\r' || s[j] == '\t') {
					j++
				}
				if j < len(s) && (s[j] == '}' || s[j] == ']') {
					changed = true
					i = j - 1
					continue
				}
			}
			b.WriteByte(s[i])
		}
		if !changed {
			return s
		}
		s = b.String()
	}
}

// balanceDelimiters tracks nesting depth across the text. If depth never
// returns to zero the text is truncated to the last balanced position when
// one exists, otherwise the missing closers are appended in stack order.
// An open string literal at the cut point is closed first.
func balanceDelimiters(s string) string {
	var stack []byte
	inString := false
	escaped := false
	lastBalanced := -1

	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// string contents never affect nesting
		case c == '{' || c == '[':
			stack = append(stack, c)
		case c == '}' || c == ']':
			if len(stack) == 0 {
				// Stray closer: cut here so the prefix stays parseable.
				return s[:i]
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				lastBalanced = i
			}
		}
	}

	if len(stack) == 0 {
		return s
	}

	if lastBalanced >= 0 {
		return s[:lastBalanced+1]
	}

	// Truncated mid-object: drop a dangling partial token, close any open
	// string, then append the missing closers innermost-first.
	var b strings.Builder
	b.WriteString(trimDanglingToken(s, inString))
	if inString {
		b.WriteByte('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

// trimDanglingToken drops an incomplete trailing token such as a bare key
// or a lone colon so appended closers produce valid structure.
func trimDanglingToken(s string, inString bool) string {
	if inString {
		return s
	}
	trimmed := strings.TrimRight(s, " \t\r\n")
	if strings.HasSuffix(trimmed, ":") || strings.HasSuffix(trimmed, ",") {
		return strings.TrimRight(trimmed[:len(trimmed)-1], " \t\r\n")
	}
	return trimmed
}

// mineFields pulls individually recognizable key/value pairs out of text
// that resisted structural parsing, synthesizing defaults for the rest.
// gjson handles the JSON-ish spans; regex patterns catch prose-mixed pairs.
func (p *Parser) mineFields(raw, cleaned string) map[string]interface{} {
	obj := make(map[string]interface{})

	if name, ok := mineString(cleaned, raw, "meal_name", "name", "title"); ok {
		obj["meal_name"] = name
	}
	for _, key := range []string{
		"calories", "protein_g", "carbs_g", "fats_g",
		"fiber_g", "sugar_g", "sodium_mg", "cholesterol_mg", "confidence",
	} {
		if v, ok := mineNumber(cleaned, raw, key); ok {
			obj[key] = v
		}
	}
	if method, ok := mineString(cleaned, raw, "cooking_method"); ok {
		obj["cooking_method"] = method
	}
	if category, ok := mineString(cleaned, raw, "food_category", "category"); ok {
		obj["food_category"] = category
	}

	obj["ingredients"] = p.mineIngredients(raw, cleaned, obj)
	return obj
}

func mineNumber(cleaned, raw string, key string) (float64, bool) {
	if r := gjson.Get(cleaned, key); r.Exists() && r.Type == gjson.Number {
		return r.Float(), true
	}
	re := regexp.MustCompile(strings.Replace(numberFieldPattern, "%s", regexp.QuoteMeta(key), 1))
	if m := re.FindStringSubmatch(raw); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

func mineString(cleaned, raw string, keys ...string) (string, bool) {
	for _, key := range keys {
		if r := gjson.Get(cleaned, key); r.Exists() && r.Type == gjson.String && r.String() != "" {
			return r.String(), true
		}
	}
	for _, key := range keys {
		re := regexp.MustCompile(strings.Replace(stringFieldPattern, "%s", regexp.QuoteMeta(key), 1))
		if m := re.FindStringSubmatch(raw); m != nil && m[1] != "" {
			return m[1], true
		}
	}
	return "", false
}

// foodVocabulary is the fixed set of common food names scanned when no
// ingredients collection can be located.
var foodVocabulary = []string{
	"chicken", "beef", "pork", "fish", "salmon", "shrimp", "egg", "tofu",
	"rice", "pasta", "noodles", "bread", "potato", "quinoa", "oats",
	"cheese", "milk", "yogurt", "butter",
	"tomato", "onion", "garlic", "carrot", "broccoli", "spinach",
	"lettuce", "avocado", "pepper", "mushroom", "cucumber",
	"apple", "banana", "orange", "berries", "beans", "lentils",
}

// mineIngredients locates an ingredients collection, or synthesizes
// minimal stubs from the text, the meal name, or as a last resort the meal
// name alone.
func (p *Parser) mineIngredients(raw, cleaned string, obj map[string]interface{}) []interface{} {
	// An ingredients array may have survived inside the malformed text.
	if arr := gjson.Get(cleaned, "ingredients"); arr.IsArray() {
		var out []interface{}
		for _, el := range arr.Array() {
			stub := map[string]interface{}{}
			if name := el.Get("name"); name.Exists() {
				stub["name"] = name.String()
			} else if el.Type == gjson.String {
				stub["name"] = el.String()
			}
			for _, key := range []string{"calories", "protein_g", "carbs_g", "fats_g", "weight_g"} {
				if v := el.Get(key); v.Exists() && v.Type == gjson.Number {
					stub[key] = v.Float()
				}
			}
			if len(stub) > 0 {
				out = append(out, stub)
			}
		}
		if len(out) > 0 {
			return out
		}
	}

	// Scan the full text for known food words.
	lower := strings.ToLower(raw)
	var found []interface{}
	for _, food := range foodVocabulary {
		if strings.Contains(lower, food) {
			found = append(found, map[string]interface{}{"name": food})
		}
		if len(found) >= 6 {
			break
		}
	}
	if len(found) > 0 {
		return found
	}

	mealName, _ := obj["meal_name"].(string)
	return ingredientStubsFromName(mealName)
}

// ingredientStubsFromName derives one or two ingredient stubs from the meal
// name using simple keyword rules, falling back to a single stub equal to
// the meal name.
func ingredientStubsFromName(mealName string) []interface{} {
	lower := strings.ToLower(mealName)
	stub := func(names ...string) []interface{} {
		out := make([]interface{}, 0, len(names))
		for _, n := range names {
			out = append(out, map[string]interface{}{"name": n})
		}
		return out
	}

	switch {
	case strings.Contains(lower, "salad"):
		return stub("mixed greens", "dressing")
	case strings.Contains(lower, "sandwich"), strings.Contains(lower, "burger"):
		return stub("bread", "filling")
	case strings.Contains(lower, "soup"), strings.Contains(lower, "stew"):
		return stub("broth", "vegetables")
	case strings.Contains(lower, "pasta"), strings.Contains(lower, "spaghetti"):
		return stub("pasta", "sauce")
	case strings.Contains(lower, "smoothie"), strings.Contains(lower, "shake"):
		return stub("fruit", "milk")
	case mealName != "":
		return stub(mealName)
	default:
		return stub("unidentified food")
	}
}
