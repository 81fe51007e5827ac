// Package pricing implements cache-first price estimation for ingredients
// and grocery items, backed by the external model with a deterministic
// heuristic fallback.
package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/nutrilens/v1/internal/domain/pricing"
	"github.com/nutrilens/v1/internal/infrastructure/cache"
	"github.com/nutrilens/v1/internal/ports/outbound"
	apperrors "github.com/nutrilens/v1/pkg/errors"
)

const pricingSystemPrompt = `You are a grocery price estimation service. For each item, estimate a typical retail price. Respond with ONLY a JSON array, one object per item, with keys: name, unit_price, price_per_100g, confidence ("high", "medium" or "low"). Prices are in the requested currency, no symbols.`

// categoryBasePrices backs the heuristic fallback: typical per-unit retail
// prices by coarse category.
var categoryBasePrices = map[string]float64{
	"meat":      7.50,
	"seafood":   9.00,
	"dairy":     3.50,
	"produce":   2.20,
	"grain":     2.80,
	"bakery":    3.20,
	"pantry":    3.00,
	"snack":     3.80,
	"beverage":  2.50,
	"frozen":    4.20,
	"condiment": 3.30,
}

const defaultBasePrice = 3.00

// Options carries the service tunables.
type Options struct {
	Currency    string
	MaxTokens   int
	Temperature float64
}

// Service estimates prices cache-first. A batch with any cache misses costs
// exactly one model call covering all of them; items the model fails to
// price fall back to a deterministic heuristic.
type Service struct {
	model  outbound.ModelClient
	cache  *cache.PriceCache
	clock  outbound.Clock
	logger *zap.Logger
	opts   Options
}

// NewService creates the pricing service.
func NewService(model outbound.ModelClient, priceCache *cache.PriceCache, clock outbound.Clock, logger *zap.Logger, opts Options) *Service {
	if opts.Currency == "" {
		opts.Currency = "USD"
	}
	return &Service{
		model:  model,
		cache:  priceCache,
		clock:  clock,
		logger: logger.Named("pricing"),
		opts:   opts,
	}
}

// Estimate prices a single item.
func (s *Service) Estimate(ctx context.Context, item pricing.Item) (*pricing.Estimate, error) {
	if strings.TrimSpace(item.Name) == "" {
		return nil, apperrors.NewEmptyPayloadError("item name")
	}

	batch, err := s.EstimateBatch(ctx, []pricing.Item{item})
	if err != nil {
		return nil, err
	}
	est := batch[item.Name]
	return &est, nil
}

// EstimateBatch prices many items at once. Cached estimates are returned
// directly; the misses are sent to the model in a single amortized call,
// and whatever the model could not price is estimated heuristically. The
// result always contains an entry per requested item.
func (s *Service) EstimateBatch(ctx context.Context, items []pricing.Item) (map[string]pricing.Estimate, error) {
	if len(items) == 0 {
		return nil, apperrors.NewEmptyPayloadError("item list")
	}

	results := make(map[string]pricing.Estimate, len(items))
	var misses []pricing.Item
	seen := make(map[string]struct{}, len(items))

	for _, item := range items {
		if strings.TrimSpace(item.Name) == "" {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(item.Name))
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if est, ok := s.cache.Get(item.Name); ok {
			results[item.Name] = est
			continue
		}
		misses = append(misses, item)
	}
	if len(results) == 0 && len(misses) == 0 {
		return nil, apperrors.NewEmptyPayloadError("item list")
	}

	if len(misses) > 0 {
		priced := s.priceWithModel(ctx, misses)
		for _, item := range misses {
			est, ok := priced[strings.ToLower(strings.TrimSpace(item.Name))]
			if !ok {
				est = s.heuristicEstimate(item)
			}
			s.cache.Put(item.Name, est)
			results[item.Name] = est
		}
	}

	return results, nil
}

// priceWithModel issues the single batch completion and parses whatever
// estimates come back, keyed by lower-cased item name. Failures return an
// empty map; the caller falls back per item.
func (s *Service) priceWithModel(ctx context.Context, items []pricing.Item) map[string]pricing.Estimate {
	if s.model == nil || !s.model.Available() {
		return nil
	}

	raw, err := s.model.CompleteText(ctx, outbound.ModelPrompt{
		System:      pricingSystemPrompt,
		User:        s.batchPrompt(items),
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
	})
	if err != nil {
		s.logger.Warn("price model call failed, using heuristics",
			zap.Int("items", len(items)), zap.Error(err))
		return nil
	}

	out := make(map[string]pricing.Estimate)
	arr := gjson.Parse(extractArray(raw))
	if !arr.IsArray() {
		s.logger.Warn("price model output not an array", zap.Int("raw_len", len(raw)))
		return nil
	}
	for _, el := range arr.Array() {
		name := el.Get("name").String()
		unitPrice := el.Get("unit_price").Float()
		if name == "" || unitPrice <= 0 {
			continue
		}
		tier := parseTier(el.Get("confidence").String())
		out[strings.ToLower(strings.TrimSpace(name))] = s.estimate(name, unitPrice, el.Get("price_per_100g").Float(), tier)
	}
	return out
}

func (s *Service) batchPrompt(items []pricing.Item) string {
	payload, _ := json.Marshal(items)
	return fmt.Sprintf("Currency: %s. Items: %s", s.opts.Currency, payload)
}

// heuristicEstimate prices an item deterministically from its category base
// price, nudged by a stable hash of the name so distinct items do not all
// share one value. Always low confidence.
func (s *Service) heuristicEstimate(item pricing.Item) pricing.Estimate {
	base, ok := categoryBasePrices[strings.ToLower(item.Category)]
	if !ok {
		base = defaultBasePrice
	}

	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(item.Name))))
	// Stable nudge in [-20%, +20%].
	nudge := (float64(h.Sum32()%41) - 20) / 100
	price := base * (1 + nudge)

	if item.Quantity > 1 {
		price *= item.Quantity
	}
	return s.estimate(item.Name, price, price/4, pricing.ConfidenceLow)
}

func (s *Service) estimate(name string, unitPrice, per100g float64, tier pricing.ConfidenceTier) pricing.Estimate {
	return pricing.Estimate{
		Name:         name,
		UnitPrice:    round2(unitPrice),
		PricePer100G: round2(per100g),
		Currency:     s.opts.Currency,
		Confidence:   tier,
		DisplayRange: pricing.FormatRange(round2(unitPrice), s.opts.Currency, tier),
		EstimatedAt:  s.clock.Now(),
	}
}

func parseTier(raw string) pricing.ConfidenceTier {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "high":
		return pricing.ConfidenceHigh
	case "medium":
		return pricing.ConfidenceMedium
	default:
		return pricing.ConfidenceLow
	}
}

// extractArray trims prose and code fences around a JSON array.
func extractArray(raw string) string {
	start := strings.IndexByte(raw, '[')
	end := strings.LastIndexByte(raw, ']')
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
