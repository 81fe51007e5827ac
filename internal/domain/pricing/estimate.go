// Package pricing contains the domain model for ingredient and product
// price estimation.
package pricing

import (
	"fmt"
	"time"
)

// ConfidenceTier grades how reliable an estimate is.
type ConfidenceTier string

const (
	ConfidenceHigh   ConfidenceTier = "high"
	ConfidenceMedium ConfidenceTier = "medium"
	ConfidenceLow    ConfidenceTier = "low"
)

// Item identifies an ingredient or product to be priced.
type Item struct {
	Name     string  `json:"name"`
	Category string  `json:"category,omitempty"`
	Quantity float64 `json:"quantity,omitempty"`
	Unit     string  `json:"unit,omitempty"`
}

// Estimate is the canonical price estimation result.
type Estimate struct {
	Name         string         `json:"name"`
	UnitPrice    float64        `json:"unit_price"`
	PricePer100G float64        `json:"price_per_100g"`
	Currency     string         `json:"currency"`
	Confidence   ConfidenceTier `json:"confidence"`
	DisplayRange string         `json:"display_range"`
	EstimatedAt  time.Time      `json:"estimated_at"`
}

// rangeSpread is the half-width of the display range around the unit price,
// widened for lower confidence tiers.
var rangeSpread = map[ConfidenceTier]float64{
	ConfidenceHigh:   0.10,
	ConfidenceMedium: 0.20,
	ConfidenceLow:    0.35,
}

// FormatRange renders the user-facing price range string for a unit price
// and confidence tier, e.g. "$2.70 - $3.30".
func FormatRange(unitPrice float64, currency string, tier ConfidenceTier) string {
	spread, ok := rangeSpread[tier]
	if !ok {
		spread = rangeSpread[ConfidenceLow]
	}
	low := unitPrice * (1 - spread)
	high := unitPrice * (1 + spread)
	return fmt.Sprintf("%s%.2f - %s%.2f", symbol(currency), low, symbol(currency), high)
}

func symbol(currency string) string {
	switch currency {
	case "USD", "":
		return "$"
	case "EUR":
		return "€"
	case "GBP":
		return "£"
	case "RUB":
		return "₽"
	default:
		return currency + " "
	}
}
