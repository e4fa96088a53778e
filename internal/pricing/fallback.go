package pricing

import (
	"fmt"
	"math"
	"strings"
)

// BasePrice is the rule-table value for a product before the condition
// adjustment.
func BasePrice(in Input) float64 {
	wasteType := strings.ToLower(in.WasteType)
	category := strings.ToLower(in.Category)
	brand := strings.ToLower(in.Brand)
	quantity := float64(max(in.Quantity, 1))

	switch {
	case strings.Contains(wasteType, "electronic"):
		switch {
		case containsAny(category, "mobile", "phone"):
			if containsAny(brand, "apple", "samsung") {
				return 2000
			}
			return 800
		case containsAny(category, "laptop", "computer"):
			return 3000
		case containsAny(category, "tv", "monitor"):
			return 1500
		case containsAny(category, "washing machine", "refrigerator"):
			return 2500
		default:
			return 500
		}
	case strings.Contains(wasteType, "metal"):
		return 50 * quantity
	case strings.Contains(wasteType, "plastic"):
		return 20 * quantity
	case strings.Contains(wasteType, "paper"):
		return 15 * quantity
	default:
		return 100
	}
}

// Fallback prices a product from the rule table alone.
func Fallback(in Input, reason FallbackReason) Estimate {
	score := float64(defaultConditionScore)
	if in.ConditionScore != nil {
		score = clamp(*in.ConditionScore, 0, 100)
	}

	base := BasePrice(in)
	confidence := 30.0
	if reason == ReasonUnparsable || reason == ReasonMissingPrice {
		confidence = 40
	}

	return Estimate{
		Price:          math.Round(base * score / 100),
		ConditionScore: score,
		Confidence:     confidence,
		Explanation:    fallbackExplanation(reason, base, score),
		Source:         SourceFallback,
		FallbackReason: reason,
	}.clamped()
}

func fallbackExplanation(reason FallbackReason, base, score float64) string {
	var why string
	switch reason {
	case ReasonUnparsable, ReasonMissingPrice:
		why = "AI response could not be used"
	case ReasonTimeout:
		why = "AI pricing timed out"
	default:
		why = "AI pricing unavailable"
	}
	return fmt.Sprintf("%s; estimated from the standard rate table (base %.0f at condition %.0f/100)", why, base, score)
}

func containsAny(s string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
