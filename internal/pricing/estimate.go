// Package pricing turns a product description into a price suggestion. An AI
// provider is asked first; any failure lands on a deterministic rule table so
// callers always receive a usable estimate.
package pricing

import "unicode/utf8"

// Source tells which path produced an estimate.
type Source string

const (
	SourceAI       Source = "ai"
	SourceFallback Source = "fallback"
)

// FallbackReason explains why the rule table was used.
type FallbackReason string

const (
	ReasonUnconfigured  FallbackReason = "unconfigured"
	ReasonProviderError FallbackReason = "provider_error"
	ReasonTimeout       FallbackReason = "timeout"
	ReasonUnparsable    FallbackReason = "unparsable"
	ReasonMissingPrice  FallbackReason = "missing_price"
)

const (
	defaultConditionScore = 50
	maxExplanationRunes   = 500
)

// Input is what the estimator knows about one product.
type Input struct {
	WasteType        string
	Category         string
	Brand            string
	Model            string
	ConditionSummary string
	ConditionDetails map[string]string
	Quantity         int
	Description      string
	// ConditionScore is the caller's own 0-100 assessment, if any.
	ConditionScore *float64
}

// Estimate is a structurally valid price suggestion. Price is never negative,
// ConditionScore and Confidence are within [0,100].
type Estimate struct {
	Price          float64        `json:"price"`
	ConditionScore float64        `json:"condition_score"`
	Confidence     float64        `json:"confidence"`
	Explanation    string         `json:"explanation"`
	Source         Source         `json:"source"`
	FallbackReason FallbackReason `json:"fallback_reason,omitempty"`
}

func (e Estimate) IsFallback() bool {
	return e.Source == SourceFallback
}

func (e Estimate) clamped() Estimate {
	e.Price = clamp(e.Price, 0, -1)
	e.ConditionScore = clamp(e.ConditionScore, 0, 100)
	e.Confidence = clamp(e.Confidence, 0, 100)
	e.Explanation = truncateRunes(e.Explanation, maxExplanationRunes)
	return e
}

// clamp bounds v to [lo, hi]; a negative hi means no upper bound.
func clamp(v, lo, hi float64) float64 {
	if v != v || v < lo { // NaN or below
		return lo
	}
	if hi >= 0 && v > hi {
		return hi
	}
	return v
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
