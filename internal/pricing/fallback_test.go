package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr(v float64) *float64 { return &v }

func TestBasePrice_Table(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want float64
	}{
		{"apple phone", Input{WasteType: "Electronics", Category: "Mobile", Brand: "Apple"}, 2000},
		{"samsung phone", Input{WasteType: "electronics", Category: "smartphone", Brand: "SAMSUNG Galaxy"}, 2000},
		{"other phone", Input{WasteType: "electronics", Category: "mobile", Brand: "Nokia"}, 800},
		{"laptop", Input{WasteType: "electronics", Category: "Laptop"}, 3000},
		{"computer", Input{WasteType: "electronics", Category: "desktop computer"}, 3000},
		{"tv", Input{WasteType: "electronics", Category: "TV"}, 1500},
		{"monitor", Input{WasteType: "electronics", Category: "monitor"}, 1500},
		{"washing machine", Input{WasteType: "electronics", Category: "Washing Machine"}, 2500},
		{"refrigerator", Input{WasteType: "electronics", Category: "refrigerator"}, 2500},
		{"electronics unmatched", Input{WasteType: "electronics", Category: "toaster"}, 500},
		{"metal", Input{WasteType: "metal", Quantity: 3}, 150},
		{"plastic", Input{WasteType: "Plastic", Quantity: 10}, 200},
		{"paper", Input{WasteType: "paper", Quantity: 4}, 60},
		{"paper default quantity", Input{WasteType: "paper"}, 15},
		{"unknown", Input{WasteType: "glass"}, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BasePrice(tt.in))
		})
	}
}

func TestFallback_DefaultConditionHalvesBase(t *testing.T) {
	inputs := []Input{
		{WasteType: "electronics", Category: "mobile", Brand: "apple", Quantity: 1},
		{WasteType: "electronics", Category: "laptop", Quantity: 2},
		{WasteType: "metal", Quantity: 7},
		{WasteType: "paper", Quantity: 3},
		{WasteType: "rubber"},
	}

	for _, in := range inputs {
		est := Fallback(in, ReasonProviderError)
		assert.Equal(t, roundHalf(BasePrice(in)), est.Price, in.WasteType)
		assert.Equal(t, 50.0, est.ConditionScore)
	}
}

func roundHalf(base float64) float64 {
	v := base * 0.5
	if v-float64(int(v)) >= 0.5 {
		return float64(int(v)) + 1
	}
	return float64(int(v))
}

func TestFallback_KnownBrandNeverBelowUnknownBrand(t *testing.T) {
	for _, score := range []float64{0, 10, 33, 50, 77, 100} {
		apple := Fallback(Input{WasteType: "electronics", Category: "mobile", Brand: "apple", ConditionScore: ptr(score)}, ReasonUnconfigured)
		other := Fallback(Input{WasteType: "electronics", Category: "mobile", Brand: "acme", ConditionScore: ptr(score)}, ReasonUnconfigured)
		assert.GreaterOrEqual(t, apple.Price, other.Price)
	}
}

func TestFallback_UsesCallerConditionScore(t *testing.T) {
	est := Fallback(Input{WasteType: "electronics", Category: "tv", ConditionScore: ptr(80)}, ReasonTimeout)

	assert.Equal(t, 1200.0, est.Price)
	assert.Equal(t, 80.0, est.ConditionScore)
}

func TestFallback_ConfidenceAndMarkers(t *testing.T) {
	unavailable := Fallback(Input{WasteType: "metal"}, ReasonProviderError)
	unparsable := Fallback(Input{WasteType: "metal"}, ReasonUnparsable)

	assert.Equal(t, 30.0, unavailable.Confidence)
	assert.Equal(t, 40.0, unparsable.Confidence)
	for _, est := range []Estimate{unavailable, unparsable} {
		assert.True(t, est.IsFallback())
		assert.GreaterOrEqual(t, est.Confidence, 30.0)
		assert.LessOrEqual(t, est.Confidence, 40.0)
		assert.Contains(t, est.Explanation, "AI")
	}
}

func TestFallback_ClampsOutOfRangeScore(t *testing.T) {
	est := Fallback(Input{WasteType: "electronics", Category: "laptop", ConditionScore: ptr(180)}, ReasonUnconfigured)

	assert.Equal(t, 100.0, est.ConditionScore)
	assert.Equal(t, 3000.0, est.Price)
}
