package pricing

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	text    string
	err     error
	delay   time.Duration
	prompts []string
}

func (s *stubProvider) Suggest(ctx context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.text, s.err
}

var applePhone = Input{WasteType: "electronics", Category: "mobile", Brand: "Apple", Quantity: 1}

// ============================================
// Estimate Tests
// ============================================

func TestEstimate_UsesAIResponse(t *testing.T) {
	provider := &stubProvider{text: `{"price": 1800, "conditionScore": 70, "confidence": 85, "explanation": "good condition"}`}
	e := NewEstimator(provider)

	est := e.Estimate(context.Background(), applePhone, "Pune")

	assert.Equal(t, SourceAI, est.Source)
	assert.Equal(t, 1800.0, est.Price)
	assert.Equal(t, 70.0, est.ConditionScore)
	assert.Equal(t, 85.0, est.Confidence)
	assert.Equal(t, "good condition", est.Explanation)
	require.Len(t, provider.prompts, 1)
	assert.Contains(t, provider.prompts[0], "Pune")
	assert.Contains(t, provider.prompts[0], "Apple")
}

func TestEstimate_ExtractsEmbeddedJSON(t *testing.T) {
	provider := &stubProvider{text: "Sure! Here is the estimate:\n```json\n{\"price\": 900, \"confidence\": 60}\n```"}
	e := NewEstimator(provider)

	est := e.Estimate(context.Background(), applePhone, "")

	assert.Equal(t, SourceAI, est.Source)
	assert.Equal(t, 900.0, est.Price)
	assert.Equal(t, 60.0, est.Confidence)
}

func TestEstimate_ClampsAIValues(t *testing.T) {
	long := strings.Repeat("x", 800)
	provider := &stubProvider{text: `{"price": -10, "conditionScore": 140, "confidence": -3, "explanation": "` + long + `"}`}
	e := NewEstimator(provider)

	est := e.Estimate(context.Background(), applePhone, "")

	assert.Equal(t, 0.0, est.Price)
	assert.Equal(t, 100.0, est.ConditionScore)
	assert.Equal(t, 0.0, est.Confidence)
	assert.Len(t, est.Explanation, 500)
}

func TestEstimate_FallbackPaths(t *testing.T) {
	tests := []struct {
		name     string
		provider Provider
		reason   FallbackReason
	}{
		{"no provider", nil, ReasonUnconfigured},
		{"provider error", &stubProvider{err: errors.New("503")}, ReasonProviderError},
		{"not json", &stubProvider{text: "I cannot price this"}, ReasonUnparsable},
		{"broken json", &stubProvider{text: "{price: }"}, ReasonUnparsable},
		{"missing price", &stubProvider{text: `{"confidence": 90}`}, ReasonMissingPrice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEstimator(tt.provider)

			est := e.Estimate(context.Background(), applePhone, "")

			assert.Equal(t, SourceFallback, est.Source)
			assert.Equal(t, tt.reason, est.FallbackReason)
			assert.Equal(t, 1000.0, est.Price)
		})
	}
}

func TestEstimate_TimeoutFallsBack(t *testing.T) {
	provider := &stubProvider{text: `{"price": 5}`, delay: 200 * time.Millisecond}
	e := NewEstimator(provider, WithTimeout(20*time.Millisecond))

	start := time.Now()
	est := e.Estimate(context.Background(), applePhone, "")

	assert.Less(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, ReasonTimeout, est.FallbackReason)
	assert.Equal(t, 1000.0, est.Price)
}

// ============================================
// Metrics Tests
// ============================================

func TestEstimate_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	NewEstimator(&stubProvider{text: `{"price": 10}`}, WithMetrics(metrics)).Estimate(context.Background(), applePhone, "")
	NewEstimator(nil, WithMetrics(metrics)).Estimate(context.Background(), applePhone, "")
	NewEstimator(nil, WithMetrics(metrics)).Estimate(context.Background(), applePhone, "")

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.estimates.WithLabelValues("ai")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.estimates.WithLabelValues("fallback")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.fallbacks.WithLabelValues(string(ReasonUnconfigured))))
}

func TestMetrics_NilRegistererIsSafe(t *testing.T) {
	var nilMetrics *Metrics
	assert.NotPanics(t, func() {
		NewMetrics(nil).observe(Estimate{Source: SourceAI})
		nilMetrics.observe(Estimate{Source: SourceFallback})
	})
}
