package pricing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================
// parseResponse Tests
// ============================================

func TestParseResponse_IgnoresBracesAfterObject(t *testing.T) {
	out, err := parseResponse(`{"price":10} see {note}`)

	require.NoError(t, err)
	require.NotNil(t, out.Price)
	assert.Equal(t, 10.0, *out.Price)
}

func TestParseResponse_SkipsProseBracesBeforeObject(t *testing.T) {
	out, err := parseResponse(`Estimate {roughly}: {"price": 25, "confidence": 70} {done}`)

	require.NoError(t, err)
	require.NotNil(t, out.Price)
	assert.Equal(t, 25.0, *out.Price)
	assert.Equal(t, 70.0, *out.Confidence)
}

func TestParseResponse_NestedBraces(t *testing.T) {
	out, err := parseResponse(`Result: {"price": 40, "explanation": "{ok}"} thanks`)

	require.NoError(t, err)
	assert.Equal(t, 40.0, *out.Price)
	assert.Equal(t, "{ok}", out.Explanation)
}

func TestParseResponse_NoObject(t *testing.T) {
	_, err := parseResponse("no estimate available")

	assert.ErrorIs(t, err, errNoJSON)
}

func TestEstimate_TrailingProseWithBracesUsesAI(t *testing.T) {
	provider := &stubProvider{text: `{"price":10} see {note}`}
	e := NewEstimator(provider)

	est := e.Estimate(context.Background(), applePhone, "")

	assert.Equal(t, SourceAI, est.Source)
	assert.Equal(t, 10.0, est.Price)
}
