package post

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postWithPrices(prices ...*float64) *Post {
	p := &Post{}
	for _, price := range prices {
		p.Products = append(p.Products, Product{WasteType: "electronics", AISuggestedPrice: price})
	}
	return p
}

// ============================================
// Corridor Tests
// ============================================

func TestCorridorFor_SumsAndTreatsMissingAsZero(t *testing.T) {
	p := postWithPrices(floatPtr(600), nil, floatPtr(400))

	c := CorridorFor(p)

	assert.Equal(t, "900", c.Min.String())
	assert.Equal(t, "1100", c.Max.String())
}

func TestCorridor_ClosedInterval(t *testing.T) {
	totals := []float64{0, 1, 10, 99.99, 333.33, 1000, 1234.56, 25000, 1e7}

	for _, total := range totals {
		c := CorridorFor(postWithPrices(floatPtr(total)))
		lo := c.Min.InexactFloat64()
		hi := c.Max.InexactFloat64()

		assert.True(t, c.Contains(lo), "lower bound for %v", total)
		assert.True(t, c.Contains(hi), "upper bound for %v", total)
		assert.True(t, c.Contains(total), "center for %v", total)
		assert.False(t, c.Contains(lo-0.01), "below lower bound for %v", total)
		assert.False(t, c.Contains(hi+0.01), "above upper bound for %v", total)
	}
}

func TestCorridor_CheckNamesBounds(t *testing.T) {
	c := CorridorFor(postWithPrices(floatPtr(1000)))

	err := c.Check(899)

	require.ErrorIs(t, err, ErrPriceOutOfRange)
	assert.Contains(t, err.Error(), "price must be between 900 and 1100")
	assert.NoError(t, c.Check(900))
	assert.NoError(t, c.Check(1100))
	assert.Error(t, c.Check(1100.01))
}

func TestCorridor_NoAIPriceOnlyAllowsZero(t *testing.T) {
	c := CorridorFor(postWithPrices(nil))

	assert.NoError(t, c.Check(0))
	assert.Error(t, c.Check(1))
}
