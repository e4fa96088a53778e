package post

import (
	"fmt"

	"github.com/example/ewaste-exchange/internal/apperr"
	"github.com/shopspring/decimal"
)

var (
	corridorLow  = decimal.RequireFromString("0.9")
	corridorHigh = decimal.RequireFromString("1.1")
)

// Corridor is the closed range a final price must fall in: 90% to 110% of
// the summed AI suggestion.
type Corridor struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

func CorridorFor(p *Post) Corridor {
	total := decimal.Zero
	for _, prod := range p.Products {
		if prod.AISuggestedPrice != nil {
			total = total.Add(decimal.NewFromFloat(*prod.AISuggestedPrice))
		}
	}
	return Corridor{
		Min: total.Mul(corridorLow),
		Max: total.Mul(corridorHigh),
	}
}

func (c Corridor) Contains(price float64) bool {
	v := decimal.NewFromFloat(price)
	return v.GreaterThanOrEqual(c.Min) && v.LessThanOrEqual(c.Max)
}

// Check reports a validation error naming the bounds when price is outside.
func (c Corridor) Check(price float64) error {
	if c.Contains(price) {
		return nil
	}
	return apperr.Wrap(apperr.CodeValidation, ErrPriceOutOfRange,
		fmt.Sprintf("price must be between %s and %s", c.Min.String(), c.Max.String())).
		WithDetails(map[string]any{
			"min_price": c.Min.InexactFloat64(),
			"max_price": c.Max.InexactFloat64(),
			"price":     price,
		})
}
