package offer

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Quote is the frozen pricing of one unit of a menu item.
type Quote struct {
	Original        decimal.Decimal
	Final           decimal.Decimal
	DiscountPercent int
}

// Price applies percent to original: original × (1 − percent/100), rounded
// to 2 decimal places. Percent is clamped to [0, 100].
func Price(original decimal.Decimal, percent int) decimal.Decimal {
	if percent <= 0 {
		return original.Round(2)
	}
	if percent > 100 {
		percent = 100
	}
	factor := hundred.Sub(decimal.NewFromInt(int64(percent))).Div(hundred)
	final := original.Mul(factor)
	if final.IsNegative() {
		return decimal.Zero
	}
	return final.Round(2)
}

// QuoteFor prices original under o. A nil offer yields no discount.
func QuoteFor(original decimal.Decimal, o *Offer) Quote {
	percent := 0
	if o != nil {
		percent = o.DiscountPercent
	}
	return Quote{
		Original:        original,
		Final:           Price(original, percent),
		DiscountPercent: percent,
	}
}
