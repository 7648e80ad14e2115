package offer

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestPrice(t *testing.T) {
	tests := []struct {
		name     string
		original decimal.Decimal
		percent  int
		want     decimal.Decimal
	}{
		{name: "no discount", original: d("100"), percent: 0, want: d("100")},
		{name: "20 percent", original: d("100"), percent: 20, want: d("80")},
		{name: "100 percent is free", original: d("42.50"), percent: 100, want: d("0")},
		{name: "rounds to cents", original: d("9.99"), percent: 15, want: d("8.49")},
		{name: "over 100 clamped", original: d("10"), percent: 150, want: d("0")},
		{name: "negative treated as none", original: d("10"), percent: -5, want: d("10")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Price(tt.original, tt.percent)
			assert.True(t, tt.want.Equal(got), "expected %s, got %s", tt.want, got)
		})
	}
}

func TestQuoteFor(t *testing.T) {
	q := QuoteFor(d("100"), &Offer{ID: "o1", DiscountPercent: 20, Active: true})
	assert.True(t, d("100").Equal(q.Original))
	assert.True(t, d("80").Equal(q.Final))
	assert.Equal(t, 20, q.DiscountPercent)

	none := QuoteFor(d("12.5"), nil)
	assert.True(t, d("12.5").Equal(none.Final))
	assert.Equal(t, 0, none.DiscountPercent)
}
