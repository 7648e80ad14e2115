package payment

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/restaurant-orders/internal/domain/apperr"
)

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{in: "0", want: 0},
		{in: "80", want: 8000},
		{in: "8.49", want: 849},
		{in: "12.345", want: 1235},
		{in: "0.004", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, MinorUnits(decimal.RequireFromString(tt.in)))
		})
	}
}

func TestUnconfigured(t *testing.T) {
	var g Gateway = Unconfigured{}

	_, err := g.CreateCheckoutSession(context.Background(), nil, Reference{OrderID: "o1"})
	require.ErrorIs(t, err, ErrNotConfigured)
	assert.Equal(t, apperr.KindExternal, apperr.KindOf(err))

	_, err = g.VerifyWebhook([]byte("{}"), "sig")
	require.ErrorIs(t, err, ErrNotConfigured)
}
