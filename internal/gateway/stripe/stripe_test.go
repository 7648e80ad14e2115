package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripeapi "github.com/stripe/stripe-go/v82"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/restaurant-orders/internal/domain/apperr"
	"github.com/xenking/restaurant-orders/internal/domain/payment"
)

const testSecret = "whsec_test"

type mockSessions struct {
	params *stripeapi.CheckoutSessionParams
	err    error
}

func (m *mockSessions) New(params *stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error) {
	m.params = params
	if m.err != nil {
		return nil, m.err
	}
	return &stripeapi.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1"}, nil
}

func newTestGateway(sessions *mockSessions, now time.Time) *Gateway {
	g := newGateway(Config{
		WebhookSecret: testSecret,
		Currency:      "egp",
		SuccessURL:    "http://localhost:5000/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     "http://localhost:5000/cancel",
	}, sessions, noop.NewTracerProvider())
	g.now = func() time.Time { return now }
	return g
}

func sign(payload []byte, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	fmt.Fprintf(mac, "%d.", ts.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestCreateCheckoutSession(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sessions := &mockSessions{}
	g := newTestGateway(sessions, now)

	s, err := g.CreateCheckoutSession(context.Background(), []payment.LineItem{
		{Name: "Koshary (20% OFF)", UnitPrice: decimal.RequireFromString("80"), Quantity: 2},
		{Name: "Tea", UnitPrice: decimal.RequireFromString("5.55"), Quantity: 1},
	}, payment.Reference{
		OrderID:       "order-1",
		UserID:        "u1",
		CustomerEmail: "mona@example.com",
		ExpiresAt:     now.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", s.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", s.URL)

	p := sessions.params
	require.NotNil(t, p)
	assert.Equal(t, "payment", *p.Mode)
	assert.Equal(t, "order-1", *p.ClientReferenceID)
	assert.Equal(t, "mona@example.com", *p.CustomerEmail)
	assert.Equal(t, now.Add(time.Hour).Unix(), *p.ExpiresAt)
	assert.Equal(t, "order-1", p.Metadata[payment.MetadataOrderID])
	assert.Equal(t, "u1", p.Metadata[payment.MetadataUserID])

	require.Len(t, p.LineItems, 2)
	first := p.LineItems[0]
	assert.Equal(t, "Koshary (20% OFF)", *first.PriceData.ProductData.Name)
	assert.Equal(t, int64(8000), *first.PriceData.UnitAmount)
	assert.Equal(t, "egp", *first.PriceData.Currency)
	assert.Equal(t, int64(2), *first.Quantity)
	assert.Equal(t, int64(555), *p.LineItems[1].PriceData.UnitAmount)
}

func TestCreateCheckoutSession_ClampsExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		at   time.Time
		want time.Time
	}{
		{name: "too soon", at: now.Add(5 * time.Minute), want: now.Add(minSessionTTL)},
		{name: "in window", at: now.Add(2 * time.Hour), want: now.Add(2 * time.Hour)},
		{name: "too late", at: now.Add(72 * time.Hour), want: now.Add(maxSessionTTL)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := &mockSessions{}
			g := newTestGateway(sessions, now)

			_, err := g.CreateCheckoutSession(context.Background(), nil, payment.Reference{OrderID: "o", ExpiresAt: tt.at})
			require.NoError(t, err)
			assert.Equal(t, tt.want.Unix(), *sessions.params.ExpiresAt)
		})
	}
}

func TestCreateCheckoutSession_Failure(t *testing.T) {
	sessions := &mockSessions{err: &stripeapi.Error{Code: stripeapi.ErrorCodeAmountTooSmall, Msg: "Amount must be at least 10 EGP"}}
	g := newTestGateway(sessions, time.Now())

	_, err := g.CreateCheckoutSession(context.Background(), nil, payment.Reference{OrderID: "o"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindExternal, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "amount_too_small")
}

func TestVerifyWebhook(t *testing.T) {
	g := newTestGateway(&mockSessions{}, time.Now())
	payload := []byte(`{
		"id": "evt_1",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_test_1",
			"object": "checkout.session",
			"client_reference_id": "order-1",
			"payment_status": "paid",
			"metadata": {"orderId": "order-1", "userId": "u1", "note": "x"}
		}}
	}`)

	ev, err := g.VerifyWebhook(payload, sign(payload, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, &payment.Event{
		ID:        "evt_1",
		Type:      payment.EventSessionCompleted,
		SessionID: "cs_test_1",
		OrderID:   "order-1",
		UserID:    "u1",
	}, ev)
}

func TestVerifyWebhook_ClientReferenceFallback(t *testing.T) {
	g := newTestGateway(&mockSessions{}, time.Now())
	payload := []byte(`{"id":"evt_2","object":"event","type":"checkout.session.expired",` +
		`"data":{"object":{"id":"cs_test_2","client_reference_id":"order-2","metadata":null}}}`)

	ev, err := g.VerifyWebhook(payload, sign(payload, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, payment.EventSessionExpired, ev.Type)
	assert.Equal(t, "cs_test_2", ev.SessionID)
	assert.Equal(t, "order-2", ev.OrderID)
}

func TestVerifyWebhook_Rejects(t *testing.T) {
	g := newTestGateway(&mockSessions{}, time.Now())
	payload := []byte(`{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_1"}}}`)

	tests := []struct {
		name      string
		payload   []byte
		signature string
	}{
		{name: "missing header", payload: payload, signature: ""},
		{name: "wrong secret", payload: payload, signature: "t=1,v1=deadbeef"},
		{name: "tampered payload", payload: append([]byte(nil), payload[:len(payload)-2]...), signature: sign(payload, time.Now())},
		{name: "stale timestamp", payload: payload, signature: sign(payload, time.Now().Add(-time.Hour))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.VerifyWebhook(tt.payload, tt.signature)
			require.Error(t, err)
			assert.True(t, errors.Is(err, payment.ErrInvalidSignature))
		})
	}
}
