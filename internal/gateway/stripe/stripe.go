// Package stripe implements payment.Gateway on top of Stripe hosted checkout.
package stripe

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	stripeapi "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/restaurant-orders/internal/domain/apperr"
	"github.com/xenking/restaurant-orders/internal/domain/payment"
)

// Stripe only accepts session deadlines in this window from creation.
const (
	minSessionTTL = 31 * time.Minute
	maxSessionTTL = 24 * time.Hour
)

// Config holds the Stripe credentials and redirect targets.
type Config struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	SuccessURL    string
	CancelURL     string
}

// sessionCreator is the subset of the Stripe checkout session client used by
// Gateway.
type sessionCreator interface {
	New(params *stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error)
}

// Gateway creates Stripe checkout sessions and verifies Stripe webhooks.
type Gateway struct {
	cfg      Config
	sessions sessionCreator
	tracer   trace.Tracer
	now      func() time.Time
}

var _ payment.Gateway = (*Gateway)(nil)

// New creates a Gateway using the Stripe API with cfg.SecretKey.
func New(cfg Config, tp trace.TracerProvider) *Gateway {
	sc := &client.API{}
	sc.Init(cfg.SecretKey, nil)
	return newGateway(cfg, sc.CheckoutSessions, tp)
}

func newGateway(cfg Config, sessions sessionCreator, tp trace.TracerProvider) *Gateway {
	if cfg.Currency == "" {
		cfg.Currency = "egp"
	}
	return &Gateway{
		cfg:      cfg,
		sessions: sessions,
		tracer:   tp.Tracer("github.com/xenking/restaurant-orders/internal/gateway/stripe"),
		now:      time.Now,
	}
}

// CreateCheckoutSession creates a hosted card payment session for items.
func (g *Gateway) CreateCheckoutSession(ctx context.Context, items []payment.LineItem, ref payment.Reference) (*payment.Session, error) {
	ctx, span := g.tracer.Start(ctx, "stripe.CreateCheckoutSession",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("order.id", ref.OrderID),
			attribute.Int("line_items", len(items)),
		),
	)
	defer span.End()

	params := g.sessionParams(items, ref)
	params.Context = ctx

	s, err := g.sessions.New(params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create session")

		var se *stripeapi.Error
		if errors.As(err, &se) {
			err = errors.Errorf("%s: %s", se.Code, se.Msg)
		}
		return nil, apperr.Wrap(err, apperr.KindExternal, "stripe: create checkout session")
	}

	span.SetAttributes(attribute.String("stripe.session_id", s.ID))
	return &payment.Session{ID: s.ID, URL: s.URL}, nil
}

func (g *Gateway) sessionParams(items []payment.LineItem, ref payment.Reference) *stripeapi.CheckoutSessionParams {
	lineItems := make([]*stripeapi.CheckoutSessionLineItemParams, len(items))
	for i, item := range items {
		lineItems[i] = &stripeapi.CheckoutSessionLineItemParams{
			PriceData: &stripeapi.CheckoutSessionLineItemPriceDataParams{
				Currency: stripeapi.String(g.cfg.Currency),
				ProductData: &stripeapi.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripeapi.String(item.Name),
				},
				UnitAmount: stripeapi.Int64(payment.MinorUnits(item.UnitPrice)),
			},
			Quantity: stripeapi.Int64(int64(item.Quantity)),
		}
	}

	params := &stripeapi.CheckoutSessionParams{
		Mode:               stripeapi.String(string(stripeapi.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripeapi.StringSlice([]string{"card"}),
		LineItems:          lineItems,
		SuccessURL:         stripeapi.String(g.cfg.SuccessURL),
		CancelURL:          stripeapi.String(g.cfg.CancelURL),
		ClientReferenceID:  stripeapi.String(ref.OrderID),
	}
	if ref.CustomerEmail != "" {
		params.CustomerEmail = stripeapi.String(ref.CustomerEmail)
	}
	if !ref.ExpiresAt.IsZero() {
		params.ExpiresAt = stripeapi.Int64(g.clampExpiry(ref.ExpiresAt).Unix())
	}
	params.AddMetadata(payment.MetadataOrderID, ref.OrderID)
	params.AddMetadata(payment.MetadataUserID, ref.UserID)
	return params
}

func (g *Gateway) clampExpiry(at time.Time) time.Time {
	now := g.now()
	if lo := now.Add(minSessionTTL); at.Before(lo) {
		return lo
	}
	if hi := now.Add(maxSessionTTL); at.After(hi) {
		return hi
	}
	return at
}

// VerifyWebhook checks the Stripe-Signature header and extracts the checkout
// session fields the reconciler needs.
func (g *Gateway) VerifyWebhook(payload []byte, signature string) (*payment.Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, g.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		return nil, errors.Wrap(payment.ErrInvalidSignature, err.Error())
	}

	out := &payment.Event{
		ID:   ev.ID,
		Type: payment.EventType(ev.Type),
	}
	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return out, nil
	}
	if err := decodeSession(ev.Data.Raw, out); err != nil {
		return nil, errors.Wrap(payment.ErrInvalidSignature, "decode checkout session")
	}
	return out, nil
}

// decodeSession reads the session id and order metadata from the raw event
// object.
func decodeSession(raw []byte, out *payment.Event) error {
	var clientRef string
	err := jx.DecodeBytes(raw).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "id":
			v, err := d.Str()
			out.SessionID = v
			return err
		case "client_reference_id":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, err := d.Str()
			clientRef = v
			return err
		case "metadata":
			if d.Next() == jx.Null {
				return d.Null()
			}
			return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				switch string(key) {
				case payment.MetadataOrderID:
					v, err := d.Str()
					out.OrderID = v
					return err
				case payment.MetadataUserID:
					v, err := d.Str()
					out.UserID = v
					return err
				default:
					return d.Skip()
				}
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return err
	}
	if out.OrderID == "" {
		out.OrderID = clientRef
	}
	return nil
}
