package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/restaurant-orders/internal/domain/apperr"
	"github.com/xenking/restaurant-orders/internal/domain/payment"
)

// Reconciler applies verified payment webhooks to orders.
//
// Every handled event is idempotent: the provider may deliver the same event
// more than once and in any order relative to other events.
type Reconciler struct {
	orders  *Service
	gateway payment.Gateway
}

// NewReconciler creates a Reconciler that drives transitions through orders.
func NewReconciler(orders *Service, gateway payment.Gateway) *Reconciler {
	return &Reconciler{orders: orders, gateway: gateway}
}

// HandleWebhook verifies payload and applies the event it carries. Events
// that cannot be matched to an actionable order are acknowledged with a nil
// error. Storage failures are returned so the provider retries delivery.
func (r *Reconciler) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := r.gateway.VerifyWebhook(payload, signature)
	if err != nil {
		r.orders.metrics.recordWebhook(ctx, "unknown", "rejected")
		return err
	}

	ctx = zctx.With(ctx,
		zap.String("event_id", ev.ID),
		zap.String("event_type", string(ev.Type)),
		zap.String("session_id", ev.SessionID),
	)
	lg := zctx.From(ctx)

	var outcome string
	switch ev.Type {
	case payment.EventSessionCompleted:
		outcome, err = r.completed(ctx, ev)
	case payment.EventSessionExpired:
		outcome, err = r.expired(ctx, ev)
	default:
		lg.Debug("Ignoring webhook event")
		outcome = "ignored"
	}
	if err != nil {
		outcome = "failed"
	}
	r.orders.metrics.recordWebhook(ctx, string(ev.Type), outcome)
	return err
}

func (r *Reconciler) completed(ctx context.Context, ev *payment.Event) (string, error) {
	o, err := r.lookup(ctx, ev)
	if err != nil || o == nil {
		return "unmatched", err
	}

	changed, err := r.orders.transition(ctx, o, StatusConfirmed)
	switch {
	case errors.Is(err, ErrOrderCancelled):
		zctx.From(ctx).Warn("Payment completed for cancelled order", zap.String("order_id", o.ID))
		return "unmatched", nil
	case err != nil:
		return "", err
	case !changed:
		return "duplicate", nil
	}
	return "confirmed", nil
}

func (r *Reconciler) expired(ctx context.Context, ev *payment.Event) (string, error) {
	o, err := r.lookup(ctx, ev)
	if err != nil || o == nil {
		return "unmatched", err
	}
	if o.Status != StatusPending {
		return "duplicate", nil
	}

	changed, err := r.orders.transition(ctx, o, StatusCancelled)
	switch {
	case apperr.Is(err, apperr.KindConflict):
		// Confirmed by a concurrent completion.
		return "duplicate", nil
	case err != nil:
		return "", err
	case !changed:
		return "duplicate", nil
	}
	return "cancelled", nil
}

// lookup finds the order an event refers to, preferring the order id in the
// session metadata and falling back to the session id. A missing order is
// logged and reported as (nil, nil).
func (r *Reconciler) lookup(ctx context.Context, ev *payment.Event) (*Order, error) {
	var (
		o   *Order
		err error
	)
	if ev.OrderID != "" {
		o, err = r.orders.Get(ctx, ev.OrderID)
	} else {
		o, err = r.orders.GetByPaymentSession(ctx, ev.SessionID)
	}
	if errors.Is(err, ErrNotFound) {
		zctx.From(ctx).Warn("Webhook references unknown order", zap.String("order_id", ev.OrderID))
		return nil, nil
	}
	return o, err
}
