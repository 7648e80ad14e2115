package order

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics records order lifecycle counters.
type Metrics struct {
	checkout  metric.Int64Counter
	confirmed metric.Int64Counter
	cancelled metric.Int64Counter
	expired   metric.Int64Counter
	webhooks  metric.Int64Counter
}

// NewMetrics registers the order counters on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.checkout, err = meter.Int64Counter("orders.checkout",
		metric.WithDescription("Orders placed, by payment method"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.checkout")
	}
	if m.confirmed, err = meter.Int64Counter("orders.confirmed",
		metric.WithDescription("Orders moved to confirmed"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.confirmed")
	}
	if m.cancelled, err = meter.Int64Counter("orders.cancelled",
		metric.WithDescription("Orders moved to cancelled"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.cancelled")
	}
	if m.expired, err = meter.Int64Counter("orders.expired",
		metric.WithDescription("Overdue orders handled by the sweeper"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.expired")
	}
	if m.webhooks, err = meter.Int64Counter("payments.webhook",
		metric.WithDescription("Payment webhooks received, by event type and outcome"),
	); err != nil {
		return nil, errors.Wrap(err, "payments.webhook")
	}
	return &m, nil
}

// NopMetrics returns Metrics backed by a no-op meter.
func NopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter(""))
	return m
}

func (m *Metrics) recordCheckout(ctx context.Context, method PaymentMethod) {
	m.checkout.Add(ctx, 1, metric.WithAttributes(attribute.String("payment_method", string(method))))
}

func (m *Metrics) recordTransition(ctx context.Context, to Status) {
	switch to {
	case StatusConfirmed:
		m.confirmed.Add(ctx, 1)
	case StatusCancelled:
		m.cancelled.Add(ctx, 1)
	}
}

func (m *Metrics) recordExpired(ctx context.Context, mode ExpiryMode, n int64) {
	if n == 0 {
		return
	}
	m.expired.Add(ctx, n, metric.WithAttributes(attribute.String("mode", string(mode))))
}

func (m *Metrics) recordWebhook(ctx context.Context, eventType, outcome string) {
	m.webhooks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("outcome", outcome),
	))
}
