package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/xenking/restaurant-orders/internal/domain/order"
	"github.com/xenking/restaurant-orders/internal/storage/postgres"
)

// SweepOnce expires every overdue order a single time and exits. It backs
// the order-sweep command for deployments that schedule expiry externally.
func SweepOnce(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create pool")
	}
	defer pool.Close()

	metrics, err := order.NewMetrics(m.MeterProvider().Meter(meterName))
	if err != nil {
		return errors.Wrap(err, "create metrics")
	}

	policy := cfg.ExpiryPolicy()
	sweeper := order.NewSweeper(postgres.NewOrderRepository(pool), policy, metrics)

	n, err := sweeper.Sweep(ctx, time.Now())
	if err != nil {
		return errors.Wrap(err, "sweep")
	}

	lg.Info("Sweep complete",
		zap.Int64("expired", n),
		zap.String("mode", string(policy.Mode)),
	)
	return nil
}
