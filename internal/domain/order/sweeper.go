package order

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/restaurant-orders/internal/domain/apperr"
)

// Sweeper expires orders whose deadline has passed.
type Sweeper struct {
	orders  Repository
	policy  ExpiryPolicy
	metrics *Metrics

	// lastRun is the unix nano time of the last successful sweep.
	lastRun atomic.Int64
}

// NewSweeper creates a Sweeper that acts according to policy.Mode.
func NewSweeper(orders Repository, policy ExpiryPolicy, metrics *Metrics) *Sweeper {
	if metrics == nil {
		metrics = NopMetrics()
	}
	return &Sweeper{orders: orders, policy: policy, metrics: metrics}
}

// Sweep expires every order overdue at now and returns how many were
// affected. In cancel mode overdue pending orders become cancelled; in delete
// mode overdue orders that were never confirmed are removed.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int64, error) {
	mode := s.policy.Mode
	if mode == "" {
		mode = ExpiryCancel
	}

	n, err := s.orders.ExpireOverdue(ctx, now.UTC(), mode)
	if err != nil {
		return 0, apperr.Persistence(err, "expire overdue orders")
	}
	s.lastRun.Store(now.UnixNano())
	s.metrics.recordExpired(ctx, mode, n)
	return n, nil
}

// Run sweeps once immediately and then every interval until ctx is done.
// Failed sweeps are logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	lg := zctx.From(ctx).Named("sweeper")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n, err := s.Sweep(ctx, time.Now())
		switch {
		case err != nil && ctx.Err() == nil:
			lg.Error("Sweep failed", zap.Error(err))
		case n > 0:
			lg.Info("Expired overdue orders", zap.Int64("count", n), zap.String("mode", string(s.policy.Mode)))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// LastRun returns the time of the last successful sweep, or the zero time.
func (s *Sweeper) LastRun() time.Time {
	v := s.lastRun.Load()
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, v)
}
