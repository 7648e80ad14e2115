package health

import (
	"context"
	"runtime"
	"time"

	"github.com/go-faster/errors"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports a dependency down when its Ping fails.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		return errors.Wrap(p.Ping(ctx), "ping")
	}
}

// GoroutineCountCheck fails once the process runs more than limit
// goroutines, which in this service means handlers or workers are leaking.
func GoroutineCountCheck(limit int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > limit {
			return errors.Errorf("%d goroutines, limit %d", n, limit)
		}
		return nil
	}
}

// FreshnessCheck fails when last returns the zero time or a time older than
// maxAge. The order sweeper exposes its last successful run through it.
func FreshnessCheck(last func() time.Time, maxAge time.Duration) CheckFunc {
	return freshnessCheck(last, maxAge, time.Now)
}

func freshnessCheck(last func() time.Time, maxAge time.Duration, now func() time.Time) CheckFunc {
	return func(context.Context) error {
		t := last()
		if t.IsZero() {
			return errors.New("has not run yet")
		}
		if age := now().Sub(t); age > maxAge {
			return errors.Errorf("last run %s ago exceeds %s", age.Round(time.Second), maxAge)
		}
		return nil
	}
}
