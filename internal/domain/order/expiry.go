package order

import (
	"time"

	"github.com/go-faster/errors"
)

// ExpiryMode selects what happens to an order once its deadline passes.
type ExpiryMode string

const (
	// ExpiryCancel moves overdue pending orders to cancelled.
	ExpiryCancel ExpiryMode = "cancel"
	// ExpiryDelete removes overdue orders that were never confirmed.
	ExpiryDelete ExpiryMode = "delete"
)

// DefaultTTL is how long an unpaid order waits for payment.
const DefaultTTL = time.Hour

// ParseExpiryMode validates a configured mode. Empty selects ExpiryCancel.
func ParseExpiryMode(s string) (ExpiryMode, error) {
	switch m := ExpiryMode(s); m {
	case "":
		return ExpiryCancel, nil
	case ExpiryCancel, ExpiryDelete:
		return m, nil
	default:
		return "", errors.Errorf("unknown expiry mode %q", s)
	}
}

// ExpiryPolicy decides the deadline of an order after each transition.
type ExpiryPolicy struct {
	TTL  time.Duration
	Mode ExpiryMode
}

// Apply sets o.ExpiresAt for the current status of o.
func (p ExpiryPolicy) Apply(o *Order, now time.Time) {
	ttl := p.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	switch o.Status {
	case StatusPending:
		o.ExpiresAt = deadline(now, ttl)
	case StatusCancelled:
		if p.Mode == ExpiryDelete {
			o.ExpiresAt = deadline(now, ttl)
			return
		}
		o.ExpiresAt = nil
	default:
		o.ExpiresAt = nil
	}
}

func deadline(now time.Time, ttl time.Duration) *time.Time {
	t := now.Add(ttl).UTC()
	return &t
}
