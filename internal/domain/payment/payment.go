// Package payment defines the contract between the order flow and a hosted
// checkout provider.
package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/restaurant-orders/internal/domain/apperr"
)

// EventType identifies a provider webhook event.
type EventType string

const (
	EventSessionCompleted EventType = "checkout.session.completed"
	EventSessionExpired   EventType = "checkout.session.expired"
)

// Metadata keys attached to every hosted session.
const (
	MetadataOrderID = "orderId"
	MetadataUserID  = "userId"
)

var (
	// ErrInvalidSignature is returned when a webhook payload cannot be
	// authenticated.
	ErrInvalidSignature = apperr.New(apperr.KindExternal, "invalid webhook signature")
	// ErrNotConfigured is returned by Unconfigured.
	ErrNotConfigured = apperr.New(apperr.KindExternal, "payment provider is not configured")
)

// LineItem is one priced row of a hosted checkout session.
type LineItem struct {
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Reference ties a session back to the order that requested it.
type Reference struct {
	OrderID       string
	UserID        string
	CustomerEmail string
	// ExpiresAt is the order deadline. Zero leaves the provider default.
	ExpiresAt time.Time
}

// Session is a created hosted checkout session.
type Session struct {
	ID  string
	URL string
}

// Event is a verified webhook notification.
type Event struct {
	ID        string
	Type      EventType
	SessionID string
	OrderID   string
	UserID    string
}

// Gateway creates hosted checkout sessions and authenticates webhooks.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, items []LineItem, ref Reference) (*Session, error)
	// VerifyWebhook authenticates payload against signature and decodes it.
	// Failures wrap ErrInvalidSignature.
	VerifyWebhook(payload []byte, signature string) (*Event, error)
}

// Unconfigured is a Gateway that rejects every call. It is used when no
// provider credentials are present so that cash checkout keeps working.
type Unconfigured struct{}

var _ Gateway = Unconfigured{}

func (Unconfigured) CreateCheckoutSession(context.Context, []LineItem, Reference) (*Session, error) {
	return nil, ErrNotConfigured
}

func (Unconfigured) VerifyWebhook([]byte, string) (*Event, error) {
	return nil, ErrNotConfigured
}

// MinorUnits converts a major-unit amount into the provider's integer minor
// units, rounding half away from zero.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
