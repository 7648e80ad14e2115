package order

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/restaurant-orders/internal/domain/apperr"
)

// Status is the order lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusCancelled
}

// PaymentMethod selects how an order is paid.
type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentCard   PaymentMethod = "card"
	PaymentOnline PaymentMethod = "online"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentOnline:
		return true
	default:
		return false
	}
}

// Hosted reports whether m is settled through the payment provider.
func (m PaymentMethod) Hosted() bool {
	return m == PaymentCard || m == PaymentOnline
}

var (
	// ErrNotFound is returned when an order does not exist or is not visible
	// to the caller.
	ErrNotFound = apperr.New(apperr.KindNotFound, "order not found")
	// ErrCartEmpty is returned when checkout finds no resolvable cart lines.
	ErrCartEmpty = apperr.New(apperr.KindValidation, "cart is empty")
	// ErrCannotCancelConfirmed is returned when cancelling a paid order.
	ErrCannotCancelConfirmed = apperr.New(apperr.KindConflict, "cannot cancel confirmed order")
	// ErrOrderCancelled is returned when confirming a cancelled order.
	ErrOrderCancelled = apperr.New(apperr.KindConflict, "order is cancelled")
	// ErrStatusChanged is returned by Repository.UpdateStatus when the stored
	// status no longer matches the expected one.
	ErrStatusChanged = apperr.New(apperr.KindConflict, "order status changed concurrently")
)

// ValidationError describes an invalid checkout field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Kind classifies the error as invalid input.
func (e *ValidationError) Kind() apperr.Kind { return apperr.KindValidation }

// Line is a frozen copy of a cart line at checkout time.
type Line struct {
	MenuItemID      string          `json:"menu_item_id"`
	Name            string          `json:"name"`
	Quantity        int             `json:"quantity"`
	PriceAtPurchase decimal.Decimal `json:"price_at_purchase"`
	OriginalPrice   decimal.Decimal `json:"original_price"`
	DiscountApplied int             `json:"discount_applied"`
}

// Customer holds the delivery contact captured at checkout.
type Customer struct {
	FullName        string
	Email           string
	DeliveryAddress string
	PhoneNumber     string
}

// Order is a placed order.
type Order struct {
	ID               string
	UserID           string
	Lines            []Line
	Total            decimal.Decimal
	Status           Status
	PaymentMethod    PaymentMethod
	Customer         Customer
	PaymentSessionID string
	// ExpiresAt is the deadline after which the sweeper acts on the order.
	// Nil means the order never expires.
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LinesTotal returns Σ PriceAtPurchase × Quantity over lines.
func LinesTotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.PriceAtPurchase.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	// CreateAndClearCart inserts o and empties the owner's cart in one
	// transaction, provided the cart is still at cartVersion. Otherwise
	// nothing is written and cart.ErrVersionConflict is returned.
	CreateAndClearCart(ctx context.Context, o *Order, cartVersion int64) error
	Delete(ctx context.Context, id string) error
	AttachPaymentSession(ctx context.Context, id, sessionID string) error
	// Get returns ErrNotFound when the order does not exist.
	Get(ctx context.Context, id string) (*Order, error)
	// GetByPaymentSession returns ErrNotFound when no order holds sessionID.
	GetByPaymentSession(ctx context.Context, sessionID string) (*Order, error)
	// ListByUser and ListAll return orders newest first.
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	ListAll(ctx context.Context) ([]Order, error)
	// UpdateStatus writes o.Status, o.ExpiresAt and o.UpdatedAt if the stored
	// status still equals from, and returns ErrStatusChanged otherwise. When
	// clearCart is set the owner's cart is emptied in the same transaction.
	UpdateStatus(ctx context.Context, o *Order, from Status, clearCart bool) error
	// ExpireOverdue applies mode to every order whose deadline is at or
	// before now and returns the number of affected orders.
	ExpireOverdue(ctx context.Context, now time.Time, mode ExpiryMode) (int64, error)
}
