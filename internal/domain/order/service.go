package order

import (
	"context"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/restaurant-orders/internal/domain/apperr"
	"github.com/xenking/restaurant-orders/internal/domain/cart"
	"github.com/xenking/restaurant-orders/internal/domain/payment"
)

var phonePattern = regexp.MustCompile(`^[0-9+\-\s()]{10,20}$`)

// CartReader returns the hydrated cart of a user. Lines whose menu item no
// longer resolves must already be filtered out.
type CartReader interface {
	Get(ctx context.Context, userID string) (*cart.Cart, error)
}

// Notifier announces confirmed orders to customers. Implementations must not
// block.
type Notifier interface {
	OrderConfirmed(ctx context.Context, o *Order)
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) OrderConfirmed(context.Context, *Order) {}

// CheckoutRequest holds the input for converting a cart into an order.
type CheckoutRequest struct {
	PaymentMethod    PaymentMethod
	CustomerFullName string
	CustomerEmail    string
	DeliveryAddress  string
	PhoneNumber      string
}

// CheckoutResult holds the placed order and, for hosted payment methods, the
// session the customer must complete.
type CheckoutResult struct {
	Order   *Order
	Session *payment.Session
}

// Service encapsulates order placement and the order state machine.
type Service struct {
	orders   Repository
	carts    CartReader
	gateway  payment.Gateway
	policy   ExpiryPolicy
	notifier Notifier
	metrics  *Metrics

	now   func() time.Time
	newID func() string
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	orders Repository,
	carts CartReader,
	gateway payment.Gateway,
	policy ExpiryPolicy,
	notifier Notifier,
	metrics *Metrics,
) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	return &Service{
		orders:   orders,
		carts:    carts,
		gateway:  gateway,
		policy:   policy,
		notifier: notifier,
		metrics:  metrics,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// maxCheckoutAttempts bounds how often a cash checkout re-reads a cart that
// changed between the read and the order insert.
const maxCheckoutAttempts = 3

// Checkout converts the user's cart into an order. Cash orders are confirmed
// immediately and the cart is cleared with the insert, guarded by the cart
// version read here. Hosted payment orders stay pending with a payment
// session attached and the cart untouched until the payment completes.
func (s *Service) Checkout(ctx context.Context, userID string, req CheckoutRequest) (*CheckoutResult, error) {
	customer, method, err := validateCheckout(req)
	if err != nil {
		return nil, err
	}
	if method.Hosted() {
		return s.checkoutHosted(ctx, userID, customer, method)
	}

	for attempt := 1; ; attempt++ {
		c, o, err := s.build(ctx, userID, customer, method)
		if err != nil {
			return nil, err
		}

		err = s.orders.CreateAndClearCart(ctx, o, c.Version)
		switch {
		case err == nil:
			s.metrics.recordCheckout(ctx, method)
			s.notifier.OrderConfirmed(ctx, o)
			zctx.From(ctx).Info("Order placed",
				zap.String("order_id", o.ID),
				zap.String("payment_method", string(method)),
				zap.String("total", o.Total.String()),
			)
			return &CheckoutResult{Order: o}, nil
		case errors.Is(err, cart.ErrVersionConflict):
			if attempt >= maxCheckoutAttempts {
				return nil, cart.ErrVersionConflict
			}
		default:
			return nil, apperr.Persistence(err, "create order")
		}
	}
}

func (s *Service) checkoutHosted(ctx context.Context, userID string, customer Customer, method PaymentMethod) (*CheckoutResult, error) {
	_, o, err := s.build(ctx, userID, customer, method)
	if err != nil {
		return nil, err
	}
	lg := zctx.From(ctx).With(zap.String("order_id", o.ID), zap.String("payment_method", string(method)))

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, apperr.Persistence(err, "create order")
	}

	ref := payment.Reference{
		OrderID:       o.ID,
		UserID:        userID,
		CustomerEmail: customer.Email,
	}
	if o.ExpiresAt != nil {
		ref.ExpiresAt = *o.ExpiresAt
	}
	session, err := s.gateway.CreateCheckoutSession(ctx, paymentItems(o.Lines), ref)
	if err != nil {
		// Compensate: the order must not outlive a failed session request.
		if delErr := s.orders.Delete(context.WithoutCancel(ctx), o.ID); delErr != nil {
			lg.Error("Delete order after payment failure", zap.Error(delErr))
		}
		lg.Warn("Create payment session", zap.Error(err))
		return nil, apperr.Wrap(err, apperr.KindExternal, "create payment session")
	}

	// The session already exists at the provider; record it even if the
	// client has gone away.
	if err := s.orders.AttachPaymentSession(context.WithoutCancel(ctx), o.ID, session.ID); err != nil {
		lg.Error("Attach payment session", zap.String("session_id", session.ID), zap.Error(err))
		return nil, apperr.Persistence(err, "attach payment session")
	}
	o.PaymentSessionID = session.ID

	s.metrics.recordCheckout(ctx, method)
	lg.Info("Order awaiting payment", zap.String("session_id", session.ID))
	return &CheckoutResult{Order: o, Session: session}, nil
}

// build reads the cart and freezes it into a new order stamped by the expiry
// policy. The cart is returned for its version.
func (s *Service) build(ctx context.Context, userID string, customer Customer, method PaymentMethod) (*cart.Cart, *Order, error) {
	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "load cart")
	}
	if c.IsEmpty() {
		return nil, nil, ErrCartEmpty
	}

	lines := make([]Line, len(c.Lines))
	for i, l := range c.Lines {
		lines[i] = Line{
			MenuItemID:      l.MenuItemID,
			Name:            l.Item.Name,
			Quantity:        l.Quantity,
			PriceAtPurchase: l.PriceAtAddition,
			OriginalPrice:   l.OriginalPrice,
			DiscountApplied: l.DiscountApplied,
		}
	}

	now := s.now().UTC()
	o := &Order{
		ID:            s.newID(),
		UserID:        userID,
		Lines:         lines,
		Total:         LinesTotal(lines).Round(2),
		Status:        StatusConfirmed,
		PaymentMethod: method,
		Customer:      customer,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if method.Hosted() {
		o.Status = StatusPending
	}
	s.policy.Apply(o, now)
	return c, o, nil
}

// Confirm moves a pending order to confirmed and clears the owner's cart in
// the same write. Confirming a confirmed order is a no-op.
func (s *Service) Confirm(ctx context.Context, orderID string) (*Order, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if _, err := s.transition(ctx, o, StatusConfirmed); err != nil {
		return nil, err
	}
	return o, nil
}

// Cancel moves a pending order owned by userID to cancelled. Cancelling a
// cancelled order is a no-op.
func (s *Service) Cancel(ctx context.Context, orderID, userID string) (*Order, error) {
	o, err := s.GetForUser(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.transition(ctx, o, StatusCancelled); err != nil {
		return nil, err
	}
	return o, nil
}

// Get returns an order by ID.
func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, classifyLookup(err, "get order")
	}
	return o, nil
}

// GetForUser returns an order by ID if it belongs to userID. Orders of other
// users are reported as not found.
func (s *Service) GetForUser(ctx context.Context, orderID, userID string) (*Order, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

// GetByPaymentSession returns the order a hosted payment session belongs to.
func (s *Service) GetByPaymentSession(ctx context.Context, sessionID string) (*Order, error) {
	o, err := s.orders.GetByPaymentSession(ctx, sessionID)
	if err != nil {
		return nil, classifyLookup(err, "get order by session")
	}
	return o, nil
}

// ListByUser returns the orders of userID, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Persistence(err, "list orders")
	}
	return orders, nil
}

// ListAll returns every order, newest first.
func (s *Service) ListAll(ctx context.Context) ([]Order, error) {
	orders, err := s.orders.ListAll(ctx)
	if err != nil {
		return nil, apperr.Persistence(err, "list orders")
	}
	return orders, nil
}

// transition moves o to target and reports whether a write happened. The
// write is conditional on the status o was loaded with; if another writer
// got there first the order is reloaded and the decision is made again.
func (s *Service) transition(ctx context.Context, o *Order, target Status) (bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		if o.Status == target {
			return false, nil
		}
		if err := checkTransition(o.Status, target); err != nil {
			return false, err
		}

		now := s.now().UTC()
		next := *o
		next.Status = target
		next.UpdatedAt = now
		s.policy.Apply(&next, now)

		err := s.orders.UpdateStatus(ctx, &next, o.Status, target == StatusConfirmed)
		if err == nil {
			*o = next
			s.metrics.recordTransition(ctx, target)
			if target == StatusConfirmed {
				s.notifier.OrderConfirmed(ctx, o)
			}
			zctx.From(ctx).Info("Order status changed",
				zap.String("order_id", o.ID),
				zap.String("status", string(target)),
			)
			return true, nil
		}
		if !errors.Is(err, ErrStatusChanged) {
			return false, apperr.Persistence(err, "update order status")
		}

		fresh, err := s.Get(ctx, o.ID)
		if err != nil {
			return false, err
		}
		*o = *fresh
	}
	return false, ErrStatusChanged
}

func checkTransition(from, to Status) error {
	switch {
	case from == StatusPending && !to.Terminal():
		return errors.Errorf("invalid target status %q", to)
	case from == StatusPending:
		return nil
	case from == StatusConfirmed && to == StatusCancelled:
		return ErrCannotCancelConfirmed
	case from == StatusCancelled && to == StatusConfirmed:
		return ErrOrderCancelled
	default:
		return apperr.New(apperr.KindConflict, fmt.Sprintf("cannot move order from %s to %s", from, to))
	}
}

func classifyLookup(err error, msg string) error {
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return apperr.Persistence(err, msg)
}

// paymentItems builds the session rows from frozen order lines. Discounted
// rows carry the percentage in their name.
func paymentItems(lines []Line) []payment.LineItem {
	items := make([]payment.LineItem, len(lines))
	for i, l := range lines {
		name := l.Name
		if l.DiscountApplied > 0 {
			name = fmt.Sprintf("%s (%d%% OFF)", l.Name, l.DiscountApplied)
		}
		items[i] = payment.LineItem{
			Name:      name,
			UnitPrice: l.PriceAtPurchase,
			Quantity:  l.Quantity,
		}
	}
	return items
}

func validateCheckout(req CheckoutRequest) (Customer, PaymentMethod, error) {
	c := Customer{
		FullName:        strings.TrimSpace(req.CustomerFullName),
		Email:           strings.ToLower(strings.TrimSpace(req.CustomerEmail)),
		DeliveryAddress: strings.TrimSpace(req.DeliveryAddress),
		PhoneNumber:     strings.TrimSpace(req.PhoneNumber),
	}

	method := req.PaymentMethod
	if method == "" {
		method = PaymentCash
	}
	if !method.Valid() {
		return c, "", &ValidationError{Field: "paymentMethod", Reason: "must be one of cash, card, online"}
	}

	required := []struct {
		field string
		value string
	}{
		{"customerFullName", c.FullName},
		{"customerEmail", c.Email},
		{"deliveryAddress", c.DeliveryAddress},
		{"phoneNumber", c.PhoneNumber},
	}
	for _, r := range required {
		if r.value == "" {
			return c, "", &ValidationError{Field: r.field, Reason: "is required"}
		}
	}

	if n := utf8.RuneCountInString(c.FullName); n < 2 || n > 100 {
		return c, "", &ValidationError{Field: "customerFullName", Reason: "must be between 2 and 100 characters"}
	}
	if addr, err := mail.ParseAddress(c.Email); err != nil || addr.Address != c.Email {
		return c, "", &ValidationError{Field: "customerEmail", Reason: "must be a valid email address"}
	}
	if n := utf8.RuneCountInString(c.DeliveryAddress); n < 10 || n > 500 {
		return c, "", &ValidationError{Field: "deliveryAddress", Reason: "must be between 10 and 500 characters"}
	}
	if !phonePattern.MatchString(c.PhoneNumber) {
		return c, "", &ValidationError{Field: "phoneNumber", Reason: "must be 10 to 20 digits, spaces, or +-() characters"}
	}

	return c, method, nil
}
