// Package handler exposes the ordering API over net/http. Bodies are encoded
// and decoded with go-faster/jx.
package handler

import (
	"context"
	"net/http"

	"github.com/xenking/restaurant-orders/internal/domain/auth"
	"github.com/xenking/restaurant-orders/internal/domain/cart"
	"github.com/xenking/restaurant-orders/internal/domain/menu"
	"github.com/xenking/restaurant-orders/internal/domain/offer"
	"github.com/xenking/restaurant-orders/internal/domain/order"
)

// CartService is the cart engine as seen by the HTTP layer.
type CartService interface {
	Get(ctx context.Context, userID string) (*cart.Cart, error)
	AddItems(ctx context.Context, userID string, items []cart.AddItem) (*cart.Cart, error)
	UpdateQuantity(ctx context.Context, userID, menuItemID string, quantity int) (*cart.Cart, error)
	RemoveItem(ctx context.Context, userID, menuItemID string) (*cart.Cart, error)
	Clear(ctx context.Context, userID string) (*cart.Cart, error)
}

// OrderService is the order builder and state machine as seen by the HTTP
// layer.
type OrderService interface {
	Checkout(ctx context.Context, userID string, req order.CheckoutRequest) (*order.CheckoutResult, error)
	Confirm(ctx context.Context, orderID string) (*order.Order, error)
	Cancel(ctx context.Context, orderID, userID string) (*order.Order, error)
	GetForUser(ctx context.Context, orderID, userID string) (*order.Order, error)
	GetByPaymentSession(ctx context.Context, sessionID string) (*order.Order, error)
	ListByUser(ctx context.Context, userID string) ([]order.Order, error)
	ListAll(ctx context.Context) ([]order.Order, error)
}

// WebhookHandler applies verified payment provider events.
type WebhookHandler interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// MaxBodyBytes caps request bodies. Zero means 1 MiB.
	MaxBodyBytes int64
}

// Handler serves the public API, delegating business logic to the domain
// services.
type Handler struct {
	menu     menu.Repository
	offers   offer.Repository
	carts    CartService
	orders   OrderService
	webhooks WebhookHandler
	security *Security

	maxBody int64
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg Config,
	catalog menu.Repository,
	offers offer.Repository,
	carts CartService,
	orders OrderService,
	webhooks WebhookHandler,
	security *Security,
) *Handler {
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &Handler{
		menu:     catalog,
		offers:   offers,
		carts:    carts,
		orders:   orders,
		webhooks: webhooks,
		security: security,
		maxBody:  maxBody,
	}
}

// Register mounts every API route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	user := h.security.RequireUser
	admin := func(next http.HandlerFunc) http.HandlerFunc {
		return h.security.RequireAPIKey(auth.ScopeOrdersAdmin, next)
	}

	mux.HandleFunc("GET /api/menu-items", h.ListMenuItems)
	mux.HandleFunc("GET /api/menu-items/{id}", h.GetMenuItem)
	mux.HandleFunc("GET /api/offers", h.ListOffers)

	mux.HandleFunc("GET /api/cart", user(h.GetCart))
	mux.HandleFunc("DELETE /api/cart", user(h.ClearCart))
	mux.HandleFunc("POST /api/cart/items", user(h.AddCartItems))
	mux.HandleFunc("PATCH /api/cart/items", user(h.UpdateCartItem))
	mux.HandleFunc("DELETE /api/cart/items/{menuItemId}", user(h.RemoveCartItem))

	mux.HandleFunc("POST /api/orders/checkout", user(h.Checkout))
	mux.HandleFunc("GET /api/orders", user(h.ListMyOrders))
	mux.HandleFunc("GET /api/orders/{id}", user(h.GetMyOrder))
	mux.HandleFunc("POST /api/orders/{id}/cancel", user(h.CancelOrder))
	mux.HandleFunc("GET /api/orders/session/{sessionId}", h.GetOrderBySession)

	mux.HandleFunc("GET /api/admin/orders", admin(h.ListAllOrders))
	mux.HandleFunc("POST /api/admin/orders/{id}/confirm", admin(h.ConfirmOrder))

	mux.HandleFunc("POST /api/payments/webhook", h.PaymentWebhook)
}
