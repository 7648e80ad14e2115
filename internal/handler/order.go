package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/restaurant-orders/internal/domain/auth"
	"github.com/xenking/restaurant-orders/internal/domain/order"
)

// Checkout converts the caller's cart into an order. Hosted payment methods
// additionally return the checkout URL the customer must visit.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	body, err := h.readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req order.CheckoutRequest
	err = decodeObject(body, func(d *jx.Decoder, key string) error {
		var (
			s   string
			err error
		)
		switch key {
		case "paymentMethod":
			s, err = d.Str()
			req.PaymentMethod = order.PaymentMethod(s)
		case "customerFullName":
			req.CustomerFullName, err = d.Str()
		case "customerEmail":
			req.CustomerEmail, err = d.Str()
		case "deliveryAddress":
			req.DeliveryAddress, err = d.Str()
		case "phoneNumber":
			req.PhoneNumber, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	userID, _ := auth.UserFrom(r.Context())
	res, err := h.orders.Checkout(r.Context(), userID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	if res.Session == nil {
		e.Field("message", func(e *jx.Encoder) { e.Str("Order created and confirmed successfully") })
	} else {
		e.Field("message", func(e *jx.Encoder) { e.Str("Order created. Complete payment to confirm.") })
	}
	e.Field("order", func(e *jx.Encoder) { encodeOrder(e, res.Order) })
	if res.Session != nil {
		e.Field("checkoutUrl", func(e *jx.Encoder) { e.Str(res.Session.URL) })
		e.Field("sessionId", func(e *jx.Encoder) { e.Str(res.Session.ID) })
	}
	e.ObjEnd()
	writeJSON(w, http.StatusCreated, &e)
}

// ListMyOrders returns the caller's orders, newest first.
func (h *Handler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserFrom(r.Context())
	orders, err := h.orders.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrders(w, orders)
}

// GetMyOrder returns one of the caller's orders.
func (h *Handler) GetMyOrder(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserFrom(r.Context())
	o, err := h.orders.GetForUser(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, http.StatusOK, "", o)
}

// CancelOrder cancels one of the caller's pending orders.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserFrom(r.Context())
	o, err := h.orders.Cancel(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, http.StatusOK, "Order cancelled successfully", o)
}

// GetOrderBySession resolves the order behind a payment session. The
// provider redirects customers here after checkout.
func (h *Handler) GetOrderBySession(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetByPaymentSession(r.Context(), r.PathValue("sessionId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, http.StatusOK, "", o)
}

// ListAllOrders returns every order.
func (h *Handler) ListAllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListAll(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrders(w, orders)
}

// ConfirmOrder marks a pending order as paid.
func (h *Handler) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Confirm(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, http.StatusOK, "Order confirmed successfully", o)
}
