package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/restaurant-orders/internal/domain/cart"
	"github.com/xenking/restaurant-orders/internal/domain/menu"
	"github.com/xenking/restaurant-orders/internal/domain/offer"
	"github.com/xenking/restaurant-orders/internal/domain/order"
)

// readBody reads at most h.maxBody bytes of the request body.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, badRequest("request body too large")
		}
		return nil, badRequest("unreadable request body")
	}
	return body, nil
}

// decodeObject walks the top-level object of body, calling field for every
// key. Unknown keys must be skipped by field.
func decodeObject(body []byte, field func(d *jx.Decoder, key string) error) error {
	if len(body) == 0 {
		return badRequest("request body required")
	}
	d := jx.DecodeBytes(body)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		return field(d, string(key))
	}); err != nil {
		return badRequest("malformed JSON body")
	}
	return nil
}

func encodeMoney(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.StringFixed(2)))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeMenuItem(e *jx.Encoder, it *menu.Item) {
	e.ObjStart()
	e.Field("id", func(e *jx.Encoder) { e.Str(it.ID) })
	e.Field("name", func(e *jx.Encoder) { e.Str(it.Name) })
	e.Field("description", func(e *jx.Encoder) { e.Str(it.Description) })
	e.Field("price", func(e *jx.Encoder) { encodeMoney(e, it.Price) })
	e.Field("category", func(e *jx.Encoder) { e.Str(string(it.Category)) })
	e.Field("available", func(e *jx.Encoder) { e.Bool(it.Available) })
	e.Field("rating", func(e *jx.Encoder) { e.Float64(it.Rating) })
	e.Field("imageUrl", func(e *jx.Encoder) { e.Str(it.ImageURL) })
	e.ObjEnd()
}

func encodeOffer(e *jx.Encoder, o *offer.Offer) {
	e.ObjStart()
	e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
	e.Field("title", func(e *jx.Encoder) { e.Str(o.Title) })
	e.Field("discountPercent", func(e *jx.Encoder) { e.Int(o.DiscountPercent) })
	e.Field("menuItemIds", func(e *jx.Encoder) {
		e.ArrStart()
		for _, id := range o.MenuItemIDs {
			e.Str(id)
		}
		e.ArrEnd()
	})
	e.Field("active", func(e *jx.Encoder) { e.Bool(o.Active) })
	e.ObjEnd()
}

func encodeCart(e *jx.Encoder, c *cart.Cart) {
	e.ObjStart()
	e.Field("userId", func(e *jx.Encoder) { e.Str(c.UserID) })
	e.Field("items", func(e *jx.Encoder) {
		e.ArrStart()
		for i := range c.Lines {
			l := &c.Lines[i]
			e.ObjStart()
			e.Field("menuItemId", func(e *jx.Encoder) { e.Str(l.MenuItemID) })
			if l.Item != nil {
				e.Field("menuItem", func(e *jx.Encoder) { encodeMenuItem(e, l.Item) })
			}
			e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
			e.Field("priceAtAddition", func(e *jx.Encoder) { encodeMoney(e, l.PriceAtAddition) })
			e.Field("originalPrice", func(e *jx.Encoder) { encodeMoney(e, l.OriginalPrice) })
			e.Field("discountApplied", func(e *jx.Encoder) { e.Int(l.DiscountApplied) })
			e.ObjEnd()
		}
		e.ArrEnd()
	})
	e.Field("subtotal", func(e *jx.Encoder) { encodeMoney(e, c.Subtotal()) })
	if !c.UpdatedAt.IsZero() {
		e.Field("updatedAt", func(e *jx.Encoder) { encodeTime(e, c.UpdatedAt) })
	}
	e.ObjEnd()
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
	e.Field("userId", func(e *jx.Encoder) { e.Str(o.UserID) })
	e.Field("items", func(e *jx.Encoder) {
		e.ArrStart()
		for _, l := range o.Lines {
			e.ObjStart()
			e.Field("menuItemId", func(e *jx.Encoder) { e.Str(l.MenuItemID) })
			e.Field("name", func(e *jx.Encoder) { e.Str(l.Name) })
			e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
			e.Field("priceAtPurchase", func(e *jx.Encoder) { encodeMoney(e, l.PriceAtPurchase) })
			e.Field("originalPrice", func(e *jx.Encoder) { encodeMoney(e, l.OriginalPrice) })
			e.Field("discountApplied", func(e *jx.Encoder) { e.Int(l.DiscountApplied) })
			e.ObjEnd()
		}
		e.ArrEnd()
	})
	e.Field("totalAmount", func(e *jx.Encoder) { encodeMoney(e, o.Total) })
	e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
	e.Field("paymentMethod", func(e *jx.Encoder) { e.Str(string(o.PaymentMethod)) })
	e.Field("customerFullName", func(e *jx.Encoder) { e.Str(o.Customer.FullName) })
	e.Field("customerEmail", func(e *jx.Encoder) { e.Str(o.Customer.Email) })
	e.Field("deliveryAddress", func(e *jx.Encoder) { e.Str(o.Customer.DeliveryAddress) })
	e.Field("phoneNumber", func(e *jx.Encoder) { e.Str(o.Customer.PhoneNumber) })
	if o.PaymentSessionID != "" {
		e.Field("paymentSessionId", func(e *jx.Encoder) { e.Str(o.PaymentSessionID) })
	}
	if o.ExpiresAt != nil {
		e.Field("expiresAt", func(e *jx.Encoder) { encodeTime(e, *o.ExpiresAt) })
	}
	e.Field("createdAt", func(e *jx.Encoder) { encodeTime(e, o.CreatedAt) })
	e.Field("updatedAt", func(e *jx.Encoder) { encodeTime(e, o.UpdatedAt) })
	e.ObjEnd()
}

// writeCart writes {"cart": ...}.
func writeCart(w http.ResponseWriter, status int, c *cart.Cart) {
	var e jx.Encoder
	e.ObjStart()
	e.Field("cart", func(e *jx.Encoder) { encodeCart(e, c) })
	e.ObjEnd()
	writeJSON(w, status, &e)
}

// writeOrder writes {"message": ..., "order": ...}.
func writeOrder(w http.ResponseWriter, status int, msg string, o *order.Order) {
	var e jx.Encoder
	e.ObjStart()
	if msg != "" {
		e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
	}
	e.Field("order", func(e *jx.Encoder) { encodeOrder(e, o) })
	e.ObjEnd()
	writeJSON(w, status, &e)
}

// writeOrders writes {"orders": [...]}.
func writeOrders(w http.ResponseWriter, orders []order.Order) {
	var e jx.Encoder
	e.ObjStart()
	e.Field("orders", func(e *jx.Encoder) {
		e.ArrStart()
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
		e.ArrEnd()
	})
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}
