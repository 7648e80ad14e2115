package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/restaurant-orders/internal/domain/auth"
	"github.com/xenking/restaurant-orders/internal/domain/cart"
)

// GetCart returns the caller's cart.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserFrom(r.Context())
	c, err := h.carts.Get(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCart(w, http.StatusOK, c)
}

// AddCartItems merges {"items":[{"menuItemId","quantity"}]} into the cart.
// A missing quantity means 1.
func (h *Handler) AddCartItems(w http.ResponseWriter, r *http.Request) {
	body, err := h.readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var items []cart.AddItem
	err = decodeObject(body, func(d *jx.Decoder, key string) error {
		if key != "items" {
			return d.Skip()
		}
		return d.Arr(func(d *jx.Decoder) error {
			item := cart.AddItem{Quantity: 1}
			if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				var err error
				switch string(key) {
				case "menuItemId":
					item.MenuItemID, err = d.Str()
				case "quantity":
					item.Quantity, err = d.Int()
				default:
					err = d.Skip()
				}
				return err
			}); err != nil {
				return err
			}
			items = append(items, item)
			return nil
		})
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	for _, item := range items {
		if item.MenuItemID == "" {
			writeError(w, r, badRequest("menuItemId is required"))
			return
		}
	}

	userID, _ := auth.UserFrom(r.Context())
	c, err := h.carts.AddItems(r.Context(), userID, items)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCart(w, http.StatusCreated, c)
}

// UpdateCartItem sets the quantity of one line from
// {"menuItemId","quantity"}. Quantity 0 removes the line.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	body, err := h.readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var (
		menuItemID string
		quantity   int
		hasQty     bool
	)
	err = decodeObject(body, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "menuItemId":
			menuItemID, err = d.Str()
		case "quantity":
			hasQty = true
			quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if menuItemID == "" || !hasQty {
		writeError(w, r, badRequest("menuItemId and quantity are required"))
		return
	}

	userID, _ := auth.UserFrom(r.Context())
	c, err := h.carts.UpdateQuantity(r.Context(), userID, menuItemID, quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCart(w, http.StatusOK, c)
}

// RemoveCartItem drops one line. Removing an absent line is not an error.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserFrom(r.Context())
	c, err := h.carts.RemoveItem(r.Context(), userID, r.PathValue("menuItemId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCart(w, http.StatusOK, c)
}

// ClearCart empties the caller's cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserFrom(r.Context())
	c, err := h.carts.Clear(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCart(w, http.StatusOK, c)
}
