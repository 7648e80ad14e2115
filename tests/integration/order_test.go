//go:build integration

package integration

import (
	"net/http"
	"testing"
)

type addItem struct {
	MenuItemID string `json:"menuItemId"`
	Quantity   int    `json:"quantity,omitempty"`
}

type addItemsRequest struct {
	Items []addItem `json:"items"`
}

type checkoutRequest struct {
	PaymentMethod    string `json:"paymentMethod"`
	CustomerFullName string `json:"customerFullName"`
	CustomerEmail    string `json:"customerEmail"`
	DeliveryAddress  string `json:"deliveryAddress"`
	PhoneNumber      string `json:"phoneNumber"`
}

func cashCheckout() checkoutRequest {
	return checkoutRequest{
		PaymentMethod:    "cash",
		CustomerFullName: "Mona Hassan",
		CustomerEmail:    "mona@example.com",
		DeliveryAddress:  "12 Tahrir Square, Cairo",
		PhoneNumber:      "+201001234567",
	}
}

func TestCart_RequiresBearer(t *testing.T) {
	resp := doGet(t, "/api/cart")
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusUnauthorized)

	body := decodeJSON[errorResponse](t, resp)
	if body.Kind != "unauthorized" {
		t.Errorf("kind: got %q, want unauthorized", body.Kind)
	}
}

func TestCart_AddAppliesBestOffer(t *testing.T) {
	_, token := newUser(t)

	resp := doAsUser(t, token, http.MethodPost, "/api/cart/items", addItemsRequest{
		Items: []addItem{{MenuItemID: "koshary", Quantity: 2}},
	})
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusCreated)

	c := decodeJSON[cartResponse](t, resp)
	if len(c.Cart.Items) != 1 {
		t.Fatalf("expected 1 line, got %d", len(c.Cart.Items))
	}
	line := c.Cart.Items[0]
	// lunch-deal (20%) beats koshary-tuesday (15%).
	if line.DiscountApplied != 20 {
		t.Errorf("discount: got %d, want 20", line.DiscountApplied)
	}
	if line.PriceAtAddition != 80 {
		t.Errorf("price: got %v, want 80", line.PriceAtAddition)
	}
	if c.Cart.Subtotal != 160 {
		t.Errorf("subtotal: got %v, want 160", c.Cart.Subtotal)
	}
}

func TestCart_UnavailableItem(t *testing.T) {
	_, token := newUser(t)

	resp := doAsUser(t, token, http.MethodPost, "/api/cart/items", addItemsRequest{
		Items: []addItem{{MenuItemID: "basbousa"}},
	})
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusConflict)
}

func TestCart_UpdateAndRemove(t *testing.T) {
	_, token := newUser(t)

	resp := doAsUser(t, token, http.MethodPost, "/api/cart/items", addItemsRequest{
		Items: []addItem{{MenuItemID: "karkade"}, {MenuItemID: "falafel"}},
	})
	resp.Body.Close()
	expectStatus(t, resp, http.StatusCreated)

	resp = doAsUser(t, token, http.MethodPatch, "/api/cart/items", addItem{MenuItemID: "karkade", Quantity: 3})
	c := decodeJSON[cartResponse](t, resp)
	resp.Body.Close()
	if len(c.Cart.Items) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(c.Cart.Items))
	}

	resp = doAsUser(t, token, http.MethodDelete, "/api/cart/items/falafel", nil)
	expectStatus(t, resp, http.StatusOK)
	c = decodeJSON[cartResponse](t, resp)
	resp.Body.Close()
	if len(c.Cart.Items) != 1 || c.Cart.Items[0].Quantity != 3 {
		t.Fatalf("unexpected cart after remove: %+v", c.Cart.Items)
	}
}

func TestCheckout_EmptyCart(t *testing.T) {
	_, token := newUser(t)

	resp := doAsUser(t, token, http.MethodPost, "/api/orders/checkout", cashCheckout())
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestCheckout_CardWithoutProvider(t *testing.T) {
	_, token := newUser(t)

	resp := doAsUser(t, token, http.MethodPost, "/api/cart/items", addItemsRequest{
		Items: []addItem{{MenuItemID: "om-ali"}},
	})
	resp.Body.Close()
	expectStatus(t, resp, http.StatusCreated)

	req := cashCheckout()
	req.PaymentMethod = "card"
	resp = doAsUser(t, token, http.MethodPost, "/api/orders/checkout", req)
	resp.Body.Close()
	expectStatus(t, resp, http.StatusBadGateway)

	// The cart survives a rejected checkout.
	resp = doAsUser(t, token, http.MethodGet, "/api/cart", nil)
	c := decodeJSON[cartResponse](t, resp)
	resp.Body.Close()
	if len(c.Cart.Items) != 1 {
		t.Fatalf("expected cart to be kept, got %d lines", len(c.Cart.Items))
	}
}

func TestCheckout_CashFlow(t *testing.T) {
	userID, token := newUser(t)

	resp := doAsUser(t, token, http.MethodPost, "/api/cart/items", addItemsRequest{
		Items: []addItem{{MenuItemID: "koshary", Quantity: 1}, {MenuItemID: "karkade", Quantity: 2}},
	})
	resp.Body.Close()
	expectStatus(t, resp, http.StatusCreated)

	resp = doAsUser(t, token, http.MethodPost, "/api/orders/checkout", cashCheckout())
	expectStatus(t, resp, http.StatusCreated)
	created := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()

	o := created.Order
	if o.Status != "confirmed" {
		t.Errorf("status: got %q, want confirmed", o.Status)
	}
	if o.UserID != userID {
		t.Errorf("userId: got %q, want %q", o.UserID, userID)
	}
	// koshary 100 at 20% off + 2 x karkade 25.
	if o.TotalAmount != 130 {
		t.Errorf("total: got %v, want 130", o.TotalAmount)
	}
	if created.CheckoutURL != "" {
		t.Errorf("cash checkout returned a checkout url")
	}

	// Cart is cleared by a cash checkout.
	resp = doAsUser(t, token, http.MethodGet, "/api/cart", nil)
	c := decodeJSON[cartResponse](t, resp)
	resp.Body.Close()
	if len(c.Cart.Items) != 0 {
		t.Errorf("expected empty cart, got %d lines", len(c.Cart.Items))
	}

	// The order is visible to its owner.
	resp = doAsUser(t, token, http.MethodGet, "/api/orders/"+o.ID, nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = doAsUser(t, token, http.MethodGet, "/api/orders", nil)
	list := decodeJSON[ordersResponse](t, resp)
	resp.Body.Close()
	if len(list.Orders) != 1 || list.Orders[0].ID != o.ID {
		t.Fatalf("unexpected order list: %+v", list.Orders)
	}

	// Another user cannot see it.
	_, otherToken := newUser(t)
	resp = doAsUser(t, otherToken, http.MethodGet, "/api/orders/"+o.ID, nil)
	resp.Body.Close()
	expectStatus(t, resp, http.StatusNotFound)

	// A confirmed order cannot be cancelled.
	resp = doAsUser(t, token, http.MethodPost, "/api/orders/"+o.ID+"/cancel", nil)
	resp.Body.Close()
	expectStatus(t, resp, http.StatusConflict)
}

func TestAdmin_Orders(t *testing.T) {
	_, token := newUser(t)

	resp := doAsUser(t, token, http.MethodPost, "/api/cart/items", addItemsRequest{
		Items: []addItem{{MenuItemID: "sahlab"}},
	})
	resp.Body.Close()
	expectStatus(t, resp, http.StatusCreated)

	resp = doAsUser(t, token, http.MethodPost, "/api/orders/checkout", cashCheckout())
	created := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()

	t.Run("missing key", func(t *testing.T) {
		resp := doGet(t, "/api/admin/orders")
		defer resp.Body.Close()
		expectStatus(t, resp, http.StatusUnauthorized)
	})

	t.Run("wrong key", func(t *testing.T) {
		resp := doAsAdmin(t, "wrong-key", http.MethodGet, "/api/admin/orders", nil)
		defer resp.Body.Close()
		expectStatus(t, resp, http.StatusUnauthorized)
	})

	t.Run("list", func(t *testing.T) {
		resp := doAsAdmin(t, testAPIKey, http.MethodGet, "/api/admin/orders", nil)
		defer resp.Body.Close()
		expectStatus(t, resp, http.StatusOK)

		list := decodeJSON[ordersResponse](t, resp)
		var found bool
		for _, o := range list.Orders {
			if o.ID == created.Order.ID {
				found = true
			}
		}
		if !found {
			t.Fatalf("order %s not in admin list", created.Order.ID)
		}
	})

	t.Run("confirm is idempotent", func(t *testing.T) {
		resp := doAsAdmin(t, testAPIKey, http.MethodPost, "/api/admin/orders/"+created.Order.ID+"/confirm", nil)
		defer resp.Body.Close()
		expectStatus(t, resp, http.StatusOK)

		body := decodeJSON[orderResponse](t, resp)
		if body.Order.Status != "confirmed" {
			t.Errorf("status: got %q, want confirmed", body.Order.Status)
		}
	})
}

func TestWebhook_NotConfigured(t *testing.T) {
	resp := doRequest(t, http.MethodPost, "/api/payments/webhook", map[string]string{"type": "checkout.session.completed"},
		http.Header{"Stripe-Signature": {"t=1,v1=deadbeef"}})
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusBadRequest)
}
