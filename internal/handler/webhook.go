package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

// SignatureHeader carries the payment provider's webhook signature.
const SignatureHeader = "Stripe-Signature"

// PaymentWebhook verifies and applies a payment provider event. The raw body
// is passed through untouched since the signature covers its exact bytes.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := h.readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.webhooks.HandleWebhook(r.Context(), payload, r.Header.Get(SignatureHeader)); err != nil {
		writeWebhookError(w, r, err)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.Field("received", func(e *jx.Encoder) { e.Bool(true) })
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}
