package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/restaurant-orders/internal/domain/apperr"
	"github.com/xenking/restaurant-orders/internal/domain/payment"
)

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"code","kind","message"}. Server-side failures
// are logged and replaced by a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	msg := apperr.MessageOf(err)

	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		msg = "internal server error"
		if kind == apperr.KindUnknown {
			kind = "internal"
		}
	}
	if status == http.StatusBadGateway {
		msg = "payment provider unavailable"
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	writeErrorBody(w, status, string(kind), msg)
}

// writeWebhookError renders a webhook failure. Signature problems are the
// sender's fault and map to 400 so the provider does not retry them.
func writeWebhookError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, payment.ErrInvalidSignature) || errors.Is(err, payment.ErrNotConfigured) {
		zctx.From(r.Context()).Warn("Rejected webhook", zap.Error(err))
		writeErrorBody(w, http.StatusBadRequest, string(apperr.KindValidation), apperr.MessageOf(err))
		return
	}
	writeError(w, r, err)
}

func writeErrorBody(w http.ResponseWriter, status int, kind, msg string) {
	var e jx.Encoder
	e.ObjStart()
	e.Field("code", func(e *jx.Encoder) { e.Int(status) })
	e.Field("kind", func(e *jx.Encoder) { e.Str(kind) })
	e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
	e.ObjEnd()
	writeJSON(w, status, &e)
}

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// badRequest reports a malformed body or parameter.
func badRequest(msg string) error {
	return apperr.New(apperr.KindValidation, msg)
}
