package httpmiddleware

import (
	"net/http"

	"github.com/go-faster/jx"
)

// writeError writes the JSON error body shared with the API handlers.
func writeError(w http.ResponseWriter, status int, kind, message string) {
	var e jx.Encoder
	e.ObjStart()
	e.Field("code", func(e *jx.Encoder) { e.Int(status) })
	e.Field("kind", func(e *jx.Encoder) { e.Str(kind) })
	e.Field("message", func(e *jx.Encoder) { e.Str(message) })
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
