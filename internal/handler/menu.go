package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

// ListMenuItems returns the whole catalog.
func (h *Handler) ListMenuItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.menu.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.Field("menuItems", func(e *jx.Encoder) {
		e.ArrStart()
		for i := range items {
			encodeMenuItem(e, &items[i])
		}
		e.ArrEnd()
	})
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

// GetMenuItem returns a single catalog entry.
func (h *Handler) GetMenuItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.menu.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.Field("menuItem", func(e *jx.Encoder) { encodeMenuItem(e, item) })
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

// ListOffers returns the active offers.
func (h *Handler) ListOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := h.offers.ListActive(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.Field("offers", func(e *jx.Encoder) {
		e.ArrStart()
		for i := range offers {
			encodeOffer(e, &offers[i])
		}
		e.ArrEnd()
	})
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}
