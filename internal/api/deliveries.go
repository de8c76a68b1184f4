package api

import (
	"errors"
	"net/http"

	"github.com/complyport/webhook-engine/internal/engine"
	"github.com/complyport/webhook-engine/internal/store"
	"github.com/go-chi/chi/v5"
)

type DeliveryHandler struct {
	store      store.Store
	dispatcher *engine.Dispatcher
}

func NewDeliveryHandler(s store.Store, d *engine.Dispatcher) *DeliveryHandler {
	return &DeliveryHandler{store: s, dispatcher: d}
}

func (h *DeliveryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dlv, err := h.store.GetDelivery(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get delivery")
		return
	}
	if dlv == nil {
		respondError(w, http.StatusNotFound, "delivery not found")
		return
	}

	respondJSON(w, http.StatusOK, dlv)
}

// Retry is the operator-triggered manual retry. Retrying a delivery that
// already succeeded is rejected without touching the record.
func (h *DeliveryHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dlv, err := h.dispatcher.ManualRetry(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			respondError(w, http.StatusNotFound, "delivery not found")
		case errors.Is(err, store.ErrAlreadyDelivered):
			respondError(w, http.StatusConflict, "delivery already succeeded")
		default:
			respondError(w, http.StatusInternalServerError, "failed to retry delivery")
		}
		return
	}

	respondJSON(w, http.StatusAccepted, dlv)
}
