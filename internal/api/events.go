package api

import (
	"encoding/json"
	"net/http"

	"github.com/complyport/webhook-engine/internal/engine"
	"github.com/go-chi/chi/v5"
)

// EventHandler is the HTTP face of the event production interface: the rest
// of the platform posts an event here and the dispatcher fans it out.
type EventHandler struct {
	dispatcher *engine.Dispatcher
}

func NewEventHandler(d *engine.Dispatcher) *EventHandler {
	return &EventHandler{dispatcher: d}
}

type dispatchRequest struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type dispatchResponse struct {
	Event             string `json:"event"`
	DeliveriesCreated int    `json:"deliveries_created"`
}

func (h *EventHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Event == "" {
		respondError(w, http.StatusBadRequest, "event is required")
		return
	}
	if len(req.Data) == 0 {
		req.Data = json.RawMessage(`{}`)
	}
	if !json.Valid(req.Data) {
		respondError(w, http.StatusBadRequest, "data must be valid JSON")
		return
	}

	created, err := h.dispatcher.Dispatch(r.Context(), orgID, req.Event, req.Data)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to dispatch event")
		return
	}

	// Delivery outcomes are observable through history and stats, not here.
	respondJSON(w, http.StatusAccepted, dispatchResponse{
		Event:             req.Event,
		DeliveriesCreated: created,
	})
}
