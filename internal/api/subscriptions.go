package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/complyport/webhook-engine/internal/domain"
	"github.com/complyport/webhook-engine/internal/engine"
	"github.com/complyport/webhook-engine/internal/store"
	"github.com/go-chi/chi/v5"
)

type SubscriptionHandler struct {
	store      store.Store
	dispatcher *engine.Dispatcher
	stats      *engine.Aggregator
}

func NewSubscriptionHandler(s store.Store, d *engine.Dispatcher, a *engine.Aggregator) *SubscriptionHandler {
	return &SubscriptionHandler{store: s, dispatcher: d, stats: a}
}

// validateURL rejects malformed destinations before anything is persisted.
func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("url host is required")
	}
	return nil
}

func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	var req domain.CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}
	if err := validateURL(req.URL); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Events) == 0 {
		respondError(w, http.StatusBadRequest, "at least one event is required")
		return
	}

	sub, err := h.store.CreateSubscription(r.Context(), orgID, req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create subscription")
		return
	}

	// The full secret is returned here and at rotation only.
	respondJSON(w, http.StatusCreated, domain.CreateSubscriptionResponse{
		ID:     sub.ID,
		Name:   sub.Name,
		URL:    sub.URL,
		Secret: sub.Secret,
	})
}

func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	subs, err := h.store.ListSubscriptions(r.Context(), orgID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}

	views := make([]domain.SubscriptionView, 0, len(subs))
	for _, sub := range subs {
		views = append(views, domain.NewSubscriptionView(sub))
	}

	respondJSON(w, http.StatusOK, views)
}

// orgSubscription loads a subscription and enforces organization ownership.
// A subscription belonging to another organization looks like a 404.
func (h *SubscriptionHandler) orgSubscription(w http.ResponseWriter, r *http.Request) *domain.Subscription {
	orgID := chi.URLParam(r, "orgID")
	id := chi.URLParam(r, "id")

	sub, err := h.store.GetSubscription(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get subscription")
		return nil
	}
	if sub == nil || sub.OrganizationID != orgID {
		respondError(w, http.StatusNotFound, "subscription not found")
		return nil
	}
	return sub
}

func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sub := h.orgSubscription(w, r)
	if sub == nil {
		return
	}
	respondJSON(w, http.StatusOK, domain.NewSubscriptionView(*sub))
}

func (h *SubscriptionHandler) Update(w http.ResponseWriter, r *http.Request) {
	sub := h.orgSubscription(w, r)
	if sub == nil {
		return
	}

	var req domain.UpdateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.URL != nil {
		if err := validateURL(*req.URL); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.Events != nil && len(*req.Events) == 0 {
		respondError(w, http.StatusBadRequest, "at least one event is required")
		return
	}

	updated, err := h.store.UpdateSubscription(r.Context(), sub.ID, req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update subscription")
		return
	}
	if updated == nil {
		respondError(w, http.StatusNotFound, "subscription not found")
		return
	}

	respondJSON(w, http.StatusOK, domain.NewSubscriptionView(*updated))
}

func (h *SubscriptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sub := h.orgSubscription(w, r)
	if sub == nil {
		return
	}

	if err := h.store.DeleteSubscription(r.Context(), sub.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "subscription not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete subscription")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *SubscriptionHandler) RotateSecret(w http.ResponseWriter, r *http.Request) {
	sub := h.orgSubscription(w, r)
	if sub == nil {
		return
	}

	rotated, err := h.store.RotateSecret(r.Context(), sub.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "subscription not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to rotate secret")
		return
	}

	respondJSON(w, http.StatusOK, domain.RotateSecretResponse{
		ID:     rotated.ID,
		Secret: rotated.Secret,
	})
}

func (h *SubscriptionHandler) Test(w http.ResponseWriter, r *http.Request) {
	sub := h.orgSubscription(w, r)
	if sub == nil {
		return
	}

	dlv, err := h.dispatcher.DispatchTest(r.Context(), sub.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "subscription not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to send test event")
		return
	}

	respondJSON(w, http.StatusAccepted, dlv)
}

func (h *SubscriptionHandler) Deliveries(w http.ResponseWriter, r *http.Request) {
	sub := h.orgSubscription(w, r)
	if sub == nil {
		return
	}

	status := r.URL.Query().Get("status")

	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	offset := 0
	if s := r.URL.Query().Get("offset"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			offset = n
		}
	}

	deliveries, err := h.store.ListDeliveries(r.Context(), sub.ID, status, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list deliveries")
		return
	}

	respondJSON(w, http.StatusOK, deliveries)
}

func (h *SubscriptionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	sub := h.orgSubscription(w, r)
	if sub == nil {
		return
	}

	stats, err := h.stats.SubscriptionStats(r.Context(), sub.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "subscription not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to aggregate stats")
		return
	}

	respondJSON(w, http.StatusOK, stats)
}
