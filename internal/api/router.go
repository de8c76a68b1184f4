package api

import (
	"net/http"

	"github.com/complyport/webhook-engine/internal/engine"
	"github.com/complyport/webhook-engine/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the management surface. Everything here is the operator
// face of the delivery engine; event production uses the same dispatcher.
func NewRouter(st store.Store, dispatcher *engine.Dispatcher, stats *engine.Aggregator, limiter *RateLimiter) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	if limiter != nil {
		r.Use(limiter.Middleware)
	}

	subHandler := NewSubscriptionHandler(st, dispatcher, stats)
	eventHandler := NewEventHandler(dispatcher)
	deliveryHandler := NewDeliveryHandler(st, dispatcher)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler())

		r.Route("/orgs/{orgID}", func(r chi.Router) {
			r.Route("/subscriptions", func(r chi.Router) {
				r.Post("/", subHandler.Create)
				r.Get("/", subHandler.List)
				r.Get("/{id}", subHandler.Get)
				r.Patch("/{id}", subHandler.Update)
				r.Delete("/{id}", subHandler.Delete)
				r.Post("/{id}/rotate", subHandler.RotateSecret)
				r.Post("/{id}/test", subHandler.Test)
				r.Get("/{id}/deliveries", subHandler.Deliveries)
				r.Get("/{id}/stats", subHandler.Stats)
			})

			r.Post("/events", eventHandler.Dispatch)
		})

		r.Route("/deliveries", func(r chi.Router) {
			r.Get("/{id}", deliveryHandler.Get)
			r.Post("/{id}/retry", deliveryHandler.Retry)
		})
	})

	return r
}
