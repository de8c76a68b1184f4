package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/complyport/webhook-engine/internal/domain"
	"github.com/complyport/webhook-engine/internal/store"
)

// TestEventName is the synthetic event sent by the management surface to
// exercise an endpoint regardless of its event set.
const TestEventName = "webhook.test"

// Dispatcher fans an event out to every active, matching subscription of an
// organization: one immutable payload envelope and one pending delivery per
// match, each handed to the workers through the queue. Dispatch is
// fire-and-forget with respect to outcomes; it returns once records are
// created and scheduled.
type Dispatcher struct {
	store  store.Store
	queue  *Queue
	logger *slog.Logger
}

func NewDispatcher(st store.Store, queue *Queue, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{store: st, queue: queue, logger: logger}
}

// Dispatch creates and schedules one delivery per matching subscription and
// returns how many were created. A failure on one subscription never affects
// its siblings; only the initial subscription lookup can fail the call.
func (d *Dispatcher) Dispatch(ctx context.Context, orgID, event string, data json.RawMessage) (int, error) {
	subs, err := d.store.FindMatching(ctx, orgID, event)
	if err != nil {
		return 0, fmt.Errorf("finding matching subscriptions: %w", err)
	}

	if len(subs) == 0 {
		d.logger.Info("no matching subscriptions", "organization_id", orgID, "event", event)
		return 0, nil
	}

	created := 0
	for i := range subs {
		if err := d.createAndSchedule(ctx, &subs[i], event, data); err != nil {
			d.logger.Error("failed to create delivery",
				"error", err,
				"subscription_id", subs[i].ID,
				"event", event,
			)
			continue
		}
		created++
	}

	d.logger.Info("dispatch complete",
		"organization_id", orgID,
		"event", event,
		"deliveries_created", created,
	)

	return created, nil
}

// DispatchTest creates a synthetic test delivery for one subscription, active
// or not, so operators can verify an endpoint before going live.
func (d *Dispatcher) DispatchTest(ctx context.Context, subscriptionID string) (*domain.Delivery, error) {
	sub, err := d.store.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, store.ErrNotFound
	}

	data, _ := json.Marshal(map[string]string{
		"message":         "test event",
		"subscription_id": sub.ID,
	})

	return d.create(ctx, sub.ID, TestEventName, data)
}

// ManualRetry resets a non-delivered delivery to pending with zero attempts
// and schedules an immediate attempt with the original payload.
func (d *Dispatcher) ManualRetry(ctx context.Context, deliveryID string) (*domain.Delivery, error) {
	dlv, err := d.store.ResetForRetry(ctx, deliveryID)
	if err != nil {
		return nil, err
	}

	job := Job{DeliveryID: dlv.ID, SubscriptionID: dlv.SubscriptionID}
	if err := d.queue.Enqueue(ctx, job, time.Now()); err != nil {
		d.logger.Error("failed to schedule manual retry", "error", err, "delivery_id", dlv.ID)
	}
	return dlv, nil
}

func (d *Dispatcher) createAndSchedule(ctx context.Context, sub *domain.Subscription, event string, data json.RawMessage) error {
	_, err := d.create(ctx, sub.ID, event, data)
	return err
}

func (d *Dispatcher) create(ctx context.Context, subscriptionID, event string, data json.RawMessage) (*domain.Delivery, error) {
	env := domain.NewEnvelope(event, data)
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshaling envelope: %w", err)
	}

	dlv, err := d.store.CreateDelivery(ctx, subscriptionID, event, payload)
	if err != nil {
		return nil, err
	}

	job := Job{DeliveryID: dlv.ID, SubscriptionID: subscriptionID}
	if err := d.queue.Enqueue(ctx, job, time.Now()); err != nil {
		// The record exists; a manual retry can still pick it up.
		d.logger.Error("failed to schedule delivery", "error", err, "delivery_id", dlv.ID)
	}
	return dlv, nil
}
