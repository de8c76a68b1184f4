package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/complyport/webhook-engine/internal/store"
)

// RetryScheduler periodically resubmits deliveries whose retry window has
// opened. Claiming is a compare-and-set against the retrying status, so two
// sweeps (or a sweep racing a manual retry) can never double-schedule the
// same delivery.
type RetryScheduler struct {
	store     store.Store
	queue     *Queue
	logger    *slog.Logger
	batchSize int
}

func NewRetryScheduler(st store.Store, queue *Queue, logger *slog.Logger) *RetryScheduler {
	return &RetryScheduler{
		store:     st,
		queue:     queue,
		logger:    logger,
		batchSize: 100,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (r *RetryScheduler) Run(ctx context.Context, interval time.Duration) {
	r.logger.Info("retry scheduler started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("retry scheduler stopping")
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.logger.Error("retry sweep failed", "error", err)
			}
		}
	}
}

// Sweep finds due retries, skips paused or vanished subscriptions, and
// schedules the rest. It returns the number of retries submitted.
func (r *RetryScheduler) Sweep(ctx context.Context) (int, error) {
	due, err := r.store.DueRetries(ctx, time.Now(), r.batchSize)
	if err != nil {
		return 0, err
	}

	submitted := 0
	for _, dlv := range due {
		sub, err := r.store.GetSubscription(ctx, dlv.SubscriptionID)
		if err != nil {
			r.logger.Error("failed to load subscription for retry", "error", err, "delivery_id", dlv.ID)
			continue
		}
		if sub == nil {
			// Subscription deleted; the record stays for audit.
			continue
		}
		if !sub.IsActive {
			// Deactivation pauses retries; reactivation resumes them.
			continue
		}

		claimed, err := r.store.ClaimRetry(ctx, dlv.ID)
		if err != nil {
			r.logger.Error("failed to claim retry", "error", err, "delivery_id", dlv.ID)
			continue
		}
		if !claimed {
			continue
		}

		job := Job{DeliveryID: dlv.ID, SubscriptionID: dlv.SubscriptionID}
		if err := r.queue.Enqueue(ctx, job, time.Now()); err != nil {
			r.logger.Error("failed to schedule retry", "error", err, "delivery_id", dlv.ID)
			continue
		}
		submitted++
	}

	if submitted > 0 {
		r.logger.Info("retry sweep complete", "submitted", submitted)
	}

	return submitted, nil
}
