package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/complyport/webhook-engine/internal/store"
)

// RetentionSweeper bounds storage growth by removing delivered records past
// their retention age. Failed and retrying records are kept indefinitely for
// audit and debugging.
type RetentionSweeper struct {
	store  store.DeliveryStore
	maxAge time.Duration
	logger *slog.Logger
}

func NewRetentionSweeper(st store.DeliveryStore, maxAge time.Duration, logger *slog.Logger) *RetentionSweeper {
	return &RetentionSweeper{store: st, maxAge: maxAge, logger: logger}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (r *RetentionSweeper) Run(ctx context.Context, interval time.Duration) {
	r.logger.Info("retention sweeper started", "interval", interval, "max_age", r.maxAge)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("retention sweeper stopping")
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.logger.Error("retention sweep failed", "error", err)
			}
		}
	}
}

// Sweep purges delivered records older than the retention age and returns how
// many were removed.
func (r *RetentionSweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-r.maxAge)
	purged, err := r.store.PurgeDelivered(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		r.logger.Info("retention sweep complete", "purged", purged)
	}
	return purged, nil
}
