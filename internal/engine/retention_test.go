package engine

import (
	"context"
	"testing"
	"time"

	"github.com/complyport/webhook-engine/internal/domain"
	"github.com/complyport/webhook-engine/internal/store"
)

func TestRetentionSweep_PurgesOnlyDeliveredPastAge(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	sub := createSub(t, st, "org-1", "report.completed")
	recordOutcome(t, st, sub.ID, domain.StatusDelivered, 100)
	recordOutcome(t, st, sub.ID, domain.StatusFailed, 100)
	createRetrying(t, st, sub.ID, time.Now().Add(time.Minute))
	recordOutcome(t, st, sub.ID, domain.StatusPending, 0)

	// Zero max age makes every delivered record eligible immediately.
	sweeper := NewRetentionSweeper(st, 0, testLogger())

	purged, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}

	stats, _ := st.Stats(ctx, sub.ID)
	if stats.Delivered != 0 {
		t.Errorf("delivered records remaining = %d, want 0", stats.Delivered)
	}
	// Failed and retrying history is kept indefinitely.
	if stats.Failed != 1 {
		t.Errorf("failed records remaining = %d, want 1", stats.Failed)
	}
	if stats.Retrying != 1 {
		t.Errorf("retrying records remaining = %d, want 1", stats.Retrying)
	}
	if stats.Pending != 1 {
		t.Errorf("pending records remaining = %d, want 1", stats.Pending)
	}
}

func TestRetentionSweep_KeepsRecordsWithinAge(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	sub := createSub(t, st, "org-1", "report.completed")
	recordOutcome(t, st, sub.ID, domain.StatusDelivered, 100)

	sweeper := NewRetentionSweeper(st, 30*24*time.Hour, testLogger())

	purged, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if purged != 0 {
		t.Errorf("purged = %d, want 0", purged)
	}

	stats, _ := st.Stats(ctx, sub.ID)
	if stats.Delivered != 1 {
		t.Errorf("delivered records remaining = %d, want 1", stats.Delivered)
	}
}
