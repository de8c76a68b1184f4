package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/complyport/webhook-engine/internal/domain"
	"github.com/complyport/webhook-engine/internal/store"
)

func recordOutcome(t *testing.T, st *store.Memory, subID, status string, responseTimeMs int) {
	t.Helper()
	ctx := context.Background()

	dlv, err := st.CreateDelivery(ctx, subID, "report.completed", []byte(`{"id":"evt_1"}`))
	if err != nil {
		t.Fatalf("failed to create delivery: %v", err)
	}
	if status == domain.StatusPending {
		return
	}

	rec := store.AttemptRecord{
		DeliveryID:     dlv.ID,
		SubscriptionID: subID,
		Attempts:       1,
		Status:         status,
		ResponseTimeMs: responseTimeMs,
	}
	if status != domain.StatusDelivered {
		rec.ErrorMessage = "endpoint returned HTTP 500"
	}
	if err := st.RecordAttempt(ctx, rec); err != nil {
		t.Fatalf("failed to record attempt: %v", err)
	}
}

func TestSubscriptionStats_Aggregates(t *testing.T) {
	st := store.NewMemory()
	agg := NewAggregator(st)
	ctx := context.Background()

	sub := createSub(t, st, "org-1", "report.completed")
	recordOutcome(t, st, sub.ID, domain.StatusDelivered, 100)
	recordOutcome(t, st, sub.ID, domain.StatusDelivered, 200)
	recordOutcome(t, st, sub.ID, domain.StatusFailed, 50)
	recordOutcome(t, st, sub.ID, domain.StatusPending, 0)

	stats, err := agg.SubscriptionStats(ctx, sub.ID)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}

	if stats.TotalDeliveries != 4 {
		t.Errorf("total = %d, want 4", stats.TotalDeliveries)
	}
	if stats.SuccessRate != 50.0 {
		t.Errorf("success rate = %.2f, want 50.00", stats.SuccessRate)
	}
	// Average response time covers delivered records only.
	if stats.AvgResponseTimeMs != 150.0 {
		t.Errorf("avg response time = %.2f, want 150.00", stats.AvgResponseTimeMs)
	}

	wantCounts := map[string]int{
		domain.StatusPending:   1,
		domain.StatusDelivered: 2,
		domain.StatusRetrying:  0,
		domain.StatusFailed:    1,
	}
	if !reflect.DeepEqual(stats.CountsByStatus, wantCounts) {
		t.Errorf("counts by status = %v, want %v", stats.CountsByStatus, wantCounts)
	}
	if len(stats.RecentFailures) != 1 {
		t.Errorf("recent failures = %d, want 1", len(stats.RecentFailures))
	}
}

func TestSubscriptionStats_RoundsSuccessRate(t *testing.T) {
	st := store.NewMemory()
	agg := NewAggregator(st)

	sub := createSub(t, st, "org-1", "report.completed")
	recordOutcome(t, st, sub.ID, domain.StatusDelivered, 100)
	recordOutcome(t, st, sub.ID, domain.StatusDelivered, 100)
	recordOutcome(t, st, sub.ID, domain.StatusFailed, 0)

	stats, err := agg.SubscriptionStats(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}

	// 2/3 rounds to 66.67, not 66.66666...
	if stats.SuccessRate != 66.67 {
		t.Errorf("success rate = %v, want 66.67", stats.SuccessRate)
	}
}

func TestSubscriptionStats_EmptyHistory(t *testing.T) {
	st := store.NewMemory()
	agg := NewAggregator(st)

	sub := createSub(t, st, "org-1", "report.completed")

	stats, err := agg.SubscriptionStats(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.TotalDeliveries != 0 {
		t.Errorf("total = %d, want 0", stats.TotalDeliveries)
	}
	if stats.SuccessRate != 0 {
		t.Errorf("success rate with no history = %v, want 0", stats.SuccessRate)
	}
	if stats.AvgResponseTimeMs != 0 {
		t.Errorf("avg response time with no history = %v, want 0", stats.AvgResponseTimeMs)
	}
	if len(stats.RecentFailures) != 0 {
		t.Errorf("recent failures = %d, want 0", len(stats.RecentFailures))
	}
}

func TestSubscriptionStats_ReadOnly(t *testing.T) {
	st := store.NewMemory()
	agg := NewAggregator(st)
	ctx := context.Background()

	sub := createSub(t, st, "org-1", "report.completed")
	recordOutcome(t, st, sub.ID, domain.StatusDelivered, 120)
	recordOutcome(t, st, sub.ID, domain.StatusFailed, 80)

	first, err := agg.SubscriptionStats(ctx, sub.ID)
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	second, err := agg.SubscriptionStats(ctx, sub.ID)
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("repeated stats calls with no new deliveries should be identical")
	}
}

func TestSubscriptionStats_RecentFailuresBounded(t *testing.T) {
	st := store.NewMemory()
	agg := NewAggregator(st)

	sub := createSub(t, st, "org-1", "report.completed")
	for i := 0; i < recentFailureLimit+3; i++ {
		recordOutcome(t, st, sub.ID, domain.StatusFailed, 10)
	}

	stats, err := agg.SubscriptionStats(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if len(stats.RecentFailures) != recentFailureLimit {
		t.Errorf("recent failures = %d, want %d", len(stats.RecentFailures), recentFailureLimit)
	}
	for i, f := range stats.RecentFailures {
		if f.Status != domain.StatusFailed {
			t.Errorf("recent failure %d has status %s", i, f.Status)
		}
	}
}

func TestSubscriptionStats_UnknownSubscription(t *testing.T) {
	agg := NewAggregator(store.NewMemory())

	_, err := agg.SubscriptionStats(context.Background(), "sub_missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRound2(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{66.666666, 66.67},
		{33.333333, 33.33},
		{100.0, 100.0},
		{0.005, 0.01},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v", tt.in), func(t *testing.T) {
			if got := round2(tt.in); got != tt.want {
				t.Errorf("round2(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
