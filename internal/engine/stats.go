package engine

import (
	"context"
	"math"

	"github.com/complyport/webhook-engine/internal/domain"
	"github.com/complyport/webhook-engine/internal/store"
)

// recentFailureLimit bounds the failed records returned for operator triage.
const recentFailureLimit = 5

// SubscriptionStats is the read-only aggregate over one subscription's
// delivery history.
type SubscriptionStats struct {
	TotalDeliveries   int               `json:"total_deliveries"`
	SuccessRate       float64           `json:"success_rate"`
	AvgResponseTimeMs float64           `json:"avg_response_time_ms"`
	CountsByStatus    map[string]int    `json:"counts_by_status"`
	RecentFailures    []domain.Delivery `json:"recent_failures"`
}

// Aggregator derives delivery statistics from history. It never mutates
// anything, so repeated calls with no intervening deliveries return identical
// results.
type Aggregator struct {
	store store.Store
}

func NewAggregator(st store.Store) *Aggregator {
	return &Aggregator{store: st}
}

// SubscriptionStats returns stats for one subscription. The success rate is
// delivered/total*100 rounded to two decimals, zero when there is no history;
// the average response time covers delivered records only.
func (a *Aggregator) SubscriptionStats(ctx context.Context, subscriptionID string) (*SubscriptionStats, error) {
	sub, err := a.store.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, store.ErrNotFound
	}

	agg, err := a.store.Stats(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	failures, err := a.store.RecentFailures(ctx, subscriptionID, recentFailureLimit)
	if err != nil {
		return nil, err
	}

	stats := &SubscriptionStats{
		TotalDeliveries:   agg.Total,
		AvgResponseTimeMs: agg.AvgResponseTimeMs,
		CountsByStatus: map[string]int{
			domain.StatusPending:   agg.Pending,
			domain.StatusDelivered: agg.Delivered,
			domain.StatusRetrying:  agg.Retrying,
			domain.StatusFailed:    agg.Failed,
		},
		RecentFailures: failures,
	}

	if agg.Total > 0 {
		stats.SuccessRate = round2(float64(agg.Delivered) / float64(agg.Total) * 100)
	}

	return stats, nil
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
