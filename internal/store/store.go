// Package store defines the persistence contract consumed by the delivery
// engine and provides Postgres and in-memory implementations. The engine and
// workers only ever see these interfaces, so any backend with atomic
// multi-field updates can stand in.
package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/complyport/webhook-engine/internal/domain"
)

var (
	// ErrNotFound is returned when a subscription or delivery does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a compare-and-set transition loses a race:
	// the delivery already left the status the caller observed.
	ErrConflict = errors.New("delivery modified concurrently")

	// ErrAlreadyDelivered rejects a manual retry of a successful delivery.
	ErrAlreadyDelivered = errors.New("delivery already succeeded")
)

// Storage bounds for diagnostic fields.
const (
	MaxResponseBodyLen = 1000
	MaxErrorMessageLen = 500
	MaxLastErrorLen    = 255
)

// SubscriptionStore is the persistence surface for webhook subscriptions.
type SubscriptionStore interface {
	CreateSubscription(ctx context.Context, orgID string, req domain.CreateSubscriptionRequest) (*domain.Subscription, error)
	GetSubscription(ctx context.Context, id string) (*domain.Subscription, error)
	ListSubscriptions(ctx context.Context, orgID string) ([]domain.Subscription, error)
	UpdateSubscription(ctx context.Context, id string, req domain.UpdateSubscriptionRequest) (*domain.Subscription, error)
	DeleteSubscription(ctx context.Context, id string) error
	RotateSecret(ctx context.Context, id string) (*domain.Subscription, error)

	// FindMatching returns the active subscriptions of an organization whose
	// event set contains the event name. No ordering is guaranteed.
	FindMatching(ctx context.Context, orgID, event string) ([]domain.Subscription, error)
}

// AttemptRecord carries the outcome of one delivery attempt. Attempts and
// Status are the values after the attempt; NextRetryAt is set only when
// Status is retrying.
type AttemptRecord struct {
	DeliveryID     string
	SubscriptionID string
	Attempts       int
	Status         string
	StatusCode     *int
	ResponseBody   string
	ResponseTimeMs int
	ErrorMessage   string
	NextRetryAt    *time.Time
}

// DeliveryStats are per-subscription aggregates over delivery history.
// AvgResponseTimeMs is computed over delivered records only.
type DeliveryStats struct {
	Total             int
	Delivered         int
	Pending           int
	Retrying          int
	Failed            int
	AvgResponseTimeMs float64
}

// DeliveryStore is the persistence surface for delivery records.
type DeliveryStore interface {
	CreateDelivery(ctx context.Context, subscriptionID, event string, payload []byte) (*domain.Delivery, error)
	GetDelivery(ctx context.Context, id string) (*domain.Delivery, error)
	ListDeliveries(ctx context.Context, subscriptionID, status string, limit, offset int) ([]domain.Delivery, error)

	// DueRetries returns retrying deliveries whose next_retry_at has passed.
	DueRetries(ctx context.Context, now time.Time, limit int) ([]domain.Delivery, error)

	// ClaimRetry atomically moves a delivery from retrying back to pending,
	// clearing next_retry_at. It reports false when another worker already
	// claimed it or the record left the retrying state.
	ClaimRetry(ctx context.Context, id string) (bool, error)

	// ResetForRetry is the operator-triggered manual retry: attempts back to
	// zero, status pending, retry schedule and error cleared. Returns
	// ErrAlreadyDelivered for delivered records.
	ResetForRetry(ctx context.Context, id string) (*domain.Delivery, error)

	// RecordAttempt persists an attempt outcome and the owning subscription's
	// aggregate counters in one transaction. The delivery update is a
	// compare-and-set against the pending status; losing the race returns
	// ErrConflict with no counter drift.
	RecordAttempt(ctx context.Context, rec AttemptRecord) error

	Stats(ctx context.Context, subscriptionID string) (*DeliveryStats, error)
	RecentFailures(ctx context.Context, subscriptionID string, limit int) ([]domain.Delivery, error)

	// PurgeDelivered removes delivered records older than the cutoff and
	// returns how many were removed. Failed and retrying records are never
	// purged.
	PurgeDelivered(ctx context.Context, olderThan time.Time) (int64, error)
}

// Store is the full persistence surface.
type Store interface {
	SubscriptionStore
	DeliveryStore
}

// GenerateSecret produces a fresh signing secret.
func GenerateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "whsec_" + hex.EncodeToString(b), nil
}

// Truncate bounds a diagnostic string to max bytes.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
