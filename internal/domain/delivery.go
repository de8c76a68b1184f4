package domain

import (
	"encoding/json"
	"time"
)

// Delivery lifecycle states. A delivery leaves pending on its first attempt,
// cycles through retrying while attempts remain, and ends delivered or failed.
// Manual retry is the only way back out of a terminal failed state.
const (
	StatusPending   = "pending"
	StatusDelivered = "delivered"
	StatusRetrying  = "retrying"
	StatusFailed    = "failed"
)

// Delivery is one attempted notification of one event to one subscription.
// SubscriptionID is a weak reference: the record survives subscription
// deletion so history stays auditable.
type Delivery struct {
	ID             string          `json:"id"`
	SubscriptionID string          `json:"subscription_id"`
	Event          string          `json:"event"`
	Payload        json.RawMessage `json:"payload"`
	Status         string          `json:"status"`
	Attempts       int             `json:"attempts"`
	StatusCode     *int            `json:"status_code,omitempty"`
	ResponseBody   *string         `json:"response_body,omitempty"`
	ResponseTimeMs *int            `json:"response_time_ms,omitempty"`
	ErrorMessage   *string         `json:"error_message,omitempty"`
	NextRetryAt    *time.Time      `json:"next_retry_at,omitempty"`
	DeliveredAt    *time.Time      `json:"delivered_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Terminal reports whether the delivery can no longer transition
// automatically.
func (d *Delivery) Terminal() bool {
	return d.Status == StatusDelivered || d.Status == StatusFailed
}
