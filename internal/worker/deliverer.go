package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/complyport/webhook-engine/internal/domain"
	"github.com/complyport/webhook-engine/internal/engine"
	"github.com/complyport/webhook-engine/internal/signer"
	"github.com/complyport/webhook-engine/internal/store"
)

// Headers sent with every delivery. Custom subscription headers are overlaid
// after these, last-write-wins, so a misconfigured custom header can shadow
// the standard set.
const (
	HeaderSubscription = "X-Webhook-Subscription"
	HeaderEvent        = "X-Webhook-Event"
	HeaderSignature    = "X-Webhook-Signature"
	HeaderTimestamp    = "X-Webhook-Timestamp"
)

// DefaultMaxAttempts is the attempt cap before a delivery goes terminal.
const DefaultMaxAttempts = 3

// deliveryTimeout bounds one outbound request; a timeout is handled exactly
// like any other network failure.
const deliveryTimeout = 10 * time.Second

// backoffSchedule holds the wait before retry k+1 after attempt k fails.
var backoffSchedule = []time.Duration{
	60 * time.Second,
	300 * time.Second,
	900 * time.Second,
}

// Deliverer performs single delivery attempts: sign, POST, classify, persist.
// It is the only component that talks to subscriber endpoints or mutates
// subscription counters.
type Deliverer struct {
	httpClient  *http.Client
	store       store.Store
	logger      *slog.Logger
	maxAttempts int
}

func NewDeliverer(st store.Store, maxAttempts int, logger *slog.Logger) *Deliverer {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Deliverer{
		httpClient: &http.Client{
			Timeout: deliveryTimeout,
		},
		store:       st,
		logger:      logger,
		maxAttempts: maxAttempts,
	}
}

// Deliver performs one attempt for the referenced delivery. Every failure
// mode ends in a recorded state transition; nothing propagates to the caller.
func (d *Deliverer) Deliver(ctx context.Context, job engine.Job) {
	dlv, err := d.store.GetDelivery(ctx, job.DeliveryID)
	if err != nil {
		d.logger.Error("failed to load delivery", "error", err, "delivery_id", job.DeliveryID)
		return
	}
	if dlv == nil {
		d.logger.Warn("delivery vanished before attempt", "delivery_id", job.DeliveryID)
		return
	}
	if dlv.Status != domain.StatusPending {
		// Already transitioned by a racing worker or a manual operation.
		return
	}

	sub, err := d.store.GetSubscription(ctx, job.SubscriptionID)
	if err != nil {
		d.logger.Error("failed to load subscription", "error", err, "delivery_id", job.DeliveryID)
		return
	}
	if sub == nil {
		d.record(ctx, dlv, job.SubscriptionID, nil, "", 0, "subscription no longer exists")
		return
	}

	// A claimed job is always attempted, active or not. Deactivation stops new
	// dispatches (FindMatching) and pauses the retry sweep; it does not orphan
	// jobs already taken off the queue, and test events must reach endpoints
	// that are not live yet.

	start := time.Now()
	statusCode, body, errMsg := d.post(ctx, sub, dlv)
	elapsed := int(time.Since(start).Milliseconds())

	d.record(ctx, dlv, sub.ID, statusCode, body, elapsed, errMsg)
}

// post signs the stored payload and sends it. It returns the response status
// code (nil when the request never completed), the truncated body, and an
// error message for the failure branch of the state machine.
func (d *Deliverer) post(ctx context.Context, sub *domain.Subscription, dlv *domain.Delivery) (*int, string, string) {
	env, err := domain.ParseEnvelope(dlv.Payload)
	if err != nil {
		return nil, "", fmt.Sprintf("corrupt payload: %v", err)
	}

	signature := signer.Sign(dlv.Payload, sub.Secret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(dlv.Payload))
	if err != nil {
		return nil, "", fmt.Sprintf("failed to create request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSubscription, sub.ID)
	req.Header.Set(HeaderEvent, dlv.Event)
	req.Header.Set(HeaderSignature, signature)
	req.Header.Set(HeaderTimestamp, env.Timestamp)
	for name, value := range sub.CustomHeaders {
		req.Header.Set(name, value)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Sprintf("request failed: %v", err)
	}
	defer resp.Body.Close()

	// Keep a bounded slice of the body for diagnostics regardless of status.
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, store.MaxResponseBodyLen))
	body := string(raw)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &resp.StatusCode, body, ""
	}
	return &resp.StatusCode, body, fmt.Sprintf("endpoint returned HTTP %d", resp.StatusCode)
}

// record applies the state machine transition and persists the delivery
// outcome together with the subscription counters.
func (d *Deliverer) record(ctx context.Context, dlv *domain.Delivery, subscriptionID string, statusCode *int, body string, elapsedMs int, errMsg string) {
	attempts := dlv.Attempts + 1

	status := domain.StatusDelivered
	var nextRetryAt *time.Time
	if errMsg != "" {
		if attempts < d.maxAttempts {
			status = domain.StatusRetrying
			backoff := backoffSchedule[len(backoffSchedule)-1]
			if attempts-1 < len(backoffSchedule) {
				backoff = backoffSchedule[attempts-1]
			}
			t := time.Now().Add(backoff)
			nextRetryAt = &t
		} else {
			status = domain.StatusFailed
		}
	}

	err := d.store.RecordAttempt(ctx, store.AttemptRecord{
		DeliveryID:     dlv.ID,
		SubscriptionID: subscriptionID,
		Attempts:       attempts,
		Status:         status,
		StatusCode:     statusCode,
		ResponseBody:   body,
		ResponseTimeMs: elapsedMs,
		ErrorMessage:   errMsg,
		NextRetryAt:    nextRetryAt,
	})
	if errors.Is(err, store.ErrConflict) {
		d.logger.Warn("lost delivery transition race", "delivery_id", dlv.ID)
		return
	}
	if err != nil {
		d.logger.Error("failed to record delivery attempt",
			"error", err,
			"delivery_id", dlv.ID,
			"subscription_id", subscriptionID,
		)
		return
	}

	if status == domain.StatusDelivered {
		d.logger.Info("delivery successful",
			"delivery_id", dlv.ID,
			"subscription_id", subscriptionID,
			"attempt", attempts,
			"status_code", statusCode,
			"response_time_ms", elapsedMs,
		)
	} else {
		d.logger.Warn("delivery failed",
			"delivery_id", dlv.ID,
			"subscription_id", subscriptionID,
			"attempt", attempts,
			"status", status,
			"error", errMsg,
			"status_code", statusCode,
			"response_time_ms", elapsedMs,
		)
	}
}
