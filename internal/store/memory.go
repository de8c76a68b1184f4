package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/complyport/webhook-engine/internal/domain"
	"github.com/google/uuid"
)

// Memory is an in-memory Store with the same transition semantics as the
// Postgres implementation. It backs tests and local experimentation; a single
// mutex stands in for transactional atomicity.
type Memory struct {
	mu            sync.Mutex
	subscriptions map[string]*domain.Subscription
	deliveries    []*domain.Delivery
	byID          map[string]*domain.Delivery
}

func NewMemory() *Memory {
	return &Memory{
		subscriptions: make(map[string]*domain.Subscription),
		byID:          make(map[string]*domain.Delivery),
	}
}

func copySubscription(s *domain.Subscription) *domain.Subscription {
	out := *s
	out.Events = append([]string(nil), s.Events...)
	if s.CustomHeaders != nil {
		out.CustomHeaders = make(map[string]string, len(s.CustomHeaders))
		for k, v := range s.CustomHeaders {
			out.CustomHeaders[k] = v
		}
	}
	return &out
}

func copyDelivery(d *domain.Delivery) *domain.Delivery {
	out := *d
	out.Payload = append([]byte(nil), d.Payload...)
	return &out
}

func (m *Memory) CreateSubscription(_ context.Context, orgID string, req domain.CreateSubscriptionRequest) (*domain.Subscription, error) {
	secret, err := GenerateSecret()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	sub := &domain.Subscription{
		ID:             "sub_" + uuid.NewString(),
		OrganizationID: orgID,
		Name:           req.Name,
		URL:            req.URL,
		Secret:         secret,
		Events:         append([]string(nil), req.Events...),
		CustomHeaders:  req.CustomHeaders,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.subscriptions[sub.ID] = sub
	return copySubscription(sub), nil
}

func (m *Memory) GetSubscription(_ context.Context, id string) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subscriptions[id]
	if !ok {
		return nil, nil
	}
	return copySubscription(sub), nil
}

func (m *Memory) ListSubscriptions(_ context.Context, orgID string) ([]domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := []domain.Subscription{}
	for _, sub := range m.subscriptions {
		if sub.OrganizationID == orgID {
			subs = append(subs, *copySubscription(sub))
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].CreatedAt.After(subs[j].CreatedAt) })
	return subs, nil
}

func (m *Memory) UpdateSubscription(_ context.Context, id string, req domain.UpdateSubscriptionRequest) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subscriptions[id]
	if !ok {
		return nil, nil
	}
	if req.Name != nil {
		sub.Name = *req.Name
	}
	if req.URL != nil {
		sub.URL = *req.URL
	}
	if req.Events != nil {
		sub.Events = append([]string(nil), (*req.Events)...)
	}
	if req.CustomHeaders != nil {
		sub.CustomHeaders = *req.CustomHeaders
	}
	if req.IsActive != nil {
		sub.IsActive = *req.IsActive
	}
	sub.UpdatedAt = time.Now()
	return copySubscription(sub), nil
}

func (m *Memory) DeleteSubscription(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.subscriptions[id]; !ok {
		return ErrNotFound
	}
	// Delivery history survives deletion.
	delete(m.subscriptions, id)
	return nil
}

func (m *Memory) RotateSecret(_ context.Context, id string) (*domain.Subscription, error) {
	secret, err := GenerateSecret()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subscriptions[id]
	if !ok {
		return nil, ErrNotFound
	}
	sub.Secret = secret
	sub.UpdatedAt = time.Now()
	return copySubscription(sub), nil
}

func (m *Memory) FindMatching(_ context.Context, orgID, event string) ([]domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := []domain.Subscription{}
	for _, sub := range m.subscriptions {
		if sub.OrganizationID == orgID && sub.IsActive && sub.Subscribed(event) {
			subs = append(subs, *copySubscription(sub))
		}
	}
	return subs, nil
}

func (m *Memory) CreateDelivery(_ context.Context, subscriptionID, event string, payload []byte) (*domain.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := &domain.Delivery{
		ID:             "dlv_" + uuid.NewString(),
		SubscriptionID: subscriptionID,
		Event:          event,
		Payload:        append([]byte(nil), payload...),
		Status:         domain.StatusPending,
		CreatedAt:      time.Now(),
	}
	m.deliveries = append(m.deliveries, d)
	m.byID[d.ID] = d
	return copyDelivery(d), nil
}

func (m *Memory) GetDelivery(_ context.Context, id string) (*domain.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	return copyDelivery(d), nil
}

func (m *Memory) ListDeliveries(_ context.Context, subscriptionID, status string, limit, offset int) ([]domain.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := []domain.Delivery{}
	// Newest first: walk creation order backwards.
	for i := len(m.deliveries) - 1; i >= 0; i-- {
		d := m.deliveries[i]
		if d.SubscriptionID != subscriptionID {
			continue
		}
		if status != "" && d.Status != status {
			continue
		}
		matched = append(matched, *copyDelivery(d))
	}

	if offset >= len(matched) {
		return []domain.Delivery{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *Memory) DueRetries(_ context.Context, now time.Time, limit int) ([]domain.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	due := []domain.Delivery{}
	for _, d := range m.deliveries {
		if d.Status == domain.StatusRetrying && d.NextRetryAt != nil && !d.NextRetryAt.After(now) {
			due = append(due, *copyDelivery(d))
			if limit > 0 && len(due) == limit {
				break
			}
		}
	}
	return due, nil
}

func (m *Memory) ClaimRetry(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.byID[id]
	if !ok || d.Status != domain.StatusRetrying {
		return false, nil
	}
	d.Status = domain.StatusPending
	d.NextRetryAt = nil
	return true, nil
}

func (m *Memory) ResetForRetry(_ context.Context, id string) (*domain.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if d.Status == domain.StatusDelivered {
		return nil, ErrAlreadyDelivered
	}
	d.Status = domain.StatusPending
	d.Attempts = 0
	d.NextRetryAt = nil
	d.ErrorMessage = nil
	return copyDelivery(d), nil
}

func (m *Memory) RecordAttempt(_ context.Context, rec AttemptRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.byID[rec.DeliveryID]
	if !ok || d.Status != domain.StatusPending {
		return ErrConflict
	}

	now := time.Now()
	d.Attempts = rec.Attempts
	d.Status = rec.Status
	d.StatusCode = rec.StatusCode
	d.ResponseBody = nil
	if rec.ResponseBody != "" {
		b := Truncate(rec.ResponseBody, MaxResponseBodyLen)
		d.ResponseBody = &b
	}
	rt := rec.ResponseTimeMs
	d.ResponseTimeMs = &rt
	d.ErrorMessage = nil
	if rec.ErrorMessage != "" {
		e := Truncate(rec.ErrorMessage, MaxErrorMessageLen)
		d.ErrorMessage = &e
	}
	d.NextRetryAt = rec.NextRetryAt
	if rec.Status == domain.StatusDelivered && d.DeliveredAt == nil {
		d.DeliveredAt = &now
	}

	sub, ok := m.subscriptions[rec.SubscriptionID]
	if !ok {
		return nil
	}
	sub.LastTriggeredAt = &now
	if rec.Status == domain.StatusDelivered {
		sub.SuccessCount++
		sub.LastSuccessAt = &now
		sub.LastError = nil
	} else {
		sub.FailureCount++
		sub.LastFailureAt = &now
		lastErr := Truncate(rec.ErrorMessage, MaxLastErrorLen)
		sub.LastError = &lastErr
	}
	return nil
}

func (m *Memory) Stats(_ context.Context, subscriptionID string) (*DeliveryStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stats DeliveryStats
	var totalMs int
	for _, d := range m.deliveries {
		if d.SubscriptionID != subscriptionID {
			continue
		}
		stats.Total++
		switch d.Status {
		case domain.StatusDelivered:
			stats.Delivered++
			if d.ResponseTimeMs != nil {
				totalMs += *d.ResponseTimeMs
			}
		case domain.StatusPending:
			stats.Pending++
		case domain.StatusRetrying:
			stats.Retrying++
		case domain.StatusFailed:
			stats.Failed++
		}
	}
	if stats.Delivered > 0 {
		stats.AvgResponseTimeMs = float64(totalMs) / float64(stats.Delivered)
	}
	return &stats, nil
}

func (m *Memory) RecentFailures(_ context.Context, subscriptionID string, limit int) ([]domain.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	failures := []domain.Delivery{}
	for i := len(m.deliveries) - 1; i >= 0; i-- {
		d := m.deliveries[i]
		if d.SubscriptionID != subscriptionID || d.Status != domain.StatusFailed {
			continue
		}
		failures = append(failures, *copyDelivery(d))
		if limit > 0 && len(failures) == limit {
			break
		}
	}
	return failures, nil
}

func (m *Memory) PurgeDelivered(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var purged int64
	kept := m.deliveries[:0]
	for _, d := range m.deliveries {
		if d.Status == domain.StatusDelivered && d.DeliveredAt != nil && d.DeliveredAt.Before(olderThan) {
			delete(m.byID, d.ID)
			purged++
			continue
		}
		kept = append(kept, d)
	}
	m.deliveries = kept
	return purged, nil
}
