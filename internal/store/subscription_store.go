package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/complyport/webhook-engine/internal/domain"
	"github.com/jackc/pgx/v5"
)

const subscriptionColumns = `id, organization_id, name, url, secret, events, custom_headers,
	is_active, success_count, failure_count, last_triggered_at, last_success_at,
	last_failure_at, last_error, created_at, updated_at`

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var sub domain.Subscription
	var headers []byte
	err := row.Scan(
		&sub.ID, &sub.OrganizationID, &sub.Name, &sub.URL, &sub.Secret,
		&sub.Events, &headers, &sub.IsActive, &sub.SuccessCount, &sub.FailureCount,
		&sub.LastTriggeredAt, &sub.LastSuccessAt, &sub.LastFailureAt, &sub.LastError,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &sub.CustomHeaders); err != nil {
			return nil, fmt.Errorf("decoding custom headers: %w", err)
		}
	}
	return &sub, nil
}

func (s *Postgres) CreateSubscription(ctx context.Context, orgID string, req domain.CreateSubscriptionRequest) (*domain.Subscription, error) {
	secret, err := GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("generating secret: %w", err)
	}

	headers, err := json.Marshal(req.CustomHeaders)
	if err != nil {
		return nil, fmt.Errorf("encoding custom headers: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO subscriptions (organization_id, name, url, secret, events, custom_headers)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+subscriptionColumns, orgID, req.Name, req.URL, secret, req.Events, headers)

	sub, err := scanSubscription(row)
	if err != nil {
		return nil, fmt.Errorf("inserting subscription: %w", err)
	}
	return sub, nil
}

func (s *Postgres) GetSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	if !validUUID(id) {
		return nil, nil
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id)

	sub, err := scanSubscription(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying subscription: %w", err)
	}
	return sub, nil
}

func (s *Postgres) ListSubscriptions(ctx context.Context, orgID string) ([]domain.Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE organization_id = $1
		ORDER BY created_at DESC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("querying subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning subscription: %w", err)
		}
		subs = append(subs, *sub)
	}

	if subs == nil {
		subs = []domain.Subscription{}
	}

	return subs, nil
}

func (s *Postgres) UpdateSubscription(ctx context.Context, id string, req domain.UpdateSubscriptionRequest) (*domain.Subscription, error) {
	if !validUUID(id) {
		return nil, nil
	}

	setClauses := []string{}
	args := []interface{}{}
	argIdx := 1

	if req.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argIdx))
		args = append(args, *req.Name)
		argIdx++
	}
	if req.URL != nil {
		setClauses = append(setClauses, fmt.Sprintf("url = $%d", argIdx))
		args = append(args, *req.URL)
		argIdx++
	}
	if req.Events != nil {
		setClauses = append(setClauses, fmt.Sprintf("events = $%d", argIdx))
		args = append(args, *req.Events)
		argIdx++
	}
	if req.CustomHeaders != nil {
		headers, err := json.Marshal(*req.CustomHeaders)
		if err != nil {
			return nil, fmt.Errorf("encoding custom headers: %w", err)
		}
		setClauses = append(setClauses, fmt.Sprintf("custom_headers = $%d", argIdx))
		args = append(args, headers)
		argIdx++
	}
	if req.IsActive != nil {
		setClauses = append(setClauses, fmt.Sprintf("is_active = $%d", argIdx))
		args = append(args, *req.IsActive)
		argIdx++
	}

	if len(setClauses) == 0 {
		return s.GetSubscription(ctx, id)
	}

	setClauses = append(setClauses, "updated_at = NOW()")

	query := fmt.Sprintf(`
		UPDATE subscriptions SET %s
		WHERE id = $%d
		RETURNING `+subscriptionColumns,
		strings.Join(setClauses, ", "), argIdx)
	args = append(args, id)

	sub, err := scanSubscription(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("updating subscription: %w", err)
	}

	return sub, nil
}

func (s *Postgres) DeleteSubscription(ctx context.Context, id string) error {
	if !validUUID(id) {
		return ErrNotFound
	}

	// Deliveries keep their subscription_id for audit; no cascade.
	tag, err := s.pool.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) RotateSecret(ctx context.Context, id string) (*domain.Subscription, error) {
	if !validUUID(id) {
		return nil, ErrNotFound
	}

	secret, err := GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("generating secret: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE subscriptions SET secret = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+subscriptionColumns, id, secret)

	sub, err := scanSubscription(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("rotating secret: %w", err)
	}
	return sub, nil
}

func (s *Postgres) FindMatching(ctx context.Context, orgID, event string) ([]domain.Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE organization_id = $1
		  AND is_active = true
		  AND $2 = ANY(events)
	`, orgID, event)
	if err != nil {
		return nil, fmt.Errorf("finding matching subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning subscription: %w", err)
		}
		subs = append(subs, *sub)
	}

	if subs == nil {
		subs = []domain.Subscription{}
	}

	return subs, nil
}
