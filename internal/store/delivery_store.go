package store

import (
	"context"
	"fmt"
	"time"

	"github.com/complyport/webhook-engine/internal/domain"
	"github.com/jackc/pgx/v5"
)

const deliveryColumns = `id, subscription_id, event, payload, status, attempts,
	status_code, response_body, response_time_ms, error_message, next_retry_at,
	delivered_at, created_at`

func scanDelivery(row pgx.Row) (*domain.Delivery, error) {
	var d domain.Delivery
	err := row.Scan(
		&d.ID, &d.SubscriptionID, &d.Event, &d.Payload, &d.Status, &d.Attempts,
		&d.StatusCode, &d.ResponseBody, &d.ResponseTimeMs, &d.ErrorMessage,
		&d.NextRetryAt, &d.DeliveredAt, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Postgres) CreateDelivery(ctx context.Context, subscriptionID, event string, payload []byte) (*domain.Delivery, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO deliveries (subscription_id, event, payload)
		VALUES ($1, $2, $3)
		RETURNING `+deliveryColumns, subscriptionID, event, payload)

	d, err := scanDelivery(row)
	if err != nil {
		return nil, fmt.Errorf("inserting delivery: %w", err)
	}
	return d, nil
}

func (s *Postgres) GetDelivery(ctx context.Context, id string) (*domain.Delivery, error) {
	if !validUUID(id) {
		return nil, nil
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE id = $1`, id)

	d, err := scanDelivery(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying delivery: %w", err)
	}
	return d, nil
}

func (s *Postgres) ListDeliveries(ctx context.Context, subscriptionID, status string, limit, offset int) ([]domain.Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE subscription_id = $1`
	args := []interface{}{subscriptionID}
	argIdx := 2

	if status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, status)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
		argIdx++
	}
	if offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying deliveries: %w", err)
	}
	defer rows.Close()

	return collectDeliveries(rows)
}

func (s *Postgres) DueRetries(ctx context.Context, now time.Time, limit int) ([]domain.Delivery, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+deliveryColumns+`
		FROM deliveries
		WHERE status = $1 AND next_retry_at <= $2
		LIMIT $3
	`, domain.StatusRetrying, now, limit)
	if err != nil {
		return nil, fmt.Errorf("querying due retries: %w", err)
	}
	defer rows.Close()

	return collectDeliveries(rows)
}

func (s *Postgres) ClaimRetry(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE deliveries SET status = $2, next_retry_at = NULL
		WHERE id = $1 AND status = $3
	`, id, domain.StatusPending, domain.StatusRetrying)
	if err != nil {
		return false, fmt.Errorf("claiming retry: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Postgres) ResetForRetry(ctx context.Context, id string) (*domain.Delivery, error) {
	if !validUUID(id) {
		return nil, ErrNotFound
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE deliveries
		SET status = $2, attempts = 0, next_retry_at = NULL, error_message = NULL
		WHERE id = $1 AND status <> $3
		RETURNING `+deliveryColumns, id, domain.StatusPending, domain.StatusDelivered)

	d, err := scanDelivery(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			// Distinguish a missing record from an already-delivered one.
			existing, getErr := s.GetDelivery(ctx, id)
			if getErr != nil {
				return nil, getErr
			}
			if existing == nil {
				return nil, ErrNotFound
			}
			return nil, ErrAlreadyDelivered
		}
		return nil, fmt.Errorf("resetting delivery: %w", err)
	}
	return d, nil
}

func (s *Postgres) RecordAttempt(ctx context.Context, rec AttemptRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var respBody *string
	if rec.ResponseBody != "" {
		b := Truncate(rec.ResponseBody, MaxResponseBodyLen)
		respBody = &b
	}
	var errMsg *string
	if rec.ErrorMessage != "" {
		e := Truncate(rec.ErrorMessage, MaxErrorMessageLen)
		errMsg = &e
	}

	tag, err := tx.Exec(ctx, `
		UPDATE deliveries
		SET attempts = $2, status = $3, status_code = $4, response_body = $5,
		    response_time_ms = $6, error_message = $7, next_retry_at = $8,
		    delivered_at = CASE WHEN $3 = 'delivered' THEN NOW() ELSE delivered_at END
		WHERE id = $1 AND status = 'pending'
	`, rec.DeliveryID, rec.Attempts, rec.Status, rec.StatusCode, respBody,
		rec.ResponseTimeMs, errMsg, rec.NextRetryAt)
	if err != nil {
		return fmt.Errorf("updating delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}

	// The subscription may have been deleted; history still stands.
	if rec.Status == domain.StatusDelivered {
		_, err = tx.Exec(ctx, `
			UPDATE subscriptions
			SET success_count = success_count + 1, last_success_at = NOW(),
			    last_triggered_at = NOW(), last_error = NULL
			WHERE id = $1
		`, rec.SubscriptionID)
	} else {
		_, err = tx.Exec(ctx, `
			UPDATE subscriptions
			SET failure_count = failure_count + 1, last_failure_at = NOW(),
			    last_triggered_at = NOW(), last_error = $2
			WHERE id = $1
		`, rec.SubscriptionID, Truncate(rec.ErrorMessage, MaxLastErrorLen))
	}
	if err != nil {
		return fmt.Errorf("updating subscription counters: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing attempt: %w", err)
	}
	return nil
}

func (s *Postgres) Stats(ctx context.Context, subscriptionID string) (*DeliveryStats, error) {
	var stats DeliveryStats
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'delivered'),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'retrying'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COALESCE(AVG(response_time_ms) FILTER (WHERE status = 'delivered'), 0)
		FROM deliveries
		WHERE subscription_id = $1
	`, subscriptionID).Scan(
		&stats.Total, &stats.Delivered, &stats.Pending,
		&stats.Retrying, &stats.Failed, &stats.AvgResponseTimeMs,
	)
	if err != nil {
		return nil, fmt.Errorf("querying delivery stats: %w", err)
	}
	return &stats, nil
}

func (s *Postgres) RecentFailures(ctx context.Context, subscriptionID string, limit int) ([]domain.Delivery, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+deliveryColumns+`
		FROM deliveries
		WHERE subscription_id = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, subscriptionID, domain.StatusFailed, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent failures: %w", err)
	}
	defer rows.Close()

	return collectDeliveries(rows)
}

func (s *Postgres) PurgeDelivered(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM deliveries
		WHERE status = $1 AND delivered_at < $2
	`, domain.StatusDelivered, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purging delivered records: %w", err)
	}
	return tag.RowsAffected(), nil
}

func collectDeliveries(rows pgx.Rows) ([]domain.Delivery, error) {
	var deliveries []domain.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning delivery: %w", err)
		}
		deliveries = append(deliveries, *d)
	}

	if deliveries == nil {
		deliveries = []domain.Delivery{}
	}

	return deliveries, nil
}
