package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/complyport/webhook-engine/internal/store"
	"github.com/redis/go-redis/v9"
)

// QueueKey is the Redis sorted set holding scheduled delivery jobs, scored by
// due time in microseconds.
const QueueKey = "delivery_queue"

// Job references one delivery waiting for an attempt. It carries IDs only;
// the worker loads fresh rows at attempt time so secret rotation and
// deactivation take effect on anything still queued.
type Job struct {
	DeliveryID     string `json:"delivery_id"`
	SubscriptionID string `json:"subscription_id"`
}

// Queue schedules delivery jobs on a Redis sorted set. Postgres remains the
// source of truth for delivery state; the queue only decides when workers
// look at a record.
type Queue struct {
	client *redis.Client
}

func NewQueue(rs *store.Redis) *Queue {
	return &Queue{client: rs.Client()}
}

func NewQueueWithClient(client *redis.Client) *Queue {
	return &Queue{client: client}
}

// Enqueue schedules a job to become due at the given time. Re-enqueueing the
// same job only moves its due time.
func (q *Queue) Enqueue(ctx context.Context, job Job, due time.Time) error {
	member, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}

	err = q.client.ZAdd(ctx, QueueKey, redis.Z{
		Score:  float64(due.UnixMicro()),
		Member: string(member),
	}).Err()
	if err != nil {
		return fmt.Errorf("queuing delivery job: %w", err)
	}
	return nil
}

// Due returns up to limit job members whose due time has passed.
func (q *Queue) Due(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	members, err := q.client.ZRangeByScore(ctx, QueueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatFloat(float64(now.UnixMicro()), 'f', -1, 64),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("polling delivery queue: %w", err)
	}
	return members, nil
}

// Claim removes a member from the queue. A false result means another poller
// instance already took it.
func (q *Queue) Claim(ctx context.Context, member string) (bool, error) {
	removed, err := q.client.ZRem(ctx, QueueKey, member).Result()
	if err != nil {
		return false, fmt.Errorf("claiming delivery job: %w", err)
	}
	return removed > 0, nil
}

// Depth returns the number of scheduled jobs, due or not.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, QueueKey).Result()
}

// DecodeJob parses a queue member back into a Job.
func DecodeJob(member string) (Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(member), &job); err != nil {
		return Job{}, fmt.Errorf("unmarshaling job: %w", err)
	}
	return job, nil
}
