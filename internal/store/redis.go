package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis holds the connection used for the delivery queue and the management
// API rate limiter. Postgres stays the source of truth; Redis only schedules.
type Redis struct {
	client *redis.Client
}

func NewRedis(ctx context.Context, redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return &Redis{client: client}, nil
}

func (s *Redis) Close() error {
	return s.client.Close()
}

func (s *Redis) Client() *redis.Client {
	return s.client
}
