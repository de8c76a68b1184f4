package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/complyport/webhook-engine/internal/engine"
)

// Poller continuously drains due jobs from the delivery queue into the worker
// pool. The ZRem claim inside Queue.Claim makes concurrent poller instances
// safe: only the claimer submits the job.
type Poller struct {
	queue        *engine.Queue
	pool         *Pool
	logger       *slog.Logger
	pollInterval time.Duration
	batchSize    int64
}

func NewPoller(queue *engine.Queue, pool *Pool, logger *slog.Logger) *Poller {
	return &Poller{
		queue:        queue,
		pool:         pool,
		logger:       logger,
		pollInterval: 100 * time.Millisecond,
		batchSize:    10,
	}
}

// Start begins the polling loop. It runs until the context is cancelled.
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("queue poller started")

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("queue poller stopping")
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	members, err := p.queue.Due(ctx, time.Now(), p.batchSize)
	if err != nil {
		p.logger.Error("failed to poll delivery queue", "error", err)
		return
	}

	for _, member := range members {
		claimed, err := p.queue.Claim(ctx, member)
		if err != nil {
			p.logger.Error("failed to claim job", "error", err)
			continue
		}
		if !claimed {
			// Another poller instance already took it.
			continue
		}

		job, err := engine.DecodeJob(member)
		if err != nil {
			p.logger.Error("failed to decode job", "error", err)
			continue
		}

		p.pool.Submit(job)
	}
}
