package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/complyport/webhook-engine/internal/engine"
)

// Pool manages a fixed number of worker goroutines that perform delivery
// attempts. Each job runs behind a recover so a panicking attempt can never
// take down its worker or affect sibling deliveries.
type Pool struct {
	numWorkers int
	jobs       chan engine.Job
	deliverer  *Deliverer
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewPool creates a worker pool with the given number of workers.
func NewPool(numWorkers int, deliverer *Deliverer, logger *slog.Logger) *Pool {
	return &Pool{
		numWorkers: numWorkers,
		jobs:       make(chan engine.Job, numWorkers*2),
		deliverer:  deliverer,
		logger:     logger,
	}
}

// Start launches all worker goroutines. They read from the jobs channel
// until it is closed or the context is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.logger.Info("worker pool started", "num_workers", p.numWorkers)
}

// Submit sends a job to the worker pool.
func (p *Pool) Submit(job engine.Job) {
	p.jobs <- job
}

// Stop closes the jobs channel and waits for all workers to finish.
func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for job := range p.jobs {
		select {
		case <-ctx.Done():
			return
		default:
			p.run(ctx, job)
		}
	}
}

// run isolates one delivery attempt.
func (p *Pool) run(ctx context.Context, job engine.Job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("delivery attempt panicked",
				"panic", r,
				"delivery_id", job.DeliveryID,
			)
		}
	}()
	p.deliverer.Deliver(ctx, job)
}
