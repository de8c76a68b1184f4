package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/complyport/webhook-engine/internal/api"
	"github.com/complyport/webhook-engine/internal/config"
	"github.com/complyport/webhook-engine/internal/engine"
	"github.com/complyport/webhook-engine/internal/store"
	"github.com/complyport/webhook-engine/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL
	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	if err := pgStore.RunMigrations(ctx, "migrations"); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	// Initialize Redis
	redisStore, err := store.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisStore.Close()
	logger.Info("connected to Redis")

	queue := engine.NewQueue(redisStore)
	dispatcher := engine.NewDispatcher(pgStore, queue, logger)
	aggregator := engine.NewAggregator(pgStore)

	// Delivery pipeline: poller drains the queue into the worker pool. The
	// pool gets its own context so in-flight attempts can finish recording
	// after intake stops; claimed jobs cut off mid-attempt would stay pending
	// with nothing left to reschedule them.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	deliverer := worker.NewDeliverer(pgStore, cfg.MaxAttempts, logger)
	pool := worker.NewPool(cfg.NumWorkers, deliverer, logger)
	pool.Start(workerCtx)

	poller := worker.NewPoller(queue, pool, logger)
	go poller.Start(ctx)

	// Background sweeps: due retries and delivered-record retention.
	retryScheduler := engine.NewRetryScheduler(pgStore, queue, logger)
	go retryScheduler.Run(ctx, cfg.RetrySweepInterval)

	retention := engine.NewRetentionSweeper(pgStore, cfg.RetentionAge(), logger)
	go retention.Run(ctx, cfg.RetentionSweepInterval)

	limiter := api.NewRateLimiter(redisStore.Client(), cfg.APIRateLimitPerMinute, logger)
	router := api.NewRouter(pgStore, dispatcher, aggregator, limiter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// Stop intake first, drain in-flight deliveries, then release the workers.
	cancel()
	pool.Stop()
	workerCancel()

	logger.Info("server stopped")
}
