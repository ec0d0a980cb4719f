// Package main is the entry point for the stock ledger background worker.
// It relays the outbox to Redis, publishes expiring batches, reconciles the
// ledger against stock levels and reports low stock.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"stockledger/internal/app"
	"stockledger/internal/config"
	"stockledger/internal/core/types"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/stream"
	"stockledger/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting stock ledger worker")

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to wire application", "error", err)
	}
	defer a.Close()

	sink := stream.NewRedisSink(a.Redis, cfg.EventStream, cfg.EventStreamMaxLen)
	jobs := &Jobs{
		Relay:             postgres.NewOutboxRelay(a.TxManager, cfg.OutboxBatchSize, sink),
		OutboxRetention:   cfg.OutboxRetention,
		Expiry:            a.Batches,
		WarningDays:       cfg.ExpiryWarningDays,
		TxManager:         a.TxManager,
		Publisher:         a.Outbox,
		Reconciler:        a.Engine,
		Levels:            a.Levels,
		LowStockThreshold: types.NewQuantityFromFloat64(cfg.LowStockThreshold),
	}

	scheduler, err := NewScheduler(jobs, Schedules{
		Outbox:    cfg.OutboxSchedule,
		Expiry:    cfg.ExpirySchedule,
		Reconcile: cfg.ReconcileSchedule,
		LowStock:  cfg.LowStockSchedule,
	}, log)
	if err != nil {
		log.Fatalw("invalid schedule", "error", err)
	}

	// Catch up on whatever piled up while the worker was down.
	if err := jobs.RunAll(ctx); err != nil {
		log.Errorw("startup run failed", "error", err)
	}

	if err := scheduler.Run(ctx); err != nil {
		log.Errorw("scheduler stopped with error", "error", err)
	}
	log.Info("worker stopped")
}
