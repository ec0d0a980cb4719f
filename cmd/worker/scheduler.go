package main

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/events"
	"stockledger/internal/domain/posting"
	"stockledger/internal/domain/stocklevel"
	"stockledger/pkg/logger"
)

// jobTimeout bounds a single run of any job.
const jobTimeout = 2 * time.Minute

type outboxRelay interface {
	ProcessBatch(ctx context.Context) (int, error)
	MoveToDLQ(ctx context.Context) (int64, error)
	PurgePublished(ctx context.Context, olderThan time.Duration) (int64, error)
}

type expiryScanner interface {
	ScanExpiringSoon(ctx context.Context, days int) ([]events.BatchExpiringSoon, error)
}

type reconciler interface {
	Reconcile(ctx context.Context) (posting.ReconcileReport, error)
}

type lowStockLister interface {
	ListLowStock(ctx context.Context, warehouseCode string, threshold types.Quantity) ([]stocklevel.View, error)
}

// Schedules are robfig/cron specs with a leading seconds field.
type Schedules struct {
	Outbox    string
	Expiry    string
	Reconcile string
	LowStock  string
}

// Jobs are the periodic tasks of the worker.
type Jobs struct {
	Relay           outboxRelay
	OutboxRetention time.Duration

	Expiry      expiryScanner
	WarningDays int
	TxManager   tx.Manager
	Publisher   events.Publisher

	Reconciler reconciler

	Levels            lowStockLister
	LowStockThreshold types.Quantity
}

// RelayOutbox drains pending outbox messages, then dead-letters exhausted
// ones and purges old published rows.
func (j *Jobs) RelayOutbox(ctx context.Context) error {
	total := 0
	for {
		n, err := j.Relay.ProcessBatch(ctx)
		if err != nil {
			return fmt.Errorf("relay outbox: %w", err)
		}
		total += n
		if n == 0 || ctx.Err() != nil {
			break
		}
	}

	moved, err := j.Relay.MoveToDLQ(ctx)
	if err != nil {
		return fmt.Errorf("move outbox to dlq: %w", err)
	}
	purged, err := j.Relay.PurgePublished(ctx, j.OutboxRetention)
	if err != nil {
		return fmt.Errorf("purge outbox: %w", err)
	}

	if total > 0 || moved > 0 || purged > 0 {
		logger.Info(ctx, "outbox relayed", "published", total, "dead_lettered", moved, "purged", purged)
	}
	return nil
}

// ScanExpiring publishes one BatchExpiringSoon per batch inside the warning window.
func (j *Jobs) ScanExpiring(ctx context.Context) error {
	found, err := j.Expiry.ScanExpiringSoon(ctx, j.WarningDays)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return nil
	}

	evts := make([]events.Event, len(found))
	for i, e := range found {
		evts[i] = e
	}
	err = j.TxManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return j.Publisher.Publish(ctx, evts)
	})
	if err != nil {
		return fmt.Errorf("publish expiring batches: %w", err)
	}

	logger.Info(ctx, "expiring batches published", "count", len(found), "days", j.WarningDays)
	return nil
}

// Reconcile checks the ledger against stock levels and fails on drift.
func (j *Jobs) Reconcile(ctx context.Context) error {
	report, err := j.Reconciler.Reconcile(ctx)
	if err != nil {
		return err
	}
	logger.Info(ctx, "reconciliation finished",
		"keys", report.KeysChecked,
		"discrepancies", len(report.Discrepancies),
	)
	return report.Err()
}

// ReportLowStock logs every balance at or below the threshold.
func (j *Jobs) ReportLowStock(ctx context.Context) error {
	low, err := j.Levels.ListLowStock(ctx, "", j.LowStockThreshold)
	if err != nil {
		return err
	}
	for _, v := range low {
		logger.Warn(ctx, "low stock",
			"key", v.Key().String(),
			"available", v.AvailableQuantity.String(),
			"threshold", j.LowStockThreshold.String(),
		)
	}
	return nil
}

// RunAll runs every job once, concurrently.
func (j *Jobs) RunAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, job := range j.named() {
		g.Go(func() error {
			if err := job.run(ctx); err != nil {
				return fmt.Errorf("%s: %w", job.name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

type namedJob struct {
	name string
	run  func(context.Context) error
}

func (j *Jobs) named() []namedJob {
	return []namedJob{
		{"outbox", j.RelayOutbox},
		{"expiry", j.ScanExpiring},
		{"reconcile", j.Reconcile},
		{"low_stock", j.ReportLowStock},
	}
}

// Scheduler runs Jobs on cron schedules. A job still running when its next
// tick fires is skipped for that tick.
type Scheduler struct {
	cron *cron.Cron
	jobs *Jobs
	log  *logger.Logger
}

// NewScheduler registers every job. An invalid spec is an error.
func NewScheduler(jobs *Jobs, sched Schedules, log *logger.Logger) (*Scheduler, error) {
	log = log.WithComponent("scheduler")
	cl := cronLogger{log: log}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	s := &Scheduler{cron: c, jobs: jobs, log: log}
	specs := map[string]string{
		"outbox":    sched.Outbox,
		"expiry":    sched.Expiry,
		"reconcile": sched.Reconcile,
		"low_stock": sched.LowStock,
	}
	for _, job := range jobs.named() {
		if _, err := c.AddFunc(specs[job.name], s.wrap(job)); err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", job.name, specs[job.name], err)
		}
	}
	return s, nil
}

func (s *Scheduler) wrap(job namedJob) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		ctx = logger.WithLogger(ctx, s.log.With("job", job.name))

		start := time.Now()
		if err := job.run(ctx); err != nil {
			logger.Error(ctx, "job failed", "error", err, "duration", time.Since(start))
			return
		}
		logger.Debug(ctx, "job done", "duration", time.Since(start))
	}
}

// Run starts the cron loop and blocks until ctx is done and running jobs have finished.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("starting scheduler")
	s.cron.Start()
	<-ctx.Done()

	s.log.Info("stopping scheduler")
	<-s.cron.Stop().Done()
	return nil
}

// cronLogger adapts the zap logger to cron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
