// Package app assembles the stock ledger from configuration. The server and
// the worker share it so both run against the same repositories and locks.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"stockledger/internal/config"
	"stockledger/internal/domain/batch"
	"stockledger/internal/domain/catalog"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/posting"
	"stockledger/internal/domain/stocklevel"
	"stockledger/internal/infrastructure/cache"
	"stockledger/internal/infrastructure/lock"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/catalog_repo"
	"stockledger/internal/infrastructure/storage/postgres/ledger_repo"
	"stockledger/pkg/logger"
	"stockledger/pkg/numerator"
)

// App holds the wired components.
type App struct {
	Config *config.Config

	Pool      *postgres.Pool
	TxManager *postgres.TxManager
	Redis     redis.UniversalClient

	Entries    *ledger_repo.LedgerRepo
	EntryTypes *ledger_repo.EntryTypeRepo
	Outbox     *postgres.OutboxPublisher
	Listener   *cache.Listener

	Engine  *posting.Engine
	Ledger  *ledger.Service
	Levels  *stocklevel.Service
	Batches *batch.Service
}

// New connects to Postgres and Redis and wires the posting engine.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.MaxConns = cfg.DBMaxConns
	poolCfg.MinConns = cfg.DBMinConns

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	txOpts := postgres.DefaultTxOptions()
	txOpts.StatementTimeout = cfg.StatementTimeout
	txOpts.LockTimeout = cfg.RowLockTimeout
	txm := postgres.NewTxManager(pool).WithDefaults(txOpts)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	a := &App{
		Config:     cfg,
		Pool:       pool,
		TxManager:  txm,
		Redis:      rdb,
		Entries:    ledger_repo.NewLedgerRepo(txm),
		EntryTypes: ledger_repo.NewEntryTypeRepo(txm),
		Outbox:     postgres.NewOutboxPublisher(txm),
	}

	if err := a.EntryTypes.SeedDefaults(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("seed entry types: %w", err)
	}

	journal, err := postgres.NewMovementJournal(txm, cfg.JournalCompressOver)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("movement journal: %w", err)
	}

	var locker posting.Locker
	switch cfg.LockBackend {
	case config.LockRedis:
		if err := rdb.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		locker = lock.NewRedisLocker(rdb, lock.WithTTL(cfg.LockTTL))
	default:
		locker = posting.NewLocalLocker()
	}

	var lookup catalog.Lookup
	if cfg.CatalogEnforced {
		lookup = catalog_repo.NewLookup(txm)
	}

	var vouchers posting.VoucherNumberer
	if cfg.VoucherNumbering {
		vouchers = numerator.NewFromContext(func(ctx context.Context) numerator.Querier {
			return txm.GetQuerier(ctx)
		})
	}

	levels := ledger_repo.NewLevelRepo(txm)
	batches := ledger_repo.NewBatchRepo(txm)

	entryTypes := cache.NewEntryTypeCache(a.EntryTypes)
	a.Listener = cache.NewListener(pool.Pool)
	a.Listener.Handle(cache.EntryTypesChannel, entryTypes.Invalidate)
	a.Listener.Start(ctx)

	a.Engine = posting.NewEngine(posting.Config{
		TxManager:   txm,
		Ledger:      a.Entries,
		Levels:      levels,
		Batches:     batches,
		EntryTypes:  entryTypes,
		Catalog:     lookup,
		Locker:      locker,
		Publisher:   a.Outbox,
		Journal:     journal,
		Vouchers:    vouchers,
		LockTimeout: cfg.LockTimeout,
	})
	a.Ledger = ledger.NewService(a.Entries)
	a.Levels = stocklevel.NewService(levels)
	a.Batches = batch.NewService(batches)

	logger.Info(ctx, "stock ledger wired",
		"lock_backend", cfg.LockBackend,
		"catalog_enforced", cfg.CatalogEnforced,
		"voucher_numbering", cfg.VoucherNumbering,
	)
	return a, nil
}

// Close stops the cache listener and releases the Redis client and the database pool.
func (a *App) Close() {
	if a.Listener != nil {
		a.Listener.Stop()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			logger.Warn(context.Background(), "close redis", "error", err)
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
