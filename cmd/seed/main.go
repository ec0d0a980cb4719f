// Package main seeds the catalog tables and opening stock balances.
//
//	seed                       # built-in demo fixture
//	seed -file catalog.json    # custom fixture
//	seed -catalog-only         # skip opening stock
//	seed -history ledger.jsonl # bulk-load ledger history into empty keys
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"stockledger/internal/app"
	"stockledger/internal/config"
	"stockledger/internal/infrastructure/storage/postgres/catalog_repo"
	"stockledger/internal/infrastructure/storage/postgres/ledger_repo"
	"stockledger/pkg/logger"
)

func main() {
	file := flag.String("file", "", "fixture JSON (defaults to the built-in demo data)")
	catalogOnly := flag.Bool("catalog-only", false, "seed master data without opening stock")
	actor := flag.String("actor", "seed", "createdBy of opening balance entries")
	history := flag.String("history", "", "ledger entries as JSON lines, loaded with COPY")
	flag.Parse()

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
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)
	ctx := logger.WithLogger(context.Background(), log.WithComponent("seed"))

	fixture, err := readFixture(*file)
	if err != nil {
		log.Fatalw("failed to read fixture", "file", *file, "error", err)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to wire application", "error", err)
	}
	defer a.Close()

	lookup := catalog_repo.NewLookup(a.TxManager)
	writer := catalogWriter{Items: lookup.Items, Warehouses: lookup.Warehouses, Bins: lookup.Bins}
	if err := seedCatalog(ctx, a.TxManager, writer, fixture); err != nil {
		log.Fatalw("failed to seed catalog", "error", err)
	}

	if !*catalogOnly {
		n, err := seedOpeningStock(ctx, a.Engine, fixture.OpeningStock, *actor)
		if err != nil {
			log.Fatalw("failed to seed opening stock", "posted", n, "error", err)
		}
		log.Infow("opening stock seeded", "posted", n, "total", len(fixture.OpeningStock))
	}

	if *history != "" {
		if err := loadHistory(ctx, a, *history); err != nil {
			log.Fatalw("failed to import ledger history", "file", *history, "error", err)
		}
	}

	log.Info("seeding completed successfully")
}

func loadHistory(ctx context.Context, a *app.App, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	entries, err := readHistory(f)
	if err != nil {
		return err
	}
	keys, err := importHistory(ctx, a.TxManager, a.Entries, ledger_repo.NewLevelRepo(a.TxManager), entries, time.Now().UTC())
	if err != nil {
		return err
	}
	logger.Info(ctx, "ledger history imported", "entries", len(entries), "keys", keys)

	report, err := a.Engine.Reconcile(ctx)
	if err != nil {
		return err
	}
	return report.Err()
}

func readFixture(path string) (Fixture, error) {
	var r io.Reader = bytes.NewReader(demoFixture)
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Fixture{}, err
		}
		defer f.Close()
		r = f
	}
	return LoadFixture(r)
}
