package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/stocklevel"
	"stockledger/pkg/logger"
)

const maxHistoryLine = 1 << 20

// ledgerCopier bulk-loads entries without going through the posting engine.
type ledgerCopier interface {
	CopyEntries(ctx context.Context, entries []ledger.StockLedgerEntry) (int64, error)
}

// readHistory decodes one ledger entry per line, the shape GET /api/v1/ledger serves.
func readHistory(r io.Reader) ([]ledger.StockLedgerEntry, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxHistoryLine)

	var out []ledger.StockLedgerEntry
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e ledger.StockLedgerEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("history line %d: %w", line, err)
		}
		if id.IsNil(e.ID) || id.IsNil(e.MovementID) {
			return nil, fmt.Errorf("history line %d: id and movementId are required", line)
		}
		if err := e.Key().Validate(); err != nil {
			return nil, fmt.Errorf("history line %d: %w", line, err)
		}
		if e.Qty.IsZero() {
			return nil, fmt.Errorf("history line %d: zero qty", line)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return out, nil
}

// importHistory copies entries and materializes a stock level per key from
// them, in one transaction. Keys that already hold stock are refused.
func importHistory(ctx context.Context, txm tx.Manager, copier ledgerCopier, levels stocklevel.Repository, history []ledger.StockLedgerEntry, now time.Time) (int, error) {
	type balance struct {
		qty  types.Quantity
		last ledger.StockLedgerEntry
	}
	sorted := make([]ledger.StockLedgerEntry, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })

	balances := make(map[stocklevel.Key]*balance)
	keys := make([]stocklevel.Key, 0)
	for _, e := range sorted {
		b, ok := balances[e.Key()]
		if !ok {
			b = &balance{}
			balances[e.Key()] = b
			keys = append(keys, e.Key())
		}
		b.qty += e.Qty
		b.last = e
	}

	err := txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := copier.CopyEntries(ctx, history); err != nil {
			return err
		}
		for _, key := range keys {
			b := balances[key]
			level, err := levels.GetForUpdate(ctx, key)
			if err != nil {
				return fmt.Errorf("load stock level %s: %w", key, err)
			}
			if level.Version > 0 {
				return apperror.NewValidation("history import needs keys without a stock level").
					WithDetail("key", key.String())
			}
			next, _, err := level.UpdateStock(b.qty, b.last.BalanceRate, now)
			if err != nil {
				return err
			}
			if err := levels.Save(ctx, next); err != nil {
				return fmt.Errorf("save stock level %s: %w", key, err)
			}
			if b.qty != b.last.QtyAfterTransaction {
				logger.Warn(ctx, "history balance differs from its last entry",
					"key", key.String(),
					"sum", b.qty.String(),
					"qty_after", b.last.QtyAfterTransaction.String(),
				)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}
