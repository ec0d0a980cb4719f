package posting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/stocklevel"
	"stockledger/pkg/logger"
)

// Discrepancy is a key whose cached balance disagrees with the ledger sum.
type Discrepancy struct {
	Key            stocklevel.Key `json:"key"`
	LedgerQuantity types.Quantity `json:"ledgerQuantity"`
	LevelQuantity  types.Quantity `json:"levelQuantity"`
}

// Drift is how far the cached balance is off.
func (d Discrepancy) Drift() types.Quantity { return d.LevelQuantity - d.LedgerQuantity }

// ReconcileReport is the outcome of one integrity check.
type ReconcileReport struct {
	CheckedAt     time.Time     `json:"checkedAt"`
	KeysChecked   int           `json:"keysChecked"`
	Discrepancies []Discrepancy `json:"discrepancies"`
}

// Err is nil for a clean report and INTEGRITY_VIOLATION otherwise.
func (r ReconcileReport) Err() error {
	if len(r.Discrepancies) == 0 {
		return nil
	}
	first := r.Discrepancies[0]
	return apperror.NewIntegrityViolation("stock levels drifted from the ledger").
		WithDetail("count", len(r.Discrepancies)).
		WithDetail("first_key", first.Key.String()).
		WithDetail("first_drift", first.Drift().String())
}

// Reconcile compares every StockLevel.Quantity with the sum of ledger Qty for
// its key. It only reports; repairing a drifted balance is a Stocktake.
func (e *Engine) Reconcile(ctx context.Context) (ReconcileReport, error) {
	ctx, span := tracer.Start(ctx, "posting.Reconcile")
	defer span.End()

	var (
		sums   map[stocklevel.Key]types.Quantity
		levels []stocklevel.StockLevel
	)
	// Both reads must see the same committed postings.
	err := e.snapshot(ctx, func(ctx context.Context) error {
		var err error
		if sums, err = e.entries.SumByKey(ctx); err != nil {
			return fmt.Errorf("sum ledger: %w", err)
		}
		if levels, err = e.levels.List(ctx, stocklevel.Filter{}); err != nil {
			return fmt.Errorf("list stock levels: %w", err)
		}
		return nil
	})
	if err != nil {
		return ReconcileReport{}, err
	}

	report := ReconcileReport{CheckedAt: e.now(), Discrepancies: []Discrepancy{}}
	seen := make(map[stocklevel.Key]struct{}, len(levels))
	for _, l := range levels {
		key := l.Key()
		seen[key] = struct{}{}
		if sum := sums[key]; sum != l.Quantity {
			report.Discrepancies = append(report.Discrepancies, Discrepancy{Key: key, LedgerQuantity: sum, LevelQuantity: l.Quantity})
		}
	}
	for key, sum := range sums {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		if !sum.IsZero() {
			report.Discrepancies = append(report.Discrepancies, Discrepancy{Key: key, LedgerQuantity: sum})
		}
	}
	report.KeysChecked = len(seen)

	sort.Slice(report.Discrepancies, func(i, j int) bool {
		return report.Discrepancies[i].Key.String() < report.Discrepancies[j].Key.String()
	})
	for _, d := range report.Discrepancies {
		logger.Error(ctx, "stock level drifted from ledger",
			"key", d.Key.String(),
			"ledger_qty", d.LedgerQuantity.String(),
			"level_qty", d.LevelQuantity.String(),
		)
	}
	return report, nil
}

func (e *Engine) snapshot(ctx context.Context, fn func(ctx context.Context) error) error {
	if ro, ok := e.txm.(tx.ReadOnlyManager); ok {
		return ro.ReadOnly(ctx, fn)
	}
	return e.txm.RunInTransaction(ctx, fn)
}
