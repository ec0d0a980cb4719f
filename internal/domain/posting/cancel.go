package posting

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/batch"
	"stockledger/internal/domain/events"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/movement"
	"stockledger/internal/domain/stocklevel"
	"stockledger/internal/domain/valuation"
	"stockledger/pkg/logger"
)

// CancelResult lists the flagged entries and the reversals posted for them.
type CancelResult struct {
	Cancelled []ledger.StockLedgerEntry `json:"cancelled"`
	Reversals []ledger.StockLedgerEntry `json:"reversals"`
	Levels    []stocklevel.View         `json:"levels"`
	Batch     *batch.View               `json:"batch,omitempty"`
	Events    []events.Event            `json:"-"`
}

// CancelEntry cancels the movement entryID belongs to. Every leg of that
// movement is flagged and gets a reversing entry at the same rate, and the
// stock levels and batch are restored, all in one transaction.
//
// Reversals are ordinary ledger entries, so they cannot be cancelled themselves,
// and taking back a receipt whose stock is already gone fails with INSUFFICIENT_STOCK.
func (e *Engine) CancelEntry(ctx context.Context, entryID id.ID, cancelledBy, reason string) (CancelResult, error) {
	ctx, span := tracer.Start(ctx, "posting.CancelEntry", trace.WithAttributes(
		attribute.String("entry.id", entryID.String()),
	))
	defer span.End()

	res, err := e.cancelEntry(ctx, entryID, cancelledBy, reason)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperror.CodeOf(err))
		logger.Warn(ctx, "cancellation rejected", "entry_id", entryID, "code", apperror.CodeOf(err), "error", err)
		return CancelResult{}, err
	}

	logger.Info(ctx, "ledger entry cancelled",
		"entry_id", entryID,
		"legs", len(res.Cancelled),
		"cancelled_by", cancelledBy,
	)
	return res, nil
}

func (e *Engine) cancelEntry(ctx context.Context, entryID id.ID, cancelledBy, reason string) (CancelResult, error) {
	cancelledBy = strings.TrimSpace(cancelledBy)
	if cancelledBy == "" {
		return CancelResult{}, apperror.NewInvalidMovement("cancelledBy is required")
	}

	orig, err := e.entries.GetByID(ctx, entryID)
	if err != nil {
		return CancelResult{}, err
	}
	if err := cancellable(orig); err != nil {
		return CancelResult{}, err
	}
	legs, err := e.movementLegs(ctx, orig)
	if err != nil {
		return CancelResult{}, err
	}

	locks := make([]string, 0, len(legs)+1)
	for _, leg := range legs {
		locks = append(locks, levelLock(leg.Key()))
		if leg.BatchNo != "" {
			locks = append(locks, batchLock(leg.ItemCode, leg.BatchNo))
		}
	}
	unlock, err := e.lock(ctx, locks)
	if err != nil {
		return CancelResult{}, err
	}
	defer unlock()

	var res CancelResult
	err = e.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		res, err = e.reverse(ctx, legs, cancelledBy, reason)
		return err
	})
	if err != nil {
		return CancelResult{}, err
	}
	return res, nil
}

func cancellable(e ledger.StockLedgerEntry) error {
	if e.IsReversal() {
		return apperror.NewInvalidMovement("reversal entries cannot be cancelled").
			WithDetail("entry_id", e.ID.String())
	}
	if e.IsCancelled {
		return apperror.NewAlreadyCancelled(e.ID.String())
	}
	return nil
}

// movementLegs returns all original entries of the movement orig belongs to, in leg order.
func (e *Engine) movementLegs(ctx context.Context, orig ledger.StockLedgerEntry) ([]ledger.StockLedgerEntry, error) {
	if id.IsNil(orig.MovementID) {
		return []ledger.StockLedgerEntry{orig}, nil
	}
	mid := orig.MovementID
	page, err := e.entries.List(ctx, ledger.Filter{MovementID: &mid, Limit: ledger.MaxLimit})
	if err != nil {
		return nil, fmt.Errorf("list movement legs: %w", err)
	}

	legs := make([]ledger.StockLedgerEntry, 0, len(page.Items))
	for _, it := range page.Items {
		if !it.IsReversal() {
			legs = append(legs, it)
		}
	}
	if len(legs) == 0 {
		legs = append(legs, orig)
	}
	sort.Slice(legs, func(i, j int) bool { return legs[i].Leg < legs[j].Leg })
	return legs, nil
}

// reverse runs inside the transaction with all keys locked.
func (e *Engine) reverse(ctx context.Context, legs []ledger.StockLedgerEntry, cancelledBy, reason string) (CancelResult, error) {
	now := e.now()
	cancelID := id.New()
	res := CancelResult{}
	var evts []events.Event

	for i, stale := range legs {
		// Re-read under the lock: a concurrent cancel may have won.
		leg, err := e.entries.GetByID(ctx, stale.ID)
		if err != nil {
			return CancelResult{}, err
		}
		if err := cancellable(leg); err != nil {
			return CancelResult{}, err
		}

		key := leg.Key()
		level, err := e.levels.GetForUpdate(ctx, key)
		if err != nil {
			return CancelResult{}, fmt.Errorf("load stock level %s: %w", key, err)
		}

		qty := leg.Qty.Abs()
		var (
			next     stocklevel.StockLevel
			levelEvt events.Event
		)
		if leg.IsIncoming() {
			if e.allowsNegative(ctx, leg.VoucherType) {
				next, levelEvt, err = level.IssueStockAllowNegative(qty, now)
			} else {
				next, levelEvt, err = level.IssueStock(qty, now)
			}
		} else {
			avg := valuation.IncomingRate(level.Quantity, level.UnitCost, qty, leg.ValuationRate)
			next, levelEvt, err = level.ReceiveStock(qty, avg, now)
		}
		if err != nil {
			return CancelResult{}, err
		}

		reversal, err := e.ledger.PostEntry(ctx, ledger.EntryParams{
			MovementID:          cancelID,
			Leg:                 i,
			Key:                 key,
			PostingDate:         now,
			VoucherType:         ledger.VoucherCancellation,
			VoucherNo:           leg.VoucherNo,
			Qty:                 leg.Qty.Neg(),
			ValuationRate:       leg.ValuationRate,
			QtyAfterTransaction: next.Quantity,
			BalanceRate:         next.UnitCost,
			SerialNo:            leg.SerialNo,
			BatchID:             leg.BatchID,
			BatchNo:             leg.BatchNo,
			ExpiryDate:          leg.ExpiryDate,
			Remarks:             reason,
			Reference:           leg.Reference,
			CreatedBy:           cancelledBy,
			ReversalOf:          id.Ptr(leg.ID),
		})
		if err != nil {
			return CancelResult{}, err
		}
		if err := e.entries.MarkCancelled(ctx, leg.ID, cancelledBy, reason, now); err != nil {
			return CancelResult{}, fmt.Errorf("mark entry %s cancelled: %w", leg.ID, err)
		}
		if err := e.levels.Save(ctx, next); err != nil {
			return CancelResult{}, fmt.Errorf("save stock level %s: %w", key, err)
		}

		cancelled, _ := leg.Cancel(cancelledBy, reason, now)
		res.Cancelled = append(res.Cancelled, cancelled)
		res.Reversals = append(res.Reversals, reversal)
		res.Levels = append(res.Levels, next.ToView())
		evts = append(evts,
			reversal.CreatedEvent(),
			levelEvt,
			events.StockLedgerEntryCancelled{
				EntryID:     leg.ID,
				ReversalID:  reversal.ID,
				Key:         events.LevelKey{ItemCode: key.ItemCode, WarehouseCode: key.WarehouseCode, BinCode: key.BinCode},
				CancelledBy: cancelledBy,
				Reason:      reason,
				At:          now,
			},
		)

		// Batch counters moved once per movement, on its primary leg.
		if leg.BatchID != nil && leg.Leg == ledger.LegPrimary {
			b, bEvt, err := e.reverseBatch(ctx, leg, qty, now)
			if err != nil {
				return CancelResult{}, err
			}
			bv := b.ToView(now)
			res.Batch = &bv
			evts = append(evts, bEvt)
		}
	}

	if err := e.publisher.Publish(ctx, evts); err != nil {
		return CancelResult{}, fmt.Errorf("publish events: %w", err)
	}
	res.Events = evts
	return res, nil
}

// reverseBatch books the opposite batch movement. Counters are forward-only,
// so a cancelled receipt counts as dispatched and a cancelled issue as returned.
func (e *Engine) reverseBatch(ctx context.Context, leg ledger.StockLedgerEntry, qty types.Quantity, now time.Time) (batch.Batch, events.Event, error) {
	b, err := e.batches.GetByID(ctx, *leg.BatchID)
	if err != nil {
		return batch.Batch{}, nil, fmt.Errorf("load batch %s: %w", leg.BatchNo, err)
	}

	counter := batch.CounterReturned
	switch {
	case leg.VoucherType == string(movement.TypeTransfer):
		counter = batch.CounterTransfer
	case leg.IsIncoming():
		counter = batch.CounterDispatched
	}

	next, evt, err := b.Add(counter, qty, now)
	if err != nil {
		return batch.Batch{}, nil, err
	}
	if err := e.batches.Save(ctx, next); err != nil {
		return batch.Batch{}, nil, fmt.Errorf("save batch %s: %w", next.BatchNo, err)
	}
	return next, evt, nil
}

// allowsNegative reports the AllowNegativeStock setting of the voucher's entry
// type. Vouchers without an entry type (stocktakes) do not allow it.
func (e *Engine) allowsNegative(ctx context.Context, voucherType string) bool {
	et, err := e.entryTypes.Get(ctx, movement.Type(voucherType))
	if err != nil {
		return false
	}
	return et.AllowNegativeStock
}
