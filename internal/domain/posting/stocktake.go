package posting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/events"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/stocklevel"
	"stockledger/pkg/logger"
)

// StocktakeRequest is the result of a physical count at one key.
type StocktakeRequest struct {
	Key             stocklevel.Key `json:"key"`
	CountedQuantity types.Quantity `json:"countedQuantity"`
	// UnitCost revalues the balance when positive.
	UnitCost    types.Money `json:"unitCost"`
	Reason      string      `json:"reason"`
	CreatedBy   string      `json:"createdBy"`
	VoucherNo   string      `json:"voucherNo,omitempty"`
	PostingDate time.Time   `json:"postingDate"`
}

// StocktakeResult carries the difference entry, nil when the count matched.
type StocktakeResult struct {
	Entry  *ledger.StockLedgerEntry `json:"entry,omitempty"`
	Level  stocklevel.View          `json:"level"`
	Events []events.Event           `json:"-"`
}

// Stocktake overwrites the balance with a counted quantity and books the
// difference to the ledger, so the ledger sum keeps matching the balance.
func (e *Engine) Stocktake(ctx context.Context, req StocktakeRequest) (StocktakeResult, error) {
	ctx, span := tracer.Start(ctx, "posting.Stocktake", trace.WithAttributes(
		attribute.String("stock.key", req.Key.String()),
		attribute.String("stock.counted", req.CountedQuantity.String()),
	))
	defer span.End()

	res, err := e.stocktake(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperror.CodeOf(err))
		logger.Warn(ctx, "stocktake rejected", "key", req.Key.String(), "error", err)
		return StocktakeResult{}, err
	}

	delta := "0"
	if res.Entry != nil {
		delta = res.Entry.Qty.String()
	}
	logger.Info(ctx, "stocktake posted", "key", req.Key.String(), "counted", req.CountedQuantity.String(), "delta", delta)
	return res, nil
}

func (e *Engine) stocktake(ctx context.Context, req StocktakeRequest) (StocktakeResult, error) {
	if err := req.Key.Validate(); err != nil {
		return StocktakeResult{}, err
	}
	if strings.TrimSpace(req.CreatedBy) == "" {
		return StocktakeResult{}, apperror.NewInvalidMovement("createdBy is required")
	}
	if strings.TrimSpace(req.Reason) == "" {
		return StocktakeResult{}, apperror.NewInvalidMovement("stocktake requires a reason")
	}

	unlock, err := e.lock(ctx, []string{levelLock(req.Key)})
	if err != nil {
		return StocktakeResult{}, err
	}
	defer unlock()

	var res StocktakeResult
	err = e.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		now := e.now()
		level, err := e.levels.GetForUpdate(ctx, req.Key)
		if err != nil {
			return fmt.Errorf("load stock level %s: %w", req.Key, err)
		}

		next, levelEvt, err := level.UpdateStock(req.CountedQuantity, req.UnitCost, now)
		if err != nil {
			return err
		}
		evts := make([]events.Event, 0, 2)

		if delta := req.CountedQuantity - level.Quantity; !delta.IsZero() {
			rate := req.UnitCost
			if rate.IsZero() {
				rate = level.UnitCost
			}
			movementID := id.New()
			voucherNo := req.VoucherNo
			if voucherNo == "" {
				voucherNo = movementID.String()
			}
			entry, err := e.ledger.PostEntry(ctx, ledger.EntryParams{
				MovementID:          movementID,
				Leg:                 ledger.LegPrimary,
				Key:                 req.Key,
				PostingDate:         req.PostingDate,
				VoucherType:         ledger.VoucherStocktake,
				VoucherNo:           voucherNo,
				Qty:                 delta,
				ValuationRate:       rate,
				QtyAfterTransaction: next.Quantity,
				BalanceRate:         next.UnitCost,
				Remarks:             req.Reason,
				CreatedBy:           req.CreatedBy,
			})
			if err != nil {
				return err
			}
			res.Entry = &entry
			evts = append(evts, entry.CreatedEvent())
		}

		if err := e.levels.Save(ctx, next); err != nil {
			return fmt.Errorf("save stock level %s: %w", req.Key, err)
		}
		evts = append(evts, levelEvt)
		if err := e.publisher.Publish(ctx, evts); err != nil {
			return fmt.Errorf("publish events: %w", err)
		}

		res.Level = next.ToView()
		res.Events = evts
		return nil
	})
	if err != nil {
		return StocktakeResult{}, err
	}
	return res, nil
}
