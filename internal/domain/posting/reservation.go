package posting

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/events"
	"stockledger/internal/domain/stocklevel"
	"stockledger/pkg/logger"
)

type reservationOp func(stocklevel.StockLevel, types.Quantity, time.Time) (stocklevel.StockLevel, events.Event, error)

// Reserve earmarks qty of available stock at key. No ledger entry is written.
func (e *Engine) Reserve(ctx context.Context, key stocklevel.Key, qty types.Quantity) (stocklevel.View, error) {
	return e.changeReservation(ctx, "posting.Reserve", key, qty, stocklevel.StockLevel.ReserveStock)
}

// Release gives back qty of reserved stock at key.
func (e *Engine) Release(ctx context.Context, key stocklevel.Key, qty types.Quantity) (stocklevel.View, error) {
	return e.changeReservation(ctx, "posting.Release", key, qty, stocklevel.StockLevel.ReleaseReservation)
}

func (e *Engine) changeReservation(ctx context.Context, op string, key stocklevel.Key, qty types.Quantity, apply reservationOp) (stocklevel.View, error) {
	ctx, span := tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("stock.key", key.String()),
		attribute.String("stock.qty", qty.String()),
	))
	defer span.End()

	view, err := e.reservation(ctx, key, qty, apply)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperror.CodeOf(err))
		logger.Warn(ctx, "reservation change rejected", "op", op, "key", key.String(), "qty", qty.String(), "error", err)
		return stocklevel.View{}, err
	}
	logger.Debug(ctx, "reservation changed", "op", op, "key", key.String(), "reserved", view.ReservedQuantity.String())
	return view, nil
}

func (e *Engine) reservation(ctx context.Context, key stocklevel.Key, qty types.Quantity, apply reservationOp) (stocklevel.View, error) {
	if err := key.Validate(); err != nil {
		return stocklevel.View{}, err
	}

	unlock, err := e.lock(ctx, []string{levelLock(key)})
	if err != nil {
		return stocklevel.View{}, err
	}
	defer unlock()

	var view stocklevel.View
	err = e.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		level, err := e.levels.GetForUpdate(ctx, key)
		if err != nil {
			return fmt.Errorf("load stock level %s: %w", key, err)
		}
		next, evt, err := apply(level, qty, e.now())
		if err != nil {
			return err
		}
		if err := e.levels.Save(ctx, next); err != nil {
			return fmt.Errorf("save stock level %s: %w", key, err)
		}
		if err := e.publisher.Publish(ctx, []events.Event{evt}); err != nil {
			return fmt.Errorf("publish events: %w", err)
		}
		view = next.ToView()
		return nil
	})
	return view, err
}
