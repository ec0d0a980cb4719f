// Package ledger_repo provides the PostgreSQL repositories of the stock ledger:
// entries, stock levels, batches and entry types. Every repository joins the
// transaction carried in the context by postgres.TxManager.
package ledger_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/infrastructure/storage/postgres"
)

const (
	entriesTable    = "stock_ledger_entries"
	levelsTable     = "stock_levels"
	batchesTable    = "stock_batches"
	entryTypesTable = "stock_entry_types"

	// entryMovementLegKey is the unique (movement_id, leg) constraint.
	entryMovementLegKey = "stock_ledger_entries_movement_leg_key"
)

// base carries the statement builder and the transaction manager.
type base struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

func newBase(txm *postgres.TxManager) base {
	return base{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (b base) querier(ctx context.Context) postgres.Querier {
	return b.txm.GetQuerier(ctx)
}

func (b base) exec(ctx context.Context, q squirrel.Sqlizer) (int64, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	tag, err := b.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (b base) get(ctx context.Context, dst any, q squirrel.Sqlizer) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return pgxscan.Get(ctx, b.querier(ctx), dst, sql, args...)
}

func (b base) selectAll(ctx context.Context, dst any, q squirrel.Sqlizer) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return pgxscan.Select(ctx, b.querier(ctx), dst, sql, args...)
}
