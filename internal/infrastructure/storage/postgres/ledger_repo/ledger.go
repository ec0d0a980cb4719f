package ledger_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/stocklevel"
	"stockledger/internal/infrastructure/storage/postgres"
)

// LedgerRepo implements ledger.Repository over stock_ledger_entries.
// Rows are only inserted; updates touch remarks, reference and the cancellation columns.
type LedgerRepo struct {
	base
	columns []string
}

var _ ledger.Repository = (*LedgerRepo)(nil)

// NewLedgerRepo creates a ledger repository.
func NewLedgerRepo(txm *postgres.TxManager) *LedgerRepo {
	return &LedgerRepo{
		base:    newBase(txm),
		columns: postgres.ExtractDBColumns[ledger.StockLedgerEntry](),
	}
}

func (r *LedgerRepo) Append(ctx context.Context, e ledger.StockLedgerEntry) error {
	q := r.builder.Insert(entriesTable).SetMap(postgres.StructToMap(e))
	if _, err := r.exec(ctx, q); err != nil {
		if postgres.IsUniqueViolation(err, entryMovementLegKey) {
			return apperror.NewAlreadyPosted(e.MovementID.String()).WithCause(err)
		}
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// CopyEntries bulk-loads historical entries with COPY. It must run inside a
// transaction and does not touch stock levels; run Reconcile or a stocktake afterwards.
func (r *LedgerRepo) CopyEntries(ctx context.Context, entries []ledger.StockLedgerEntry) (int64, error) {
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, postgres.RowValues(e, r.columns))
	}
	n, err := postgres.NewBatchInserter(r.txm).CopyFromSlice(ctx, entriesTable, r.columns, rows)
	if err != nil {
		if postgres.IsUniqueViolation(err, "") {
			return 0, apperror.NewAlreadyPosted("bulk import").WithCause(err)
		}
		return 0, fmt.Errorf("copy ledger entries: %w", err)
	}
	return n, nil
}

func (r *LedgerRepo) GetByID(ctx context.Context, entryID id.ID) (ledger.StockLedgerEntry, error) {
	var e ledger.StockLedgerEntry
	q := r.builder.Select(r.columns...).From(entriesTable).Where(squirrel.Eq{"id": entryID})
	if err := r.get(ctx, &e, q); err != nil {
		if pgxscan.NotFound(err) {
			return e, apperror.NewNotFound("ledger entry", entryID.String())
		}
		return e, fmt.Errorf("get ledger entry: %w", err)
	}
	return e, nil
}

func (r *LedgerRepo) MarkCancelled(ctx context.Context, entryID id.ID, by, reason string, at time.Time) error {
	q := r.builder.Update(entriesTable).
		Set("is_cancelled", true).
		Set("cancelled_by", by).
		Set("cancel_reason", reason).
		Set("cancelled_at", at).
		Where(squirrel.Eq{"id": entryID, "is_cancelled": false})

	n, err := r.exec(ctx, q)
	if err != nil {
		return fmt.Errorf("mark ledger entry cancelled: %w", err)
	}
	if n == 0 {
		if _, err := r.GetByID(ctx, entryID); err != nil {
			return err
		}
		return apperror.NewAlreadyCancelled(entryID.String())
	}
	return nil
}

func (r *LedgerRepo) UpdateMetadata(ctx context.Context, entryID id.ID, remarks, reference *string) error {
	if remarks == nil && reference == nil {
		return nil
	}
	q := r.builder.Update(entriesTable).Where(squirrel.Eq{"id": entryID})
	if remarks != nil {
		q = q.Set("remarks", *remarks)
	}
	if reference != nil {
		q = q.Set("reference", *reference)
	}

	n, err := r.exec(ctx, q)
	if err != nil {
		return fmt.Errorf("update ledger metadata: %w", err)
	}
	if n == 0 {
		return apperror.NewNotFound("ledger entry", entryID.String())
	}
	return nil
}

func (r *LedgerRepo) ExistsForMovement(ctx context.Context, movementID id.ID) (bool, error) {
	var exists bool
	err := r.querier(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM stock_ledger_entries WHERE movement_id = $1)`, movementID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check movement: %w", err)
	}
	return exists, nil
}

// where applies the non-paging part of f.
func where(q squirrel.SelectBuilder, f ledger.Filter) squirrel.SelectBuilder {
	eq := squirrel.Eq{}
	if f.ItemCode != "" {
		eq["item_code"] = f.ItemCode
	}
	if f.WarehouseCode != "" {
		eq["warehouse_code"] = f.WarehouseCode
	}
	if f.BinCode != "" {
		eq["bin_code"] = f.BinCode
	}
	if f.VoucherType != "" {
		eq["voucher_type"] = f.VoucherType
	}
	if f.VoucherNo != "" {
		eq["voucher_no"] = f.VoucherNo
	}
	if f.MovementID != nil {
		eq["movement_id"] = *f.MovementID
	}
	if len(eq) > 0 {
		q = q.Where(eq)
	}
	if f.From != nil {
		q = q.Where(squirrel.GtOrEq{"posting_date": *f.From})
	}
	if f.To != nil {
		q = q.Where(squirrel.LtOrEq{"posting_date": *f.To})
	}
	if f.ExcludeCancelled {
		q = q.Where(squirrel.Eq{"is_cancelled": false, "reversal_of": nil})
	}
	return q
}

func (r *LedgerRepo) listQuery(f ledger.Filter) squirrel.SelectBuilder {
	return where(r.builder.Select(r.columns...).From(entriesTable), f).
		OrderBy("posting_date DESC", "created_at DESC", "id DESC").
		Limit(uint64(f.Limit)).
		Offset(uint64(f.Offset))
}

func (r *LedgerRepo) countQuery(f ledger.Filter) squirrel.SelectBuilder {
	return where(r.builder.Select("COUNT(*)").From(entriesTable), f)
}

func (r *LedgerRepo) List(ctx context.Context, f ledger.Filter) (ledger.Page, error) {
	f = f.Normalized()
	page := ledger.Page{Items: []ledger.StockLedgerEntry{}, Limit: f.Limit, Offset: f.Offset}

	if err := r.get(ctx, &page.TotalCount, r.countQuery(f)); err != nil {
		return ledger.Page{}, fmt.Errorf("count ledger entries: %w", err)
	}
	if int64(f.Offset) >= page.TotalCount {
		return page, nil
	}
	if err := r.selectAll(ctx, &page.Items, r.listQuery(f)); err != nil {
		return ledger.Page{}, fmt.Errorf("list ledger entries: %w", err)
	}
	return page, nil
}

func (r *LedgerRepo) sumQuery(key stocklevel.Key, asOf *time.Time) squirrel.SelectBuilder {
	q := r.builder.Select("COALESCE(SUM(qty), 0)::bigint").From(entriesTable).
		Where(squirrel.Eq{
			"item_code":      key.ItemCode,
			"warehouse_code": key.WarehouseCode,
			"bin_code":       key.BinCode,
		})
	if asOf != nil {
		q = q.Where(squirrel.LtOrEq{"posting_date": *asOf})
	}
	return q
}

func (r *LedgerRepo) SumQty(ctx context.Context, key stocklevel.Key, asOf *time.Time) (types.Quantity, error) {
	var sum types.Quantity
	if err := r.get(ctx, &sum, r.sumQuery(key, asOf)); err != nil {
		return 0, fmt.Errorf("sum ledger qty: %w", err)
	}
	return sum, nil
}

type keySum struct {
	ItemCode      string         `db:"item_code"`
	WarehouseCode string         `db:"warehouse_code"`
	BinCode       string         `db:"bin_code"`
	Qty           types.Quantity `db:"qty"`
}

func (r *LedgerRepo) SumByKey(ctx context.Context) (map[stocklevel.Key]types.Quantity, error) {
	q := r.builder.Select("item_code", "warehouse_code", "bin_code", "SUM(qty)::bigint AS qty").
		From(entriesTable).
		GroupBy("item_code", "warehouse_code", "bin_code")

	var rows []keySum
	if err := r.selectAll(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("sum ledger by key: %w", err)
	}
	out := make(map[stocklevel.Key]types.Quantity, len(rows))
	for _, row := range rows {
		out[stocklevel.Key{ItemCode: row.ItemCode, WarehouseCode: row.WarehouseCode, BinCode: row.BinCode}] = row.Qty
	}
	return out, nil
}
