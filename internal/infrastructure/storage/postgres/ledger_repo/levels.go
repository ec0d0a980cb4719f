package ledger_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/domain/stocklevel"
	"stockledger/internal/infrastructure/storage/postgres"
)

// LevelRepo implements stocklevel.Repository over stock_levels.
type LevelRepo struct {
	base
	columns []string
}

var _ stocklevel.Repository = (*LevelRepo)(nil)

// NewLevelRepo creates a stock level repository.
func NewLevelRepo(txm *postgres.TxManager) *LevelRepo {
	return &LevelRepo{
		base:    newBase(txm),
		columns: postgres.ExtractDBColumns[stocklevel.StockLevel](),
	}
}

func keyEq(key stocklevel.Key) squirrel.Eq {
	return squirrel.Eq{
		"item_code":      key.ItemCode,
		"warehouse_code": key.WarehouseCode,
		"bin_code":       key.BinCode,
	}
}

func (r *LevelRepo) getQuery(key stocklevel.Key, forUpdate bool) squirrel.SelectBuilder {
	q := r.builder.Select(r.columns...).From(levelsTable).Where(keyEq(key))
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}
	return q
}

func (r *LevelRepo) load(ctx context.Context, key stocklevel.Key, forUpdate bool) (stocklevel.StockLevel, error) {
	var l stocklevel.StockLevel
	if err := r.get(ctx, &l, r.getQuery(key, forUpdate)); err != nil {
		if pgxscan.NotFound(err) {
			return stocklevel.New(key), nil
		}
		return l, fmt.Errorf("get stock level: %w", err)
	}
	return l, nil
}

func (r *LevelRepo) Get(ctx context.Context, key stocklevel.Key) (stocklevel.StockLevel, error) {
	return r.load(ctx, key, false)
}

// GetForUpdate locks the row until the transaction ends. A key without a row
// is not locked here; the per-key Locker serializes its first insert.
func (r *LevelRepo) GetForUpdate(ctx context.Context, key stocklevel.Key) (stocklevel.StockLevel, error) {
	return r.load(ctx, key, true)
}

func (r *LevelRepo) saveQuery(l stocklevel.StockLevel) squirrel.Sqlizer {
	if l.Version == 1 {
		return r.builder.Insert(levelsTable).SetMap(postgres.StructToMap(l))
	}
	return r.builder.Update(levelsTable).
		Set("quantity", l.Quantity).
		Set("reserved_quantity", l.ReservedQuantity).
		Set("unit_cost", l.UnitCost).
		Set("last_movement_at", l.LastMovementAt).
		Set("updated_at", l.UpdatedAt).
		Set("version", l.Version).
		Where(keyEq(l.Key())).
		Where(squirrel.Eq{"version": l.Version - 1})
}

func (r *LevelRepo) Save(ctx context.Context, l stocklevel.StockLevel) error {
	n, err := r.exec(ctx, r.saveQuery(l))
	if err != nil {
		if postgres.IsUniqueViolation(err, "") {
			return apperror.NewConcurrentModification("stock level", l.Key().String()).WithCause(err)
		}
		return fmt.Errorf("save stock level: %w", err)
	}
	if n == 0 {
		return apperror.NewConcurrentModification("stock level", l.Key().String())
	}
	return nil
}

func (r *LevelRepo) listQuery(f stocklevel.Filter) squirrel.SelectBuilder {
	q := r.builder.Select(r.columns...).From(levelsTable)
	if f.ItemCode != "" {
		q = q.Where(squirrel.Eq{"item_code": f.ItemCode})
	}
	if f.WarehouseCode != "" {
		q = q.Where(squirrel.Eq{"warehouse_code": f.WarehouseCode})
	}
	if f.LowStockAt != nil {
		q = q.Where(squirrel.Expr("quantity - reserved_quantity <= ?", f.LowStockAt.Int64Scaled()))
	}
	q = q.OrderBy("item_code", "warehouse_code", "bin_code")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	return q
}

func (r *LevelRepo) List(ctx context.Context, f stocklevel.Filter) ([]stocklevel.StockLevel, error) {
	out := []stocklevel.StockLevel{}
	if err := r.selectAll(ctx, &out, r.listQuery(f)); err != nil {
		return nil, fmt.Errorf("list stock levels: %w", err)
	}
	return out, nil
}
