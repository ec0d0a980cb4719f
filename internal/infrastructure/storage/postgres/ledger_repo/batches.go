package ledger_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/batch"
	"stockledger/internal/infrastructure/storage/postgres"
)

// BatchRepo implements batch.Repository over stock_batches.
type BatchRepo struct {
	base
	columns []string
}

var _ batch.Repository = (*BatchRepo)(nil)

// NewBatchRepo creates a batch repository.
func NewBatchRepo(txm *postgres.TxManager) *BatchRepo {
	return &BatchRepo{
		base:    newBase(txm),
		columns: postgres.ExtractDBColumns[batch.Batch](),
	}
}

func (r *BatchRepo) getBy(ctx context.Context, eq squirrel.Eq, ref string) (batch.Batch, error) {
	var b batch.Batch
	q := r.builder.Select(r.columns...).From(batchesTable).Where(eq)
	if err := r.get(ctx, &b, q); err != nil {
		if pgxscan.NotFound(err) {
			return b, apperror.NewNotFound("batch", ref)
		}
		return b, fmt.Errorf("get batch: %w", err)
	}
	return b, nil
}

func (r *BatchRepo) GetByID(ctx context.Context, batchID id.ID) (batch.Batch, error) {
	return r.getBy(ctx, squirrel.Eq{"id": batchID}, batchID.String())
}

func (r *BatchRepo) GetByNo(ctx context.Context, itemCode, batchNo string) (batch.Batch, error) {
	return r.getBy(ctx, squirrel.Eq{"item_code": itemCode, "batch_no": batchNo}, itemCode+"/"+batchNo)
}

func (r *BatchRepo) saveQuery(b batch.Batch) squirrel.Sqlizer {
	if b.Version == 1 {
		return r.builder.Insert(batchesTable).SetMap(postgres.StructToMap(b))
	}
	return r.builder.Update(batchesTable).
		Set("quantity", b.Quantity).
		Set("transfer_quantity", b.TransferQuantity).
		Set("consumed_quantity", b.ConsumedQuantity).
		Set("dispatched_quantity", b.DispatchedQuantity).
		Set("returned_quantity", b.ReturnedQuantity).
		Set("scrapped_quantity", b.ScrappedQuantity).
		Set("retain_sample", b.RetainSample).
		Set("sample_quantity", b.SampleQuantity).
		Set("disabled", b.Disabled).
		Set("updated_at", b.UpdatedAt).
		Set("version", b.Version).
		Where(squirrel.Eq{"id": b.ID, "version": b.Version - 1})
}

func (r *BatchRepo) Save(ctx context.Context, b batch.Batch) error {
	n, err := r.exec(ctx, r.saveQuery(b))
	if err != nil {
		if postgres.IsUniqueViolation(err, "") {
			return apperror.NewConcurrentModification("batch", b.ItemCode+"/"+b.BatchNo).WithCause(err)
		}
		return fmt.Errorf("save batch: %w", err)
	}
	if n == 0 {
		return apperror.NewConcurrentModification("batch", b.ID.String())
	}
	return nil
}

// availableExpr mirrors batch.Batch.AvailableQuantity.
const availableExpr = "quantity - consumed_quantity - dispatched_quantity - scrapped_quantity + returned_quantity"

func (r *BatchRepo) listQuery(f batch.Filter) squirrel.SelectBuilder {
	q := r.builder.Select(r.columns...).From(batchesTable)
	if f.ItemCode != "" {
		q = q.Where(squirrel.Eq{"item_code": f.ItemCode})
	}
	if !f.IncludeDisabled {
		q = q.Where(squirrel.Eq{"disabled": false})
	}
	if f.OnlyAvailable {
		q = q.Where(availableExpr + " > 0")
	}
	if f.ExpiresAfter != nil {
		q = q.Where(squirrel.Gt{"expiry_date": *f.ExpiresAfter})
	}
	if f.ExpiresBy != nil {
		q = q.Where(squirrel.LtOrEq{"expiry_date": *f.ExpiresBy})
	}
	q = q.OrderBy("expiry_date ASC NULLS LAST", "batch_no")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	return q
}

func (r *BatchRepo) List(ctx context.Context, f batch.Filter) ([]batch.Batch, error) {
	out := []batch.Batch{}
	if err := r.selectAll(ctx, &out, r.listQuery(f)); err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return out, nil
}
