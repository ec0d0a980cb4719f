package ledger_repo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/domain/batch"
	"stockledger/internal/domain/movement"
	"stockledger/internal/infrastructure/storage/postgres"
)

type entryTypeRow struct {
	MovementType       string    `db:"movement_type"`
	Name               string    `db:"name"`
	Purpose            string    `db:"purpose"`
	AddToTransit       bool      `db:"add_to_transit"`
	TransitWarehouse   string    `db:"transit_warehouse"`
	AllowNegativeStock bool      `db:"allow_negative_stock"`
	BatchCounter       string    `db:"batch_counter"`
	Condition          string    `db:"condition"`
	UpdatedAt          time.Time `db:"updated_at"`
}

func (row entryTypeRow) toDomain() movement.StockEntryType {
	return movement.StockEntryType{
		Name:               row.Name,
		MovementType:       movement.Type(row.MovementType),
		Purpose:            row.Purpose,
		AddToTransit:       row.AddToTransit,
		TransitWarehouse:   row.TransitWarehouse,
		AllowNegativeStock: row.AllowNegativeStock,
		BatchCounter:       batch.Counter(row.BatchCounter),
		Condition:          row.Condition,
	}
}

func fromEntryType(et movement.StockEntryType, now time.Time) entryTypeRow {
	return entryTypeRow{
		MovementType:       string(et.MovementType),
		Name:               et.Name,
		Purpose:            et.Purpose,
		AddToTransit:       et.AddToTransit,
		TransitWarehouse:   et.TransitWarehouse,
		AllowNegativeStock: et.AllowNegativeStock,
		BatchCounter:       string(et.BatchCounter),
		Condition:          et.Condition,
		UpdatedAt:          now,
	}
}

// EntryTypeRepo implements movement.EntryTypeRepository over stock_entry_types.
// Compiled conditions are cached per movement type until the row changes.
type EntryTypeRepo struct {
	base
	columns []string

	mu       sync.Mutex
	compiled map[movement.Type]compiledEntryType
}

type compiledEntryType struct {
	row entryTypeRow
	et  movement.StockEntryType
}

var _ movement.EntryTypeRepository = (*EntryTypeRepo)(nil)

// NewEntryTypeRepo creates an entry type repository.
func NewEntryTypeRepo(txm *postgres.TxManager) *EntryTypeRepo {
	return &EntryTypeRepo{
		base:     newBase(txm),
		columns:  postgres.ExtractDBColumns[entryTypeRow](),
		compiled: make(map[movement.Type]compiledEntryType),
	}
}

func (r *EntryTypeRepo) Get(ctx context.Context, t movement.Type) (movement.StockEntryType, error) {
	var row entryTypeRow
	q := r.builder.Select(r.columns...).From(entryTypesTable).Where(squirrel.Eq{"movement_type": string(t)})
	if err := r.get(ctx, &row, q); err != nil {
		if pgxscan.NotFound(err) {
			return movement.StockEntryType{}, apperror.NewNotFound("stock entry type", string(t))
		}
		return movement.StockEntryType{}, fmt.Errorf("get entry type: %w", err)
	}
	return r.compile(row)
}

func (r *EntryTypeRepo) List(ctx context.Context) ([]movement.StockEntryType, error) {
	var rows []entryTypeRow
	q := r.builder.Select(r.columns...).From(entryTypesTable).OrderBy("movement_type")
	if err := r.selectAll(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("list entry types: %w", err)
	}
	out := make([]movement.StockEntryType, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// Put validates the condition and upserts the entry type of its movement type.
func (r *EntryTypeRepo) Put(ctx context.Context, et movement.StockEntryType) error {
	if !et.MovementType.Valid() {
		return apperror.NewValidation("unknown movement type").WithDetail("movement_type", string(et.MovementType))
	}
	row := fromEntryType(et, time.Now().UTC())
	if _, err := r.compile(row); err != nil {
		return err
	}
	if _, err := r.exec(ctx, r.upsertQuery(row, true)); err != nil {
		return fmt.Errorf("put entry type: %w", err)
	}
	return nil
}

// SeedDefaults inserts movement.DefaultEntryTypes for movement types without a row.
func (r *EntryTypeRepo) SeedDefaults(ctx context.Context) error {
	now := time.Now().UTC()
	for _, et := range movement.DefaultEntryTypes() {
		if _, err := r.exec(ctx, r.upsertQuery(fromEntryType(et, now), false)); err != nil {
			return fmt.Errorf("seed entry type %s: %w", et.MovementType, err)
		}
	}
	return nil
}

func (r *EntryTypeRepo) upsertQuery(row entryTypeRow, overwrite bool) squirrel.InsertBuilder {
	q := r.builder.Insert(entryTypesTable).SetMap(postgres.StructToMap(row))
	if !overwrite {
		return q.Suffix("ON CONFLICT (movement_type) DO NOTHING")
	}
	return q.Suffix(`ON CONFLICT (movement_type) DO UPDATE SET
		name = EXCLUDED.name,
		purpose = EXCLUDED.purpose,
		add_to_transit = EXCLUDED.add_to_transit,
		transit_warehouse = EXCLUDED.transit_warehouse,
		allow_negative_stock = EXCLUDED.allow_negative_stock,
		batch_counter = EXCLUDED.batch_counter,
		condition = EXCLUDED.condition,
		updated_at = EXCLUDED.updated_at`)
}

// compile returns the cached program while the stored row is unchanged.
func (r *EntryTypeRepo) compile(row entryTypeRow) (movement.StockEntryType, error) {
	t := movement.Type(row.MovementType)
	r.mu.Lock()
	cached, ok := r.compiled[t]
	r.mu.Unlock()
	if ok && cached.row == row {
		return cached.et, nil
	}

	et, err := row.toDomain().Compile()
	if err != nil {
		return movement.StockEntryType{}, err
	}
	r.mu.Lock()
	r.compiled[t] = compiledEntryType{row: row, et: et}
	r.mu.Unlock()
	return et, nil
}
