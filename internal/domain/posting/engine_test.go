package posting

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/batch"
	"stockledger/internal/domain/catalog"
	"stockledger/internal/domain/events"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/movement"
	"stockledger/internal/domain/stocklevel"
	"stockledger/internal/infrastructure/storage/memory"
)

var now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

const (
	item   = "SKU-1"
	mainWH = "MAIN"
)

func qty(n int64) types.Quantity { return types.NewQuantity(n) }

func money(s string) types.Money { return types.MustMoney(s) }

type fixture struct {
	store  *memory.Store
	engine *Engine
}

func newFixture(t *testing.T, opts ...func(*Config)) *fixture {
	t.Helper()
	store := memory.NewStore()
	cfg := Config{
		TxManager:  store.TxManager(),
		Ledger:     store.Ledger(),
		Levels:     store.Levels(),
		Batches:    store.Batches(),
		EntryTypes: store.EntryTypes(),
		Publisher:  store.Outbox(),
		Journal:    store.Journal(),
		Clock:      func() time.Time { return now },
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &fixture{store: store, engine: NewEngine(cfg)}
}

// post takes the result of a movement constructor as-is:
// f.post(t)(movement.CreateIssue(...)).
func (f *fixture) post(t *testing.T) func(movement.StockMovement, error) Result {
	return func(m movement.StockMovement, err error) Result {
		t.Helper()
		require.NoError(t, err)
		res, err := f.engine.PostMovement(context.Background(), m)
		require.NoError(t, err)
		return res
	}
}

func (f *fixture) receive(t *testing.T, n int64, cost string, opts ...movement.Option) Result {
	t.Helper()
	return f.post(t)(movement.CreateReceipt(item, mainWH, qty(n), money(cost), "alice", opts...))
}

func (f *fixture) level(t *testing.T, warehouse string) stocklevel.StockLevel {
	t.Helper()
	l, err := f.store.Levels().Get(context.Background(), stocklevel.NewKey(item, warehouse, ""))
	require.NoError(t, err)
	return l
}

func TestPostMovement_WeightedAverage(t *testing.T) {
	f := newFixture(t)

	f.receive(t, 100, "10")
	res := f.receive(t, 50, "20")

	assert.Equal(t, qty(150), res.Level.Quantity)
	assert.True(t, res.Level.UnitCost.Equal(money("13.333333")), "got %s", res.Level.UnitCost)
	assert.True(t, res.Entry.ValuationRate.Equal(money("20")))
	assert.True(t, res.Entry.StockValue.Equal(money("1000")))
	assert.True(t, res.Entry.BalanceRate.Equal(money("13.333333")))
	assert.Equal(t, qty(150), res.Entry.QtyAfterTransaction)

	issue := f.post(t)(movement.CreateIssue(item, mainWH, qty(30), "sale", "bob"))
	assert.Equal(t, qty(-30), issue.Entry.Qty)
	assert.True(t, issue.Entry.ValuationRate.Equal(money("13.333333")), "issues go out at the running average")
	assert.True(t, issue.Level.UnitCost.Equal(money("13.333333")))
	assert.Equal(t, qty(120), issue.Level.Quantity)
}

func TestPostMovement_ZeroCostReceiptKeepsAverage(t *testing.T) {
	f := newFixture(t)
	f.receive(t, 10, "8")

	res := f.receive(t, 10, "0")

	assert.True(t, res.Entry.ValuationRate.Equal(money("8")))
	assert.True(t, res.Level.UnitCost.Equal(money("8")))
}

func TestPostMovement_InsufficientStockLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, 70, "10")
	_, err := f.engine.Reserve(ctx, stocklevel.NewKey(item, mainWH, ""), qty(10))
	require.NoError(t, err)
	eventsBefore := len(f.store.OutboxEvents())

	m, err := movement.CreateIssue(item, mainWH, qty(65), "sale", "bob")
	require.NoError(t, err)
	res, err := f.engine.PostMovement(ctx, m)

	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrInsufficientStock)
	assert.Equal(t, movement.StatusRejected, res.Status)
	assert.Equal(t, 1, f.store.EntryCount())
	assert.Len(t, f.store.OutboxEvents(), eventsBefore)
	assert.Equal(t, qty(70), f.level(t, mainWH).Quantity)

	rec, err := f.store.Journal().Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, movement.StatusRejected, rec.Status)
	assert.Equal(t, apperror.CodeInsufficientStock, rec.ErrorCode)

	f.post(t)(movement.CreateIssue(item, mainWH, qty(60), "sale", "bob"))
	l := f.level(t, mainWH)
	assert.Equal(t, qty(10), l.Quantity)
	assert.Equal(t, qty(10), l.ReservedQuantity)
	assert.Equal(t, qty(0), l.AvailableQuantity())
}

type failingBatches struct {
	batch.Repository
}

func (failingBatches) Save(context.Context, batch.Batch) error { return errors.New("disk full") }

func TestPostMovement_AtomicOnFailure(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.Batches = failingBatches{Repository: cfg.Batches}
	})

	m, err := movement.CreateReceipt(item, mainWH, qty(10), money("5"), "alice", movement.WithBatch("B-1", nil))
	require.NoError(t, err)
	_, err = f.engine.PostMovement(context.Background(), m)

	require.Error(t, err)
	assert.Equal(t, 0, f.store.EntryCount())
	assert.Empty(t, f.store.OutboxEvents())
	assert.Equal(t, 0, f.level(t, mainWH).Version)
	_, err = f.store.Batches().GetByNo(context.Background(), item, "B-1")
	assert.True(t, apperror.IsNotFound(err))
}

func TestPostMovement_ConcurrentIssuesNeverOversell(t *testing.T) {
	f := newFixture(t)
	f.receive(t, 100, "1")

	var posted, rejected atomic.Int32
	var g errgroup.Group
	for i := 0; i < 50; i++ {
		g.Go(func() error {
			m, err := movement.CreateIssue(item, mainWH, qty(3), "sale", "bot")
			if err != nil {
				return err
			}
			_, err = f.engine.PostMovement(context.Background(), m)
			switch {
			case err == nil:
				posted.Add(1)
			case apperror.IsInsufficientStock(err):
				rejected.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, 33, posted.Load())
	assert.EqualValues(t, 17, rejected.Load())
	l := f.level(t, mainWH)
	assert.Equal(t, qty(1), l.Quantity)

	report, err := f.engine.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Discrepancies)
}

func TestPostMovement_Events(t *testing.T) {
	f := newFixture(t)

	f.receive(t, 10, "2", movement.WithBatch("B-1", nil))

	got := make([]string, 0)
	for _, e := range f.store.OutboxEvents() {
		got = append(got, e.EventType())
	}
	assert.Equal(t, []string{
		events.TypeLedgerEntryCreated,
		events.TypeStockLevelReceived,
		events.TypeBatchQuantityUpdated,
	}, got)
}

func TestPostMovement_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := movement.CreateReceipt(item, mainWH, qty(5), money("3"), "alice")
	require.NoError(t, err)
	_, err = f.engine.PostMovement(ctx, m)
	require.NoError(t, err)

	_, err = f.engine.PostMovement(ctx, m)
	require.Error(t, err)
	assert.Equal(t, apperror.CodeAlreadyPosted, apperror.CodeOf(err))
	assert.Equal(t, 1, f.store.EntryCount())
	assert.Equal(t, qty(5), f.level(t, mainWH).Quantity)

	rec, err := f.store.Journal().Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, movement.StatusPosted, rec.Status)
	require.NotNil(t, rec.EntryID)
}

func TestPostMovement_BatchCounters(t *testing.T) {
	f := newFixture(t)
	f.receive(t, 20, "4", movement.WithBatch("B-1", nil))
	f.receive(t, 5, "4", movement.WithBatch("B-1", nil))

	res := f.post(t)(movement.CreateDamage(item, mainWH, qty(3), "crushed", "bob", movement.WithBatch("B-1", nil)))
	require.NotNil(t, res.Batch)
	assert.Equal(t, qty(25), res.Batch.Quantity)
	assert.Equal(t, qty(3), res.Batch.ScrappedQuantity)
	assert.Equal(t, qty(22), res.Batch.AvailableQuantity)
	assert.Equal(t, res.Batch.ID, *res.Entry.BatchID)

	res = f.post(t)(movement.CreateIssue(item, mainWH, qty(2), "sale", "bob", movement.WithBatch("B-1", nil)))
	assert.Equal(t, qty(2), res.Batch.DispatchedQuantity)

	res = f.post(t)(movement.CreateReturn(item, mainWH, qty(1), money("0"), "bob", movement.WithBatch("B-1", nil)))
	assert.Equal(t, qty(1), res.Batch.ReturnedQuantity)
	assert.Equal(t, qty(21), res.Batch.AvailableQuantity)
}

func TestPostMovement_UnknownBatchOnIssue(t *testing.T) {
	f := newFixture(t)
	f.receive(t, 10, "1")

	m, err := movement.CreateIssue(item, mainWH, qty(1), "sale", "bob", movement.WithBatch("NOPE", nil))
	require.NoError(t, err)
	_, err = f.engine.PostMovement(context.Background(), m)
	assert.ErrorIs(t, err, apperror.ErrInvalidMovement)
}

func TestPostMovement_ExpiredBatchCannotBeIssued(t *testing.T) {
	f := newFixture(t)
	expired := now.AddDate(0, 0, -1)
	f.receive(t, 10, "1", movement.WithBatch("OLD", &batch.Attributes{ExpiryDate: &expired}))

	m, err := movement.CreateIssue(item, mainWH, qty(1), "sale", "bob", movement.WithBatch("OLD", nil))
	require.NoError(t, err)
	_, err = f.engine.PostMovement(context.Background(), m)
	assert.ErrorIs(t, err, apperror.ErrInvalidMovement)

	res := f.post(t)(movement.CreateExpiry(item, mainWH, "OLD", qty(10), "qa"))
	assert.Equal(t, qty(10), res.Batch.ScrappedQuantity)
	assert.Equal(t, qty(0), res.Level.Quantity)
}

func TestPostMovement_Transfer(t *testing.T) {
	f := newFixture(t)
	f.receive(t, 100, "10")

	res := f.post(t)(movement.CreateTransfer(item, mainWH, "STORE", qty(30), "carol"))

	require.NotNil(t, res.Counterpart)
	require.NotNil(t, res.TargetLevel)
	assert.Equal(t, ledger.LegPrimary, res.Entry.Leg)
	assert.Equal(t, ledger.LegCounterpart, res.Counterpart.Leg)
	assert.Equal(t, res.Entry.MovementID, res.Counterpart.MovementID)
	assert.Equal(t, qty(-30), res.Entry.Qty)
	assert.Equal(t, qty(30), res.Counterpart.Qty)
	assert.True(t, res.Counterpart.ValuationRate.Equal(money("10")))
	assert.True(t, res.Entry.StockValue.Add(res.Counterpart.StockValue).IsZero(), "transfer moves value without creating it")

	assert.Equal(t, qty(70), f.level(t, mainWH).Quantity)
	store := f.level(t, "STORE")
	assert.Equal(t, qty(30), store.Quantity)
	assert.True(t, store.UnitCost.Equal(money("10")))
}

func TestPostMovement_TransferViaTransit(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.EntryTypes().Put(movement.StockEntryType{
		Name:             "Transit Transfer",
		MovementType:     movement.TypeTransfer,
		AddToTransit:     true,
		TransitWarehouse: "TRANSIT",
	}))
	f.receive(t, 10, "2")

	res := f.post(t)(movement.CreateTransfer(item, mainWH, "STORE", qty(4), "carol"))

	assert.Equal(t, "TRANSIT", res.Counterpart.WarehouseCode)
	assert.Equal(t, qty(4), f.level(t, "TRANSIT").Quantity)
	assert.Equal(t, qty(0), f.level(t, "STORE").Quantity)
}

func TestPostMovement_EntryTypeCondition(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.EntryTypes().Put(movement.StockEntryType{
		Name:         "Small Issue",
		MovementType: movement.TypeIssue,
		Condition:    `quantity <= 10.0 && reason != ""`,
	}))
	f.receive(t, 100, "1")

	m, err := movement.CreateIssue(item, mainWH, qty(20), "sale", "bob")
	require.NoError(t, err)
	_, err = f.engine.PostMovement(context.Background(), m)
	assert.ErrorIs(t, err, apperror.ErrInvalidMovement)

	f.post(t)(movement.CreateIssue(item, mainWH, qty(10), "sale", "bob"))
	assert.Equal(t, qty(90), f.level(t, mainWH).Quantity)
}

func TestPostMovement_AllowNegativeStock(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.EntryTypes().Put(movement.StockEntryType{
		Name:               "Backflush Issue",
		MovementType:       movement.TypeIssue,
		AllowNegativeStock: true,
	}))

	res := f.post(t)(movement.CreateIssue(item, mainWH, qty(5), "backflush", "mrp"))

	assert.Equal(t, qty(-5), res.Level.Quantity)
	assert.Equal(t, qty(-5), res.Entry.QtyAfterTransaction)

	res = f.receive(t, 10, "3")
	assert.Equal(t, qty(5), res.Level.Quantity)
	assert.True(t, res.Level.UnitCost.Equal(money("3")), "a negative balance carries no cost into the average")
}

func TestPostMovement_Catalog(t *testing.T) {
	cat := catalog.NewStatic().
		AddItem(catalog.Item{Code: item, IsStockItem: true, HasBatchNo: true}).
		AddItem(catalog.Item{Code: "SERVICE", IsStockItem: false}).
		AddWarehouse(catalog.Warehouse{Code: mainWH}, "A-01").
		AddWarehouse(catalog.Warehouse{Code: "OLD", Disabled: true})
	f := newFixture(t, func(cfg *Config) { cfg.Catalog = cat })
	ctx := context.Background()

	tests := []struct {
		name string
		m    func() (movement.StockMovement, error)
	}{
		{"unknown item", func() (movement.StockMovement, error) {
			return movement.CreateReceipt("GHOST", mainWH, qty(1), money("1"), "alice")
		}},
		{"not a stock item", func() (movement.StockMovement, error) {
			return movement.CreateReceipt("SERVICE", mainWH, qty(1), money("1"), "alice")
		}},
		{"batch required", func() (movement.StockMovement, error) {
			return movement.CreateReceipt(item, mainWH, qty(1), money("1"), "alice")
		}},
		{"disabled warehouse", func() (movement.StockMovement, error) {
			return movement.CreateReceipt(item, "OLD", qty(1), money("1"), "alice", movement.WithBatch("B", nil))
		}},
		{"unknown bin", func() (movement.StockMovement, error) {
			return movement.CreateReceipt(item, mainWH, qty(1), money("1"), "alice", movement.WithBatch("B", nil), movement.WithBin("Z-99"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := tt.m()
			require.NoError(t, err)
			_, err = f.engine.PostMovement(ctx, m)
			assert.ErrorIs(t, err, apperror.ErrInvalidMovement)
		})
	}

	f.post(t)(movement.CreateReceipt(item, mainWH, qty(1), money("1"), "alice", movement.WithBatch("B", nil), movement.WithBin("A-01")))
}

func TestPostMovement_LockTimeout(t *testing.T) {
	locker := NewLocalLocker()
	f := newFixture(t, func(cfg *Config) {
		cfg.Locker = locker
		cfg.LockTimeout = 20 * time.Millisecond
	})

	unlock, err := locker.Lock(context.Background(), levelLock(stocklevel.NewKey(item, mainWH, "")))
	require.NoError(t, err)
	defer unlock()

	m, err := movement.CreateReceipt(item, mainWH, qty(1), money("1"), "alice")
	require.NoError(t, err)
	_, err = f.engine.PostMovement(context.Background(), m)
	assert.Equal(t, apperror.CodeLockTimeout, apperror.CodeOf(err))
	assert.Equal(t, 0, f.store.EntryCount())
}

func TestReserveAndRelease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := stocklevel.NewKey(item, mainWH, "")
	f.receive(t, 10, "1")

	v, err := f.engine.Reserve(ctx, key, qty(8))
	require.NoError(t, err)
	assert.Equal(t, qty(2), v.AvailableQuantity)

	_, err = f.engine.Reserve(ctx, key, qty(3))
	assert.ErrorIs(t, err, apperror.ErrInsufficientStock)

	_, err = f.engine.Release(ctx, key, qty(9))
	assert.ErrorIs(t, err, apperror.ErrInsufficientReservation)

	v, err = f.engine.Release(ctx, key, qty(8))
	require.NoError(t, err)
	assert.Equal(t, qty(0), v.ReservedQuantity)
	assert.Equal(t, 1, f.store.EntryCount(), "reservations never touch the ledger")
}

type countingVouchers map[string]int

func (c countingVouchers) Next(_ context.Context, series string, _ time.Time) (string, error) {
	c[series]++
	return fmt.Sprintf("%s-%05d", series, c[series]), nil
}

func TestPostMovement_VoucherNumbering(t *testing.T) {
	vouchers := countingVouchers{}
	f := newFixture(t, func(c *Config) { c.Vouchers = vouchers })

	first := f.receive(t, 10, "1")
	second := f.receive(t, 5, "1")
	named := f.receive(t, 1, "1", movement.WithVoucherNo("PO-77"))
	issue := f.post(t)(movement.CreateIssue(item, mainWH, qty(2), "sale", "bob"))

	assert.Equal(t, "REC-00001", first.Entry.VoucherNo)
	assert.Equal(t, "REC-00002", second.Entry.VoucherNo)
	assert.Equal(t, "PO-77", named.Entry.VoucherNo)
	assert.Equal(t, "ISS-00001", issue.Entry.VoucherNo)
	assert.Equal(t, 2, vouchers["REC"])
}
