package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/events"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/movement"
	"stockledger/internal/domain/stocklevel"
)

var (
	at  = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	key = stocklevel.NewKey("NUT", "MAIN", "")
)

func entry(t *testing.T, qty int64) ledger.StockLedgerEntry {
	t.Helper()
	e, err := ledger.NewEntry(ledger.EntryParams{
		MovementID:    id.New(),
		Key:           key,
		VoucherType:   "Receipt",
		VoucherNo:     "R-1",
		Qty:           types.NewQuantity(qty),
		ValuationRate: types.MustMoney("1"),
		CreatedBy:     "alice",
	}, at)
	require.NoError(t, err)
	return e
}

func TestTxManager_RollsBackEveryWrite(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	kept := entry(t, 3)
	require.NoError(t, s.Ledger().Append(ctx, kept))

	boom := errors.New("boom")
	err := s.TxManager().RunInTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, s.Ledger().Append(ctx, entry(t, 5)))
		require.NoError(t, s.Ledger().MarkCancelled(ctx, kept.ID, "bob", "test", at))

		l, _, err := stocklevel.New(key).ReceiveStock(types.NewQuantity(5), types.MustMoney("1"), at)
		require.NoError(t, err)
		require.NoError(t, s.Levels().Save(ctx, l))

		require.NoError(t, s.Outbox().Publish(ctx, []events.Event{events.StockLevelChanged{Kind: events.TypeStockLevelReceived, At: at}}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, 1, s.EntryCount())
	got, err := s.Ledger().GetByID(ctx, kept.ID)
	require.NoError(t, err)
	assert.False(t, got.IsCancelled)

	l, err := s.Levels().Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 0, l.Version)
	assert.Empty(t, s.OutboxEvents())
}

func TestTxManager_Nested(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	err := s.TxManager().RunInTransaction(ctx, func(ctx context.Context) error {
		inner := s.TxManager().RunInTransaction(ctx, func(ctx context.Context) error {
			return s.Ledger().Append(ctx, entry(t, 1))
		})
		require.NoError(t, inner)
		return errors.New("outer fails")
	})
	require.Error(t, err)
	assert.Equal(t, 0, s.EntryCount(), "inner writes belong to the outer transaction")
}

func TestTxManager_ReadOnlyWaitsForOpenTransactions(t *testing.T) {
	s := NewStore()
	txm := s.TxManager()
	ran := make(chan struct{})

	err := txm.RunInTransaction(context.Background(), func(ctx context.Context) error {
		require.NoError(t, s.Ledger().Append(ctx, entry(t, 1)))
		go func() {
			_ = txm.ReadOnly(context.Background(), func(context.Context) error {
				close(ran)
				return nil
			})
		}()
		select {
		case <-ran:
			t.Error("read-only snapshot ran while a transaction was open")
		case <-time.After(50 * time.Millisecond):
		}
		return nil
	})
	require.NoError(t, err)

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("read-only snapshot never ran")
	}
}

func TestLevelRepo_OptimisticVersion(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	l, _, err := stocklevel.New(key).ReceiveStock(types.NewQuantity(5), types.Zero(), at)
	require.NoError(t, err)
	require.NoError(t, s.Levels().Save(ctx, l))

	stale := l
	l, _, err = l.IssueStock(types.NewQuantity(1), at)
	require.NoError(t, err)
	require.NoError(t, s.Levels().Save(ctx, l))

	err = s.Levels().Save(ctx, stale)
	assert.Equal(t, apperror.CodeConcurrentModification, apperror.CodeOf(err))
}

func TestLedgerRepo_SumByKeyAndPaging(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, s.Ledger().Append(ctx, entry(t, i)))
	}

	sums, err := s.Ledger().SumByKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(15), sums[key])

	page, err := s.Ledger().List(ctx, ledger.Filter{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.EqualValues(t, 5, page.TotalCount)
	assert.Len(t, page.Items, 1)

	page, err = s.Ledger().List(ctx, ledger.Filter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestEntryTypeRepo_PutCompiles(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	err := s.EntryTypes().Put(movement.StockEntryType{Name: "bad", MovementType: movement.TypeIssue, Condition: "quantity +"})
	assert.Equal(t, apperror.CodeValidation, apperror.CodeOf(err))

	list, err := s.EntryTypes().List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, len(movement.AllTypes))

	et, err := s.EntryTypes().Get(ctx, movement.TypeIssue)
	require.NoError(t, err)
	assert.Equal(t, "Material Issue", et.Name)
}
