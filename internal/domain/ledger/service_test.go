package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/stocklevel"
	"stockledger/internal/infrastructure/storage/memory"
)

var (
	day1 = time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	day2 = day1.AddDate(0, 0, 1)
	key  = stocklevel.NewKey("BOLT-M8", "MAIN", "")
)

func params(qty int64, at time.Time, voucher string) ledger.EntryParams {
	return ledger.EntryParams{
		MovementID:    id.New(),
		Key:           key,
		PostingDate:   at,
		VoucherType:   "Receipt",
		VoucherNo:     voucher,
		Qty:           types.NewQuantity(qty),
		ValuationRate: types.MustMoney("0.25"),
		CreatedBy:     "alice",
	}
}

func TestService_PostAndQuery(t *testing.T) {
	svc := ledger.NewService(memory.NewStore().Ledger()).WithClock(func() time.Time { return day2 })
	ctx := context.Background()

	first, err := svc.PostEntry(ctx, params(100, day1, "PR-1"))
	require.NoError(t, err)
	assert.True(t, first.StockValue.Equal(types.MustMoney("25")))

	_, err = svc.PostEntry(ctx, params(-40, day2, "PR-2"))
	require.NoError(t, err)

	bal, err := svc.BalanceAt(ctx, key, day1)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(100), bal)

	bal, err = svc.BalanceAt(ctx, key, day2)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(60), bal)

	page, err := svc.List(ctx, ledger.Filter{ItemCode: "BOLT-M8"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.TotalCount)
	assert.Equal(t, "PR-2", page.Items[0].VoucherNo, "newest first")
	assert.Equal(t, ledger.DefaultLimit, page.Limit)

	byVoucher, err := svc.ListByVoucher(ctx, "Receipt", "PR-1")
	require.NoError(t, err)
	require.Len(t, byVoucher, 1)
	assert.Equal(t, first.ID, byVoucher[0].ID)
}

func TestService_Rejections(t *testing.T) {
	svc := ledger.NewService(memory.NewStore().Ledger())
	ctx := context.Background()

	_, err := svc.PostEntry(ctx, params(0, day1, "PR-1"))
	assert.ErrorIs(t, err, apperror.ErrInvalidMovement)

	p := params(1, day1, "PR-1")
	p.ValuationRate = types.MustMoney("-1")
	_, err = svc.PostEntry(ctx, p)
	assert.ErrorIs(t, err, apperror.ErrInvalidMovement)

	p = params(1, day1, "")
	_, err = svc.PostEntry(ctx, p)
	assert.ErrorIs(t, err, apperror.ErrInvalidMovement)

	_, err = svc.List(ctx, ledger.Filter{From: &day2, To: &day1})
	assert.Equal(t, apperror.CodeValidation, apperror.CodeOf(err))

	p = params(5, day1, "PR-9")
	_, err = svc.PostEntry(ctx, p)
	require.NoError(t, err)
	_, err = svc.PostEntry(ctx, p)
	assert.Equal(t, apperror.CodeAlreadyPosted, apperror.CodeOf(err), "one entry per movement leg")
}

func TestService_MetadataAndCancelFlag(t *testing.T) {
	svc := ledger.NewService(memory.NewStore().Ledger())
	ctx := context.Background()
	e, err := svc.PostEntry(ctx, params(10, day1, "PR-1"))
	require.NoError(t, err)

	_, err = svc.UpdateMetadata(ctx, e.ID, ledger.MetadataUpdate{})
	assert.Equal(t, apperror.CodeValidation, apperror.CodeOf(err))

	remarks := "pallet 7"
	updated, err := svc.UpdateMetadata(ctx, e.ID, ledger.MetadataUpdate{Remarks: &remarks})
	require.NoError(t, err)
	assert.Equal(t, "pallet 7", updated.Remarks)
	assert.Equal(t, e.Qty, updated.Qty)

	cancelled, err := svc.CancelEntry(ctx, e.ID, "bob", "typo")
	require.NoError(t, err)
	assert.True(t, cancelled.IsCancelled)

	_, err = svc.CancelEntry(ctx, e.ID, "bob", "typo")
	assert.ErrorIs(t, err, apperror.ErrAlreadyCancelled)

	page, err := svc.List(ctx, ledger.Filter{ExcludeCancelled: true})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	_, err = svc.GetEntry(ctx, id.New())
	assert.True(t, apperror.IsNotFound(err))
}
