package stocklevel_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/types"
	"stockledger/internal/domain/stocklevel"
	"stockledger/internal/infrastructure/storage/memory"
)

func TestService_Queries(t *testing.T) {
	repo := memory.NewStore().Levels()
	svc := stocklevel.NewService(repo)
	ctx := context.Background()
	at := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	put := func(bin string, onHand, reserved int64) {
		l, _, err := stocklevel.New(stocklevel.NewKey("CABLE", "MAIN", bin)).ReceiveStock(types.NewQuantity(onHand), types.MustMoney("2"), at)
		require.NoError(t, err)
		if reserved > 0 {
			l, _, err = l.ReserveStock(types.NewQuantity(reserved), at)
			require.NoError(t, err)
		}
		require.NoError(t, repo.Save(ctx, l))
	}
	put("", 10, 0)
	put("A-01", 5, 4)
	put("A-02", 8, 0)

	avail, err := svc.GetAvailableQuantity(ctx, "CABLE", "MAIN")
	require.NoError(t, err)
	assert.Equal(t, "19", avail.String())

	low, err := svc.ListLowStock(ctx, "MAIN", types.NewQuantity(5))
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, "A-01", low[0].BinCode)

	v, err := svc.GetStockLevel(ctx, stocklevel.NewKey("CABLE", "EMPTY", ""))
	require.NoError(t, err)
	assert.True(t, v.Quantity.IsZero())

	_, err = svc.GetStockLevel(ctx, stocklevel.NewKey("", "MAIN", ""))
	assert.Error(t, err)

	all, err := svc.ListByItem(ctx, "CABLE")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestService_AvailableIgnoresNegativeBins(t *testing.T) {
	repo := memory.NewStore().Levels()
	svc := stocklevel.NewService(repo)
	ctx := context.Background()
	at := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	l, _, err := stocklevel.New(stocklevel.NewKey("CABLE", "MAIN", "A-01")).ReceiveStock(types.NewQuantity(6), types.MustMoney("2"), at)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, l))

	l, _, err = stocklevel.New(stocklevel.NewKey("CABLE", "MAIN", "A-02")).IssueStockAllowNegative(types.NewQuantity(4), at)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, l))

	avail, err := svc.GetAvailableQuantity(ctx, "CABLE", "MAIN")
	require.NoError(t, err)
	assert.Equal(t, "6", avail.String())
}
