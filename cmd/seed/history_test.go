package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/posting"
	"stockledger/internal/domain/stocklevel"
	"stockledger/internal/infrastructure/storage/memory"
)

// appendCopier stands in for COPY by appending through the memory ledger.
type appendCopier struct{ repo ledger.Repository }

func (c appendCopier) CopyEntries(ctx context.Context, entries []ledger.StockLedgerEntry) (int64, error) {
	for _, e := range entries {
		if err := c.repo.Append(ctx, e); err != nil {
			return 0, err
		}
	}
	return int64(len(entries)), nil
}

var histAt = time.Date(2025, 12, 1, 8, 0, 0, 0, time.UTC)

func historyEntry(t *testing.T, key stocklevel.Key, qty, after int64, rate string, at time.Time) ledger.StockLedgerEntry {
	t.Helper()
	e, err := ledger.NewEntry(ledger.EntryParams{
		MovementID:          id.New(),
		Key:                 key,
		PostingDate:         at,
		VoucherType:         "Receipt",
		VoucherNo:           "LEGACY",
		Qty:                 types.NewQuantity(qty),
		ValuationRate:       types.MustMoney(rate),
		QtyAfterTransaction: types.NewQuantity(after),
		BalanceRate:         types.MustMoney(rate),
		CreatedBy:           "legacy",
	}, at)
	require.NoError(t, err)
	return e
}

func jsonLines(t *testing.T, entries ...ledger.StockLedgerEntry) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		require.NoError(t, enc.Encode(e))
	}
	return &buf
}

func TestReadHistory(t *testing.T) {
	key := stocklevel.NewKey("BOLT", "MAIN", "")
	in := historyEntry(t, key, 5, 5, "2", histAt)

	got, err := readHistory(jsonLines(t, in))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, in.ID, got[0].ID)
	assert.Equal(t, types.NewQuantity(5), got[0].Qty)

	_, err = readHistory(strings.NewReader(`{"itemCode":"BOLT","warehouseCode":"MAIN","qty":1}`))
	assert.ErrorContains(t, err, "line 1")

	_, err = readHistory(strings.NewReader("not json\n"))
	assert.Error(t, err)
}

func TestImportHistory_BuildsLevels(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	bolt := stocklevel.NewKey("BOLT", "MAIN", "")
	nut := stocklevel.NewKey("NUT", "MAIN", "A-1")
	history := []ledger.StockLedgerEntry{
		historyEntry(t, bolt, 10, 10, "2", histAt),
		historyEntry(t, nut, 4, 4, "1", histAt),
		historyEntry(t, bolt, -3, 7, "2.5", histAt.Add(time.Hour)),
	}

	keys, err := importHistory(ctx, store.TxManager(), appendCopier{store.Ledger()}, store.Levels(), history, histAt.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, 2, keys)
	assert.Equal(t, 3, store.EntryCount())

	l, err := store.Levels().Get(ctx, bolt)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(7), l.Quantity)
	assert.True(t, l.UnitCost.Equal(types.MustMoney("2.5")))

	engine := posting.NewEngine(posting.Config{
		TxManager:  store.TxManager(),
		Ledger:     store.Ledger(),
		Levels:     store.Levels(),
		Batches:    store.Batches(),
		EntryTypes: store.EntryTypes(),
	})
	report, err := engine.Reconcile(ctx)
	require.NoError(t, err)
	assert.NoError(t, report.Err())
}

func TestImportHistory_RefusesStockedKeys(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	key := stocklevel.NewKey("BOLT", "MAIN", "")

	l, _, err := stocklevel.New(key).ReceiveStock(types.NewQuantity(1), types.MustMoney("1"), histAt)
	require.NoError(t, err)
	require.NoError(t, store.Levels().Save(ctx, l))

	_, err = importHistory(ctx, store.TxManager(), appendCopier{store.Ledger()}, store.Levels(),
		[]ledger.StockLedgerEntry{historyEntry(t, key, 5, 5, "1", histAt)}, histAt)
	assert.Equal(t, apperror.CodeValidation, apperror.CodeOf(err))
	assert.Equal(t, 0, store.EntryCount(), "the copy rolls back with the level check")
}
