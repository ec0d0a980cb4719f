package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/stocklevel"
)

func TestWriteLedgerXLSX(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	e, err := ledger.NewEntry(ledger.EntryParams{
		Key:                 stocklevel.NewKey("NUT", "MAIN", "A1"),
		PostingDate:         at,
		VoucherType:         "Receipt",
		VoucherNo:           "R-7",
		Qty:                 types.MustQuantity("12.5"),
		ValuationRate:       types.MustMoney("4"),
		QtyAfterTransaction: types.MustQuantity("12.5"),
		BalanceRate:         types.MustMoney("4"),
		BatchNo:             "B-1",
		CreatedBy:           "alice",
	}, at)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteLedgerXLSX(&buf, []ledger.StockLedgerEntry{e}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(LedgerSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "Posting Date", rows[0][0])
	assert.Len(t, rows[0], len(ledgerHeadings))
	assert.Equal(t, "2026-03-02 09:30:00", rows[1][0])
	assert.Equal(t, "NUT", rows[1][1])
	assert.Equal(t, "A1", rows[1][3])
	assert.Equal(t, "R-7", rows[1][5])
	assert.Equal(t, "12.5", rows[1][6])
	assert.Equal(t, "50", rows[1][8])
	assert.Equal(t, "B-1", rows[1][11])
}

func TestWriteLedgerXLSX_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLedgerXLSX(&buf, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(LedgerSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
