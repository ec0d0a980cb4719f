package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/stocklevel"
)

type auditFields struct {
	CreatedBy string    `db:"created_by"`
	CreatedAt time.Time `db:"created_at"`
}

type mockRow struct {
	auditFields
	Code    string `db:"code"`
	Name    string `db:"name"`
	Ignored string `db:"-"`
	NoTag   string
}

func TestExtractDBColumns_Embedded(t *testing.T) {
	cols := ExtractDBColumns[mockRow]()
	assert.Equal(t, []string{"created_by", "created_at", "code", "name"}, cols)
}

func TestExtractDBColumns_LedgerEntry(t *testing.T) {
	cols := ExtractDBColumns[ledger.StockLedgerEntry]()
	for _, c := range []string{"id", "movement_id", "leg", "qty", "valuation_rate", "stock_value", "reversal_of"} {
		assert.Contains(t, cols, c)
	}
}

func TestStructToMap(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	row := mockRow{
		auditFields: auditFields{CreatedBy: "alice", CreatedAt: now},
		Code:        "MAIN",
		Name:        "Main warehouse",
		Ignored:     "x",
	}

	m := StructToMap(&row)

	assert.Len(t, m, 4)
	assert.Equal(t, "alice", m["created_by"])
	assert.Equal(t, now, m["created_at"])
	assert.Equal(t, "MAIN", m["code"])
	assert.NotContains(t, m, "-")
}

func TestRowValues_FollowsColumnOrder(t *testing.T) {
	e, err := ledger.NewEntry(ledger.EntryParams{
		MovementID:    id.New(),
		Key:           stocklevel.NewKey("NUT", "MAIN", ""),
		VoucherType:   "Receipt",
		VoucherNo:     "R-1",
		Qty:           types.NewQuantity(4),
		ValuationRate: types.MustMoney("2.5"),
		CreatedBy:     "alice",
	}, time.Now().UTC())
	assert.NoError(t, err)

	vals := RowValues(e, []string{"qty", "item_code", "missing"})

	assert.Equal(t, types.NewQuantity(4), vals[0])
	assert.Equal(t, "NUT", vals[1])
	assert.Nil(t, vals[2])
}
