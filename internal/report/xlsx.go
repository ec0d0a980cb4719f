// Package report renders stock ledger exports.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"stockledger/internal/domain/ledger"
)

// LedgerSheet is the sheet name of the ledger export.
const LedgerSheet = "Stock Ledger"

// ContentTypeXLSX is the media type of WriteLedgerXLSX output.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var ledgerHeadings = []string{
	"Posting Date", "Item", "Warehouse", "Bin",
	"Voucher Type", "Voucher No", "Qty", "Valuation Rate", "Stock Value",
	"Qty After", "Balance Rate", "Batch No", "Expiry Date",
	"Created By", "Cancelled", "Reversal Of",
}

// WriteLedgerXLSX writes entries to w as a single-sheet workbook, one row per
// entry in the given order.
func WriteLedgerXLSX(w io.Writer, entries []ledger.StockLedgerEntry) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", LedgerSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]any, len(ledgerHeadings))
	for i, h := range ledgerHeadings {
		header[i] = h
	}
	if err := f.SetSheetRow(LedgerSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := f.SetPanes(LedgerSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	for i, e := range entries {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := ledgerRow(e)
		if err := f.SetSheetRow(LedgerSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func ledgerRow(e ledger.StockLedgerEntry) []any {
	expiry := ""
	if e.ExpiryDate != nil {
		expiry = e.ExpiryDate.Format(time.DateOnly)
	}
	reversalOf := ""
	if e.ReversalOf != nil {
		reversalOf = e.ReversalOf.String()
	}
	return []any{
		e.PostingDate.UTC().Format(time.DateTime),
		e.ItemCode,
		e.WarehouseCode,
		e.BinCode,
		e.VoucherType,
		e.VoucherNo,
		e.Qty.Float64(),
		e.ValuationRate.InexactFloat64(),
		e.StockValue.InexactFloat64(),
		e.QtyAfterTransaction.Float64(),
		e.BalanceRate.InexactFloat64(),
		e.BatchNo,
		expiry,
		e.CreatedBy,
		e.IsCancelled,
		reversalOf,
	}
}
