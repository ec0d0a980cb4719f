// Package ledger is the append-only stock ledger, the source of truth that
// stock levels and batch counters are materialized from.
package ledger

import (
	"strings"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/events"
	"stockledger/internal/domain/stocklevel"
)

// Leg numbers of the entries a single movement produces.
const (
	LegPrimary     = 0
	LegCounterpart = 1
)

// Voucher types posted by the engine itself rather than by a movement.
const (
	VoucherCancellation = "Cancellation"
	VoucherStocktake    = "Stocktake"
)

// StockLedgerEntry is one posted movement at one key. Quantity and value fields
// never change after Append; only remarks, reference and the cancellation flag do.
type StockLedgerEntry struct {
	ID         id.ID `db:"id" json:"id"`
	MovementID id.ID `db:"movement_id" json:"movementId"`
	Leg        int   `db:"leg" json:"leg"`

	ItemCode      string `db:"item_code" json:"itemCode"`
	WarehouseCode string `db:"warehouse_code" json:"warehouseCode"`
	BinCode       string `db:"bin_code" json:"binCode,omitempty"`

	PostingDate time.Time `db:"posting_date" json:"postingDate"`
	VoucherType string    `db:"voucher_type" json:"voucherType"`
	VoucherNo   string    `db:"voucher_no" json:"voucherNo"`

	// Qty is signed: positive incoming, negative outgoing.
	Qty           types.Quantity `db:"qty" json:"qty"`
	ValuationRate types.Money    `db:"valuation_rate" json:"valuationRate"`
	StockValue    types.Money    `db:"stock_value" json:"stockValue"`

	// Balance of the key right after this entry.
	QtyAfterTransaction types.Quantity `db:"qty_after_transaction" json:"qtyAfterTransaction"`
	BalanceRate         types.Money    `db:"balance_rate" json:"balanceRate"`

	SerialNo   string     `db:"serial_no" json:"serialNo,omitempty"`
	BatchID    *id.ID     `db:"batch_id" json:"batchId,omitempty"`
	BatchNo    string     `db:"batch_no" json:"batchNo,omitempty"`
	ExpiryDate *time.Time `db:"expiry_date" json:"expiryDate,omitempty"`

	Remarks   string    `db:"remarks" json:"remarks,omitempty"`
	Reference string    `db:"reference" json:"reference,omitempty"`
	CreatedBy string    `db:"created_by" json:"createdBy"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`

	IsCancelled  bool       `db:"is_cancelled" json:"isCancelled"`
	CancelledBy  string     `db:"cancelled_by" json:"cancelledBy,omitempty"`
	CancelledAt  *time.Time `db:"cancelled_at" json:"cancelledAt,omitempty"`
	CancelReason string     `db:"cancel_reason" json:"cancelReason,omitempty"`

	// ReversalOf is set on the entry that reverses a cancelled one.
	ReversalOf *id.ID `db:"reversal_of" json:"reversalOf,omitempty"`
}

// EntryParams is everything PostEntry needs.
type EntryParams struct {
	MovementID  id.ID
	Leg         int
	Key         stocklevel.Key
	PostingDate time.Time
	VoucherType string
	VoucherNo   string

	Qty                 types.Quantity
	ValuationRate       types.Money
	QtyAfterTransaction types.Quantity
	BalanceRate         types.Money

	SerialNo   string
	BatchID    *id.ID
	BatchNo    string
	ExpiryDate *time.Time

	Remarks    string
	Reference  string
	CreatedBy  string
	ReversalOf *id.ID
}

// NewEntry validates p and computes StockValue once.
func NewEntry(p EntryParams, now time.Time) (StockLedgerEntry, error) {
	if err := p.Key.Validate(); err != nil {
		return StockLedgerEntry{}, err
	}
	if p.Qty.IsZero() {
		return StockLedgerEntry{}, apperror.NewInvalidMovement("ledger entry quantity must not be zero")
	}
	if p.ValuationRate.IsNegative() {
		return StockLedgerEntry{}, apperror.NewInvalidMovement("valuation rate must not be negative").
			WithDetail("valuation_rate", p.ValuationRate.String())
	}
	if strings.TrimSpace(p.VoucherType) == "" || strings.TrimSpace(p.VoucherNo) == "" {
		return StockLedgerEntry{}, apperror.NewInvalidMovement("voucher type and number are required")
	}

	postingDate := p.PostingDate
	if postingDate.IsZero() {
		postingDate = now
	}

	return StockLedgerEntry{
		ID:                  id.New(),
		MovementID:          p.MovementID,
		Leg:                 p.Leg,
		ItemCode:            p.Key.ItemCode,
		WarehouseCode:       p.Key.WarehouseCode,
		BinCode:             p.Key.BinCode,
		PostingDate:         postingDate,
		VoucherType:         p.VoucherType,
		VoucherNo:           p.VoucherNo,
		Qty:                 p.Qty,
		ValuationRate:       p.ValuationRate,
		StockValue:          types.StockValue(p.Qty, p.ValuationRate),
		QtyAfterTransaction: p.QtyAfterTransaction,
		BalanceRate:         p.BalanceRate,
		SerialNo:            p.SerialNo,
		BatchID:             p.BatchID,
		BatchNo:             p.BatchNo,
		ExpiryDate:          p.ExpiryDate,
		Remarks:             p.Remarks,
		Reference:           p.Reference,
		CreatedBy:           p.CreatedBy,
		CreatedAt:           now,
		ReversalOf:          p.ReversalOf,
	}, nil
}

func (e StockLedgerEntry) Key() stocklevel.Key {
	return stocklevel.Key{ItemCode: e.ItemCode, WarehouseCode: e.WarehouseCode, BinCode: e.BinCode}
}

func (e StockLedgerEntry) IsIncoming() bool { return e.Qty.IsPositive() }

func (e StockLedgerEntry) IsReversal() bool { return e.ReversalOf != nil }

// Cancel sets the one-way cancellation flag.
func (e StockLedgerEntry) Cancel(by, reason string, at time.Time) (StockLedgerEntry, error) {
	if e.IsCancelled {
		return e, apperror.NewAlreadyCancelled(e.ID.String())
	}
	if strings.TrimSpace(by) == "" {
		return e, apperror.NewInvalidMovement("cancelledBy is required")
	}
	e.IsCancelled = true
	e.CancelledBy = by
	e.CancelReason = reason
	ts := at
	e.CancelledAt = &ts
	return e, nil
}

// CreatedEvent describes the entry for subscribers.
func (e StockLedgerEntry) CreatedEvent() events.Event {
	return events.StockLedgerEntryCreated{
		EntryID:       e.ID,
		MovementID:    e.MovementID,
		Key:           events.LevelKey{ItemCode: e.ItemCode, WarehouseCode: e.WarehouseCode, BinCode: e.BinCode},
		VoucherType:   e.VoucherType,
		VoucherNo:     e.VoucherNo,
		Qty:           e.Qty,
		ValuationRate: e.ValuationRate,
		StockValue:    e.StockValue,
		At:            e.CreatedAt,
	}
}

// Filter narrows ledger queries. Zero fields do not filter.
type Filter struct {
	ItemCode      string
	WarehouseCode string
	BinCode       string
	From          *time.Time
	To            *time.Time
	VoucherType   string
	VoucherNo     string
	MovementID    *id.ID
	// ExcludeCancelled drops cancelled entries together with their reversals,
	// so sums over the result stay consistent.
	ExcludeCancelled bool
	Limit            int
	Offset           int
}

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Normalized clamps the paging fields.
func (f Filter) Normalized() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Match applies the non-paging part of the filter in memory.
func (f Filter) Match(e StockLedgerEntry) bool {
	switch {
	case f.ItemCode != "" && e.ItemCode != f.ItemCode:
		return false
	case f.WarehouseCode != "" && e.WarehouseCode != f.WarehouseCode:
		return false
	case f.BinCode != "" && e.BinCode != f.BinCode:
		return false
	case f.From != nil && e.PostingDate.Before(*f.From):
		return false
	case f.To != nil && e.PostingDate.After(*f.To):
		return false
	case f.VoucherType != "" && e.VoucherType != f.VoucherType:
		return false
	case f.VoucherNo != "" && e.VoucherNo != f.VoucherNo:
		return false
	case f.MovementID != nil && e.MovementID != *f.MovementID:
		return false
	case f.ExcludeCancelled && (e.IsCancelled || e.IsReversal()):
		return false
	}
	return true
}

// Page is a slice of entries plus the total matching count.
type Page struct {
	Items      []StockLedgerEntry `json:"items"`
	TotalCount int64              `json:"totalCount"`
	Limit      int                `json:"limit"`
	Offset     int                `json:"offset"`
}
