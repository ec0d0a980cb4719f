package dto

import (
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
)

// LedgerQuery holds the query parameters of GET /ledger.
type LedgerQuery struct {
	ItemCode         string     `form:"itemCode"`
	WarehouseCode    string     `form:"warehouseCode"`
	BinCode          string     `form:"binCode"`
	VoucherType      string     `form:"voucherType"`
	VoucherNo        string     `form:"voucherNo"`
	MovementID       string     `form:"movementId"`
	From             *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To               *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	ExcludeCancelled bool       `form:"excludeCancelled"`
	Limit            int        `form:"limit" binding:"min=0"`
	Offset           int        `form:"offset" binding:"min=0"`
}

// Filter converts the query to a ledger filter.
func (q LedgerQuery) Filter() (ledger.Filter, error) {
	f := ledger.Filter{
		ItemCode:         q.ItemCode,
		WarehouseCode:    q.WarehouseCode,
		BinCode:          q.BinCode,
		VoucherType:      q.VoucherType,
		VoucherNo:        q.VoucherNo,
		From:             q.From,
		To:               q.To,
		ExcludeCancelled: q.ExcludeCancelled,
		Limit:            q.Limit,
		Offset:           q.Offset,
	}
	if q.MovementID != "" {
		mid, err := id.Parse(q.MovementID)
		if err != nil {
			return ledger.Filter{}, apperror.NewValidation("invalid movementId format")
		}
		f.MovementID = &mid
	}
	return f, nil
}

// CancelEntryRequest is the body of POST /ledger/:id/cancel.
type CancelEntryRequest struct {
	CancelledBy string `json:"cancelledBy"`
	Reason      string `json:"reason"`
}
