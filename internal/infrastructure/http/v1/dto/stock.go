package dto

import (
	"time"

	"stockledger/internal/core/types"
	"stockledger/internal/domain/posting"
	"stockledger/internal/domain/stocklevel"
)

// KeyRequest identifies one stock level.
type KeyRequest struct {
	ItemCode      string `json:"itemCode" form:"itemCode"`
	WarehouseCode string `json:"warehouseCode" form:"warehouseCode"`
	BinCode       string `json:"binCode" form:"binCode"`
}

func (k KeyRequest) Key() stocklevel.Key {
	return stocklevel.NewKey(k.ItemCode, k.WarehouseCode, k.BinCode)
}

// ReservationRequest is the body of reserve and release.
type ReservationRequest struct {
	KeyRequest
	Quantity types.Quantity `json:"quantity"`
}

// AvailableResponse answers GET /stock-levels/available.
type AvailableResponse struct {
	ItemCode          string `json:"itemCode"`
	WarehouseCode     string `json:"warehouseCode"`
	AvailableQuantity string `json:"availableQuantity"`
}

// StocktakeRequest is the body of POST /stocktakes.
type StocktakeRequest struct {
	KeyRequest
	CountedQuantity types.Quantity `json:"countedQuantity"`
	UnitCost        types.Money    `json:"unitCost"`
	Reason          string         `json:"reason"`
	VoucherNo       string         `json:"voucherNo"`
	PostingDate     *time.Time     `json:"postingDate"`
	CreatedBy       string         `json:"createdBy"`
}

func (r StocktakeRequest) ToDomain(actor string) posting.StocktakeRequest {
	createdBy := r.CreatedBy
	if createdBy == "" {
		createdBy = actor
	}
	out := posting.StocktakeRequest{
		Key:             r.Key(),
		CountedQuantity: r.CountedQuantity,
		UnitCost:        r.UnitCost,
		Reason:          r.Reason,
		CreatedBy:       createdBy,
		VoucherNo:       r.VoucherNo,
	}
	if r.PostingDate != nil {
		out.PostingDate = *r.PostingDate
	}
	return out
}
