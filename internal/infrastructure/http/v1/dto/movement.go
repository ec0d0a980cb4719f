package dto

import (
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/batch"
	"stockledger/internal/domain/movement"
)

// CreateMovementRequest is the body of POST /movements.
type CreateMovementRequest struct {
	// ID makes the call idempotent; a retry with the same ID gets ALREADY_POSTED.
	ID   string        `json:"id"`
	Type movement.Type `json:"type"`

	ItemCode      string `json:"itemCode"`
	WarehouseCode string `json:"warehouseCode"`
	BinCode       string `json:"binCode"`

	TargetWarehouseCode string `json:"targetWarehouseCode"`
	TargetBinCode       string `json:"targetBinCode"`

	Quantity  types.Quantity     `json:"quantity"`
	UnitCost  types.Money        `json:"unitCost"`
	Direction movement.Direction `json:"direction"`

	BatchNo         string            `json:"batchNo"`
	BatchAttributes *batch.Attributes `json:"batchAttributes"`
	SerialNo        string            `json:"serialNo"`

	Reason      string     `json:"reason"`
	Reference   string     `json:"reference"`
	VoucherNo   string     `json:"voucherNo"`
	PostingDate *time.Time `json:"postingDate"`
	CreatedBy   string     `json:"createdBy"`
}

// ToMovement validates the request through the movement factory. actor and
// tenant fill CreatedBy and Tenant when the body leaves them out.
func (r CreateMovementRequest) ToMovement(actor, tenant string) (movement.StockMovement, error) {
	createdBy := r.CreatedBy
	if createdBy == "" {
		createdBy = actor
	}
	req := movement.Request{
		Tenant:              tenant,
		Type:                r.Type,
		ItemCode:            r.ItemCode,
		WarehouseCode:       r.WarehouseCode,
		BinCode:             r.BinCode,
		TargetWarehouseCode: r.TargetWarehouseCode,
		TargetBinCode:       r.TargetBinCode,
		Quantity:            r.Quantity,
		UnitCost:            r.UnitCost,
		Direction:           r.Direction,
		BatchNo:             r.BatchNo,
		BatchAttributes:     r.BatchAttributes,
		SerialNo:            r.SerialNo,
		Reason:              r.Reason,
		Reference:           r.Reference,
		VoucherNo:           r.VoucherNo,
		CreatedBy:           createdBy,
	}
	if r.PostingDate != nil {
		req.PostingDate = *r.PostingDate
	}

	m, err := movement.New(req)
	if err != nil {
		return movement.StockMovement{}, err
	}
	if r.ID != "" {
		mid, err := id.Parse(r.ID)
		if err != nil {
			return movement.StockMovement{}, apperror.NewInvalidMovement("movement id is not a UUID").WithDetail("id", r.ID)
		}
		m.ID = mid
	}
	return m, nil
}
