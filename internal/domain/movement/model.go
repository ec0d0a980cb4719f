// Package movement turns caller intents into validated, immutable stock movements.
package movement

import (
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/batch"
	"stockledger/internal/domain/stocklevel"
)

// Type is the kind of a movement.
type Type string

const (
	TypeReceipt    Type = "Receipt"
	TypeIssue      Type = "Issue"
	TypeAdjustment Type = "Adjustment"
	TypeTransfer   Type = "Transfer"
	TypeReturn     Type = "Return"
	TypeDamage     Type = "Damage"
	TypeExpiry     Type = "Expiry"
)

// AllTypes lists movement types in a stable order.
var AllTypes = []Type{TypeReceipt, TypeIssue, TypeAdjustment, TypeTransfer, TypeReturn, TypeDamage, TypeExpiry}

func (t Type) Valid() bool {
	for _, v := range AllTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Direction of an adjustment.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Status of a movement: Requested → Validated → Posted | Rejected.
type Status string

const (
	StatusRequested Status = "Requested"
	StatusValidated Status = "Validated"
	StatusPosted    Status = "Posted"
	StatusRejected  Status = "Rejected"
)

// StockMovement is an immutable request to move stock.
// It is distinct from the ledger entry it may produce.
type StockMovement struct {
	ID     id.ID  `json:"id"`
	Tenant string `json:"tenant,omitempty"`
	Type   Type   `json:"type"`

	ItemCode      string `json:"itemCode"`
	WarehouseCode string `json:"warehouseCode"`
	BinCode       string `json:"binCode,omitempty"`

	// Transfer destination.
	TargetWarehouseCode string `json:"targetWarehouseCode,omitempty"`
	TargetBinCode       string `json:"targetBinCode,omitempty"`

	Quantity types.Quantity `json:"quantity"`
	// UnitCost is optional; zero means "use the current valuation rate".
	UnitCost  types.Money `json:"unitCost"`
	Direction Direction   `json:"direction,omitempty"`

	BatchNo         string            `json:"batchNo,omitempty"`
	BatchAttributes *batch.Attributes `json:"batchAttributes,omitempty"`
	SerialNo        string            `json:"serialNo,omitempty"`

	Reason      string    `json:"reason,omitempty"`
	Reference   string    `json:"reference,omitempty"`
	VoucherNo   string    `json:"voucherNo,omitempty"`
	PostingDate time.Time `json:"postingDate"`

	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// Key is the source balance of the movement.
func (m StockMovement) Key() stocklevel.Key {
	return stocklevel.Key{ItemCode: m.ItemCode, WarehouseCode: m.WarehouseCode, BinCode: m.BinCode}
}

// TargetKey is the destination balance of a transfer.
func (m StockMovement) TargetKey() stocklevel.Key {
	return stocklevel.Key{ItemCode: m.ItemCode, WarehouseCode: m.TargetWarehouseCode, BinCode: m.TargetBinCode}
}

// IsIncoming reports whether the movement adds stock at its source key.
// A transfer is outgoing at the source and incoming at the target.
func (m StockMovement) IsIncoming() bool {
	switch m.Type {
	case TypeReceipt, TypeReturn:
		return true
	case TypeAdjustment:
		return m.Direction != DirectionOut
	default:
		return false
	}
}

// SignedQuantity is the ledger quantity at the source key.
func (m StockMovement) SignedQuantity() types.Quantity {
	if m.IsIncoming() {
		return m.Quantity
	}
	return -m.Quantity
}

// VoucherType names the ledger voucher the movement posts under.
func (m StockMovement) VoucherType() string {
	return string(m.Type)
}

// Voucher returns the voucher number, the movement ID when none was given.
func (m StockMovement) Voucher() string {
	if m.VoucherNo != "" {
		return m.VoucherNo
	}
	return m.ID.String()
}
