package movement

import (
	"strings"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/batch"
)

// Request carries the caller's intent before validation.
type Request struct {
	Tenant              string
	Type                Type
	ItemCode            string
	WarehouseCode       string
	BinCode             string
	TargetWarehouseCode string
	TargetBinCode       string
	Quantity            types.Quantity
	UnitCost            types.Money
	Direction           Direction
	BatchNo             string
	BatchAttributes     *batch.Attributes
	SerialNo            string
	Reason              string
	Reference           string
	VoucherNo           string
	PostingDate         time.Time
	CreatedBy           string
	// CreatedAt defaults to time.Now.
	CreatedAt time.Time
}

// Option tweaks a Request built by one of the Create* helpers.
type Option func(*Request)

func WithBin(bin string) Option { return func(r *Request) { r.BinCode = bin } }

func WithTargetBin(bin string) Option { return func(r *Request) { r.TargetBinCode = bin } }

// WithBatch names the batch; attrs are used when the batch is created by a receipt.
func WithBatch(batchNo string, attrs *batch.Attributes) Option {
	return func(r *Request) {
		r.BatchNo = batchNo
		r.BatchAttributes = attrs
	}
}

func WithSerial(serialNo string) Option { return func(r *Request) { r.SerialNo = serialNo } }

func WithReference(ref string) Option { return func(r *Request) { r.Reference = ref } }

func WithVoucherNo(no string) Option { return func(r *Request) { r.VoucherNo = no } }

func WithPostingDate(at time.Time) Option { return func(r *Request) { r.PostingDate = at } }

func WithTenant(tenant string) Option { return func(r *Request) { r.Tenant = tenant } }

func WithReason(reason string) Option { return func(r *Request) { r.Reason = reason } }

func WithUnitCost(cost types.Money) Option { return func(r *Request) { r.UnitCost = cost } }

func WithCreatedAt(at time.Time) Option { return func(r *Request) { r.CreatedAt = at } }

// CreateReceipt builds an incoming movement from a supplier or production.
func CreateReceipt(item, warehouse string, qty types.Quantity, unitCost types.Money, createdBy string, opts ...Option) (StockMovement, error) {
	return build(Request{Type: TypeReceipt, ItemCode: item, WarehouseCode: warehouse, Quantity: qty, UnitCost: unitCost, CreatedBy: createdBy}, opts)
}

// CreateIssue builds an outgoing movement (sale, consumption).
func CreateIssue(item, warehouse string, qty types.Quantity, reason, createdBy string, opts ...Option) (StockMovement, error) {
	return build(Request{Type: TypeIssue, ItemCode: item, WarehouseCode: warehouse, Quantity: qty, Reason: reason, CreatedBy: createdBy}, opts)
}

// CreateAdjustment builds a manual correction. A reason is mandatory.
func CreateAdjustment(item, warehouse string, qty types.Quantity, dir Direction, reason, createdBy string, opts ...Option) (StockMovement, error) {
	return build(Request{Type: TypeAdjustment, ItemCode: item, WarehouseCode: warehouse, Quantity: qty, Direction: dir, Reason: reason, CreatedBy: createdBy}, opts)
}

// CreateTransfer moves stock between two locations.
func CreateTransfer(item, fromWarehouse, toWarehouse string, qty types.Quantity, createdBy string, opts ...Option) (StockMovement, error) {
	return build(Request{Type: TypeTransfer, ItemCode: item, WarehouseCode: fromWarehouse, TargetWarehouseCode: toWarehouse, Quantity: qty, CreatedBy: createdBy}, opts)
}

// CreateReturn books goods coming back from a customer.
func CreateReturn(item, warehouse string, qty types.Quantity, unitCost types.Money, createdBy string, opts ...Option) (StockMovement, error) {
	return build(Request{Type: TypeReturn, ItemCode: item, WarehouseCode: warehouse, Quantity: qty, UnitCost: unitCost, CreatedBy: createdBy}, opts)
}

// CreateDamage writes off damaged goods.
func CreateDamage(item, warehouse string, qty types.Quantity, reason, createdBy string, opts ...Option) (StockMovement, error) {
	return build(Request{Type: TypeDamage, ItemCode: item, WarehouseCode: warehouse, Quantity: qty, Reason: reason, CreatedBy: createdBy}, opts)
}

// CreateExpiry writes off an expired batch.
func CreateExpiry(item, warehouse, batchNo string, qty types.Quantity, createdBy string, opts ...Option) (StockMovement, error) {
	return build(Request{Type: TypeExpiry, ItemCode: item, WarehouseCode: warehouse, BatchNo: batchNo, Quantity: qty, CreatedBy: createdBy}, opts)
}

func build(req Request, opts []Option) (StockMovement, error) {
	for _, opt := range opts {
		opt(&req)
	}
	return New(req)
}

// New validates req and produces an immutable movement with a fresh ID.
func New(req Request) (StockMovement, error) {
	req = normalize(req)
	if err := Validate(req); err != nil {
		return StockMovement{}, err
	}

	createdAt := req.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	postingDate := req.PostingDate
	if postingDate.IsZero() {
		postingDate = createdAt
	}
	dir := req.Direction
	if req.Type == TypeAdjustment && dir == "" {
		dir = DirectionIn
	}

	return StockMovement{
		ID:                  id.New(),
		Tenant:              req.Tenant,
		Type:                req.Type,
		ItemCode:            req.ItemCode,
		WarehouseCode:       req.WarehouseCode,
		BinCode:             req.BinCode,
		TargetWarehouseCode: req.TargetWarehouseCode,
		TargetBinCode:       req.TargetBinCode,
		Quantity:            req.Quantity,
		UnitCost:            req.UnitCost,
		Direction:           dir,
		BatchNo:             req.BatchNo,
		BatchAttributes:     req.BatchAttributes,
		SerialNo:            req.SerialNo,
		Reason:              req.Reason,
		Reference:           req.Reference,
		VoucherNo:           req.VoucherNo,
		PostingDate:         postingDate,
		CreatedBy:           req.CreatedBy,
		CreatedAt:           createdAt,
	}, nil
}

// Validate enforces the per-type rules. Every violation is an InvalidMovement error.
func Validate(req Request) error {
	if !req.Type.Valid() {
		return invalid("unknown movement type", "type", string(req.Type))
	}
	if req.ItemCode == "" {
		return invalid("item code is required", "type", string(req.Type))
	}
	if req.WarehouseCode == "" {
		return invalid("warehouse code is required", "type", string(req.Type))
	}
	if !req.Quantity.IsPositive() {
		return invalid("quantity must be positive", "quantity", req.Quantity.String())
	}
	if req.UnitCost.IsNegative() {
		return invalid("unit cost must not be negative", "unit_cost", req.UnitCost.String())
	}
	if req.CreatedBy == "" {
		return invalid("createdBy is required", "type", string(req.Type))
	}

	switch req.Type {
	case TypeAdjustment:
		if req.Reason == "" {
			return invalid("adjustment requires a reason", "type", string(req.Type))
		}
		if req.Direction != "" && req.Direction != DirectionIn && req.Direction != DirectionOut {
			return invalid("unknown adjustment direction", "direction", string(req.Direction))
		}
	case TypeTransfer:
		if req.TargetWarehouseCode == "" {
			return invalid("transfer requires a target warehouse", "type", string(req.Type))
		}
		if req.TargetWarehouseCode == req.WarehouseCode && req.TargetBinCode == req.BinCode {
			return invalid("transfer source and target are the same location", "warehouse", req.WarehouseCode)
		}
	case TypeExpiry:
		if req.BatchNo == "" {
			return invalid("expiry write-off requires a batch", "type", string(req.Type))
		}
	}

	if req.Type != TypeTransfer && (req.TargetWarehouseCode != "" || req.TargetBinCode != "") {
		return invalid("only transfers carry a target location", "type", string(req.Type))
	}
	return nil
}

func normalize(req Request) Request {
	req.ItemCode = strings.TrimSpace(req.ItemCode)
	req.WarehouseCode = strings.TrimSpace(req.WarehouseCode)
	req.BinCode = strings.TrimSpace(req.BinCode)
	req.TargetWarehouseCode = strings.TrimSpace(req.TargetWarehouseCode)
	req.TargetBinCode = strings.TrimSpace(req.TargetBinCode)
	req.BatchNo = strings.TrimSpace(req.BatchNo)
	req.Reason = strings.TrimSpace(req.Reason)
	req.CreatedBy = strings.TrimSpace(req.CreatedBy)
	return req
}

func invalid(msg, key string, value any) error {
	return apperror.NewInvalidMovement(msg).WithDetail(key, value)
}

// Validate re-checks a movement that may not have come from a factory.
func (m StockMovement) Validate() error {
	if id.IsNil(m.ID) {
		return invalid("movement id is required", "type", string(m.Type))
	}
	return Validate(Request{
		Tenant:              m.Tenant,
		Type:                m.Type,
		ItemCode:            m.ItemCode,
		WarehouseCode:       m.WarehouseCode,
		BinCode:             m.BinCode,
		TargetWarehouseCode: m.TargetWarehouseCode,
		TargetBinCode:       m.TargetBinCode,
		Quantity:            m.Quantity,
		UnitCost:            m.UnitCost,
		Direction:           m.Direction,
		BatchNo:             m.BatchNo,
		Reason:              m.Reason,
		CreatedBy:           m.CreatedBy,
	})
}
