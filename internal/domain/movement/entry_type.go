package movement

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"stockledger/internal/core/apperror"
	"stockledger/internal/domain/batch"
)

// StockEntryType configures one class of movement. It is read-only input to
// validation and posting; the ledger never mutates it.
type StockEntryType struct {
	Name         string `json:"name"`
	MovementType Type   `json:"movementType"`
	Purpose      string `json:"purpose"`

	// AddToTransit sends the incoming leg of a transfer to TransitWarehouse.
	AddToTransit     bool   `json:"addToTransit"`
	TransitWarehouse string `json:"transitWarehouse,omitempty"`

	AllowNegativeStock bool `json:"allowNegativeStock"`

	// BatchCounter is the counter an outgoing movement increments on its batch.
	BatchCounter batch.Counter `json:"batchCounter,omitempty"`

	// Condition is an optional CEL expression that must evaluate to true.
	// Variables: type, item, warehouse, bin, target_warehouse, batch, reason,
	// created_by (strings) and quantity, unit_cost (doubles).
	Condition string `json:"condition,omitempty"`

	program cel.Program
}

// EntryTypeRepository supplies the entry type governing each movement type.
type EntryTypeRepository interface {
	Get(ctx context.Context, t Type) (StockEntryType, error)
	List(ctx context.Context) ([]StockEntryType, error)
}

// DefaultEntryTypes is the configuration used when nothing else is stored.
func DefaultEntryTypes() []StockEntryType {
	return []StockEntryType{
		{Name: "Material Receipt", MovementType: TypeReceipt, Purpose: "Material Receipt"},
		{Name: "Material Issue", MovementType: TypeIssue, Purpose: "Material Issue", BatchCounter: batch.CounterDispatched},
		{Name: "Stock Adjustment", MovementType: TypeAdjustment, Purpose: "Stock Reconciliation", BatchCounter: batch.CounterConsumed},
		{Name: "Material Transfer", MovementType: TypeTransfer, Purpose: "Material Transfer", BatchCounter: batch.CounterTransfer},
		{Name: "Sales Return", MovementType: TypeReturn, Purpose: "Material Receipt"},
		{Name: "Damage Write-off", MovementType: TypeDamage, Purpose: "Material Issue", BatchCounter: batch.CounterScrapped},
		{Name: "Expiry Write-off", MovementType: TypeExpiry, Purpose: "Material Issue", BatchCounter: batch.CounterScrapped},
	}
}

var (
	celEnvOnce sync.Once
	celEnv     *cel.Env
	celEnvErr  error
)

func conditionEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("type", cel.StringType),
			cel.Variable("item", cel.StringType),
			cel.Variable("warehouse", cel.StringType),
			cel.Variable("bin", cel.StringType),
			cel.Variable("target_warehouse", cel.StringType),
			cel.Variable("batch", cel.StringType),
			cel.Variable("reason", cel.StringType),
			cel.Variable("created_by", cel.StringType),
			cel.Variable("quantity", cel.DoubleType),
			cel.Variable("unit_cost", cel.DoubleType),
		)
	})
	return celEnv, celEnvErr
}

// Compile prepares Condition. Entry types with an empty condition compile to a no-op.
func (et StockEntryType) Compile() (StockEntryType, error) {
	if et.Condition == "" {
		et.program = nil
		return et, nil
	}

	env, err := conditionEnv()
	if err != nil {
		return et, fmt.Errorf("cel env: %w", err)
	}
	ast, iss := env.Compile(et.Condition)
	if iss != nil && iss.Err() != nil {
		return et, apperror.NewValidation("invalid entry type condition").
			WithDetail("entry_type", et.Name).
			WithCause(iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return et, apperror.NewValidation("entry type condition must be boolean").
			WithDetail("entry_type", et.Name)
	}
	prg, err := env.Program(ast)
	if err != nil {
		return et, fmt.Errorf("cel program: %w", err)
	}
	et.program = prg
	return et, nil
}

// Check evaluates the compiled condition against m.
func (et StockEntryType) Check(m StockMovement) error {
	if et.Condition == "" {
		return nil
	}
	if et.program == nil {
		compiled, err := et.Compile()
		if err != nil {
			return err
		}
		et = compiled
	}

	out, _, err := et.program.Eval(map[string]any{
		"type":             string(m.Type),
		"item":             m.ItemCode,
		"warehouse":        m.WarehouseCode,
		"bin":              m.BinCode,
		"target_warehouse": m.TargetWarehouseCode,
		"batch":            m.BatchNo,
		"reason":           m.Reason,
		"created_by":       m.CreatedBy,
		"quantity":         m.Quantity.Float64(),
		"unit_cost":        m.UnitCost.InexactFloat64(),
	})
	if err != nil {
		return apperror.NewInvalidMovement("entry type condition failed to evaluate").
			WithDetail("entry_type", et.Name).
			WithCause(err)
	}
	if ok, _ := out.Value().(bool); !ok {
		return apperror.NewInvalidMovement("movement rejected by entry type rule").
			WithDetail("entry_type", et.Name).
			WithDetail("condition", et.Condition)
	}
	return nil
}

// OutgoingCounter returns the batch counter for an outgoing posting under et.
func (et StockEntryType) OutgoingCounter() batch.Counter {
	if et.BatchCounter != "" {
		return et.BatchCounter
	}
	return batch.CounterDispatched
}
