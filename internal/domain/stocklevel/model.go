// Package stocklevel holds the cached balance per (item, warehouse, bin).
//
// A StockLevel is a materialized view of the ledger. Its operations are pure:
// they take a snapshot and return the next one with the event it produced,
// leaving persistence and locking to the posting engine.
package stocklevel

import (
	"strings"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/events"
)

// Key identifies a balance. An empty BinCode is the warehouse-level balance.
type Key struct {
	ItemCode      string `json:"itemCode"`
	WarehouseCode string `json:"warehouseCode"`
	BinCode       string `json:"binCode,omitempty"`
}

// NewKey trims the codes.
func NewKey(item, warehouse, bin string) Key {
	return Key{
		ItemCode:      strings.TrimSpace(item),
		WarehouseCode: strings.TrimSpace(warehouse),
		BinCode:       strings.TrimSpace(bin),
	}
}

// String is also the lock name of the key.
func (k Key) String() string {
	return k.ItemCode + "/" + k.WarehouseCode + "/" + k.BinCode
}

func (k Key) Validate() error {
	if k.ItemCode == "" || k.WarehouseCode == "" {
		return apperror.NewInvalidMovement("item and warehouse codes are required")
	}
	return nil
}

func (k Key) event() events.LevelKey {
	return events.LevelKey{ItemCode: k.ItemCode, WarehouseCode: k.WarehouseCode, BinCode: k.BinCode}
}

// StockLevel is the balance snapshot of one key.
type StockLevel struct {
	ItemCode      string `db:"item_code" json:"itemCode"`
	WarehouseCode string `db:"warehouse_code" json:"warehouseCode"`
	BinCode       string `db:"bin_code" json:"binCode,omitempty"`

	Quantity         types.Quantity `db:"quantity" json:"quantity"`
	ReservedQuantity types.Quantity `db:"reserved_quantity" json:"reservedQuantity"`
	UnitCost         types.Money    `db:"unit_cost" json:"unitCost"`

	LastMovementAt *time.Time `db:"last_movement_at" json:"lastMovementAt,omitempty"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updatedAt"`
	Version        int        `db:"version" json:"version"`
}

// New returns the empty balance of a key, as seen before its first movement.
func New(key Key) StockLevel {
	return StockLevel{
		ItemCode:      key.ItemCode,
		WarehouseCode: key.WarehouseCode,
		BinCode:       key.BinCode,
		UnitCost:      types.Zero(),
	}
}

func (l StockLevel) Key() Key {
	return Key{ItemCode: l.ItemCode, WarehouseCode: l.WarehouseCode, BinCode: l.BinCode}
}

// AvailableQuantity = Quantity − ReservedQuantity.
func (l StockLevel) AvailableQuantity() types.Quantity {
	return l.Quantity - l.ReservedQuantity
}

// IsLowStock reports whether available quantity fell to threshold or below.
func (l StockLevel) IsLowStock(threshold types.Quantity) bool {
	return l.AvailableQuantity() <= threshold
}

// StockValue is the balance valued at the current unit cost.
func (l StockLevel) StockValue() types.Money {
	return types.StockValue(l.Quantity, l.UnitCost)
}

// ReceiveStock adds qty. unitCost overwrites UnitCost only when positive;
// weighted averaging happens before this call.
func (l StockLevel) ReceiveStock(qty types.Quantity, unitCost types.Money, at time.Time) (StockLevel, events.Event, error) {
	if err := positive(qty); err != nil {
		return l, nil, err
	}
	if unitCost.IsNegative() {
		return l, nil, apperror.NewInvalidMovement("unit cost must not be negative")
	}

	sum, ok := l.Quantity.AddChecked(qty)
	if !ok {
		return l, nil, apperror.NewInvalidMovement("receipt overflows stock quantity").
			WithDetail("key", l.Key().String()).
			WithDetail("quantity", qty.String())
	}
	l.Quantity = sum
	if unitCost.IsPositive() {
		l.UnitCost = unitCost
	}
	l = l.touch(at, true)
	return l, l.event(events.TypeStockLevelReceived, qty, at), nil
}

// IssueStock removes qty from unreserved stock.
func (l StockLevel) IssueStock(qty types.Quantity, at time.Time) (StockLevel, events.Event, error) {
	if err := positive(qty); err != nil {
		return l, nil, err
	}
	if available := l.AvailableQuantity(); available < qty {
		return l, nil, l.insufficient(qty, available)
	}

	l.Quantity -= qty
	l = l.touch(at, true)
	return l, l.event(events.TypeStockLevelIssued, -qty, at), nil
}

// IssueStockAllowNegative removes qty without the availability check.
// Reservations cannot outlive the stock they point at, so ReservedQuantity is
// capped at the remaining positive quantity.
func (l StockLevel) IssueStockAllowNegative(qty types.Quantity, at time.Time) (StockLevel, events.Event, error) {
	if err := positive(qty); err != nil {
		return l, nil, err
	}

	l.Quantity -= qty
	l.ReservedQuantity = l.ReservedQuantity.Min(max(l.Quantity, 0))
	l = l.touch(at, true)
	return l, l.event(events.TypeStockLevelIssued, -qty, at), nil
}

// ReserveStock earmarks qty of available stock.
func (l StockLevel) ReserveStock(qty types.Quantity, at time.Time) (StockLevel, events.Event, error) {
	if err := positive(qty); err != nil {
		return l, nil, err
	}
	if available := l.AvailableQuantity(); available < qty {
		return l, nil, l.insufficient(qty, available)
	}

	l.ReservedQuantity += qty
	l = l.touch(at, false)
	return l, l.event(events.TypeStockLevelReserved, qty, at), nil
}

// ReleaseReservation gives back qty of reserved stock.
func (l StockLevel) ReleaseReservation(qty types.Quantity, at time.Time) (StockLevel, events.Event, error) {
	if err := positive(qty); err != nil {
		return l, nil, err
	}
	if qty > l.ReservedQuantity {
		return l, nil, apperror.NewInsufficientReservation(l.Key().String(), qty.String(), l.ReservedQuantity.String())
	}

	l.ReservedQuantity -= qty
	l = l.touch(at, false)
	return l, l.event(events.TypeStockLevelReleaseReserved, -qty, at), nil
}

// UpdateStock overwrites the balance after a physical count.
// It skips availability checks and is meant for reconciliation flows only.
func (l StockLevel) UpdateStock(qty types.Quantity, unitCost types.Money, at time.Time) (StockLevel, events.Event, error) {
	if qty.IsNegative() {
		return l, nil, apperror.NewNegativeQuantity("counted quantity must not be negative").
			WithDetail("key", l.Key().String()).
			WithDetail("quantity", qty.String())
	}
	if unitCost.IsNegative() {
		return l, nil, apperror.NewNegativeQuantity("unit cost must not be negative").
			WithDetail("key", l.Key().String())
	}

	delta := qty - l.Quantity
	l.Quantity = qty
	l.ReservedQuantity = l.ReservedQuantity.Min(qty)
	if unitCost.IsPositive() {
		l.UnitCost = unitCost
	}
	l = l.touch(at, true)
	return l, l.event(events.TypeStockLevelAdjusted, delta, at), nil
}

func (l StockLevel) touch(at time.Time, movement bool) StockLevel {
	if movement {
		ts := at
		l.LastMovementAt = &ts
	}
	l.UpdatedAt = at
	l.Version++
	return l
}

func (l StockLevel) event(kind string, delta types.Quantity, at time.Time) events.Event {
	return events.StockLevelChanged{
		Kind:             kind,
		Key:              l.Key().event(),
		Delta:            delta,
		Quantity:         l.Quantity,
		ReservedQuantity: l.ReservedQuantity,
		UnitCost:         l.UnitCost,
		At:               at,
	}
}

func (l StockLevel) insufficient(requested, available types.Quantity) *apperror.AppError {
	return apperror.NewInsufficientStock(l.Key().String(), requested.String(), available.String())
}

func positive(qty types.Quantity) error {
	if !qty.IsPositive() {
		return apperror.NewInvalidMovement("quantity must be positive").WithDetail("quantity", qty.String())
	}
	return nil
}

// View is the read model of a balance.
type View struct {
	StockLevel
	AvailableQuantity types.Quantity `json:"availableQuantity"`
	StockValue        types.Money    `json:"stockValue"`
}

func (l StockLevel) ToView() View {
	return View{StockLevel: l, AvailableQuantity: l.AvailableQuantity(), StockValue: l.StockValue()}
}
