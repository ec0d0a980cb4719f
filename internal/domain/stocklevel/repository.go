package stocklevel

import (
	"context"

	"stockledger/internal/core/types"
)

// Repository persists balances. Rows are never deleted.
type Repository interface {
	// Get returns the stored balance or New(key) when the key has no row yet.
	Get(ctx context.Context, key Key) (StockLevel, error)

	// GetForUpdate is Get plus a row lock held until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, key Key) (StockLevel, error)

	// Save inserts when Version is 1 and otherwise updates the row whose
	// stored version is Version-1.
	Save(ctx context.Context, level StockLevel) error

	List(ctx context.Context, f Filter) ([]StockLevel, error)
}

// Filter narrows balance listings.
type Filter struct {
	ItemCode      string
	WarehouseCode string
	// LowStockAt keeps rows whose available quantity is at or below the threshold.
	LowStockAt *types.Quantity
	Limit      int
}

func (f Filter) Match(l StockLevel) bool {
	if f.ItemCode != "" && l.ItemCode != f.ItemCode {
		return false
	}
	if f.WarehouseCode != "" && l.WarehouseCode != f.WarehouseCode {
		return false
	}
	if f.LowStockAt != nil && !l.IsLowStock(*f.LowStockAt) {
		return false
	}
	return true
}
