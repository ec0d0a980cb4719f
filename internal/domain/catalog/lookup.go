// Package catalog resolves item and location codes owned by master-data services.
// The ledger stores codes only and asks a Lookup whether they exist.
package catalog

import (
	"context"
	"sync"

	"stockledger/internal/core/apperror"
)

// Item is the subset of item master data the ledger validates against.
type Item struct {
	Code          string `db:"code" json:"code"`
	Name          string `db:"name" json:"name"`
	IsStockItem   bool   `db:"is_stock_item" json:"isStockItem"`
	HasBatchNo    bool   `db:"has_batch_no" json:"hasBatchNo"`
	HasExpiryDate bool   `db:"has_expiry_date" json:"hasExpiryDate"`
}

// Warehouse is a stock location.
type Warehouse struct {
	Code     string `db:"code" json:"code"`
	Name     string `db:"name" json:"name"`
	Disabled bool   `db:"disabled" json:"disabled"`
}

// Bin is a sub-location of a warehouse.
type Bin struct {
	Code          string `db:"code" json:"code"`
	WarehouseCode string `db:"warehouse_code" json:"warehouseCode"`
}

// Lookup resolves identities. It returns apperror NotFound for unknown codes.
type Lookup interface {
	ResolveItem(ctx context.Context, code string) (Item, error)
	ResolveWarehouse(ctx context.Context, code string) (Warehouse, error)
	ResolveBin(ctx context.Context, warehouseCode, binCode string) (Bin, error)
}

// Static is an in-memory Lookup, used by tests and single-node setups.
type Static struct {
	mu         sync.RWMutex
	items      map[string]Item
	warehouses map[string]Warehouse
	bins       map[string]Bin
}

func NewStatic() *Static {
	return &Static{
		items:      make(map[string]Item),
		warehouses: make(map[string]Warehouse),
		bins:       make(map[string]Bin),
	}
}

func (s *Static) AddItem(it Item) *Static {
	s.mu.Lock()
	s.items[it.Code] = it
	s.mu.Unlock()
	return s
}

func (s *Static) AddWarehouse(w Warehouse, bins ...string) *Static {
	s.mu.Lock()
	s.warehouses[w.Code] = w
	for _, b := range bins {
		s.bins[w.Code+"/"+b] = Bin{Code: b, WarehouseCode: w.Code}
	}
	s.mu.Unlock()
	return s
}

func (s *Static) ResolveItem(_ context.Context, code string) (Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[code]
	if !ok {
		return Item{}, apperror.NewNotFound("item", code)
	}
	return it, nil
}

func (s *Static) ResolveWarehouse(_ context.Context, code string) (Warehouse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.warehouses[code]
	if !ok {
		return Warehouse{}, apperror.NewNotFound("warehouse", code)
	}
	return w, nil
}

func (s *Static) ResolveBin(_ context.Context, warehouseCode, binCode string) (Bin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bins[warehouseCode+"/"+binCode]
	if !ok {
		return Bin{}, apperror.NewNotFound("bin", warehouseCode+"/"+binCode)
	}
	return b, nil
}
