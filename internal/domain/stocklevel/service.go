package stocklevel

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/types"
)

// Service answers balance queries. Reads take no locks and may lag a
// concurrent posting by one transaction.
type Service struct {
	repo Repository
}

// NewService creates a new stock level service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GetStockLevel returns the balance of one key, zero when never moved.
func (s *Service) GetStockLevel(ctx context.Context, key Key) (View, error) {
	if err := key.Validate(); err != nil {
		return View{}, err
	}
	l, err := s.repo.Get(ctx, key)
	if err != nil {
		return View{}, fmt.Errorf("get stock level: %w", err)
	}
	return l.ToView(), nil
}

// GetAvailableQuantity sums available quantity of an item over every bin of a
// warehouse. A bin driven negative counts as zero; its shortfall cannot be
// covered from other bins.
func (s *Service) GetAvailableQuantity(ctx context.Context, itemCode, warehouseCode string) (decimal.Decimal, error) {
	if err := NewKey(itemCode, warehouseCode, "").Validate(); err != nil {
		return decimal.Zero, err
	}
	list, err := s.repo.List(ctx, Filter{ItemCode: itemCode, WarehouseCode: warehouseCode})
	if err != nil {
		return decimal.Zero, fmt.Errorf("list stock levels: %w", err)
	}

	var total types.Quantity
	for _, l := range list {
		total += max(l.AvailableQuantity(), 0)
	}
	return total.Decimal(), nil
}

// ListByItem returns every balance of an item.
func (s *Service) ListByItem(ctx context.Context, itemCode string) ([]View, error) {
	list, err := s.repo.List(ctx, Filter{ItemCode: itemCode})
	if err != nil {
		return nil, fmt.Errorf("list stock levels: %w", err)
	}
	return views(list), nil
}

// ListLowStock returns balances with available quantity at or below threshold.
func (s *Service) ListLowStock(ctx context.Context, warehouseCode string, threshold types.Quantity) ([]View, error) {
	list, err := s.repo.List(ctx, Filter{WarehouseCode: warehouseCode, LowStockAt: &threshold})
	if err != nil {
		return nil, fmt.Errorf("list low stock: %w", err)
	}
	return views(list), nil
}

func views(list []StockLevel) []View {
	out := make([]View, len(list))
	for i, l := range list {
		out[i] = l.ToView()
	}
	return out
}
