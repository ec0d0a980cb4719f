package catalog_repo

import (
	"context"

	"stockledger/internal/domain/catalog"
	"stockledger/internal/infrastructure/storage/postgres"
)

const (
	itemsTable      = "cat_items"
	warehousesTable = "cat_warehouses"
	binsTable       = "cat_bins"
)

// Lookup implements catalog.Lookup over the cat_* tables.
type Lookup struct {
	Items      *BaseCatalogRepo[catalog.Item]
	Warehouses *BaseCatalogRepo[catalog.Warehouse]
	Bins       *BaseCatalogRepo[catalog.Bin]
}

var _ catalog.Lookup = (*Lookup)(nil)

// NewLookup creates the catalog lookup.
func NewLookup(txm *postgres.TxManager) *Lookup {
	return &Lookup{
		Items:      NewBaseCatalogRepo[catalog.Item](txm, itemsTable, "item", "code"),
		Warehouses: NewBaseCatalogRepo[catalog.Warehouse](txm, warehousesTable, "warehouse", "code"),
		Bins:       NewBaseCatalogRepo[catalog.Bin](txm, binsTable, "bin", "warehouse_code", "code"),
	}
}

func (l *Lookup) ResolveItem(ctx context.Context, code string) (catalog.Item, error) {
	return l.Items.Get(ctx, code, code)
}

func (l *Lookup) ResolveWarehouse(ctx context.Context, code string) (catalog.Warehouse, error) {
	return l.Warehouses.Get(ctx, code, code)
}

func (l *Lookup) ResolveBin(ctx context.Context, warehouseCode, binCode string) (catalog.Bin, error) {
	return l.Bins.Get(ctx, warehouseCode+"/"+binCode, warehouseCode, binCode)
}
