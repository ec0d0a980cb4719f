package catalog_repo

import (
	"testing"

	"stockledger/internal/domain/catalog"
)

func TestBaseCatalogRepo_GetQuery(t *testing.T) {
	repo := NewBaseCatalogRepo[catalog.Warehouse](nil, warehousesTable, "warehouse", "code")

	sql, args, err := repo.getQuery("MAIN").ToSql()
	if err != nil {
		t.Fatalf("ToSql failed: %v", err)
	}

	wantSQL := "SELECT code, name, disabled FROM cat_warehouses WHERE code = $1"
	if sql != wantSQL {
		t.Errorf("SQL mismatch\nwant: %s\ngot:  %s", wantSQL, sql)
	}
	if len(args) != 1 || args[0] != "MAIN" {
		t.Errorf("Args mismatch\nwant: [MAIN]\ngot:  %v", args)
	}
}

func TestBaseCatalogRepo_UpsertQuery(t *testing.T) {
	repo := NewBaseCatalogRepo[catalog.Bin](nil, binsTable, "bin", "warehouse_code", "code")

	sql, args, err := repo.upsertQuery(catalog.Bin{Code: "A-01", WarehouseCode: "MAIN"}).ToSql()
	if err != nil {
		t.Fatalf("ToSql failed: %v", err)
	}

	// Every column of a bin is part of its key.
	wantSQL := "INSERT INTO cat_bins (code,warehouse_code) VALUES ($1,$2) ON CONFLICT DO NOTHING"
	if sql != wantSQL {
		t.Errorf("SQL mismatch\nwant: %s\ngot:  %s", wantSQL, sql)
	}
	if len(args) != 2 {
		t.Fatalf("Args count mismatch\nwant: 2\ngot:  %d", len(args))
	}
}

func TestBaseCatalogRepo_UpsertQuery_UpdatesNonKeyColumns(t *testing.T) {
	repo := NewBaseCatalogRepo[catalog.Item](nil, itemsTable, "item", "code")

	sql, _, err := repo.upsertQuery(catalog.Item{Code: "MILK", Name: "Milk", IsStockItem: true, HasBatchNo: true}).ToSql()
	if err != nil {
		t.Fatalf("ToSql failed: %v", err)
	}

	wantSuffix := "ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, is_stock_item = EXCLUDED.is_stock_item, " +
		"has_batch_no = EXCLUDED.has_batch_no, has_expiry_date = EXCLUDED.has_expiry_date"
	if len(sql) < len(wantSuffix) || sql[len(sql)-len(wantSuffix):] != wantSuffix {
		t.Errorf("SQL suffix mismatch\nwant: ...%s\ngot:  %s", wantSuffix, sql)
	}
}
