package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/batch"
	"stockledger/internal/domain/catalog"
	"stockledger/internal/domain/movement"
	"stockledger/internal/domain/posting"
	"stockledger/pkg/logger"
)

//go:embed demo.json
var demoFixture []byte

// openingNamespace derives stable movement IDs for opening balances, so a
// second seed run hits ALREADY_POSTED instead of doubling stock.
var openingNamespace = uuid.MustParse("6f1c2a64-9d7e-4c59-8a43-0b5f3e2d7c11")

// Fixture is the master data and opening stock loaded by the seeder.
type Fixture struct {
	Items        []catalog.Item     `json:"items"`
	Warehouses   []WarehouseFixture `json:"warehouses"`
	OpeningStock []OpeningBalance   `json:"openingStock"`
}

// WarehouseFixture is a warehouse with its bins.
type WarehouseFixture struct {
	catalog.Warehouse
	Bins []string `json:"bins"`
}

// OpeningBalance is posted as a receipt with voucher OPENING.
type OpeningBalance struct {
	ItemCode      string         `json:"itemCode"`
	WarehouseCode string         `json:"warehouseCode"`
	BinCode       string         `json:"binCode"`
	Quantity      types.Quantity `json:"quantity"`
	UnitCost      types.Money    `json:"unitCost"`
	BatchNo       string         `json:"batchNo"`
	ExpiryDate    *time.Time     `json:"expiryDate"`
}

// MovementID is stable for the same key and batch.
func (o OpeningBalance) MovementID() uuid.UUID {
	name := strings.Join([]string{o.ItemCode, o.WarehouseCode, o.BinCode, o.BatchNo}, "\x00")
	return uuid.NewSHA1(openingNamespace, []byte(name))
}

// LoadFixture decodes a fixture and checks its references.
func LoadFixture(r io.Reader) (Fixture, error) {
	var f Fixture
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return Fixture{}, fmt.Errorf("decode fixture: %w", err)
	}
	if err := f.Validate(); err != nil {
		return Fixture{}, err
	}
	return f, nil
}

// Validate rejects opening stock for items or locations the fixture does not define.
func (f Fixture) Validate() error {
	items := make(map[string]struct{}, len(f.Items))
	for _, it := range f.Items {
		if it.Code == "" {
			return errors.New("fixture: item without code")
		}
		items[it.Code] = struct{}{}
	}
	bins := make(map[string]struct{})
	for _, w := range f.Warehouses {
		if w.Code == "" {
			return errors.New("fixture: warehouse without code")
		}
		bins[w.Code+"/"] = struct{}{}
		for _, b := range w.Bins {
			bins[w.Code+"/"+b] = struct{}{}
		}
	}
	for i, o := range f.OpeningStock {
		if _, ok := items[o.ItemCode]; !ok {
			return fmt.Errorf("fixture: opening stock %d: unknown item %q", i, o.ItemCode)
		}
		if _, ok := bins[o.WarehouseCode+"/"+o.BinCode]; !ok {
			return fmt.Errorf("fixture: opening stock %d: unknown location %s/%s", i, o.WarehouseCode, o.BinCode)
		}
		if o.Quantity <= 0 {
			return fmt.Errorf("fixture: opening stock %d: quantity must be positive", i)
		}
	}
	return nil
}

type upserter[T any] interface {
	Upsert(ctx context.Context, entity T) error
}

// catalogWriter is the write side of the cat_* tables.
type catalogWriter struct {
	Items      upserter[catalog.Item]
	Warehouses upserter[catalog.Warehouse]
	Bins       upserter[catalog.Bin]
}

// seedCatalog upserts all master data in one transaction.
func seedCatalog(ctx context.Context, txm tx.Manager, w catalogWriter, f Fixture) error {
	return txm.RunInTransaction(ctx, func(ctx context.Context) error {
		for _, it := range f.Items {
			if err := w.Items.Upsert(ctx, it); err != nil {
				return err
			}
		}
		for _, wh := range f.Warehouses {
			if err := w.Warehouses.Upsert(ctx, wh.Warehouse); err != nil {
				return err
			}
			for _, code := range wh.Bins {
				if err := w.Bins.Upsert(ctx, catalog.Bin{Code: code, WarehouseCode: wh.Code}); err != nil {
					return err
				}
			}
		}
		logger.Info(ctx, "catalog seeded", "items", len(f.Items), "warehouses", len(f.Warehouses))
		return nil
	})
}

// Poster is the slice of the posting engine the seeder needs.
type Poster interface {
	PostMovement(ctx context.Context, m movement.StockMovement) (posting.Result, error)
}

// seedOpeningStock posts each balance once. It returns how many were new.
func seedOpeningStock(ctx context.Context, p Poster, balances []OpeningBalance, by string) (int, error) {
	posted := 0
	for _, o := range balances {
		opts := []movement.Option{movement.WithBin(o.BinCode), movement.WithVoucherNo("OPENING"), movement.WithReason("opening balance")}
		if o.BatchNo != "" {
			opts = append(opts, movement.WithBatch(o.BatchNo, &batch.Attributes{ExpiryDate: o.ExpiryDate}))
		}
		m, err := movement.CreateReceipt(o.ItemCode, o.WarehouseCode, o.Quantity, o.UnitCost, by, opts...)
		if err != nil {
			return posted, err
		}
		m.ID = o.MovementID()

		_, err = p.PostMovement(ctx, m)
		switch {
		case apperror.CodeOf(err) == apperror.CodeAlreadyPosted:
			logger.Debug(ctx, "opening balance already posted", "item", o.ItemCode, "warehouse", o.WarehouseCode)
		case err != nil:
			return posted, fmt.Errorf("post opening balance %s@%s: %w", o.ItemCode, o.WarehouseCode, err)
		default:
			posted++
		}
	}
	return posted, nil
}
