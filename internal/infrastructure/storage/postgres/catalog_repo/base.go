// Package catalog_repo provides the PostgreSQL read model of item and location
// master data. The ledger only needs to know whether codes exist and how an
// item is tracked; the owning services replicate their rows into these tables.
package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/infrastructure/storage/postgres"
)

// BaseCatalogRepo reads and upserts one catalog table keyed by a natural key.
type BaseCatalogRepo[T any] struct {
	txm        *postgres.TxManager
	tableName  string
	entityName string
	keyCols    []string
	selectCols []string
}

// NewBaseCatalogRepo creates a catalog repository over tableName.
func NewBaseCatalogRepo[T any](txm *postgres.TxManager, tableName, entityName string, keyCols ...string) *BaseCatalogRepo[T] {
	return &BaseCatalogRepo[T]{
		txm:        txm,
		tableName:  tableName,
		entityName: entityName,
		keyCols:    keyCols,
		selectCols: postgres.ExtractDBColumns[T](),
	}
}

// Builder returns a squirrel builder with PostgreSQL placeholders.
func (r *BaseCatalogRepo[T]) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *BaseCatalogRepo[T]) getQuery(key ...any) squirrel.SelectBuilder {
	eq := squirrel.Eq{}
	for i, col := range r.keyCols {
		eq[col] = key[i]
	}
	return r.Builder().Select(r.selectCols...).From(r.tableName).Where(eq)
}

// Get returns the row with the given key values, in keyCols order.
func (r *BaseCatalogRepo[T]) Get(ctx context.Context, ref string, key ...any) (T, error) {
	var out T
	sql, args, err := r.getQuery(key...).ToSql()
	if err != nil {
		return out, fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return out, apperror.NewNotFound(r.entityName, ref)
		}
		return out, fmt.Errorf("get %s: %w", r.entityName, err)
	}
	return out, nil
}

func (r *BaseCatalogRepo[T]) upsertQuery(entity T) squirrel.InsertBuilder {
	data := postgres.StructToMap(entity)
	q := r.Builder().Insert(r.tableName).SetMap(data)

	suffix := "ON CONFLICT ("
	for i, col := range r.keyCols {
		if i > 0 {
			suffix += ", "
		}
		suffix += col
	}
	suffix += ") DO UPDATE SET "

	first := true
	for _, col := range r.selectCols {
		if isKey(col, r.keyCols) {
			continue
		}
		if !first {
			suffix += ", "
		}
		suffix += col + " = EXCLUDED." + col
		first = false
	}
	if first {
		return q.Suffix("ON CONFLICT DO NOTHING")
	}
	return q.Suffix(suffix)
}

// Upsert inserts or replaces a row.
func (r *BaseCatalogRepo[T]) Upsert(ctx context.Context, entity T) error {
	sql, args, err := r.upsertQuery(entity).ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert %s: %w", r.entityName, err)
	}
	return nil
}

func isKey(col string, keys []string) bool {
	for _, k := range keys {
		if k == col {
			return true
		}
	}
	return false
}
