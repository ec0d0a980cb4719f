package batch

import (
	"context"
	"time"

	"stockledger/internal/core/id"
)

// Repository persists batch snapshots.
type Repository interface {
	// GetByID returns apperror NotFound when the batch does not exist.
	GetByID(ctx context.Context, batchID id.ID) (Batch, error)

	// GetByNo looks a batch up by its number within an item.
	GetByNo(ctx context.Context, itemCode, batchNo string) (Batch, error)

	// Save inserts a batch with Version 1 and otherwise updates the row
	// whose stored version is Version-1 (optimistic check).
	Save(ctx context.Context, b Batch) error

	// List returns batches matching the filter ordered by expiry, then batch number.
	List(ctx context.Context, f Filter) ([]Batch, error)
}

// Filter narrows batch queries.
type Filter struct {
	ItemCode        string
	OnlyAvailable   bool
	IncludeDisabled bool
	// ExpiresAfter keeps batches with expiry_date > ExpiresAfter.
	ExpiresAfter *time.Time
	// ExpiresBy keeps batches with expiry_date <= ExpiresBy.
	ExpiresBy *time.Time
	Limit     int
}

// Match applies the filter in memory; stores without a query language use it.
func (f Filter) Match(b Batch) bool {
	if f.ItemCode != "" && b.ItemCode != f.ItemCode {
		return false
	}
	if !f.IncludeDisabled && b.Disabled {
		return false
	}
	if f.OnlyAvailable && !b.HasAvailableQuantity() {
		return false
	}
	if f.ExpiresAfter != nil && (b.ExpiryDate == nil || !b.ExpiryDate.After(*f.ExpiresAfter)) {
		return false
	}
	if f.ExpiresBy != nil && (b.ExpiryDate == nil || b.ExpiryDate.After(*f.ExpiresBy)) {
		return false
	}
	return true
}
