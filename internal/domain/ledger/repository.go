package ledger

import (
	"context"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/stocklevel"
)

// Repository is append-only storage for ledger entries.
type Repository interface {
	// Append stores a new entry. A second entry for the same (movement, leg)
	// fails with apperror AlreadyPosted.
	Append(ctx context.Context, e StockLedgerEntry) error

	GetByID(ctx context.Context, entryID id.ID) (StockLedgerEntry, error)

	// MarkCancelled flips the cancellation flag once; a second call returns AlreadyCancelled.
	MarkCancelled(ctx context.Context, entryID id.ID, by, reason string, at time.Time) error

	// UpdateMetadata changes remarks and reference; nil leaves a field untouched.
	UpdateMetadata(ctx context.Context, entryID id.ID, remarks, reference *string) error

	ExistsForMovement(ctx context.Context, movementID id.ID) (bool, error)

	List(ctx context.Context, f Filter) (Page, error)

	// SumQty returns the sum of Qty at key over entries posted up to asOf (all when nil).
	SumQty(ctx context.Context, key stocklevel.Key, asOf *time.Time) (types.Quantity, error)

	// SumByKey returns the ledger balance of every key that has entries.
	SumByKey(ctx context.Context) (map[stocklevel.Key]types.Quantity, error)
}
