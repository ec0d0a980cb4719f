// Package tx provides transaction management abstractions.
// The posting engine depends on this interface, never on a concrete store,
// which lets the same orchestration run over Postgres and the in-memory store.
package tx

import (
	"context"
)

// Manager defines the contract for transaction management.
type Manager interface {
	// RunInTransaction executes fn within a transaction.
	// If fn returns an error, every write made through ctx is rolled back.
	// If fn succeeds, the transaction is committed.
	//
	// Nested calls reuse the existing transaction from context.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager extends Manager with read-only transaction support.
type ReadOnlyManager interface {
	Manager

	// ReadOnly executes fn in a read-only transaction. All reads in fn see
	// one consistent snapshot.
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}
