// Package memory is an in-process implementation of every ledger repository.
//
// Writes made inside RunInTransaction register undo steps; a failing
// transaction replays them in reverse, so a rejected posting leaves the store
// exactly as it found it. Plain reads are not isolated and may see uncommitted
// writes; ReadOnly waits until no transaction is open. Per-key serialization is
// the posting engine's job.
package memory

import (
	"context"
	"sync"

	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain/batch"
	"stockledger/internal/domain/events"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/movement"
	"stockledger/internal/domain/stocklevel"
)

type movementLeg struct {
	movementID id.ID
	leg        int
}

// Store holds all state behind one mutex.
type Store struct {
	mu sync.RWMutex
	// txs is read-held by every open transaction and write-held by ReadOnly.
	txs sync.RWMutex

	entries      []ledger.StockLedgerEntry
	entryIdx     map[id.ID]int
	movementLegs map[movementLeg]struct{}

	levels map[stocklevel.Key]stocklevel.StockLevel

	batches   map[id.ID]batch.Batch
	batchByNo map[string]id.ID

	entryTypes map[movement.Type]movement.StockEntryType
	journal    map[id.ID]movement.JournalRecord
	outbox     []outboxItem
}

// NewStore returns an empty store seeded with the default entry types.
func NewStore() *Store {
	s := &Store{
		entryIdx:     make(map[id.ID]int),
		movementLegs: make(map[movementLeg]struct{}),
		levels:       make(map[stocklevel.Key]stocklevel.StockLevel),
		batches:      make(map[id.ID]batch.Batch),
		batchByNo:    make(map[string]id.ID),
		entryTypes:   make(map[movement.Type]movement.StockEntryType),
		journal:      make(map[id.ID]movement.JournalRecord),
	}
	for _, et := range movement.DefaultEntryTypes() {
		s.entryTypes[et.MovementType] = et
	}
	return s
}

func (s *Store) TxManager() *TxManager { return &TxManager{s: s} }

func (s *Store) Ledger() ledger.Repository { return &LedgerRepo{s: s} }

func (s *Store) Levels() stocklevel.Repository { return &LevelRepo{s: s} }

func (s *Store) Batches() batch.Repository { return &BatchRepo{s: s} }

func (s *Store) EntryTypes() *EntryTypeRepo { return &EntryTypeRepo{s: s} }

func (s *Store) Journal() movement.Journal { return &Journal{s: s} }

// Outbox returns a Publisher whose writes take part in the surrounding transaction.
func (s *Store) Outbox() events.Publisher { return &Outbox{s: s} }

// EntryCount returns the number of ledger entries.
func (s *Store) EntryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// OutboxEvents returns a copy of the published events.
func (s *Store) OutboxEvents() []events.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]events.Event, len(s.outbox))
	for i, it := range s.outbox {
		out[i] = it.evt
	}
	return out
}

// --- transactions ---

type txKey struct{}

type txState struct {
	undo []func()
}

// TxManager implements tx.Manager over the store.
type TxManager struct {
	s *Store
}

var _ tx.ReadOnlyManager = (*TxManager)(nil)

func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*txState); ok {
		return fn(ctx)
	}

	m.s.txs.RLock()
	defer m.s.txs.RUnlock()

	st := &txState{}
	if err := fn(context.WithValue(ctx, txKey{}, st)); err != nil {
		m.s.mu.Lock()
		for i := len(st.undo) - 1; i >= 0; i-- {
			st.undo[i]()
		}
		m.s.mu.Unlock()
		return err
	}
	return nil
}

// ReadOnly runs fn once every open transaction has finished, so its reads see
// committed state only. Inside a transaction it just calls fn.
func (m *TxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*txState); ok {
		return fn(ctx)
	}

	m.s.txs.Lock()
	defer m.s.txs.Unlock()
	return fn(context.WithValue(ctx, txKey{}, &txState{}))
}

// onRollback registers an undo step. Caller must hold s.mu.
func onRollback(ctx context.Context, undo func()) {
	if st, ok := ctx.Value(txKey{}).(*txState); ok {
		st.undo = append(st.undo, undo)
	}
}
