package memory

import (
	"context"
	"sort"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/stocklevel"
)

// LedgerRepo implements ledger.Repository.
type LedgerRepo struct {
	s *Store
}

var _ ledger.Repository = (*LedgerRepo)(nil)

func (r *LedgerRepo) Append(ctx context.Context, e ledger.StockLedgerEntry) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	ml := movementLeg{movementID: e.MovementID, leg: e.Leg}
	if _, dup := s.movementLegs[ml]; dup && !id.IsNil(e.MovementID) {
		return apperror.NewAlreadyPosted(e.MovementID.String())
	}
	if _, dup := s.entryIdx[e.ID]; dup {
		return apperror.NewAlreadyPosted(e.MovementID.String()).WithDetail("entry_id", e.ID.String())
	}

	s.entries = append(s.entries, e)
	s.entryIdx[e.ID] = len(s.entries) - 1
	s.movementLegs[ml] = struct{}{}

	onRollback(ctx, func() {
		s.removeEntry(e.ID)
		delete(s.movementLegs, ml)
	})
	return nil
}

// removeEntry deletes an entry and reindexes. Caller holds s.mu.
func (s *Store) removeEntry(entryID id.ID) {
	i, ok := s.entryIdx[entryID]
	if !ok {
		return
	}
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	delete(s.entryIdx, entryID)
	for j := i; j < len(s.entries); j++ {
		s.entryIdx[s.entries[j].ID] = j
	}
}

func (r *LedgerRepo) GetByID(_ context.Context, entryID id.ID) (ledger.StockLedgerEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	i, ok := r.s.entryIdx[entryID]
	if !ok {
		return ledger.StockLedgerEntry{}, apperror.NewNotFound("ledger entry", entryID.String())
	}
	return r.s.entries[i], nil
}

func (r *LedgerRepo) MarkCancelled(ctx context.Context, entryID id.ID, by, reason string, at time.Time) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.entryIdx[entryID]
	if !ok {
		return apperror.NewNotFound("ledger entry", entryID.String())
	}
	prev := s.entries[i]
	next, err := prev.Cancel(by, reason, at)
	if err != nil {
		return err
	}
	s.entries[i] = next

	onRollback(ctx, func() { s.replaceEntry(prev) })
	return nil
}

func (r *LedgerRepo) UpdateMetadata(ctx context.Context, entryID id.ID, remarks, reference *string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.entryIdx[entryID]
	if !ok {
		return apperror.NewNotFound("ledger entry", entryID.String())
	}
	prev := s.entries[i]
	next := prev
	if remarks != nil {
		next.Remarks = *remarks
	}
	if reference != nil {
		next.Reference = *reference
	}
	s.entries[i] = next

	onRollback(ctx, func() { s.replaceEntry(prev) })
	return nil
}

// replaceEntry overwrites an entry by ID. Caller holds s.mu.
func (s *Store) replaceEntry(e ledger.StockLedgerEntry) {
	if i, ok := s.entryIdx[e.ID]; ok {
		s.entries[i] = e
	}
}

func (r *LedgerRepo) ExistsForMovement(_ context.Context, movementID id.ID) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.movementLegs[movementLeg{movementID: movementID, leg: ledger.LegPrimary}]
	return ok, nil
}

func (r *LedgerRepo) List(_ context.Context, f ledger.Filter) (ledger.Page, error) {
	f = f.Normalized()

	r.s.mu.RLock()
	matched := make([]ledger.StockLedgerEntry, 0)
	for _, e := range r.s.entries {
		if f.Match(e) {
			matched = append(matched, e)
		}
	}
	r.s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.PostingDate.Equal(b.PostingDate) {
			return a.PostingDate.After(b.PostingDate)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})

	page := ledger.Page{TotalCount: int64(len(matched)), Limit: f.Limit, Offset: f.Offset}
	if f.Offset >= len(matched) {
		page.Items = []ledger.StockLedgerEntry{}
		return page, nil
	}
	end := min(f.Offset+f.Limit, len(matched))
	page.Items = matched[f.Offset:end]
	return page, nil
}

func (r *LedgerRepo) SumQty(_ context.Context, key stocklevel.Key, asOf *time.Time) (types.Quantity, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var sum types.Quantity
	for _, e := range r.s.entries {
		if e.Key() != key {
			continue
		}
		if asOf != nil && e.PostingDate.After(*asOf) {
			continue
		}
		sum += e.Qty
	}
	return sum, nil
}

func (r *LedgerRepo) SumByKey(_ context.Context) (map[stocklevel.Key]types.Quantity, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make(map[stocklevel.Key]types.Quantity)
	for _, e := range r.s.entries {
		out[e.Key()] += e.Qty
	}
	return out, nil
}
