package memory

import (
	"context"
	"sort"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/batch"
	"stockledger/internal/domain/stocklevel"
)

// LevelRepo implements stocklevel.Repository.
type LevelRepo struct {
	s *Store
}

var _ stocklevel.Repository = (*LevelRepo)(nil)

func (r *LevelRepo) Get(_ context.Context, key stocklevel.Key) (stocklevel.StockLevel, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if l, ok := r.s.levels[key]; ok {
		return l, nil
	}
	return stocklevel.New(key), nil
}

// GetForUpdate has no row lock to take here; callers hold the key lock.
func (r *LevelRepo) GetForUpdate(ctx context.Context, key stocklevel.Key) (stocklevel.StockLevel, error) {
	return r.Get(ctx, key)
}

func (r *LevelRepo) Save(ctx context.Context, l stocklevel.StockLevel) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	key := l.Key()
	prev, exists := s.levels[key]
	switch {
	case !exists && l.Version != 1:
		return apperror.NewConcurrentModification("stock level", key.String())
	case exists && prev.Version != l.Version-1:
		return apperror.NewConcurrentModification("stock level", key.String())
	}
	s.levels[key] = l

	onRollback(ctx, func() {
		if exists {
			s.levels[key] = prev
		} else {
			delete(s.levels, key)
		}
	})
	return nil
}

func (r *LevelRepo) List(_ context.Context, f stocklevel.Filter) ([]stocklevel.StockLevel, error) {
	r.s.mu.RLock()
	out := make([]stocklevel.StockLevel, 0)
	for _, l := range r.s.levels {
		if f.Match(l) {
			out = append(out, l)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key().String() < out[j].Key().String() })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// BatchRepo implements batch.Repository.
type BatchRepo struct {
	s *Store
}

var _ batch.Repository = (*BatchRepo)(nil)

func batchNoKey(itemCode, batchNo string) string { return itemCode + "/" + batchNo }

func (r *BatchRepo) GetByID(_ context.Context, batchID id.ID) (batch.Batch, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.batches[batchID]
	if !ok {
		return batch.Batch{}, apperror.NewNotFound("batch", batchID.String())
	}
	return b, nil
}

func (r *BatchRepo) GetByNo(_ context.Context, itemCode, batchNo string) (batch.Batch, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	bid, ok := r.s.batchByNo[batchNoKey(itemCode, batchNo)]
	if !ok {
		return batch.Batch{}, apperror.NewNotFound("batch", batchNoKey(itemCode, batchNo))
	}
	return r.s.batches[bid], nil
}

func (r *BatchRepo) Save(ctx context.Context, b batch.Batch) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.batches[b.ID]
	noKey := batchNoKey(b.ItemCode, b.BatchNo)
	switch {
	case !exists && b.Version != 1:
		return apperror.NewConcurrentModification("batch", b.ID.String())
	case !exists:
		if other, taken := s.batchByNo[noKey]; taken && other != b.ID {
			return apperror.NewConcurrentModification("batch", noKey)
		}
	case prev.Version != b.Version-1:
		return apperror.NewConcurrentModification("batch", b.ID.String())
	}

	s.batches[b.ID] = b
	s.batchByNo[noKey] = b.ID

	onRollback(ctx, func() {
		if exists {
			s.batches[b.ID] = prev
			return
		}
		delete(s.batches, b.ID)
		delete(s.batchByNo, noKey)
	})
	return nil
}

func (r *BatchRepo) List(_ context.Context, f batch.Filter) ([]batch.Batch, error) {
	r.s.mu.RLock()
	out := make([]batch.Batch, 0)
	for _, b := range r.s.batches {
		if f.Match(b) {
			out = append(out, b)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		ei, ej := out[i].ExpiryDate, out[j].ExpiryDate
		switch {
		case ei != nil && ej != nil && !ei.Equal(*ej):
			return ei.Before(*ej)
		case ei != nil && ej == nil:
			return true
		case ei == nil && ej != nil:
			return false
		}
		return out[i].BatchNo < out[j].BatchNo
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
