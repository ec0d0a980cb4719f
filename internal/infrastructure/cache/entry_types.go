// Package cache keeps hot configuration in memory and drops it when
// PostgreSQL announces a change with NOTIFY.
package cache

import (
	"context"
	"sync"

	"stockledger/internal/domain/movement"
	"stockledger/pkg/logger"
)

// EntryTypesChannel is notified by a trigger on stock_entry_types.
const EntryTypesChannel = "stock_entry_types_changed"

type entryTypeSnapshot struct {
	list   []movement.StockEntryType
	byType map[movement.Type]movement.StockEntryType
}

// EntryTypeCache serves stock entry types from memory. The first read after
// Invalidate reloads the whole table from the source.
type EntryTypeCache struct {
	source movement.EntryTypeRepository

	mu   sync.RWMutex
	snap *entryTypeSnapshot
	gen  uint64
}

var _ movement.EntryTypeRepository = (*EntryTypeCache)(nil)

// NewEntryTypeCache wraps source.
func NewEntryTypeCache(source movement.EntryTypeRepository) *EntryTypeCache {
	return &EntryTypeCache{source: source}
}

// Get returns the cached entry type. Types missing from the cache are asked
// of the source, which reports NotFound.
func (c *EntryTypeCache) Get(ctx context.Context, t movement.Type) (movement.StockEntryType, error) {
	snap, err := c.snapshot(ctx)
	if err != nil {
		return movement.StockEntryType{}, err
	}
	if et, ok := snap.byType[t]; ok {
		return et, nil
	}
	return c.source.Get(ctx, t)
}

// List returns a copy of the cached entry types.
func (c *EntryTypeCache) List(ctx context.Context) ([]movement.StockEntryType, error) {
	snap, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]movement.StockEntryType, len(snap.list))
	copy(out, snap.list)
	return out, nil
}

// Invalidate drops the cache. It matches InvalidationFunc.
func (c *EntryTypeCache) Invalidate(ctx context.Context, payload string) {
	c.mu.Lock()
	c.snap = nil
	c.gen++
	c.mu.Unlock()
	logger.Debug(ctx, "entry type cache invalidated", "movement_type", payload)
}

func (c *EntryTypeCache) snapshot(ctx context.Context) (*entryTypeSnapshot, error) {
	c.mu.RLock()
	snap, gen := c.snap, c.gen
	c.mu.RUnlock()
	if snap != nil {
		return snap, nil
	}
	return c.load(ctx, gen)
}

// Reload reads every entry type from the source and compiles its condition.
func (c *EntryTypeCache) Reload(ctx context.Context) error {
	c.mu.RLock()
	gen := c.gen
	c.mu.RUnlock()
	_, err := c.load(ctx, gen)
	return err
}

func (c *EntryTypeCache) load(ctx context.Context, gen uint64) (*entryTypeSnapshot, error) {
	list, err := c.source.List(ctx)
	if err != nil {
		return nil, err
	}
	snap := &entryTypeSnapshot{
		list:   list,
		byType: make(map[movement.Type]movement.StockEntryType, len(list)),
	}
	for i, et := range list {
		compiled, err := et.Compile()
		if err != nil {
			return nil, err
		}
		snap.list[i] = compiled
		snap.byType[et.MovementType] = compiled
	}

	c.mu.Lock()
	// An invalidation during the read keeps the cache cold.
	if c.gen == gen {
		c.snap = snap
	}
	c.mu.Unlock()

	logger.Debug(ctx, "entry type cache loaded", "count", len(list))
	return snap, nil
}
