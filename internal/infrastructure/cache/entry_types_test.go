package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/movement"
	"stockledger/internal/infrastructure/storage/memory"
)

type countingSource struct {
	movement.EntryTypeRepository
	lists int
	err   error
}

func (s *countingSource) List(ctx context.Context) ([]movement.StockEntryType, error) {
	s.lists++
	if s.err != nil {
		return nil, s.err
	}
	return s.EntryTypeRepository.List(ctx)
}

func TestEntryTypeCache_ServesFromMemory(t *testing.T) {
	store := memory.NewStore()
	src := &countingSource{EntryTypeRepository: store.EntryTypes()}
	c := NewEntryTypeCache(src)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		et, err := c.Get(ctx, movement.TypeIssue)
		require.NoError(t, err)
		assert.Equal(t, "Material Issue", et.Name)
	}
	list, err := c.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, len(movement.AllTypes))
	assert.Equal(t, 1, src.lists)
}

func TestEntryTypeCache_Invalidate(t *testing.T) {
	store := memory.NewStore()
	src := &countingSource{EntryTypeRepository: store.EntryTypes()}
	c := NewEntryTypeCache(src)
	ctx := context.Background()
	require.NoError(t, c.Reload(ctx))

	require.NoError(t, store.EntryTypes().Put(movement.StockEntryType{
		Name:               "Loose Issue",
		MovementType:       movement.TypeIssue,
		AllowNegativeStock: true,
	}))
	et, err := c.Get(ctx, movement.TypeIssue)
	require.NoError(t, err)
	assert.Equal(t, "Material Issue", et.Name, "stale until notified")

	c.Invalidate(ctx, string(movement.TypeIssue))
	et, err = c.Get(ctx, movement.TypeIssue)
	require.NoError(t, err)
	assert.Equal(t, "Loose Issue", et.Name)
	assert.True(t, et.AllowNegativeStock)
	assert.Equal(t, 2, src.lists)
}

func TestEntryTypeCache_CompilesConditions(t *testing.T) {
	store := memory.NewStore()
	require.NoError(t, store.EntryTypes().Put(movement.StockEntryType{
		Name:         "Small Issue",
		MovementType: movement.TypeIssue,
		Condition:    "quantity <= 10.0",
	}))
	c := NewEntryTypeCache(store.EntryTypes())
	ctx := context.Background()

	et, err := c.Get(ctx, movement.TypeIssue)
	require.NoError(t, err)

	m, err := movement.CreateIssue("SKU", "MAIN", types.NewQuantity(50), "sale", "bob")
	require.NoError(t, err)
	assert.ErrorIs(t, et.Check(m), apperror.ErrInvalidMovement)
}

func TestEntryTypeCache_SourceErrors(t *testing.T) {
	boom := errors.New("db down")
	src := &countingSource{EntryTypeRepository: memory.NewStore().EntryTypes(), err: boom}
	c := NewEntryTypeCache(src)

	_, err := c.Get(context.Background(), movement.TypeReceipt)
	require.ErrorIs(t, err, boom)

	src.err = nil
	_, err = c.Get(context.Background(), movement.TypeReceipt)
	require.NoError(t, err)
	assert.Equal(t, 2, src.lists, "failed loads are not cached")
}
