package batch

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/events"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newBatch(t *testing.T, qty int64, expiry *time.Time) Batch {
	t.Helper()
	b, evt, err := Create("PARACETAMOL", "B-001", types.NewQuantity(qty), Attributes{ExpiryDate: expiry}, t0)
	require.NoError(t, err)
	require.Equal(t, events.TypeBatchQuantityUpdated, evt.EventType())
	return b
}

func TestCreateValidation(t *testing.T) {
	_, _, err := Create("", "B-1", types.NewQuantity(1), Attributes{}, t0)
	assert.True(t, apperror.IsInvalidMovement(err))

	_, _, err = Create("ITEM", "B-1", 0, Attributes{}, t0)
	assert.True(t, apperror.IsInvalidMovement(err))
}

func TestCountersAndAvailability(t *testing.T) {
	b := newBatch(t, 100, nil)

	b, _, err := b.AddDispatchedQuantity(types.NewQuantity(30), t0)
	require.NoError(t, err)
	b, _, err = b.AddConsumedQuantity(types.NewQuantity(20), t0)
	require.NoError(t, err)
	b, _, err = b.AddScrappedQuantity(types.NewQuantity(5), t0)
	require.NoError(t, err)
	b, evt, err := b.AddReturnedQuantity(types.NewQuantity(10), t0)
	require.NoError(t, err)

	assert.Equal(t, types.NewQuantity(55), b.AvailableQuantity())
	assert.Equal(t, types.NewQuantity(100), b.Quantity)
	assert.Equal(t, 5, b.Version)

	upd := evt.(events.BatchQuantityUpdated)
	assert.Equal(t, "returned", upd.Counter)
	assert.Equal(t, types.NewQuantity(55), upd.Available)
}

func TestCountersRejectInvalid(t *testing.T) {
	b := newBatch(t, 10, nil)

	_, _, err := b.AddConsumedQuantity(0, t0)
	assert.True(t, apperror.IsInvalidMovement(err))

	_, _, err = b.AddDispatchedQuantity(types.NewQuantity(11), t0)
	assert.True(t, apperror.IsInsufficientStock(err))

	// nothing left the batch yet, so nothing can come back
	_, _, err = b.AddReturnedQuantity(types.NewQuantity(1), t0)
	assert.ErrorIs(t, err, apperror.ErrNegativeQuantity)

	disabled := b.Disable(t0)
	_, _, err = disabled.AddReceivedQuantity(types.NewQuantity(1), t0)
	assert.True(t, apperror.IsInvalidMovement(err))

	// the original snapshot is untouched by failed or derived operations
	assert.Equal(t, types.NewQuantity(10), b.AvailableQuantity())
	assert.False(t, b.Disabled)
}

func TestTransferDoesNotChangeAvailability(t *testing.T) {
	b := newBatch(t, 40, nil)
	b, _, err := b.AddTransferQuantity(types.NewQuantity(15), t0)
	require.NoError(t, err)

	assert.Equal(t, types.NewQuantity(15), b.TransferQuantity)
	assert.Equal(t, types.NewQuantity(40), b.AvailableQuantity())
}

func TestAvailableNeverExceedsQuantity(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	counters := []Counter{CounterReceived, CounterConsumed, CounterDispatched, CounterReturned, CounterScrapped, CounterTransfer}

	b := newBatch(t, 50, nil)
	for i := 0; i < 2000; i++ {
		c := counters[rng.Intn(len(counters))]
		qty := types.NewQuantity(int64(rng.Intn(20) + 1))
		next, _, err := b.Add(c, qty, t0)
		if err == nil {
			b = next
		}
		require.LessOrEqual(t, b.AvailableQuantity(), b.Quantity)
		require.GreaterOrEqual(t, b.AvailableQuantity(), types.Quantity(0))
	}
}

func TestExpiryWindows(t *testing.T) {
	expiry := t0.AddDate(0, 0, 10)
	b := newBatch(t, 5, &expiry)

	assert.True(t, b.IsExpiringSoon(t0, 30))
	assert.False(t, b.IsExpiringSoon(t0, 5))
	assert.False(t, b.IsExpired(t0))

	assert.True(t, b.IsExpired(expiry))
	assert.False(t, b.IsExpiringSoon(expiry, 30))

	days, ok := b.DaysToExpiry(t0)
	assert.True(t, ok)
	assert.Equal(t, 10, days)

	noExpiry := newBatch(t, 5, nil)
	assert.False(t, noExpiry.IsExpired(t0.AddDate(50, 0, 0)))
	assert.False(t, noExpiry.IsExpiringSoon(t0, 365))
}

func TestAddSampleQuantity(t *testing.T) {
	b := newBatch(t, 10, nil)

	b, _, err := b.AddSampleQuantity(types.NewQuantity(2), t0)
	require.NoError(t, err)
	assert.True(t, b.RetainSample)
	assert.Equal(t, types.NewQuantity(2), b.SampleQuantity)
	assert.Equal(t, types.NewQuantity(10), b.AvailableQuantity())

	_, _, err = b.AddSampleQuantity(types.NewQuantity(9), t0)
	assert.True(t, apperror.IsInsufficientStock(err))
}

func TestDisableEnable(t *testing.T) {
	b := newBatch(t, 1, nil)

	d := b.Disable(t0)
	assert.True(t, d.Disabled)
	assert.Equal(t, b.Version+1, d.Version)
	assert.Equal(t, d, d.Disable(t0))

	e := d.Enable(t0)
	assert.False(t, e.Disabled)
}
