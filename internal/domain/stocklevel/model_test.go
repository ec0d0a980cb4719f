package stocklevel

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/events"
)

var (
	key = NewKey("SKU-1", "MAIN", "")
	now = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
)

func qty(n int64) types.Quantity { return types.NewQuantity(n) }

func level(t *testing.T, onHand, reserved int64) StockLevel {
	t.Helper()
	l, _, err := New(key).ReceiveStock(qty(onHand), types.MustMoney("10"), now)
	require.NoError(t, err)
	if reserved > 0 {
		l, _, err = l.ReserveStock(qty(reserved), now)
		require.NoError(t, err)
	}
	return l
}

func TestIssueRejectsBeyondAvailable(t *testing.T) {
	l := level(t, 70, 10)

	_, _, err := l.IssueStock(qty(65), now)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrInsufficientStock)
	appErr, _ := apperror.AsAppError(err)
	assert.Equal(t, "60.0000", appErr.Details["available"])

	l, evt, err := l.IssueStock(qty(60), now)
	require.NoError(t, err)
	assert.Equal(t, qty(10), l.Quantity)
	assert.Equal(t, qty(10), l.ReservedQuantity)
	assert.Equal(t, events.TypeStockLevelIssued, evt.EventType())
}

func TestReceiveCostPolicy(t *testing.T) {
	l := level(t, 5, 0)

	l, _, err := l.ReceiveStock(qty(5), types.Zero(), now)
	require.NoError(t, err)
	assert.True(t, l.UnitCost.Equal(types.MustMoney("10")), "zero cost keeps last cost")

	l, _, err = l.ReceiveStock(qty(5), types.MustMoney("12.5"), now)
	require.NoError(t, err)
	assert.True(t, l.UnitCost.Equal(types.MustMoney("12.5")))
	assert.Equal(t, qty(15), l.Quantity)

	_, _, err = l.ReceiveStock(qty(1), types.MustMoney("-1"), now)
	assert.True(t, apperror.IsInvalidMovement(err))
}

func TestReservationRoundTrip(t *testing.T) {
	before := level(t, 40, 5)

	reserved, _, err := before.ReserveStock(qty(12), now)
	require.NoError(t, err)
	released, evt, err := reserved.ReleaseReservation(qty(12), now)
	require.NoError(t, err)

	assert.Equal(t, before.ReservedQuantity, released.ReservedQuantity)
	assert.Equal(t, before.Quantity, released.Quantity)
	assert.True(t, before.UnitCost.Equal(released.UnitCost))
	assert.Equal(t, events.TypeStockLevelReleaseReserved, evt.EventType())
}

func TestReserveAndReleaseLimits(t *testing.T) {
	l := level(t, 10, 4)

	_, _, err := l.ReserveStock(qty(7), now)
	assert.True(t, apperror.IsInsufficientStock(err))

	_, _, err = l.ReleaseReservation(qty(5), now)
	assert.ErrorIs(t, err, apperror.ErrInsufficientReservation)

	_, _, err = l.ReserveStock(0, now)
	assert.True(t, apperror.IsInvalidMovement(err))
}

func TestIssueAllowNegativeCapsReservation(t *testing.T) {
	l := level(t, 10, 6)

	l, _, err := l.IssueStockAllowNegative(qty(13), now)
	require.NoError(t, err)
	assert.Equal(t, qty(-3), l.Quantity)
	assert.Equal(t, types.Quantity(0), l.ReservedQuantity)
}

func TestUpdateStock(t *testing.T) {
	l := level(t, 20, 15)

	l, evt, err := l.UpdateStock(qty(8), types.Zero(), now)
	require.NoError(t, err)
	assert.Equal(t, qty(8), l.Quantity)
	assert.Equal(t, qty(8), l.ReservedQuantity)
	assert.Equal(t, qty(-12), evt.(events.StockLevelChanged).Delta)

	_, _, err = l.UpdateStock(qty(-1), types.Zero(), now)
	assert.ErrorIs(t, err, apperror.ErrNegativeQuantity)
}

func TestLowStockAndView(t *testing.T) {
	l := level(t, 10, 7)

	assert.True(t, l.IsLowStock(qty(3)))
	assert.False(t, l.IsLowStock(qty(2)))

	v := l.ToView()
	assert.Equal(t, qty(3), v.AvailableQuantity)
	assert.True(t, v.StockValue.Equal(types.MustMoney("100")))
	require.NotNil(t, v.LastMovementAt)
}

func TestConservationOverSequence(t *testing.T) {
	l := New(key)
	var received, issued types.Quantity

	ops := []struct {
		receive bool
		n       int64
	}{
		{true, 50}, {false, 20}, {true, 5}, {false, 35}, {false, 1}, {true, 12}, {false, 12},
	}
	for _, op := range ops {
		var err error
		if op.receive {
			l, _, err = l.ReceiveStock(qty(op.n), types.MustMoney("1"), now)
			if err == nil {
				received += qty(op.n)
			}
		} else {
			l, _, err = l.IssueStock(qty(op.n), now)
			if err == nil {
				issued += qty(op.n)
			}
		}
		require.GreaterOrEqual(t, l.Quantity, types.Quantity(0))
	}

	assert.Equal(t, received-issued, l.Quantity)
}

func TestReceiveRejectsOverflow(t *testing.T) {
	l := level(t, 1, 0)

	_, _, err := l.ReceiveStock(types.Quantity(math.MaxInt64), types.MustMoney("1"), now)
	assert.ErrorIs(t, err, apperror.ErrInvalidMovement)
	assert.Equal(t, qty(1), l.Quantity)
}
