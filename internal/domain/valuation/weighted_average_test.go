package valuation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/types"
)

func TestWeightedAverage(t *testing.T) {
	tests := []struct {
		name string
		q0   int64
		r0   string
		qi   int64
		ri   string
		want string
	}{
		{"receipt onto existing balance", 100, "10", 50, "20", "13.333333"},
		{"empty balance takes incoming rate", 0, "0", 10, "7.5", "7.5"},
		{"same rate stays", 40, "3", 60, "3", "3"},
		{"cheaper receipt lowers average", 10, "100", 90, "0", "10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := WeightedAverage(types.NewQuantity(tt.q0), types.MustMoney(tt.r0), types.NewQuantity(tt.qi), types.MustMoney(tt.ri))
			require.NoError(t, err)
			assert.True(t, got.Equal(types.MustMoney(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestWeightedAverageUndefined(t *testing.T) {
	_, err := WeightedAverage(types.NewQuantity(-10), types.MustMoney("5"), types.NewQuantity(10), types.MustMoney("5"))
	assert.ErrorIs(t, err, ErrUndefinedRate)

	_, err = WeightedAverage(0, types.Zero(), 0, types.Zero())
	assert.ErrorIs(t, err, ErrUndefinedRate)
}

func TestIncomingRate(t *testing.T) {
	got := IncomingRate(types.NewQuantity(-5), types.MustMoney("9"), types.NewQuantity(20), types.MustMoney("4"))
	assert.True(t, got.Equal(types.MustMoney("4")))

	got = IncomingRate(types.NewQuantity(100), types.MustMoney("10"), types.NewQuantity(50), types.MustMoney("20"))
	assert.True(t, got.Equal(types.MustMoney("13.333333")))
}
