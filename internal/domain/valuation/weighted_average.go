// Package valuation computes moving weighted-average rates.
package valuation

import (
	"errors"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/types"
)

// ErrUndefinedRate is returned when the resulting quantity is zero or negative.
var ErrUndefinedRate = errors.New("valuation: weighted average undefined for non-positive resulting quantity")

// WeightedAverage returns (q0*r0 + qi*ri) / (q0+qi), rounded to types.RatePrecision.
//
// The result is the new average of the balance after an incoming quantity qi
// priced at ri lands on an existing balance q0 valued at r0. The caller snapshots
// it into the new ledger entry and the StockLevel; past entries are never revalued.
func WeightedAverage(q0 types.Quantity, r0 types.Money, qi types.Quantity, ri types.Money) (types.Money, error) {
	total := q0 + qi
	if total <= 0 {
		return decimal.Zero, ErrUndefinedRate
	}

	value := q0.Decimal().Mul(r0).Add(qi.Decimal().Mul(ri))
	return value.DivRound(total.Decimal(), types.RatePrecision), nil
}

// IncomingRate picks the rate a receipt into an existing balance should carry
// forward as the new average. A negative or empty existing balance has no
// meaningful average, so the incoming rate wins.
func IncomingRate(q0 types.Quantity, r0 types.Money, qi types.Quantity, ri types.Money) types.Money {
	if q0 <= 0 {
		return ri
	}
	rate, err := WeightedAverage(q0, r0, qi, ri)
	if err != nil {
		return ri
	}
	return rate
}
