// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package matching

import (
	"github.com/shopspring/decimal"
)

var oneDollar = decimal.NewFromInt(1)

// RoundUpAmount returns the suggested donation for a purchase: the change
// up to the next whole dollar, or a full dollar when the purchase already
// ends on one, scaled by the user's multiplier and quantized to cents.
//
// $4.50 at 1x gives $0.50, $4.50 at 2x gives $1.00, $12.00 at 1x gives $1.00.
func RoundUpAmount(amount, multiplier decimal.Decimal) decimal.Decimal {
	base := amount.Ceil().Sub(amount)
	if base.IsZero() {
		base = oneDollar
	}
	return base.Mul(multiplier).Round(2)
}

// CapPolicy decides what happens when a suggested donation would push the
// user past their monthly limit.
type CapPolicy string

const (
	// CapSkip drops the donation entirely.
	CapSkip CapPolicy = "skip"
	// CapClamp shrinks the donation to the remaining headroom.
	CapClamp CapPolicy = "cap"
)

// ApplyMonthlyLimit applies the user's monthly limit to a suggested
// donation. A nil limit means no cap. The returned ok is false when the
// donation should be skipped.
func ApplyMonthlyLimit(suggested, currentTotal decimal.Decimal, limit *decimal.Decimal, policy CapPolicy) (_ decimal.Decimal, ok bool) {
	if limit == nil {
		return suggested, true
	}
	if currentTotal.Add(suggested).LessThanOrEqual(*limit) {
		return suggested, true
	}

	if policy != CapClamp {
		return decimal.Zero, false
	}

	remainder := limit.Sub(currentTotal)
	if remainder.LessThan(decimal.New(1, -2)) {
		return decimal.Zero, false
	}
	return remainder.Round(2), true
}
