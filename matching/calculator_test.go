// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package matching_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"countercart.io/countercart/matching"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestRoundUpAmount(t *testing.T) {
	for _, tt := range []struct {
		amount     string
		multiplier string
		expected   string
	}{
		{"4.50", "1", "0.50"},
		{"4.50", "2", "1.00"},
		{"12.00", "1", "1.00"},
		{"12.00", "3", "3.00"},
		{"0.01", "1", "0.99"},
		{"7.99", "1", "0.01"},
		{"7.99", "0.5", "0.01"},
		{"3.25", "0.5", "0.38"},
		{"19.37", "10", "6.30"},
	} {
		got := matching.RoundUpAmount(dec(tt.amount), dec(tt.multiplier))
		require.True(t, got.Equal(dec(tt.expected)),
			"amount %s x%s: expected %s, got %s", tt.amount, tt.multiplier, tt.expected, got)
	}
}

func TestApplyMonthlyLimitNoLimit(t *testing.T) {
	amount, ok := matching.ApplyMonthlyLimit(dec("0.75"), dec("99.25"), nil, matching.CapSkip)
	require.True(t, ok)
	require.True(t, amount.Equal(dec("0.75")))
}

func TestApplyMonthlyLimitUnderLimit(t *testing.T) {
	limit := dec("50")
	amount, ok := matching.ApplyMonthlyLimit(dec("0.75"), dec("49.25"), &limit, matching.CapSkip)
	require.True(t, ok)
	require.True(t, amount.Equal(dec("0.75")))
}

func TestApplyMonthlyLimitSkip(t *testing.T) {
	limit := dec("50")
	_, ok := matching.ApplyMonthlyLimit(dec("0.80"), dec("49.50"), &limit, matching.CapSkip)
	require.False(t, ok)
}

func TestApplyMonthlyLimitClamp(t *testing.T) {
	limit := dec("50")
	amount, ok := matching.ApplyMonthlyLimit(dec("0.80"), dec("49.50"), &limit, matching.CapClamp)
	require.True(t, ok)
	require.True(t, amount.Equal(dec("0.50")))
}

func TestApplyMonthlyLimitClampNoHeadroom(t *testing.T) {
	limit := dec("50")
	_, ok := matching.ApplyMonthlyLimit(dec("0.80"), dec("50"), &limit, matching.CapClamp)
	require.False(t, ok)

	// headroom below one cent rounds to nothing
	_, ok = matching.ApplyMonthlyLimit(dec("0.80"), dec("49.995"), &limit, matching.CapClamp)
	require.False(t, ok)
}
