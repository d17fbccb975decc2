// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package countercartdb_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"
	"storj.io/common/testrand"

	"countercart.io/countercart/console"
	"countercart.io/countercart/countercartdb"
	"countercart.io/countercart/countercartdb/countercartdbtest"
	"countercart.io/countercart/donations"
)

func TestUsersRoundTrip(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		limit := decimal.RequireFromString("25")
		created, err := db.Users().Insert(ctx, &console.User{
			Email:              "giver@example.com",
			Name:               "Giver",
			SubscriptionTier:   console.TierFree,
			DonationMultiplier: decimal.RequireFromString("1.5"),
			MonthlyLimit:       &limit,
			AutoDonateEnabled:  true,
			EmailNotifications: true,
		})
		require.NoError(t, err)
		require.False(t, created.ID.IsZero())
		require.False(t, created.CreatedAt.IsZero())

		got, err := db.Users().Get(ctx, created.ID)
		require.NoError(t, err)
		require.Equal(t, "giver@example.com", got.Email)
		require.True(t, got.DonationMultiplier.Equal(decimal.RequireFromString("1.5")))
		require.NotNil(t, got.MonthlyLimit)
		require.True(t, got.MonthlyLimit.Equal(limit))
		require.True(t, got.CurrentMonthTotal.IsZero())

		byEmail, err := db.Users().GetByEmail(ctx, "giver@example.com")
		require.NoError(t, err)
		require.Equal(t, created.ID, byEmail.ID)

		_, err = db.Users().Get(ctx, testrand.UUID())
		require.Error(t, err)
	})
}

func TestUsersUpdate(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		created, err := db.Users().Insert(ctx, &console.User{
			Email:              "giver@example.com",
			Name:               "Giver",
			DonationMultiplier: decimal.NewFromInt(1),
		})
		require.NoError(t, err)

		name := "Renamed"
		tier := console.TierPro
		customerID := "cus_123"
		publicProfile := true
		require.NoError(t, db.Users().Update(ctx, created.ID, console.UpdateUserRequest{
			Name:             &name,
			SubscriptionTier: &tier,
			StripeCustomerID: &customerID,
			PublicProfile:    &publicProfile,
		}))

		got, err := db.Users().Get(ctx, created.ID)
		require.NoError(t, err)
		require.Equal(t, "Renamed", got.Name)
		require.Equal(t, console.TierPro, got.SubscriptionTier)
		require.Equal(t, "cus_123", got.StripeCustomerID)
		require.True(t, got.PublicProfile)

		// clearing the monthly limit via double pointer
		limit := decimal.RequireFromString("25")
		limitPtr := &limit
		require.NoError(t, db.Users().Update(ctx, created.ID, console.UpdateUserRequest{MonthlyLimit: &limitPtr}))
		got, err = db.Users().Get(ctx, created.ID)
		require.NoError(t, err)
		require.NotNil(t, got.MonthlyLimit)

		var cleared *decimal.Decimal
		require.NoError(t, db.Users().Update(ctx, created.ID, console.UpdateUserRequest{MonthlyLimit: &cleared}))
		got, err = db.Users().Get(ctx, created.ID)
		require.NoError(t, err)
		require.Nil(t, got.MonthlyLimit)
	})
}

func TestIncrementAndResetMonthTotals(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		first, err := db.Users().Insert(ctx, &console.User{
			Email:              "first@example.com",
			DonationMultiplier: decimal.NewFromInt(1),
		})
		require.NoError(t, err)
		second, err := db.Users().Insert(ctx, &console.User{
			Email:              "second@example.com",
			DonationMultiplier: decimal.NewFromInt(1),
		})
		require.NoError(t, err)

		require.NoError(t, db.Users().IncrementMonthTotal(ctx, first.ID, decimal.RequireFromString("0.60")))
		require.NoError(t, db.Users().IncrementMonthTotal(ctx, first.ID, decimal.RequireFromString("0.25")))
		require.NoError(t, db.Users().IncrementMonthTotal(ctx, first.ID, decimal.RequireFromString("-0.25")))

		got, err := db.Users().Get(ctx, first.ID)
		require.NoError(t, err)
		require.True(t, got.CurrentMonthTotal.Equal(decimal.RequireFromString("0.60")),
			"got %s", got.CurrentMonthTotal)

		affected, err := db.Users().ResetMonthTotals(ctx)
		require.NoError(t, err)
		require.EqualValues(t, 1, affected)

		got, err = db.Users().Get(ctx, first.ID)
		require.NoError(t, err)
		require.True(t, got.CurrentMonthTotal.IsZero())

		// untouched user stays at zero
		got, err = db.Users().Get(ctx, second.ID)
		require.NoError(t, err)
		require.True(t, got.CurrentMonthTotal.IsZero())
	})
}

func TestLeaderboard(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		public, err := db.Users().Insert(ctx, &console.User{
			Email:              "public@example.com",
			Name:               "Public",
			DonationMultiplier: decimal.NewFromInt(1),
			PublicProfile:      true,
		})
		require.NoError(t, err)
		private, err := db.Users().Insert(ctx, &console.User{
			Email:              "private@example.com",
			Name:               "Private",
			DonationMultiplier: decimal.NewFromInt(1),
		})
		require.NoError(t, err)

		for _, row := range []struct {
			user   *console.User
			amount string
			status donations.DonationStatus
		}{
			{public, "0.60", donations.StatusCompleted},
			{public, "0.40", donations.StatusCompleted},
			{public, "0.99", donations.StatusPending},
			{private, "5.00", donations.StatusCompleted},
		} {
			_, err = db.Donations().Insert(ctx, &donations.Donation{
				UserID:      row.user.ID,
				CharitySlug: "rainforest-trust",
				Amount:      decimal.RequireFromString(row.amount),
				Status:      row.status,
			})
			require.NoError(t, err)
		}

		entries, err := db.Users().Leaderboard(ctx, 10)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Equal(t, "Public", entries[0].Name)
		require.True(t, entries[0].TotalAmount.Equal(decimal.RequireFromString("1.00")))
		require.EqualValues(t, 2, entries[0].Donations)

		active, err := db.Users().CountActive(ctx)
		require.NoError(t, err)
		require.EqualValues(t, 2, active)
	})
}
