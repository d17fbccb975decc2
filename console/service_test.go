// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package console_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"

	"countercart.io/countercart/banking"
	"countercart.io/countercart/console"
	"countercart.io/countercart/console/consoleauth"
	"countercart.io/countercart/countercartdb"
	"countercart.io/countercart/countercartdb/countercartdbtest"
	"countercart.io/countercart/donations"
)

func newConsoleService(t *testing.T, db *countercartdb.DB) *console.Service {
	service, err := console.NewService(zaptest.NewLogger(t),
		&consoleauth.Hmac{Secret: []byte("test-secret")},
		db.Console(),
		console.Config{TokenExpiration: time.Hour, DefaultSeats: 10})
	require.NoError(t, err)
	return service
}

func TestCreateUser(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		service := newConsoleService(t, db)

		user, err := service.CreateUser(ctx, " Giver@Example.com ", "Giver")
		require.NoError(t, err)
		require.Equal(t, "giver@example.com", user.Email)
		require.True(t, user.DonationMultiplier.Equal(decimal.NewFromInt(1)))
		require.True(t, user.AutoDonateEnabled)

		_, err = service.CreateUser(ctx, "giver@example.com", "Copy")
		require.True(t, console.ErrValidation.Has(err))

		_, err = service.CreateUser(ctx, "   ", "Empty")
		require.True(t, console.ErrValidation.Has(err))
	})
}

func TestSessionTokenRoundTrip(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		service := newConsoleService(t, db)

		user, err := service.CreateUser(ctx, "giver@example.com", "Giver")
		require.NoError(t, err)

		token, err := service.GenerateSessionToken(ctx, user.ID, user.Email)
		require.NoError(t, err)

		auth, err := service.Authorize(console.WithSessionToken(ctx, token))
		require.NoError(t, err)
		require.Equal(t, user.ID, auth.User.ID)

		// missing token
		_, err = service.Authorize(ctx)
		require.True(t, console.ErrUnauthorized.Has(err))

		// tampered token
		_, err = service.Authorize(console.WithSessionToken(ctx, token+"x"))
		require.True(t, console.ErrUnauthorized.Has(err))
	})
}

func TestSessionTokenExpires(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		service := newConsoleService(t, db)

		user, err := service.CreateUser(ctx, "giver@example.com", "Giver")
		require.NoError(t, err)

		token, err := service.GenerateSessionToken(ctx, user.ID, user.Email)
		require.NoError(t, err)

		service.TestSetNow(func() time.Time { return time.Now().Add(2 * time.Hour) })

		_, err = service.Authorize(console.WithSessionToken(ctx, token))
		require.True(t, console.ErrUnauthorized.Has(err))
	})
}

func TestUpdateSettingsValidation(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		service := newConsoleService(t, db)

		user, err := service.CreateUser(ctx, "giver@example.com", "Giver")
		require.NoError(t, err)
		authCtx := console.WithAuth(ctx, console.Authorization{User: *user})

		tooSmall := decimal.RequireFromString("0.4")
		err = service.UpdateSettings(authCtx, console.UpdateSettingsRequest{DonationMultiplier: &tooSmall})
		require.True(t, console.ErrValidation.Has(err))

		tooBig := decimal.RequireFromString("11")
		err = service.UpdateSettings(authCtx, console.UpdateSettingsRequest{DonationMultiplier: &tooBig})
		require.True(t, console.ErrValidation.Has(err))

		double := decimal.RequireFromString("2")
		err = service.UpdateSettings(authCtx, console.UpdateSettingsRequest{DonationMultiplier: &double})
		require.NoError(t, err)

		lowLimit := decimal.RequireFromString("2")
		limitPtr := &lowLimit
		err = service.UpdateSettings(authCtx, console.UpdateSettingsRequest{MonthlyLimit: &limitPtr})
		require.True(t, console.ErrValidation.Has(err))

		okLimit := decimal.RequireFromString("100")
		okPtr := &okLimit
		err = service.UpdateSettings(authCtx, console.UpdateSettingsRequest{MonthlyLimit: &okPtr})
		require.NoError(t, err)

		settings, err := service.GetSettings(authCtx)
		require.NoError(t, err)
		require.True(t, settings.DonationMultiplier.Equal(double))
		require.NotNil(t, settings.MonthlyLimit)
		require.True(t, settings.MonthlyLimit.Equal(okLimit))

		// null clears the limit
		var cleared *decimal.Decimal
		err = service.UpdateSettings(authCtx, console.UpdateSettingsRequest{MonthlyLimit: &cleared})
		require.NoError(t, err)

		settings, err = service.GetSettings(authCtx)
		require.NoError(t, err)
		require.Nil(t, settings.MonthlyLimit)
	})
}

func pendingDonationWithTransaction(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB, user *console.User) *donations.Donation {
	item, err := db.Items().Insert(ctx, &banking.Item{
		UserID:      user.ID,
		AccessToken: "token",
		ItemID:      "plaid-item-1",
	})
	require.NoError(t, err)

	account, err := db.Accounts().Insert(ctx, &banking.Account{
		UserID:         user.ID,
		ItemID:         item.ID,
		PlaidAccountID: "plaid-account-1",
		Name:           "Checking",
		IsActive:       true,
	})
	require.NoError(t, err)

	txn, err := db.Transactions().Insert(ctx, &banking.Transaction{
		UserID:             user.ID,
		AccountID:          account.ID,
		PlaidTransactionID: "pt-1",
		MerchantName:       "Shell",
		Amount:             decimal.RequireFromString("23.40"),
		Date:               time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		Status:             banking.TransactionMatched,
	})
	require.NoError(t, err)

	donation, err := db.Donations().Insert(ctx, &donations.Donation{
		UserID:        user.ID,
		TransactionID: &txn.ID,
		CharitySlug:   "rainforest-trust",
		Amount:        decimal.RequireFromString("0.60"),
		Status:        donations.StatusPending,
	})
	require.NoError(t, err)

	require.NoError(t, db.Users().IncrementMonthTotal(ctx, user.ID, donation.Amount))
	return donation
}

func TestApproveDonation(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		service := newConsoleService(t, db)

		user, err := service.CreateUser(ctx, "giver@example.com", "Giver")
		require.NoError(t, err)
		authCtx := console.WithAuth(ctx, console.Authorization{User: *user})

		donation := pendingDonationWithTransaction(ctx, t, db, user)

		require.NoError(t, service.ApproveDonation(authCtx, donation.ID))

		updated, err := db.Donations().Get(ctx, donation.ID)
		require.NoError(t, err)
		require.Equal(t, donations.StatusProcessing, updated.Status)

		// approving twice is refused
		err = service.ApproveDonation(authCtx, donation.ID)
		require.True(t, donations.ErrNotPending.Has(err))
	})
}

func TestApproveDonationOfAnotherUser(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		service := newConsoleService(t, db)

		owner, err := service.CreateUser(ctx, "owner@example.com", "Owner")
		require.NoError(t, err)
		other, err := service.CreateUser(ctx, "other@example.com", "Other")
		require.NoError(t, err)

		donation := pendingDonationWithTransaction(ctx, t, db, owner)

		otherCtx := console.WithAuth(ctx, console.Authorization{User: *other})
		err = service.ApproveDonation(otherCtx, donation.ID)
		require.True(t, console.ErrForbidden.Has(err))
	})
}

func TestCancelDonationRevertsEverything(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		service := newConsoleService(t, db)

		user, err := service.CreateUser(ctx, "giver@example.com", "Giver")
		require.NoError(t, err)
		authCtx := console.WithAuth(ctx, console.Authorization{User: *user})

		donation := pendingDonationWithTransaction(ctx, t, db, user)
		transactionID := *donation.TransactionID

		require.NoError(t, service.CancelDonation(authCtx, donation.ID))

		_, err = db.Donations().Get(ctx, donation.ID)
		require.Error(t, err)

		txn, err := db.Transactions().Get(ctx, transactionID)
		require.NoError(t, err)
		require.Equal(t, banking.TransactionSkipped, txn.Status)

		updated, err := db.Users().Get(ctx, user.ID)
		require.NoError(t, err)
		require.True(t, updated.CurrentMonthTotal.IsZero())
	})
}

func TestOrganizations(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		service := newConsoleService(t, db)

		owner, err := service.CreateUser(ctx, "owner@example.com", "Owner")
		require.NoError(t, err)
		ownerCtx := console.WithAuth(ctx, console.Authorization{User: *owner})

		org, err := service.CreateOrganization(ownerCtx, "Acme Giving", 2)
		require.NoError(t, err)
		require.Equal(t, 1, org.SeatCount)

		upgraded, err := db.Users().Get(ctx, owner.ID)
		require.NoError(t, err)
		require.Equal(t, console.TierPro, upgraded.SubscriptionTier)

		member, err := service.CreateUser(ctx, "member@example.com", "Member")
		require.NoError(t, err)
		memberCtx := console.WithAuth(ctx, console.Authorization{User: *member})

		require.NoError(t, service.JoinOrganization(memberCtx, org.ID))

		// joining twice is refused
		err = service.JoinOrganization(memberCtx, org.ID)
		require.True(t, console.ErrValidation.Has(err))

		// seats are full now
		third, err := service.CreateUser(ctx, "third@example.com", "Third")
		require.NoError(t, err)
		thirdCtx := console.WithAuth(ctx, console.Authorization{User: *third})
		err = service.JoinOrganization(thirdCtx, org.ID)
		require.True(t, console.ErrForbidden.Has(err))
	})
}

func TestGiftSubscription(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		service := newConsoleService(t, db)

		purchaser, err := service.CreateUser(ctx, "purchaser@example.com", "Purchaser")
		require.NoError(t, err)
		purchaserCtx := console.WithAuth(ctx, console.Authorization{User: *purchaser})

		gift, err := service.CreateGift(purchaserCtx, "friend@example.com", 6)
		require.NoError(t, err)
		require.NotEmpty(t, gift.Code)

		friend, err := service.CreateUser(ctx, "friend@example.com", "Friend")
		require.NoError(t, err)
		friendCtx := console.WithAuth(ctx, console.Authorization{User: *friend})

		require.NoError(t, service.RedeemGift(friendCtx, gift.Code))

		upgraded, err := db.Users().Get(ctx, friend.ID)
		require.NoError(t, err)
		require.Equal(t, console.TierPro, upgraded.SubscriptionTier)

		// a code only works once
		err = service.RedeemGift(friendCtx, gift.Code)
		require.True(t, console.ErrValidation.Has(err))
	})
}

func TestPublicStats(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		service := newConsoleService(t, db)

		user, err := db.Users().Insert(ctx, &console.User{
			Email:              "public@example.com",
			Name:               "Public Giver",
			DonationMultiplier: decimal.NewFromInt(1),
			PublicProfile:      true,
		})
		require.NoError(t, err)

		for i, amount := range []string{"0.60", "0.40"} {
			_, err = db.Donations().Insert(ctx, &donations.Donation{
				UserID:      user.ID,
				CharitySlug: "rainforest-trust",
				Amount:      decimal.RequireFromString(amount),
				Status:      donations.StatusCompleted,
			})
			require.NoError(t, err, "donation %d", i)
		}

		stats, err := service.GetPublicStats(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(2), stats.TotalDonations)
		require.True(t, stats.TotalAmount.Equal(decimal.RequireFromString("1.00")))
		require.Equal(t, int64(1), stats.ActiveUsers)
		require.Len(t, stats.Leaderboard, 1)
		require.Equal(t, "Public Giver", stats.Leaderboard[0].Name)
	})
}
