// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package matching_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"

	"countercart.io/countercart/banking"
	"countercart.io/countercart/causes"
	"countercart.io/countercart/console"
	"countercart.io/countercart/countercartdb"
	"countercart.io/countercart/countercartdb/countercartdbtest"
	"countercart.io/countercart/donations"
	"countercart.io/countercart/matching"
)

type fixture struct {
	user    *console.User
	cause   *causes.Cause
	charity *causes.Charity
	mapping *causes.Mapping
	account *banking.Account
}

func setupFixture(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) fixture {
	user, err := db.Users().Insert(ctx, &console.User{
		Email:              "giver@example.com",
		Name:               "Giver",
		DonationMultiplier: decimal.NewFromInt(1),
		AutoDonateEnabled:  true,
	})
	require.NoError(t, err)

	cause, err := db.Causes().Insert(ctx, &causes.Cause{
		Name:     "Climate",
		Slug:     "climate",
		IsActive: true,
	})
	require.NoError(t, err)

	charity, err := db.Charities().Insert(ctx, &causes.Charity{
		CauseID:      cause.ID,
		EveryOrgSlug: "rainforest-trust",
		Name:         "Rainforest Trust",
		IsDefault:    true,
		IsActive:     true,
	})
	require.NoError(t, err)

	mapping, err := db.Mappings().Insert(ctx, &causes.Mapping{
		MerchantPattern: "SHELL",
		MerchantName:    "Shell",
		CauseID:         cause.ID,
		CharitySlug:     charity.EveryOrgSlug,
		CharityName:     charity.Name,
		IsActive:        true,
	})
	require.NoError(t, err)

	item, err := db.Items().Insert(ctx, &banking.Item{
		UserID:          user.ID,
		AccessToken:     "encrypted-token",
		ItemID:          "plaid-item-1",
		InstitutionName: "Test Bank",
	})
	require.NoError(t, err)

	account, err := db.Accounts().Insert(ctx, &banking.Account{
		UserID:         user.ID,
		ItemID:         item.ID,
		PlaidAccountID: "plaid-account-1",
		Name:           "Checking",
		Type:           "depository",
		Subtype:        "checking",
		IsActive:       true,
	})
	require.NoError(t, err)

	return fixture{user: user, cause: cause, charity: charity, mapping: mapping, account: account}
}

func insertTransaction(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB, fx fixture, plaidID, merchant, amount string) *banking.Transaction {
	txn, err := db.Transactions().Insert(ctx, &banking.Transaction{
		UserID:             fx.user.ID,
		AccountID:          fx.account.ID,
		PlaidTransactionID: plaidID,
		MerchantName:       merchant,
		MerchantNameNorm:   matching.NormalizeMerchant(merchant),
		Amount:             dec(amount),
		Date:               time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return txn
}

func TestProcessTransactionMatched(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		fx := setupFixture(ctx, t, db)

		_, err := db.UserCauses().Insert(ctx, &causes.UserCause{
			UserID:  fx.user.ID,
			CauseID: fx.cause.ID,
		})
		require.NoError(t, err)

		service := matching.NewService(zaptest.NewLogger(t), db.Matching(), matching.Config{
			MappingCacheTTL: time.Minute,
			CapPolicy:       "skip",
		})

		txn := insertTransaction(ctx, t, db, fx, "txn-1", "SHELL OIL 57442", "23.40")

		result, err := service.ProcessTransaction(ctx, fx.user.ID, txn.ID)
		require.NoError(t, err)
		require.True(t, result.Matched)
		require.NotNil(t, result.DonationID)

		donation, err := db.Donations().Get(ctx, *result.DonationID)
		require.NoError(t, err)
		require.True(t, donation.Amount.Equal(dec("0.60")))
		require.Equal(t, "rainforest-trust", donation.CharitySlug)
		require.Equal(t, donations.StatusPending, donation.Status)

		updated, err := db.Transactions().Get(ctx, txn.ID)
		require.NoError(t, err)
		require.Equal(t, banking.TransactionMatched, updated.Status)
		require.NotNil(t, updated.MatchedMappingID)

		user, err := db.Users().Get(ctx, fx.user.ID)
		require.NoError(t, err)
		require.True(t, user.CurrentMonthTotal.Equal(dec("0.60")))
	})
}

func TestProcessTransactionCauseNotSelected(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		fx := setupFixture(ctx, t, db)

		service := matching.NewService(zaptest.NewLogger(t), db.Matching(), matching.Config{
			MappingCacheTTL: time.Minute,
		})

		txn := insertTransaction(ctx, t, db, fx, "txn-2", "SHELL OIL 57442", "23.40")

		result, err := service.ProcessTransaction(ctx, fx.user.ID, txn.ID)
		require.NoError(t, err)
		require.False(t, result.Matched)

		updated, err := db.Transactions().Get(ctx, txn.ID)
		require.NoError(t, err)
		require.Equal(t, banking.TransactionSkipped, updated.Status)

		list, err := db.Donations().ListByUser(ctx, fx.user.ID, 10)
		require.NoError(t, err)
		require.Empty(t, list)
	})
}

func TestProcessTransactionNoMapping(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		fx := setupFixture(ctx, t, db)

		service := matching.NewService(zaptest.NewLogger(t), db.Matching(), matching.Config{
			MappingCacheTTL: time.Minute,
		})

		txn := insertTransaction(ctx, t, db, fx, "txn-3", "UNKNOWN MERCHANT", "5.00")

		result, err := service.ProcessTransaction(ctx, fx.user.ID, txn.ID)
		require.NoError(t, err)
		require.False(t, result.Matched)

		updated, err := db.Transactions().Get(ctx, txn.ID)
		require.NoError(t, err)
		require.Equal(t, banking.TransactionSkipped, updated.Status)
	})
}

func TestProcessTransactionMonthlyLimitSkips(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		fx := setupFixture(ctx, t, db)

		_, err := db.UserCauses().Insert(ctx, &causes.UserCause{
			UserID:  fx.user.ID,
			CauseID: fx.cause.ID,
		})
		require.NoError(t, err)

		limit := dec("10")
		require.NoError(t, db.Users().Update(ctx, fx.user.ID, console.UpdateUserRequest{
			MonthlyLimit: monthlyLimit(&limit),
		}))
		require.NoError(t, db.Users().IncrementMonthTotal(ctx, fx.user.ID, dec("9.80")))

		service := matching.NewService(zaptest.NewLogger(t), db.Matching(), matching.Config{
			MappingCacheTTL: time.Minute,
			CapPolicy:       "skip",
		})

		txn := insertTransaction(ctx, t, db, fx, "txn-4", "SHELL OIL 57442", "23.40")

		result, err := service.ProcessTransaction(ctx, fx.user.ID, txn.ID)
		require.NoError(t, err)
		require.False(t, result.Matched)

		updated, err := db.Transactions().Get(ctx, txn.ID)
		require.NoError(t, err)
		require.Equal(t, banking.TransactionSkipped, updated.Status)

		user, err := db.Users().Get(ctx, fx.user.ID)
		require.NoError(t, err)
		require.True(t, user.CurrentMonthTotal.Equal(dec("9.80")))
	})
}

func TestProcessTransactionMonthlyLimitClamps(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		fx := setupFixture(ctx, t, db)

		_, err := db.UserCauses().Insert(ctx, &causes.UserCause{
			UserID:  fx.user.ID,
			CauseID: fx.cause.ID,
		})
		require.NoError(t, err)

		limit := dec("10")
		require.NoError(t, db.Users().Update(ctx, fx.user.ID, console.UpdateUserRequest{
			MonthlyLimit: monthlyLimit(&limit),
		}))
		require.NoError(t, db.Users().IncrementMonthTotal(ctx, fx.user.ID, dec("9.80")))

		service := matching.NewService(zaptest.NewLogger(t), db.Matching(), matching.Config{
			MappingCacheTTL: time.Minute,
			CapPolicy:       "cap",
		})

		txn := insertTransaction(ctx, t, db, fx, "txn-5", "SHELL OIL 57442", "23.40")

		result, err := service.ProcessTransaction(ctx, fx.user.ID, txn.ID)
		require.NoError(t, err)
		require.True(t, result.Matched)

		donation, err := db.Donations().Get(ctx, *result.DonationID)
		require.NoError(t, err)
		require.True(t, donation.Amount.Equal(dec("0.20")))
	})
}

func monthlyLimit(limit *decimal.Decimal) **decimal.Decimal {
	return &limit
}
