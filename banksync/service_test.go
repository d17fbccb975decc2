// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package banksync_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"

	"countercart.io/countercart/banking"
	"countercart.io/countercart/banksync"
	"countercart.io/countercart/console"
	"countercart.io/countercart/countercartdb"
	"countercart.io/countercart/countercartdb/countercartdbtest"
	"countercart.io/countercart/donations"
	"countercart.io/countercart/matching"
	"countercart.io/countercart/plaid"
)

// fakeAggregator serves the same delta page on every call, the way the
// upstream replays deltas when the cursor was not advanced.
type fakeAggregator struct {
	response plaid.SyncResponse
	calls    int
}

func (fake *fakeAggregator) TransactionsSync(ctx context.Context, accessToken, cursor string, count int) (*plaid.SyncResponse, error) {
	fake.calls++
	response := fake.response
	return &response, nil
}

// plainDecrypter passes stored tokens through untouched.
type plainDecrypter struct{}

func (plainDecrypter) Decrypt(ctx context.Context, encrypted string) (string, error) {
	return encrypted, nil
}

func setupBank(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) (*console.User, *banking.Item, *banking.Account) {
	user, err := db.Users().Insert(ctx, &console.User{
		Email:              "sync@example.com",
		Name:               "Sync",
		DonationMultiplier: decimal.NewFromInt(1),
	})
	require.NoError(t, err)

	item, err := db.Items().Insert(ctx, &banking.Item{
		UserID:          user.ID,
		AccessToken:     "access-token",
		ItemID:          "plaid-item-1",
		InstitutionName: "Test Bank",
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

	return user, item, account
}

func newSyncService(t *testing.T, db *countercartdb.DB, aggregator banksync.Aggregator) *banksync.Service {
	matcher := matching.NewService(zaptest.NewLogger(t), db.Matching(), matching.Config{
		MappingCacheTTL: time.Minute,
	})
	return banksync.NewService(zaptest.NewLogger(t), db.Banksync(),
		aggregator, plainDecrypter{}, matcher, banksync.Config{PageSize: 100})
}

func TestSyncItemIsIdempotent(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		_, item, _ := setupBank(ctx, t, db)

		aggregator := &fakeAggregator{response: plaid.SyncResponse{
			Added: []plaid.Transaction{
				{
					TransactionID: "pt-1",
					AccountID:     "plaid-account-1",
					Amount:        decimal.NewFromFloat(4.50),
					Date:          "2024-03-04",
					Name:          "Coffee Shop",
				},
				{
					TransactionID: "pt-2",
					AccountID:     "plaid-account-1",
					Amount:        decimal.NewFromFloat(12.00),
					Date:          "2024-03-04",
					Name:          "Book Store",
				},
			},
			NextCursor: "cursor-1",
		}}
		service := newSyncService(t, db, aggregator)

		stats, err := service.SyncItem(ctx, item.ID)
		require.NoError(t, err)
		require.Equal(t, 2, stats.Added)

		// replaying the same page must not duplicate anything
		stats, err = service.SyncItem(ctx, item.ID)
		require.NoError(t, err)
		require.Equal(t, 0, stats.Added)

		updated, err := db.Items().Get(ctx, item.ID)
		require.NoError(t, err)
		require.Equal(t, "cursor-1", updated.Cursor)
	})
}

func TestSyncItemSkipsPending(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		_, item, _ := setupBank(ctx, t, db)

		aggregator := &fakeAggregator{response: plaid.SyncResponse{
			Added: []plaid.Transaction{
				{
					TransactionID: "pt-pending",
					AccountID:     "plaid-account-1",
					Amount:        decimal.NewFromFloat(9.99),
					Date:          "2024-03-04",
					Name:          "Pending Purchase",
					Pending:       true,
				},
			},
		}}
		service := newSyncService(t, db, aggregator)

		stats, err := service.SyncItem(ctx, item.ID)
		require.NoError(t, err)
		require.Equal(t, 0, stats.Added)

		stored, err := db.Transactions().GetByPlaidTransactionID(ctx, "pt-pending")
		require.Error(t, err)
		require.Nil(t, stored)
	})
}

func TestSyncItemSkipsInactiveConnection(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		_, item, _ := setupBank(ctx, t, db)
		require.NoError(t, db.Items().UpdateStatus(ctx, item.ID, banking.ItemLoginRequired, "ITEM_LOGIN_REQUIRED"))

		aggregator := &fakeAggregator{}
		service := newSyncService(t, db, aggregator)

		stats, err := service.SyncItem(ctx, item.ID)
		require.NoError(t, err)
		require.Equal(t, banksync.Stats{}, stats)
		require.Zero(t, aggregator.calls)
	})
}

func TestSyncItemRemovedDeletesDonation(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		user, item, account := setupBank(ctx, t, db)

		txn, err := db.Transactions().Insert(ctx, &banking.Transaction{
			UserID:             user.ID,
			AccountID:          account.ID,
			PlaidTransactionID: "pt-removed",
			MerchantName:       "Shell",
			Amount:             decimal.NewFromFloat(23.40),
			Date:               time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)

		_, err = db.Donations().Insert(ctx, &donations.Donation{
			UserID:        user.ID,
			TransactionID: &txn.ID,
			CharitySlug:   "rainforest-trust",
			Amount:        decimal.NewFromFloat(0.60),
			Status:        donations.StatusPending,
		})
		require.NoError(t, err)

		aggregator := &fakeAggregator{response: plaid.SyncResponse{
			Removed: []plaid.RemovedTransaction{{TransactionID: "pt-removed"}},
		}}
		service := newSyncService(t, db, aggregator)

		stats, err := service.SyncItem(ctx, item.ID)
		require.NoError(t, err)
		require.Equal(t, 1, stats.Removed)

		_, err = db.Transactions().Get(ctx, txn.ID)
		require.Error(t, err)

		list, err := db.Donations().ListByUser(ctx, user.ID, 10)
		require.NoError(t, err)
		require.Empty(t, list)
	})
}

func TestSyncItemModified(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		user, item, account := setupBank(ctx, t, db)

		txn, err := db.Transactions().Insert(ctx, &banking.Transaction{
			UserID:             user.ID,
			AccountID:          account.ID,
			PlaidTransactionID: "pt-mod",
			MerchantName:       "SHELL",
			Amount:             decimal.NewFromFloat(20.00),
			Date:               time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)

		aggregator := &fakeAggregator{response: plaid.SyncResponse{
			Modified: []plaid.Transaction{
				{
					TransactionID: "pt-mod",
					AccountID:     "plaid-account-1",
					Amount:        decimal.NewFromFloat(23.40),
					Date:          "2024-03-05",
					Name:          "SHELL OIL",
				},
			},
		}}
		service := newSyncService(t, db, aggregator)

		stats, err := service.SyncItem(ctx, item.ID)
		require.NoError(t, err)
		require.Equal(t, 1, stats.Modified)

		updated, err := db.Transactions().Get(ctx, txn.ID)
		require.NoError(t, err)
		require.Equal(t, "SHELL OIL", updated.MerchantName)
		require.True(t, updated.Amount.Equal(decimal.NewFromFloat(23.40)))
	})
}
