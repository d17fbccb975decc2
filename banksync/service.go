// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

// Package banksync pulls transaction deltas from the bank aggregator into
// the local store and feeds new transactions to the matcher.
package banksync

import (
	"context"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/uuid"

	"countercart.io/countercart/banking"
	"countercart.io/countercart/donations"
	"countercart.io/countercart/matching"
	"countercart.io/countercart/plaid"
)

var (
	// Error describes internal banksync error.
	Error = errs.Class("banksync")

	mon = monkit.Package()
)

// Store contains access to the repositories sync works with.
//
// architecture: Database
type Store interface {
	// Items is a getter for bank connections repository.
	Items() banking.Items
	// Accounts is a getter for bank accounts repository.
	Accounts() banking.Accounts
	// Transactions is a getter for bank transactions repository.
	Transactions() banking.Transactions
	// Donations is a getter for donations repository.
	Donations() donations.DB

	// WithTx runs fn inside a database transaction. The passed Store is
	// bound to that transaction.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// Aggregator is the slice of the bank aggregator API sync uses.
type Aggregator interface {
	// TransactionsSync fetches one page of transaction deltas.
	TransactionsSync(ctx context.Context, accessToken, cursor string, count int) (*plaid.SyncResponse, error)
}

// Decrypter recovers aggregator access tokens from their stored form.
type Decrypter interface {
	// Decrypt returns the plaintext for a stored secret.
	Decrypt(ctx context.Context, encrypted string) (string, error)
}

// Matcher processes a stored transaction into a suggested donation.
type Matcher interface {
	// ProcessTransaction matches one transaction.
	ProcessTransaction(ctx context.Context, userID, transactionID uuid.UUID) (matching.Result, error)
}

// Config contains configuration for the sync service.
type Config struct {
	PageSize int `help:"how many transactions to request per sync page" default:"100"`
}

// Stats counts what one sync run did.
type Stats struct {
	Added    int
	Modified int
	Removed  int
	Matched  int
}

// Service syncs transactions for linked bank connections.
//
// architecture: Service
type Service struct {
	log        *zap.Logger
	store      Store
	aggregator Aggregator
	kms        Decrypter
	matcher    Matcher
	config     Config
}

// NewService creates a new sync service.
func NewService(log *zap.Logger, store Store, aggregator Aggregator, kms Decrypter, matcher Matcher, config Config) *Service {
	if config.PageSize <= 0 {
		config.PageSize = 100
	}
	return &Service{
		log:        log,
		store:      store,
		aggregator: aggregator,
		kms:        kms,
		matcher:    matcher,
		config:     config,
	}
}

// SyncItem pulls all pending transaction deltas for one bank connection.
// The cursor is persisted only after the last page, so an interrupted run
// replays the same pages and relies on deduplication.
func (service *Service) SyncItem(ctx context.Context, itemID uuid.UUID) (stats Stats, err error) {
	defer mon.Task()(&ctx)(&err)

	item, err := service.store.Items().Get(ctx, itemID)
	if err != nil {
		return Stats{}, Error.Wrap(err)
	}
	if item.Status != banking.ItemActive {
		service.log.Debug("skipping sync for inactive connection",
			zap.Stringer("itemID", itemID),
			zap.String("status", string(item.Status)))
		return Stats{}, nil
	}

	accessToken, err := service.kms.Decrypt(ctx, item.AccessToken)
	if err != nil {
		return Stats{}, Error.Wrap(err)
	}

	cursor := item.Cursor
	for {
		page, err := service.aggregator.TransactionsSync(ctx, accessToken, cursor, service.config.PageSize)
		if err != nil {
			return stats, Error.Wrap(err)
		}

		for _, txn := range page.Added {
			created, err := service.processAdded(ctx, item, txn)
			if err != nil {
				return stats, err
			}
			if created == nil {
				continue
			}
			stats.Added++

			result, err := service.matcher.ProcessTransaction(ctx, item.UserID, created.ID)
			if err != nil {
				service.log.Error("matching failed",
					zap.Stringer("transactionID", created.ID),
					zap.Error(err))
				continue
			}
			if result.Matched {
				stats.Matched++
			}
		}

		for _, txn := range page.Modified {
			modified, err := service.processModified(ctx, txn)
			if err != nil {
				return stats, err
			}
			if modified {
				stats.Modified++
			}
		}

		for _, removed := range page.Removed {
			deleted, err := service.processRemoved(ctx, removed.TransactionID)
			if err != nil {
				return stats, err
			}
			if deleted {
				stats.Removed++
			}
		}

		cursor = page.NextCursor
		if !page.HasMore {
			break
		}
	}

	if err := service.store.Items().UpdateCursor(ctx, item.ID, cursor); err != nil {
		return stats, Error.Wrap(err)
	}

	mon.IntVal("sync_added").Observe(int64(stats.Added))
	service.log.Info("transaction sync completed",
		zap.Stringer("itemID", itemID),
		zap.Int("added", stats.Added),
		zap.Int("modified", stats.Modified),
		zap.Int("removed", stats.Removed),
		zap.Int("matched", stats.Matched))

	return stats, nil
}

// SyncAll syncs every active bank connection, collecting errors instead of
// stopping at the first failure.
func (service *Service) SyncAll(ctx context.Context) (total Stats, err error) {
	defer mon.Task()(&ctx)(&err)

	items, err := service.store.Items().ListActive(ctx)
	if err != nil {
		return Stats{}, Error.Wrap(err)
	}

	var group errs.Group
	for _, item := range items {
		stats, err := service.SyncItem(ctx, item.ID)
		if err != nil {
			service.log.Error("sync failed for connection", zap.Stringer("itemID", item.ID), zap.Error(err))
			group.Add(err)
		}
		total.Added += stats.Added
		total.Modified += stats.Modified
		total.Removed += stats.Removed
		total.Matched += stats.Matched
	}
	return total, group.Err()
}

// processAdded stores a new settled transaction. It returns nil when the
// transaction is pending, already known, or has no known account.
func (service *Service) processAdded(ctx context.Context, item *banking.Item, txn plaid.Transaction) (_ *banking.Transaction, err error) {
	defer mon.Task()(&ctx)(&err)

	if txn.Pending {
		return nil, nil
	}

	if existing, err := service.store.Transactions().GetByPlaidTransactionID(ctx, txn.TransactionID); err == nil && existing != nil {
		return nil, nil
	}

	account, err := service.store.Accounts().GetByPlaidAccountID(ctx, item.ID, txn.AccountID)
	if err != nil {
		service.log.Error("bank account not found for transaction",
			zap.String("plaidAccountID", txn.AccountID),
			zap.Stringer("itemID", item.ID))
		return nil, nil
	}

	merchantName := txn.MerchantName
	if merchantName == "" {
		merchantName = txn.Name
	}

	date, err := time.Parse("2006-01-02", txn.Date)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	created, err := service.store.Transactions().Insert(ctx, &banking.Transaction{
		UserID:             item.UserID,
		AccountID:          account.ID,
		PlaidTransactionID: txn.TransactionID,
		MerchantName:       merchantName,
		MerchantNameNorm:   matching.NormalizeMerchant(merchantName),
		Amount:             txn.Amount.Abs(),
		Date:               date,
		Category:           txn.Category,
		Status:             banking.TransactionPending,
	})
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return created, nil
}

// processModified applies upstream edits to a known transaction.
func (service *Service) processModified(ctx context.Context, txn plaid.Transaction) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	existing, err := service.store.Transactions().GetByPlaidTransactionID(ctx, txn.TransactionID)
	if err != nil || existing == nil {
		return false, nil
	}

	merchantName := txn.MerchantName
	if merchantName == "" {
		merchantName = txn.Name
	}

	date, err := time.Parse("2006-01-02", txn.Date)
	if err != nil {
		return false, Error.Wrap(err)
	}

	err = service.store.Transactions().Update(ctx, existing.ID, banking.TransactionUpdate{
		MerchantName:     merchantName,
		MerchantNameNorm: matching.NormalizeMerchant(merchantName),
		Amount:           txn.Amount.Abs(),
		Date:             date,
		Category:         txn.Category,
	})
	if err != nil {
		return false, Error.Wrap(err)
	}
	return true, nil
}

// processRemoved deletes a transaction the aggregator retracted, together
// with its donation.
func (service *Service) processRemoved(ctx context.Context, plaidTransactionID string) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	existing, err := service.store.Transactions().GetByPlaidTransactionID(ctx, plaidTransactionID)
	if err != nil || existing == nil {
		return false, nil
	}

	err = service.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		if err := tx.Donations().DeleteByTransaction(ctx, existing.ID); err != nil {
			return err
		}
		return tx.Transactions().Delete(ctx, existing.ID)
	})
	if err != nil {
		return false, Error.Wrap(err)
	}
	return true, nil
}
