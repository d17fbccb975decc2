// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

// Package batching folds a week of pending donations into one ACH debit
// per user.
package batching

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/uuid"

	"countercart.io/countercart/banking"
	"countercart.io/countercart/console"
	"countercart.io/countercart/donations"
	"countercart.io/countercart/payments/stripeach"
)

var (
	// Error describes internal batching error.
	Error = errs.Class("batching")

	mon = monkit.Package()
)

var minBatchTotal = decimal.NewFromInt(1)

// Store contains access to the repositories batching works with.
//
// architecture: Database
type Store interface {
	// Users is a getter for users repository.
	Users() console.Users
	// Accounts is a getter for bank accounts repository.
	Accounts() banking.Accounts
	// Transactions is a getter for bank transactions repository.
	Transactions() banking.Transactions
	// Donations is a getter for donations repository.
	Donations() donations.DB
	// Batches is a getter for donation batches repository.
	Batches() donations.BatchesDB

	// WithTx runs fn inside a database transaction. The passed Store is
	// bound to that transaction.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// Mailer sends collection outcome notifications.
type Mailer interface {
	// SendDebitFailed tells the user their weekly debit did not go through.
	SendDebitFailed(ctx context.Context, email, name string, amount decimal.Decimal)
}

// Service groups pending donations into weekly batches and collects them
// over ACH.
//
// architecture: Service
type Service struct {
	log    *zap.Logger
	store  Store
	ach    *stripeach.Service
	mailer Mailer

	nowFn func() time.Time
}

// NewService creates a new batching service.
func NewService(log *zap.Logger, store Store, ach *stripeach.Service, mailer Mailer) *Service {
	return &Service{
		log:    log,
		store:  store,
		ach:    ach,
		mailer: mailer,
		nowFn:  time.Now,
	}
}

// TestSetNow allows tests to have the service act as if the current time is
// whatever they want.
func (service *Service) TestSetNow(nowFn func() time.Time) {
	service.nowFn = nowFn
}

// CreateWeeklyBatches groups pending unbatched donations per user into the
// batch of the current week. Users without auto-donate and totals under one
// dollar are left alone.
func (service *Service) CreateWeeklyBatches(ctx context.Context) (batchIDs []uuid.UUID, err error) {
	defer mon.Task()(&ctx)(&err)

	weekOf := donations.WeekOf(service.nowFn())

	pending, err := service.store.Donations().ListPendingUnbatched(ctx)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	byUser := make(map[uuid.UUID][]donations.Donation)
	for _, donation := range pending {
		byUser[donation.UserID] = append(byUser[donation.UserID], donation)
	}

	for userID, userDonations := range byUser {
		user, err := service.store.Users().Get(ctx, userID)
		if err != nil {
			service.log.Error("user lookup failed", zap.Stringer("userID", userID), zap.Error(err))
			continue
		}
		if !user.AutoDonateEnabled {
			continue
		}

		total := decimal.Zero
		for _, donation := range userDonations {
			total = total.Add(donation.Amount)
		}
		if total.LessThan(minBatchTotal) {
			continue
		}

		var batchID uuid.UUID
		err = service.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
			batch, err := tx.Batches().GetByUserAndWeek(ctx, userID, weekOf)
			if err != nil || batch == nil {
				batch, err = tx.Batches().Insert(ctx, &donations.Batch{
					UserID:      userID,
					WeekOf:      weekOf,
					TotalAmount: total,
					Status:      donations.BatchPending,
				})
				if err != nil {
					return err
				}
			} else {
				newTotal := batch.TotalAmount.Add(total)
				err = tx.Batches().Update(ctx, batch.ID, donations.BatchUpdate{TotalAmount: &newTotal})
				if err != nil {
					return err
				}
			}
			batchID = batch.ID

			var txnIDs []uuid.UUID
			for _, donation := range userDonations {
				err = tx.Donations().Update(ctx, donation.ID, donations.DonationUpdate{BatchID: &batch.ID})
				if err != nil {
					return err
				}
				if donation.TransactionID != nil {
					txnIDs = append(txnIDs, *donation.TransactionID)
				}
			}
			if len(txnIDs) > 0 {
				return tx.Transactions().UpdateStatusBulk(ctx, txnIDs, banking.TransactionBatched)
			}
			return nil
		})
		if err != nil {
			service.log.Error("batch creation failed", zap.Stringer("userID", userID), zap.Error(err))
			continue
		}

		batchIDs = append(batchIDs, batchID)
	}

	mon.IntVal("weekly_batches_created").Observe(int64(len(batchIDs)))
	return batchIDs, nil
}

// CollectBatch initiates the ACH debit for one batch. There is no retry:
// failed debits mark the batch and its donations failed and notify the
// user.
func (service *Service) CollectBatch(ctx context.Context, batchID uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)

	batch, err := service.store.Batches().Get(ctx, batchID)
	if err != nil {
		return Error.Wrap(err)
	}
	if batch.Status != donations.BatchPending && batch.Status != donations.BatchReady {
		service.log.Debug("skipping collection, batch not collectable",
			zap.Stringer("batchID", batchID),
			zap.String("status", string(batch.Status)))
		return nil
	}

	user, err := service.store.Users().Get(ctx, batch.UserID)
	if err != nil {
		return Error.Wrap(err)
	}

	account, err := service.store.Accounts().GetACHAccount(ctx, batch.UserID)
	if err != nil || account == nil || !account.ACHEnabled {
		service.log.Debug("skipping collection, no ACH account",
			zap.Stringer("userID", batch.UserID))
		return nil
	}

	customerID, err := service.ach.EnsureCustomer(ctx, user.StripeCustomerID, user.Email, user.Name)
	if err != nil {
		return Error.Wrap(err)
	}
	if customerID != user.StripeCustomerID {
		err = service.store.Users().Update(ctx, user.ID, console.UpdateUserRequest{StripeCustomerID: &customerID})
		if err != nil {
			return Error.Wrap(err)
		}
	}

	processing := donations.BatchProcessing
	if err := service.store.Batches().Update(ctx, batchID, donations.BatchUpdate{Status: &processing}); err != nil {
		return Error.Wrap(err)
	}

	amountCents := batch.TotalAmount.Mul(decimal.NewFromInt(100)).IntPart()
	intent, err := service.ach.DebitACH(ctx, customerID, account.StripePaymentMethodID, amountCents, map[string]string{
		"batch_id": batchID.String(),
		"user_id":  batch.UserID.String(),
		"week_of":  batch.WeekOf.Format("2006-01-02"),
	})
	if err != nil {
		service.failBatch(ctx, batch, user, err)
		return Error.Wrap(err)
	}

	return Error.Wrap(service.store.Batches().Update(ctx, batchID, donations.BatchUpdate{
		StripePaymentIntentID: &intent.ID,
	}))
}

// failBatch marks the batch and its donations failed and notifies the
// user.
func (service *Service) failBatch(ctx context.Context, batch *donations.Batch, user *console.User, debitErr error) {
	service.log.Error("ACH debit failed",
		zap.Stringer("batchID", batch.ID),
		zap.Error(debitErr))
	mon.Counter("ach_debits_failed").Inc(1)

	failed := donations.BatchFailed
	message := debitErr.Error()
	err := service.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		err := tx.Batches().Update(ctx, batch.ID, donations.BatchUpdate{Status: &failed})
		if err != nil {
			return err
		}
		status := donations.StatusFailed
		return tx.Donations().UpdateByBatch(ctx, batch.ID, donations.DonationUpdate{
			Status:       &status,
			ErrorMessage: &message,
		})
	})
	if err != nil {
		service.log.Error("recording debit failure failed", zap.Stringer("batchID", batch.ID), zap.Error(err))
	}

	if service.mailer != nil && user.EmailNotifications {
		service.mailer.SendDebitFailed(ctx, user.Email, user.Name, batch.TotalAmount)
	}
}

// RunWeekly creates this week's batches and collects each of them.
func (service *Service) RunWeekly(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	batchIDs, err := service.CreateWeeklyBatches(ctx)
	if err != nil {
		return err
	}

	var group errs.Group
	for _, batchID := range batchIDs {
		if err := service.CollectBatch(ctx, batchID); err != nil {
			group.Add(err)
		}
	}
	return group.Err()
}
