// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

// Package grants moves collected donation funds to nonprofits through the
// disbursement partner and reconciles the outcomes.
package grants

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/uuid"

	"countercart.io/countercart/banking"
	"countercart.io/countercart/causes"
	"countercart.io/countercart/console"
	"countercart.io/countercart/donations"
	"countercart.io/countercart/everyorg"
)

var (
	// Error describes internal grants error.
	Error = errs.Class("grants")

	mon = monkit.Package()
)

// Store contains access to the repositories grant distribution works with.
//
// architecture: Database
type Store interface {
	// Users is a getter for users repository.
	Users() console.Users
	// Transactions is a getter for bank transactions repository.
	Transactions() banking.Transactions
	// Donations is a getter for donations repository.
	Donations() donations.DB
	// Batches is a getter for donation batches repository.
	Batches() donations.BatchesDB
	// Causes is a getter for causes repository.
	Causes() causes.Causes
	// Charities is a getter for charities repository.
	Charities() causes.Charities

	// WithTx runs fn inside a database transaction. The passed Store is
	// bound to that transaction.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// Partner is the slice of the disbursement partner API the service uses.
type Partner interface {
	// Configured reports whether partner credentials are present.
	Configured() bool
	// CreateDisbursement submits one disbursement batch.
	CreateDisbursement(ctx context.Context, grants []everyorg.Grant) (*everyorg.Disbursement, error)
}

// Mailer sends grant outcome notifications.
type Mailer interface {
	// SendDonationReceipt confirms completed giving to the user.
	SendDonationReceipt(ctx context.Context, email, name string, amount decimal.Decimal, charities []string)
}

// Service groups completed batches into partner disbursements.
//
// architecture: Service
type Service struct {
	log     *zap.Logger
	store   Store
	partner Partner
	mailer  Mailer

	nowFn func() time.Time
}

// NewService creates a new grant distribution service.
func NewService(log *zap.Logger, store Store, partner Partner, mailer Mailer) *Service {
	return &Service{
		log:     log,
		store:   store,
		partner: partner,
		mailer:  mailer,
		nowFn:   time.Now,
	}
}

// TestSetNow allows tests to have the service act as if the current time is
// whatever they want.
func (service *Service) TestSetNow(nowFn func() time.Time) {
	service.nowFn = nowFn
}

// DistributeBatch groups the batch's donations by charity and submits one
// disbursement to the partner. Batches already granted or in flight are
// left alone.
func (service *Service) DistributeBatch(ctx context.Context, batchID uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)

	batch, err := service.store.Batches().Get(ctx, batchID)
	if err != nil {
		return Error.Wrap(err)
	}
	if batch.GrantStatus == donations.GrantProcessing || batch.GrantStatus == donations.GrantGranted {
		service.log.Debug("skipping distribution",
			zap.Stringer("batchID", batchID),
			zap.String("grantStatus", string(batch.GrantStatus)))
		return nil
	}

	if !service.partner.Configured() {
		service.log.Warn("disbursement partner not configured, skipping grant distribution",
			zap.Stringer("batchID", batchID))
		return nil
	}

	batchDonations, err := service.store.Donations().ListByBatch(ctx, batchID)
	if err != nil {
		return Error.Wrap(err)
	}

	grants, err := service.groupGrants(ctx, batchID, batchDonations)
	if err != nil {
		return err
	}
	if len(grants) == 0 {
		service.log.Warn("no grants to distribute for batch", zap.Stringer("batchID", batchID))
		granted := donations.GrantGranted
		now := service.nowFn()
		return Error.Wrap(service.store.Batches().Update(ctx, batchID, donations.BatchUpdate{
			GrantStatus: &granted,
			GrantedAt:   &now,
		}))
	}

	processing := donations.GrantProcessing
	if err := service.store.Batches().Update(ctx, batchID, donations.BatchUpdate{GrantStatus: &processing}); err != nil {
		return Error.Wrap(err)
	}

	disbursement, err := service.partner.CreateDisbursement(ctx, grants)
	if err != nil {
		failed := donations.GrantFailed
		message := err.Error()
		updateErr := service.store.Batches().Update(ctx, batchID, donations.BatchUpdate{
			GrantStatus: &failed,
			GrantError:  &message,
		})
		mon.Counter("disbursements_failed").Inc(1)
		return Error.Wrap(errs.Combine(err, updateErr))
	}

	err = service.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		err := tx.Batches().Update(ctx, batchID, donations.BatchUpdate{
			EveryOrgDisbursementID: &disbursement.ID,
		})
		if err != nil {
			return err
		}
		pending := donations.GrantPending
		return tx.Donations().UpdateByBatch(ctx, batchID, donations.DonationUpdate{GrantStatus: &pending})
	})
	if err != nil {
		return Error.Wrap(err)
	}

	mon.Counter("disbursements_created").Inc(1)
	service.log.Info("grant distribution initiated",
		zap.Stringer("batchID", batchID),
		zap.String("disbursementID", disbursement.ID),
		zap.Int("grantCount", len(grants)))
	return nil
}

// groupGrants folds donations into one grant per charity, amounts in
// cents. Donations without a resolvable charity are skipped with a log
// line.
func (service *Service) groupGrants(ctx context.Context, batchID uuid.UUID, batchDonations []donations.Donation) (_ []everyorg.Grant, err error) {
	defer mon.Task()(&ctx)(&err)

	type bucket struct {
		amountCents int64
		donationIDs []string
		causeName   string
	}
	buckets := make(map[string]*bucket)
	var order []string

	for _, donation := range batchDonations {
		slug := donation.CharitySlug
		causeName := "General"

		if slug == "" && donation.CharityID != nil {
			charity, err := service.store.Charities().Get(ctx, *donation.CharityID)
			if err == nil {
				slug = charity.EveryOrgSlug
			}
		}
		if slug == "" {
			service.log.Warn("no charity found for donation, skipping",
				zap.Stringer("donationID", donation.ID))
			continue
		}

		if donation.CharityID != nil {
			if charity, err := service.store.Charities().Get(ctx, *donation.CharityID); err == nil {
				if cause, err := service.store.Causes().Get(ctx, charity.CauseID); err == nil {
					causeName = cause.Name
				}
			}
		}

		b, ok := buckets[slug]
		if !ok {
			b = &bucket{causeName: causeName}
			buckets[slug] = b
			order = append(order, slug)
		}
		b.amountCents += donation.Amount.Mul(decimal.NewFromInt(100)).IntPart()
		b.donationIDs = append(b.donationIDs, donation.ID.String())
	}

	grants := make([]everyorg.Grant, 0, len(buckets))
	for _, slug := range order {
		b := buckets[slug]
		grants = append(grants, everyorg.Grant{
			NonprofitID: slug,
			AmountCents: b.amountCents,
			Memo:        "CounterCart grant - " + b.causeName,
			Metadata: map[string]string{
				"batch_id":     batchID.String(),
				"donation_ids": strings.Join(b.donationIDs, ","),
			},
		})
	}
	return grants, nil
}

// RetryFailedDisbursements resets failed distributions on completed
// batches and runs them again.
func (service *Service) RetryFailedDisbursements(ctx context.Context) (retried int, err error) {
	defer mon.Task()(&ctx)(&err)

	failed, err := service.store.Batches().ListGrantFailed(ctx)
	if err != nil {
		return 0, Error.Wrap(err)
	}

	var group errs.Group
	for _, batch := range failed {
		none := donations.GrantNone
		empty := ""
		err := service.store.Batches().Update(ctx, batch.ID, donations.BatchUpdate{
			GrantStatus:            &none,
			GrantError:             &empty,
			EveryOrgDisbursementID: &empty,
		})
		if err != nil {
			group.Add(err)
			continue
		}

		if err := service.DistributeBatch(ctx, batch.ID); err != nil {
			group.Add(err)
			continue
		}
		retried++
	}
	return retried, group.Err()
}

// ReconcileDisbursement applies the partner's verdict for a disbursement:
// completed marks everything granted, failed records the reason.
func (service *Service) ReconcileDisbursement(ctx context.Context, disbursementID, status, reason string) (err error) {
	defer mon.Task()(&ctx)(&err)

	batch, err := service.store.Batches().GetByDisbursement(ctx, disbursementID)
	if err != nil {
		return Error.New("no batch for disbursement %q", disbursementID)
	}

	switch status {
	case "completed", "succeeded":
		return service.completeGrant(ctx, batch)
	case "failed":
		failed := donations.GrantFailed
		err = service.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
			err := tx.Batches().Update(ctx, batch.ID, donations.BatchUpdate{
				GrantStatus: &failed,
				GrantError:  &reason,
			})
			if err != nil {
				return err
			}
			return tx.Donations().UpdateByBatch(ctx, batch.ID, donations.DonationUpdate{
				GrantStatus: &failed,
				GrantError:  &reason,
			})
		})
		return Error.Wrap(err)
	default:
		service.log.Debug("ignoring disbursement status",
			zap.String("disbursementID", disbursementID),
			zap.String("status", status))
		return nil
	}
}

func (service *Service) completeGrant(ctx context.Context, batch *donations.Batch) error {
	now := service.nowFn()
	granted := donations.GrantGranted

	var txnIDs []uuid.UUID
	err := service.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		err := tx.Batches().Update(ctx, batch.ID, donations.BatchUpdate{
			GrantStatus: &granted,
			GrantedAt:   &now,
		})
		if err != nil {
			return err
		}

		err = tx.Donations().UpdateByBatch(ctx, batch.ID, donations.DonationUpdate{GrantStatus: &granted})
		if err != nil {
			return err
		}

		batchDonations, err := tx.Donations().ListByBatch(ctx, batch.ID)
		if err != nil {
			return err
		}
		for _, donation := range batchDonations {
			if donation.TransactionID != nil {
				txnIDs = append(txnIDs, *donation.TransactionID)
			}
		}
		if len(txnIDs) > 0 {
			return tx.Transactions().UpdateStatusBulk(ctx, txnIDs, banking.TransactionDonated)
		}
		return nil
	})
	if err != nil {
		return Error.Wrap(err)
	}

	mon.Counter("disbursements_completed").Inc(1)
	service.notifyGranted(ctx, batch)
	return nil
}

// notifyGranted sends the opt-in confirmation mail for a granted batch.
func (service *Service) notifyGranted(ctx context.Context, batch *donations.Batch) {
	if service.mailer == nil {
		return
	}

	user, err := service.store.Users().Get(ctx, batch.UserID)
	if err != nil || !user.EmailNotifications {
		return
	}

	batchDonations, err := service.store.Donations().ListByBatch(ctx, batch.ID)
	if err != nil {
		return
	}
	seen := make(map[string]bool)
	var charities []string
	for _, donation := range batchDonations {
		if donation.CharityName != "" && !seen[donation.CharityName] {
			seen[donation.CharityName] = true
			charities = append(charities, donation.CharityName)
		}
	}

	service.mailer.SendDonationReceipt(ctx, user.Email, user.Name, batch.TotalAmount, charities)
}
