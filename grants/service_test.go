// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package grants_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/errs"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"

	"countercart.io/countercart/causes"
	"countercart.io/countercart/console"
	"countercart.io/countercart/countercartdb"
	"countercart.io/countercart/countercartdb/countercartdbtest"
	"countercart.io/countercart/donations"
	"countercart.io/countercart/everyorg"
	"countercart.io/countercart/grants"
)

type fakePartner struct {
	unconfigured bool
	fail         bool
	submitted    [][]everyorg.Grant
}

func (fake *fakePartner) Configured() bool { return !fake.unconfigured }

func (fake *fakePartner) CreateDisbursement(ctx context.Context, grantList []everyorg.Grant) (*everyorg.Disbursement, error) {
	if fake.fail {
		return nil, errs.New("partner unavailable")
	}
	fake.submitted = append(fake.submitted, grantList)
	return &everyorg.Disbursement{ID: "disb_1", Status: "pending"}, nil
}

type receiptMailer struct {
	receipts []string
}

func (mailer *receiptMailer) SendDonationReceipt(ctx context.Context, email, name string, amount decimal.Decimal, charities []string) {
	mailer.receipts = append(mailer.receipts, email)
}

var testNow = time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC)

func newGrantsService(t *testing.T, db *countercartdb.DB, partner grants.Partner, mailer grants.Mailer) *grants.Service {
	service := grants.NewService(zaptest.NewLogger(t), db.Grants(), partner, mailer)
	service.TestSetNow(func() time.Time { return testNow })
	return service
}

// completedBatch stores a user, a completed batch and one donation per
// given charity slug.
func completedBatch(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB, slugs ...string) (*console.User, *donations.Batch) {
	user, err := db.Users().Insert(ctx, &console.User{
		Email:              "giver@example.com",
		Name:               "Giver",
		DonationMultiplier: decimal.NewFromInt(1),
		EmailNotifications: true,
	})
	require.NoError(t, err)

	total := decimal.Zero
	batch, err := db.Batches().Insert(ctx, &donations.Batch{
		UserID:      user.ID,
		WeekOf:      donations.WeekOf(testNow),
		TotalAmount: decimal.Zero,
		Status:      donations.BatchCompleted,
	})
	require.NoError(t, err)

	for _, slug := range slugs {
		_, err = db.Donations().Insert(ctx, &donations.Donation{
			UserID:      user.ID,
			BatchID:     &batch.ID,
			CharitySlug: slug,
			CharityName: slug,
			Amount:      decimal.RequireFromString("0.75"),
			Status:      donations.StatusCompleted,
		})
		require.NoError(t, err)
		total = total.Add(decimal.RequireFromString("0.75"))
	}

	require.NoError(t, db.Batches().Update(ctx, batch.ID, donations.BatchUpdate{TotalAmount: &total}))
	batch, err = db.Batches().Get(ctx, batch.ID)
	require.NoError(t, err)
	return user, batch
}

func TestDistributeBatchGroupsByCharity(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		_, batch := completedBatch(ctx, t, db,
			"rainforest-trust", "rainforest-trust", "doctors-without-borders")

		partner := &fakePartner{}
		service := newGrantsService(t, db, partner, nil)

		require.NoError(t, service.DistributeBatch(ctx, batch.ID))

		require.Len(t, partner.submitted, 1)
		grantList := partner.submitted[0]
		require.Len(t, grantList, 2)

		bySlug := make(map[string]int64)
		for _, grant := range grantList {
			bySlug[grant.NonprofitID] = grant.AmountCents
		}
		require.Equal(t, int64(150), bySlug["rainforest-trust"])
		require.Equal(t, int64(75), bySlug["doctors-without-borders"])

		updated, err := db.Batches().Get(ctx, batch.ID)
		require.NoError(t, err)
		require.Equal(t, "disb_1", updated.EveryOrgDisbursementID)

		batchDonations, err := db.Donations().ListByBatch(ctx, batch.ID)
		require.NoError(t, err)
		for _, donation := range batchDonations {
			require.Equal(t, donations.GrantPending, donation.GrantStatus)
		}
	})
}

func TestDistributeBatchAlreadyInFlight(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		_, batch := completedBatch(ctx, t, db, "rainforest-trust")

		processing := donations.GrantProcessing
		require.NoError(t, db.Batches().Update(ctx, batch.ID, donations.BatchUpdate{GrantStatus: &processing}))

		partner := &fakePartner{}
		service := newGrantsService(t, db, partner, nil)

		require.NoError(t, service.DistributeBatch(ctx, batch.ID))
		require.Empty(t, partner.submitted)
	})
}

func TestDistributeBatchPartnerFailure(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		_, batch := completedBatch(ctx, t, db, "rainforest-trust")

		partner := &fakePartner{fail: true}
		service := newGrantsService(t, db, partner, nil)

		require.Error(t, service.DistributeBatch(ctx, batch.ID))

		updated, err := db.Batches().Get(ctx, batch.ID)
		require.NoError(t, err)
		require.Equal(t, donations.GrantFailed, updated.GrantStatus)
		require.NotEmpty(t, updated.GrantError)
	})
}

func TestRetryFailedDisbursements(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		_, batch := completedBatch(ctx, t, db, "rainforest-trust")

		partner := &fakePartner{fail: true}
		service := newGrantsService(t, db, partner, nil)
		require.Error(t, service.DistributeBatch(ctx, batch.ID))

		partner.fail = false
		retried, err := service.RetryFailedDisbursements(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, retried)

		updated, err := db.Batches().Get(ctx, batch.ID)
		require.NoError(t, err)
		require.Equal(t, "disb_1", updated.EveryOrgDisbursementID)
		require.Empty(t, updated.GrantError)
	})
}

func TestReconcileDisbursementCompleted(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		user, batch := completedBatch(ctx, t, db, "rainforest-trust")

		partner := &fakePartner{}
		mailer := &receiptMailer{}
		service := newGrantsService(t, db, partner, mailer)

		require.NoError(t, service.DistributeBatch(ctx, batch.ID))
		require.NoError(t, service.ReconcileDisbursement(ctx, "disb_1", "completed", ""))

		updated, err := db.Batches().Get(ctx, batch.ID)
		require.NoError(t, err)
		require.Equal(t, donations.GrantGranted, updated.GrantStatus)
		require.NotNil(t, updated.GrantedAt)

		batchDonations, err := db.Donations().ListByBatch(ctx, batch.ID)
		require.NoError(t, err)
		for _, donation := range batchDonations {
			require.Equal(t, donations.GrantGranted, donation.GrantStatus)
		}

		require.Equal(t, []string{user.Email}, mailer.receipts)
	})
}

func TestReconcileDisbursementFailed(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		_, batch := completedBatch(ctx, t, db, "rainforest-trust")

		partner := &fakePartner{}
		service := newGrantsService(t, db, partner, nil)

		require.NoError(t, service.DistributeBatch(ctx, batch.ID))
		require.NoError(t, service.ReconcileDisbursement(ctx, "disb_1", "failed", "bank rejected"))

		updated, err := db.Batches().Get(ctx, batch.ID)
		require.NoError(t, err)
		require.Equal(t, donations.GrantFailed, updated.GrantStatus)
		require.Equal(t, "bank rejected", updated.GrantError)
	})
}

func TestReconcileDisbursementUnknown(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		partner := &fakePartner{}
		service := newGrantsService(t, db, partner, nil)

		err := service.ReconcileDisbursement(ctx, "no-such-disbursement", "completed", "")
		require.Error(t, err)
	})
}

func TestDistributeBatchResolvesCharityBySlugLookup(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		user, err := db.Users().Insert(ctx, &console.User{
			Email:              "giver@example.com",
			Name:               "Giver",
			DonationMultiplier: decimal.NewFromInt(1),
		})
		require.NoError(t, err)

		cause, err := db.Causes().Insert(ctx, &causes.Cause{Name: "Climate", Slug: "climate", IsActive: true})
		require.NoError(t, err)

		charity, err := db.Charities().Insert(ctx, &causes.Charity{
			CauseID:      cause.ID,
			EveryOrgSlug: "rainforest-trust",
			Name:         "Rainforest Trust",
			IsDefault:    true,
			IsActive:     true,
		})
		require.NoError(t, err)

		batch, err := db.Batches().Insert(ctx, &donations.Batch{
			UserID:      user.ID,
			WeekOf:      donations.WeekOf(testNow),
			TotalAmount: decimal.RequireFromString("0.75"),
			Status:      donations.BatchCompleted,
		})
		require.NoError(t, err)

		// donation stored without a slug, only the charity reference
		_, err = db.Donations().Insert(ctx, &donations.Donation{
			UserID:    user.ID,
			BatchID:   &batch.ID,
			CharityID: &charity.ID,
			Amount:    decimal.RequireFromString("0.75"),
			Status:    donations.StatusCompleted,
		})
		require.NoError(t, err)

		partner := &fakePartner{}
		service := newGrantsService(t, db, partner, nil)

		require.NoError(t, service.DistributeBatch(ctx, batch.ID))
		require.Len(t, partner.submitted, 1)
		require.Equal(t, "rainforest-trust", partner.submitted[0][0].NonprofitID)
		require.Contains(t, partner.submitted[0][0].Memo, "Climate")
	})
}
