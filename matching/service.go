// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package matching

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/uuid"

	"countercart.io/countercart/banking"
	"countercart.io/countercart/causes"
	"countercart.io/countercart/console"
	"countercart.io/countercart/donations"
)

var (
	// Error describes internal matching error.
	Error = errs.Class("matching")

	mon = monkit.Package()
)

const mappingsCacheKey = "active-mappings"

// Store contains access to the repositories matching works with.
//
// architecture: Database
type Store interface {
	// Transactions is a getter for bank transactions repository.
	Transactions() banking.Transactions
	// Donations is a getter for donations repository.
	Donations() donations.DB
	// Users is a getter for users repository.
	Users() console.Users
	// Mappings is a getter for merchant mappings repository.
	Mappings() causes.Mappings
	// UserCauses is a getter for user cause selections repository.
	UserCauses() causes.UserCauses
	// Charities is a getter for charities repository.
	Charities() causes.Charities

	// WithTx runs fn inside a database transaction. The passed Store is
	// bound to that transaction.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// Config contains configuration for the matching service.
type Config struct {
	MappingCacheTTL time.Duration `help:"how long the active mapping set is cached" default:"5m"`
	CapPolicy       string        `help:"monthly limit behavior, skip or cap" default:"skip"`
}

// Service matches transactions against merchant mappings and creates
// suggested donations.
//
// architecture: Service
type Service struct {
	log    *zap.Logger
	store  Store
	config Config

	cache *gocache.Cache
}

// NewService creates a new matching service.
func NewService(log *zap.Logger, store Store, config Config) *Service {
	return &Service{
		log:    log,
		store:  store,
		config: config,
		cache:  gocache.New(config.MappingCacheTTL, 10*time.Minute),
	}
}

// InvalidateMappings drops the cached mapping set. Call after editing
// mappings.
func (service *Service) InvalidateMappings() {
	service.cache.Delete(mappingsCacheKey)
}

// activeMappings returns active mappings, cached for MappingCacheTTL.
func (service *Service) activeMappings(ctx context.Context) (_ []causes.Mapping, err error) {
	defer mon.Task()(&ctx)(&err)

	if cached, ok := service.cache.Get(mappingsCacheKey); ok {
		return cached.([]causes.Mapping), nil
	}

	mappings, err := service.store.Mappings().ListActive(ctx)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	service.cache.Set(mappingsCacheKey, mappings, gocache.DefaultExpiration)
	return mappings, nil
}

// FindMapping returns the first active mapping whose pattern occurs in the
// normalized merchant name, or nil when none matches.
func (service *Service) FindMapping(ctx context.Context, merchantName string) (_ *causes.Mapping, err error) {
	defer mon.Task()(&ctx)(&err)

	normalized := NormalizeMerchant(merchantName)
	mappings, err := service.activeMappings(ctx)
	if err != nil {
		return nil, err
	}

	for i := range mappings {
		pattern := strings.ToUpper(mappings[i].MerchantPattern)
		if pattern != "" && strings.Contains(normalized, pattern) {
			return &mappings[i], nil
		}
	}
	return nil, nil
}

// Result reports what happened to a processed transaction.
type Result struct {
	Matched    bool
	DonationID *uuid.UUID
}

// ProcessTransaction matches one transaction and, when it maps to a cause
// the user selected, creates a pending donation. All state changes happen
// in one database transaction.
func (service *Service) ProcessTransaction(ctx context.Context, userID, transactionID uuid.UUID) (result Result, err error) {
	defer mon.Task()(&ctx)(&err)

	mapping, txn, err := service.matchTransaction(ctx, transactionID)
	if err != nil {
		return Result{}, err
	}
	if txn == nil {
		return Result{}, nil
	}

	if mapping == nil {
		mon.Counter("transactions_unmatched").Inc(1)
		err = service.store.Transactions().UpdateStatus(ctx, transactionID, banking.TransactionSkipped)
		return Result{}, Error.Wrap(err)
	}

	err = service.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		selected, err := tx.UserCauses().Has(ctx, userID, mapping.CauseID)
		if err != nil {
			return Error.Wrap(err)
		}
		if !selected {
			return tx.Transactions().SetMatch(ctx, transactionID, &mapping.ID, banking.TransactionSkipped)
		}

		user, err := tx.Users().Get(ctx, userID)
		if err != nil {
			return Error.Wrap(err)
		}

		suggested := RoundUpAmount(txn.Amount, user.DonationMultiplier)
		amount, ok := ApplyMonthlyLimit(suggested, user.CurrentMonthTotal, user.MonthlyLimit, CapPolicy(service.config.CapPolicy))
		if !ok {
			mon.Counter("donations_capped").Inc(1)
			return tx.Transactions().SetMatch(ctx, transactionID, &mapping.ID, banking.TransactionSkipped)
		}

		charity, err := tx.Charities().GetDefaultForCause(ctx, mapping.CauseID)
		if err != nil {
			service.log.Error("no active charity for cause",
				zap.Stringer("causeID", mapping.CauseID),
				zap.Error(err))
			return nil
		}

		if err := tx.Transactions().SetMatch(ctx, transactionID, &mapping.ID, banking.TransactionMatched); err != nil {
			return Error.Wrap(err)
		}

		donation, err := tx.Donations().Insert(ctx, &donations.Donation{
			UserID:        userID,
			TransactionID: &transactionID,
			CharityID:     &charity.ID,
			CharitySlug:   charity.EveryOrgSlug,
			CharityName:   charity.Name,
			Amount:        amount,
			Status:        donations.StatusPending,
		})
		if err != nil {
			return Error.Wrap(err)
		}

		if err := tx.Users().IncrementMonthTotal(ctx, userID, amount); err != nil {
			return Error.Wrap(err)
		}

		mon.Counter("donations_suggested").Inc(1)
		result = Result{Matched: true, DonationID: &donation.ID}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// matchTransaction loads the transaction and finds its mapping. A nil
// transaction means it does not exist and processing should stop quietly.
func (service *Service) matchTransaction(ctx context.Context, transactionID uuid.UUID) (_ *causes.Mapping, _ *banking.Transaction, err error) {
	defer mon.Task()(&ctx)(&err)

	txn, err := service.store.Transactions().Get(ctx, transactionID)
	if err != nil {
		return nil, nil, nil
	}

	mapping, err := service.FindMapping(ctx, txn.MerchantName)
	if err != nil {
		return nil, nil, err
	}
	return mapping, txn, nil
}
