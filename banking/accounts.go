// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package banking

import (
	"context"
	"time"

	"storj.io/common/uuid"
)

// Account is a depository account that belongs to a linked bank connection.
type Account struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	ItemID         uuid.UUID
	PlaidAccountID string
	Name           string
	OfficialName   string
	Type           string // checking, savings, credit
	Subtype        string
	Mask           string // last 4 digits
	IsActive       bool
	CreatedAt      time.Time

	// ACH fields for automatic collection through the payment processor.
	StripePaymentMethodID string
	ACHEnabled            bool
	ACHAuthorizedAt       *time.Time
}

// Accounts is the interface for bank account repository.
//
// architecture: Database
type Accounts interface {
	// Insert adds a new account to the store.
	Insert(ctx context.Context, account *Account) (*Account, error)
	// Get returns an account by its id.
	Get(ctx context.Context, id uuid.UUID) (*Account, error)
	// GetByPlaidAccountID returns an account by aggregator account id scoped to an item.
	GetByPlaidAccountID(ctx context.Context, itemID uuid.UUID, plaidAccountID string) (*Account, error)
	// ListByItem returns all accounts under an item.
	ListByItem(ctx context.Context, itemID uuid.UUID) ([]Account, error)
	// GetACHAccount returns the ACH-enabled account for a user, if any.
	GetACHAccount(ctx context.Context, userID uuid.UUID) (*Account, error)
	// EnableACH stores the payment method and mandate acceptance time.
	EnableACH(ctx context.Context, id uuid.UUID, paymentMethodID string, authorizedAt time.Time) error
	// DisableACH clears the ACH authorization for an account.
	DisableACH(ctx context.Context, id uuid.UUID) error
}
