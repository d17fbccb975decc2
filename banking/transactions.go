// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package banking

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"storj.io/common/uuid"
)

// TransactionStatus is the lifecycle status of a synced transaction.
type TransactionStatus string

const (
	// TransactionPending means the transaction is stored but not yet matched.
	TransactionPending TransactionStatus = "PENDING"
	// TransactionMatched means a cause mapping matched and a donation was suggested.
	TransactionMatched TransactionStatus = "MATCHED"
	// TransactionBatched means the suggested donation joined a weekly batch.
	TransactionBatched TransactionStatus = "BATCHED"
	// TransactionDonated means the donation for this transaction completed.
	TransactionDonated TransactionStatus = "DONATED"
	// TransactionSkipped means no donation will be made for this transaction.
	TransactionSkipped TransactionStatus = "SKIPPED"
	// TransactionFailed means donation processing failed.
	TransactionFailed TransactionStatus = "FAILED"
)

// Transaction is a settled bank transaction synced from the aggregator.
type Transaction struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	AccountID          uuid.UUID
	PlaidTransactionID string
	MerchantName       string
	MerchantNameNorm   string
	Amount             decimal.Decimal
	Date               time.Time
	Category           []string
	MatchedMappingID   *uuid.UUID
	Status             TransactionStatus
	CreatedAt          time.Time
}

// TransactionUpdate carries the mutable fields of a modified transaction.
type TransactionUpdate struct {
	MerchantName     string
	MerchantNameNorm string
	Amount           decimal.Decimal
	Date             time.Time
	Category         []string
}

// Transactions is the interface for transaction repository.
//
// architecture: Database
type Transactions interface {
	// Insert adds a new transaction to the store.
	Insert(ctx context.Context, tx *Transaction) (*Transaction, error)
	// Get returns a transaction by its id.
	Get(ctx context.Context, id uuid.UUID) (*Transaction, error)
	// GetByPlaidTransactionID returns a transaction by aggregator transaction id.
	GetByPlaidTransactionID(ctx context.Context, plaidTransactionID string) (*Transaction, error)
	// Update applies a modified-transaction delta.
	Update(ctx context.Context, id uuid.UUID, update TransactionUpdate) error
	// UpdateStatus sets the transaction status.
	UpdateStatus(ctx context.Context, id uuid.UUID, status TransactionStatus) error
	// SetMatch records the matched mapping and status in one statement.
	SetMatch(ctx context.Context, id uuid.UUID, mappingID *uuid.UUID, status TransactionStatus) error
	// UpdateStatusBulk sets the status for several transactions.
	UpdateStatusBulk(ctx context.Context, ids []uuid.UUID, status TransactionStatus) error
	// Delete removes a transaction.
	Delete(ctx context.Context, id uuid.UUID) error
}
