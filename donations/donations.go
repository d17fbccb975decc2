// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package donations

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeebo/errs"
	"github.com/spacemonkeygo/monkit/v3"

	"storj.io/common/uuid"
)

var (
	// Error describes internal donations error.
	Error = errs.Class("donations")

	// ErrNotPending is returned when an operation requires a pending donation.
	ErrNotPending = errs.Class("donation is not pending")

	mon = monkit.Package()
)

// DonationStatus indicates the lifecycle state of a donation.
type DonationStatus string

const (
	// StatusPending means the donation awaits batching.
	StatusPending DonationStatus = "PENDING"
	// StatusProcessing means the donation is part of an initiated debit.
	StatusProcessing DonationStatus = "PROCESSING"
	// StatusCompleted means the debit for the donation settled.
	StatusCompleted DonationStatus = "COMPLETED"
	// StatusFailed means the debit for the donation failed.
	StatusFailed DonationStatus = "FAILED"
	// StatusRefunded means the donation was refunded after completion.
	StatusRefunded DonationStatus = "REFUNDED"
)

// GrantStatus indicates the disbursement state of collected funds.
type GrantStatus string

const (
	// GrantNone means no disbursement has been attempted yet.
	GrantNone GrantStatus = ""
	// GrantPending means a disbursement was submitted and awaits confirmation.
	GrantPending GrantStatus = "pending"
	// GrantProcessing means a disbursement is being assembled.
	GrantProcessing GrantStatus = "processing"
	// GrantGranted means the nonprofit received the funds.
	GrantGranted GrantStatus = "granted"
	// GrantFailed means the disbursement failed.
	GrantFailed GrantStatus = "failed"
)

// BatchStatus indicates the lifecycle state of a weekly batch.
type BatchStatus string

const (
	// BatchPending means the batch exists but no debit was initiated.
	BatchPending BatchStatus = "PENDING"
	// BatchReady means the batch is eligible for collection.
	BatchReady BatchStatus = "READY"
	// BatchProcessing means an ACH debit is in flight.
	BatchProcessing BatchStatus = "PROCESSING"
	// BatchCompleted means the debit settled.
	BatchCompleted BatchStatus = "COMPLETED"
	// BatchFailed means the debit failed.
	BatchFailed BatchStatus = "FAILED"
)

// Donation is a single round-up contribution derived from a transaction.
type Donation struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	BatchID       *uuid.UUID
	TransactionID *uuid.UUID
	CharityID     *uuid.UUID
	CharitySlug   string
	CharityName   string
	Amount        decimal.Decimal
	Status        DonationStatus
	EveryOrgID    string
	GrantStatus   GrantStatus
	GrantError    string
	ReceiptURL    string
	ErrorMessage  string
	CreatedAt     time.Time
	CompletedAt   *time.Time
}

// Batch groups a week of donations into one ACH debit per user.
type Batch struct {
	ID                     uuid.UUID
	UserID                 uuid.UUID
	WeekOf                 time.Time
	TotalAmount            decimal.Decimal
	Status                 BatchStatus
	StripePaymentIntentID  string
	GrantStatus            GrantStatus
	GrantError             string
	EveryOrgDisbursementID string
	CreatedAt              time.Time
	ProcessedAt            *time.Time
	GrantedAt              *time.Time
}

// DonationUpdate holds the mutable fields of a donation.
type DonationUpdate struct {
	Status       *DonationStatus
	BatchID      *uuid.UUID
	EveryOrgID   *string
	GrantStatus  *GrantStatus
	GrantError   *string
	ReceiptURL   *string
	ErrorMessage *string
	CompletedAt  *time.Time
}

// BatchUpdate holds the mutable fields of a batch.
type BatchUpdate struct {
	Status                 *BatchStatus
	TotalAmount            *decimal.Decimal
	StripePaymentIntentID  *string
	GrantStatus            *GrantStatus
	GrantError             *string
	EveryOrgDisbursementID *string
	ProcessedAt            *time.Time
	GrantedAt              *time.Time
}

// DB is the interface for donation repository.
//
// architecture: Database
type DB interface {
	// Insert adds a new donation.
	Insert(ctx context.Context, donation *Donation) (*Donation, error)
	// Get returns a donation by id.
	Get(ctx context.Context, id uuid.UUID) (*Donation, error)
	// ListByUser returns donations of the given user, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]Donation, error)
	// ListPendingUnbatched returns pending donations not yet linked to a batch.
	ListPendingUnbatched(ctx context.Context) ([]Donation, error)
	// ListByBatch returns all donations of the given batch.
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]Donation, error)
	// Update applies the given update to a donation.
	Update(ctx context.Context, id uuid.UUID, update DonationUpdate) error
	// UpdateByBatch applies the given update to all donations of a batch.
	UpdateByBatch(ctx context.Context, batchID uuid.UUID, update DonationUpdate) error
	// Delete removes a donation.
	Delete(ctx context.Context, id uuid.UUID) error
	// DeleteByTransaction removes the donation linked to a transaction, if any.
	DeleteByTransaction(ctx context.Context, transactionID uuid.UUID) error
	// TotalCompleted returns count and sum of completed donations.
	TotalCompleted(ctx context.Context) (count int64, sum decimal.Decimal, err error)
}

// BatchesDB is the interface for donation batch repository.
//
// architecture: Database
type BatchesDB interface {
	// Insert adds a new batch.
	Insert(ctx context.Context, batch *Batch) (*Batch, error)
	// Get returns a batch by id.
	Get(ctx context.Context, id uuid.UUID) (*Batch, error)
	// GetByUserAndWeek returns the batch of the given user and week, if any.
	GetByUserAndWeek(ctx context.Context, userID uuid.UUID, weekOf time.Time) (*Batch, error)
	// GetByPaymentIntent returns the batch holding the given payment intent id.
	GetByPaymentIntent(ctx context.Context, paymentIntentID string) (*Batch, error)
	// GetByDisbursement returns the batch holding the given disbursement id.
	GetByDisbursement(ctx context.Context, disbursementID string) (*Batch, error)
	// ListByStatus returns batches in the given status.
	ListByStatus(ctx context.Context, status BatchStatus) ([]Batch, error)
	// ListGrantFailed returns completed batches whose disbursement failed.
	ListGrantFailed(ctx context.Context) ([]Batch, error)
	// Update applies the given update to a batch.
	Update(ctx context.Context, id uuid.UUID, update BatchUpdate) error
}

// WeekOf returns the Sunday 00:00 UTC that starts the week containing t.
func WeekOf(t time.Time) time.Time {
	t = t.UTC()
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return t.AddDate(0, 0, -int(t.Weekday()))
}
