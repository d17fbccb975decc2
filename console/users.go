// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package console

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"storj.io/common/uuid"
)

// SubscriptionTier is the billing tier of a user.
type SubscriptionTier string

const (
	// TierFree is the default tier.
	TierFree SubscriptionTier = "free"
	// TierPro is the paid tier.
	TierPro SubscriptionTier = "pro"
)

// User is a registered CounterCart member.
type User struct {
	ID                 uuid.UUID
	Email              string
	Name               string
	StripeCustomerID   string
	SubscriptionTier   SubscriptionTier
	SubscriptionStatus string

	DonationMultiplier decimal.Decimal
	MonthlyLimit       *decimal.Decimal
	CurrentMonthTotal  decimal.Decimal

	AutoDonateEnabled  bool
	EmailNotifications bool
	PublicProfile      bool
	ShowBadge          bool
	OnboardingComplete bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UpdateUserRequest holds the mutable fields of a user. Nil fields are
// left untouched.
type UpdateUserRequest struct {
	Name               *string
	StripeCustomerID   *string
	SubscriptionTier   *SubscriptionTier
	SubscriptionStatus *string
	DonationMultiplier *decimal.Decimal
	MonthlyLimit       **decimal.Decimal
	CurrentMonthTotal  *decimal.Decimal
	AutoDonateEnabled  *bool
	EmailNotifications *bool
	PublicProfile      *bool
	ShowBadge          *bool
	OnboardingComplete *bool
}

// Users is the interface for user repository.
//
// architecture: Database
type Users interface {
	// Insert adds a new user.
	Insert(ctx context.Context, user *User) (*User, error)
	// Get returns a user by id.
	Get(ctx context.Context, id uuid.UUID) (*User, error)
	// GetByEmail returns a user by email.
	GetByEmail(ctx context.Context, email string) (*User, error)
	// Update applies the given update to a user.
	Update(ctx context.Context, id uuid.UUID, request UpdateUserRequest) error
	// IncrementMonthTotal adds delta to the user's running month total.
	IncrementMonthTotal(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error
	// ResetMonthTotals zeroes every user's running month total.
	ResetMonthTotals(ctx context.Context) (affected int64, err error)
	// CountActive returns the number of users with at least one completed donation.
	CountActive(ctx context.Context) (int64, error)
	// Leaderboard returns public-profile users ordered by donated amount.
	Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error)
}

// LeaderboardEntry is one row of the public leaderboard.
type LeaderboardEntry struct {
	Name        string          `json:"name"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Donations   int64           `json:"donations"`
}
