// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package console

import (
	"context"
	"time"

	"storj.io/common/uuid"
)

// OrgRole is the role of a member within an organization.
type OrgRole string

const (
	// RoleOwner can manage members and billing.
	RoleOwner OrgRole = "owner"
	// RoleMember is a regular seat.
	RoleMember OrgRole = "member"
)

// Organization is a company account that sponsors pro seats for its members.
type Organization struct {
	ID                   uuid.UUID
	Name                 string
	OwnerID              uuid.UUID
	SeatLimit            int
	SeatCount            int
	StripeSubscriptionID string
	CreatedAt            time.Time
}

// OrgMember links a user to an organization.
type OrgMember struct {
	ID        uuid.UUID
	OrgID     uuid.UUID
	UserID    uuid.UUID
	Role      OrgRole
	CreatedAt time.Time
}

// ClubMember links a user to a giving club.
type ClubMember struct {
	ID        uuid.UUID
	ClubSlug  string
	UserID    uuid.UUID
	CreatedAt time.Time
}

// GiftSubscription is a prepaid pro subscription redeemable by code.
type GiftSubscription struct {
	ID             uuid.UUID
	PurchaserID    uuid.UUID
	RecipientEmail string
	Code           string
	Tier           SubscriptionTier
	Months         int
	RedeemedBy     *uuid.UUID
	RedeemedAt     *time.Time
	CreatedAt      time.Time
}

// Organizations is the interface for organization repository.
//
// architecture: Database
type Organizations interface {
	// Insert adds a new organization.
	Insert(ctx context.Context, org *Organization) (*Organization, error)
	// Get returns an organization by id.
	Get(ctx context.Context, id uuid.UUID) (*Organization, error)
	// UpdateSeatCount sets the current seat count.
	UpdateSeatCount(ctx context.Context, id uuid.UUID, count int) error
}

// OrgMembers is the interface for organization membership repository.
//
// architecture: Database
type OrgMembers interface {
	// Insert adds a member to an organization.
	Insert(ctx context.Context, member *OrgMember) (*OrgMember, error)
	// Get returns the membership of a user in an organization, if any.
	Get(ctx context.Context, orgID, userID uuid.UUID) (*OrgMember, error)
	// ListByOrg returns all members of an organization.
	ListByOrg(ctx context.Context, orgID uuid.UUID) ([]OrgMember, error)
	// Delete removes a membership.
	Delete(ctx context.Context, orgID, userID uuid.UUID) error
}

// ClubMembers is the interface for giving club membership repository.
//
// architecture: Database
type ClubMembers interface {
	// Insert adds a member to a club.
	Insert(ctx context.Context, member *ClubMember) (*ClubMember, error)
	// Get returns the membership of a user in a club, if any.
	Get(ctx context.Context, clubSlug string, userID uuid.UUID) (*ClubMember, error)
	// Delete removes a membership.
	Delete(ctx context.Context, clubSlug string, userID uuid.UUID) error
}

// Gifts is the interface for gift subscription repository.
//
// architecture: Database
type Gifts interface {
	// Insert adds a new gift subscription.
	Insert(ctx context.Context, gift *GiftSubscription) (*GiftSubscription, error)
	// GetByCode returns a gift subscription by its redemption code.
	GetByCode(ctx context.Context, code string) (*GiftSubscription, error)
	// SetRedeemed marks a gift as redeemed by the given user.
	SetRedeemed(ctx context.Context, id, redeemedBy uuid.UUID, at time.Time) error
}
