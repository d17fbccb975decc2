// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package causes

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"storj.io/common/uuid"
)

// MappingSource describes where a merchant mapping came from.
const (
	MappingSourceManual    = "manual"
	MappingSourceCommunity = "community"
	MappingSourceVerified  = "verified"
)

// Mapping connects a merchant name pattern to a cause and a suggested
// charity. Patterns are matched case-insensitively against normalized
// merchant names.
type Mapping struct {
	ID              uuid.UUID
	MerchantPattern string
	MerchantName    string
	CauseID         uuid.UUID
	CharitySlug     string
	CharityName     string
	Reason          string
	Confidence      decimal.Decimal
	Source          string
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Mappings is the interface for merchant mapping repository.
//
// architecture: Database
type Mappings interface {
	// Insert adds a new mapping.
	Insert(ctx context.Context, mapping *Mapping) (*Mapping, error)
	// Get returns a mapping by id.
	Get(ctx context.Context, id uuid.UUID) (*Mapping, error)
	// ListActive returns all active mappings.
	ListActive(ctx context.Context) ([]Mapping, error)
	// Deactivate disables a mapping.
	Deactivate(ctx context.Context, id uuid.UUID) error
}
