// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package causes

import (
	"context"
	"time"

	"storj.io/common/uuid"
)

// Charity is a specific nonprofit supporting a cause, addressable on
// Every.org by its slug.
type Charity struct {
	ID           uuid.UUID
	CauseID      uuid.UUID
	EveryOrgSlug string
	Name         string
	Description  string
	EIN          string
	LogoURL      string
	WebsiteURL   string
	IsDefault    bool
	IsActive     bool
	CreatedAt    time.Time
}

// Charities is the interface for charity repository.
//
// architecture: Database
type Charities interface {
	// Insert adds a new charity.
	Insert(ctx context.Context, charity *Charity) (*Charity, error)
	// Get returns a charity by id.
	Get(ctx context.Context, id uuid.UUID) (*Charity, error)
	// GetDefaultForCause returns the default active charity for a cause.
	// When no default is configured it falls back to any active charity.
	GetDefaultForCause(ctx context.Context, causeID uuid.UUID) (*Charity, error)
	// ListByCause returns active charities for a cause.
	ListByCause(ctx context.Context, causeID uuid.UUID) ([]Charity, error)
}
