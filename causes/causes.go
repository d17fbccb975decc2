// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

// Package causes contains the cause taxonomy: thematic causes, the
// charities supporting them and the merchant-to-cause mappings used by
// the matching pipeline.
package causes

import (
	"context"
	"time"

	"storj.io/common/uuid"
)

// Cause is a thematic donation category, e.g. "Environment".
type Cause struct {
	ID          uuid.UUID
	Name        string
	Slug        string
	Description string
	IsActive    bool
	CreatedAt   time.Time
}

// UserCause links a user to a cause they want to offset.
type UserCause struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	CauseID   uuid.UUID
	Priority  int
	CreatedAt time.Time
}

// Causes is the interface for cause repository.
//
// architecture: Database
type Causes interface {
	// Insert adds a new cause.
	Insert(ctx context.Context, cause *Cause) (*Cause, error)
	// Get returns a cause by id.
	Get(ctx context.Context, id uuid.UUID) (*Cause, error)
	// GetBySlug returns a cause by its slug.
	GetBySlug(ctx context.Context, slug string) (*Cause, error)
	// ListActive returns all active causes.
	ListActive(ctx context.Context) ([]Cause, error)
}

// UserCauses is the interface for user cause selections.
//
// architecture: Database
type UserCauses interface {
	// Insert links a user to a cause.
	Insert(ctx context.Context, userCause *UserCause) (*UserCause, error)
	// Has reports whether the user selected the cause.
	Has(ctx context.Context, userID, causeID uuid.UUID) (bool, error)
	// ListByUser returns cause selections ordered by priority.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]UserCause, error)
	// Delete unlinks a user from a cause.
	Delete(ctx context.Context, userID, causeID uuid.UUID) error
}
