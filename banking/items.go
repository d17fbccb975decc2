// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

// Package banking contains the entities describing linked bank
// connections, their accounts and synced transactions.
package banking

import (
	"context"
	"time"

	"storj.io/common/uuid"
)

// ItemStatus is the lifecycle status of a linked bank connection.
type ItemStatus string

const (
	// ItemActive means the connection is healthy and syncable.
	ItemActive ItemStatus = "ACTIVE"
	// ItemLoginRequired means the user has to re-authenticate with the bank.
	ItemLoginRequired ItemStatus = "LOGIN_REQUIRED"
	// ItemError means the aggregator reported an error for the connection.
	ItemError ItemStatus = "ERROR"
	// ItemDisconnected means the user revoked access to the connection.
	ItemDisconnected ItemStatus = "DISCONNECTED"
)

// Item is a single linked bank connection through the aggregator.
type Item struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	AccessToken     string // encrypted at rest, see the kms package
	ItemID          string // aggregator-side item id
	InstitutionID   string
	InstitutionName string
	Cursor          string
	Status          ItemStatus
	ErrorCode       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Items is the interface for bank connection repository.
//
// architecture: Database
type Items interface {
	// Insert adds a new item to the store.
	Insert(ctx context.Context, item *Item) (*Item, error)
	// Get returns an item by its id.
	Get(ctx context.Context, id uuid.UUID) (*Item, error)
	// GetByItemID returns an item by the aggregator-side item id.
	GetByItemID(ctx context.Context, itemID string) (*Item, error)
	// ListActive returns all items eligible for transaction sync.
	ListActive(ctx context.Context) ([]Item, error)
	// UpdateCursor persists the sync cursor for an item.
	UpdateCursor(ctx context.Context, id uuid.UUID, cursor string) error
	// UpdateStatus sets the connection status and error code.
	UpdateStatus(ctx context.Context, id uuid.UUID, status ItemStatus, errorCode string) error
	// Delete removes an item.
	Delete(ctx context.Context, id uuid.UUID) error
}
