// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package countercart

import (
	"context"

	"countercart.io/countercart/banking"
	"countercart.io/countercart/banksync"
	"countercart.io/countercart/batching"
	"countercart.io/countercart/causes"
	"countercart.io/countercart/console"
	"countercart.io/countercart/donations"
	"countercart.io/countercart/grants"
	"countercart.io/countercart/matching"
	"countercart.io/countercart/webhooks"
)

// DB is the master database of CounterCart.
//
// architecture: Master Database
type DB interface {
	// Console returns the store the console service works with.
	Console() console.DB
	// Matching returns the store the matching service works with.
	Matching() matching.Store
	// Banksync returns the store the bank sync service works with.
	Banksync() banksync.Store
	// Batching returns the store the batching service works with.
	Batching() batching.Store
	// Grants returns the store the grants service works with.
	Grants() grants.Store

	// Users returns the users repository.
	Users() console.Users
	// Items returns the bank connections repository.
	Items() banking.Items
	// Accounts returns the bank accounts repository.
	Accounts() banking.Accounts
	// Transactions returns the bank transactions repository.
	Transactions() banking.Transactions
	// Causes returns the causes repository.
	Causes() causes.Causes
	// UserCauses returns the user cause selections repository.
	UserCauses() causes.UserCauses
	// Charities returns the charities repository.
	Charities() causes.Charities
	// Mappings returns the merchant mappings repository.
	Mappings() causes.Mappings
	// Donations returns the donations repository.
	Donations() donations.DB
	// Batches returns the donation batches repository.
	Batches() donations.BatchesDB
	// Events returns the webhook event ledger.
	Events() webhooks.Events

	// CreateTables initializes the schema.
	CreateTables(ctx context.Context) error
	// Ping checks whether the connection is alive.
	Ping(ctx context.Context) error
	// Close closes the connection.
	Close() error
}
