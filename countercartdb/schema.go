// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package countercartdb

import (
	"context"
	"strings"

	"storj.io/private/dbutil"
)

// CreateTables applies the schema. Statements are written in SQLite3
// dialect and translated for Postgres, where the differences are only
// the blob and timestamp column types.
func (db *DB) CreateTables(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	for _, stmt := range schema {
		if db.impl == dbutil.Postgres || db.impl == dbutil.Cockroach {
			stmt = strings.NewReplacer(
				"BLOB", "BYTEA",
				"TIMESTAMP", "TIMESTAMPTZ",
			).Replace(stmt)
		}
		if _, err := db.db.ExecContext(ctx, stmt); err != nil {
			return Error.Wrap(err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BLOB NOT NULL PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		stripe_customer_id TEXT NOT NULL DEFAULT '',
		subscription_tier TEXT NOT NULL DEFAULT 'free',
		subscription_status TEXT NOT NULL DEFAULT '',
		donation_multiplier TEXT NOT NULL DEFAULT '1',
		monthly_limit TEXT,
		current_month_total TEXT NOT NULL DEFAULT '0',
		auto_donate_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		email_notifications BOOLEAN NOT NULL DEFAULT TRUE,
		public_profile BOOLEAN NOT NULL DEFAULT FALSE,
		show_badge BOOLEAN NOT NULL DEFAULT FALSE,
		onboarding_complete BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS plaid_items (
		id BLOB NOT NULL PRIMARY KEY,
		user_id BLOB NOT NULL REFERENCES users (id),
		access_token TEXT NOT NULL,
		item_id TEXT NOT NULL UNIQUE,
		institution_id TEXT NOT NULL DEFAULT '',
		institution_name TEXT NOT NULL DEFAULT '',
		cursor TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		error_code TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS bank_accounts (
		id BLOB NOT NULL PRIMARY KEY,
		user_id BLOB NOT NULL REFERENCES users (id),
		item_id BLOB NOT NULL REFERENCES plaid_items (id),
		plaid_account_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		official_name TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL DEFAULT '',
		subtype TEXT NOT NULL DEFAULT '',
		mask TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		stripe_payment_method_id TEXT NOT NULL DEFAULT '',
		ach_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		ach_authorized_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS transactions (
		id BLOB NOT NULL PRIMARY KEY,
		user_id BLOB NOT NULL REFERENCES users (id),
		account_id BLOB NOT NULL REFERENCES bank_accounts (id),
		plaid_transaction_id TEXT NOT NULL UNIQUE,
		merchant_name TEXT NOT NULL DEFAULT '',
		merchant_name_norm TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL DEFAULT '0',
		date TIMESTAMP NOT NULL,
		category TEXT NOT NULL DEFAULT '[]',
		matched_mapping_id BLOB,
		status TEXT NOT NULL DEFAULT 'PENDING',
		created_at TIMESTAMP NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions (user_id, status)`,

	`CREATE TABLE IF NOT EXISTS causes (
		id BLOB NOT NULL PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS user_causes (
		id BLOB NOT NULL PRIMARY KEY,
		user_id BLOB NOT NULL REFERENCES users (id),
		cause_id BLOB NOT NULL REFERENCES causes (id),
		priority INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (user_id, cause_id)
	)`,

	`CREATE TABLE IF NOT EXISTS charities (
		id BLOB NOT NULL PRIMARY KEY,
		cause_id BLOB NOT NULL REFERENCES causes (id),
		every_org_slug TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		ein TEXT NOT NULL DEFAULT '',
		logo_url TEXT NOT NULL DEFAULT '',
		website_url TEXT NOT NULL DEFAULT '',
		is_default BOOLEAN NOT NULL DEFAULT FALSE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS business_mappings (
		id BLOB NOT NULL PRIMARY KEY,
		merchant_pattern TEXT NOT NULL,
		merchant_name TEXT NOT NULL DEFAULT '',
		cause_id BLOB NOT NULL REFERENCES causes (id),
		charity_slug TEXT NOT NULL DEFAULT '',
		charity_name TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		confidence TEXT NOT NULL DEFAULT '1',
		source TEXT NOT NULL DEFAULT 'manual',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS donation_batches (
		id BLOB NOT NULL PRIMARY KEY,
		user_id BLOB NOT NULL REFERENCES users (id),
		week_of TIMESTAMP NOT NULL,
		total_amount TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL DEFAULT 'PENDING',
		stripe_payment_intent_id TEXT NOT NULL DEFAULT '',
		grant_status TEXT NOT NULL DEFAULT '',
		grant_error TEXT NOT NULL DEFAULT '',
		every_org_disbursement_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		processed_at TIMESTAMP,
		granted_at TIMESTAMP,
		UNIQUE (user_id, week_of)
	)`,

	`CREATE TABLE IF NOT EXISTS donations (
		id BLOB NOT NULL PRIMARY KEY,
		user_id BLOB NOT NULL REFERENCES users (id),
		batch_id BLOB REFERENCES donation_batches (id),
		transaction_id BLOB UNIQUE REFERENCES transactions (id),
		charity_id BLOB REFERENCES charities (id),
		charity_slug TEXT NOT NULL DEFAULT '',
		charity_name TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL DEFAULT 'PENDING',
		every_org_id TEXT NOT NULL DEFAULT '',
		grant_status TEXT NOT NULL DEFAULT '',
		grant_error TEXT NOT NULL DEFAULT '',
		receipt_url TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP
	)`,

	`CREATE INDEX IF NOT EXISTS idx_donations_user ON donations (user_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_donations_batch ON donations (batch_id)`,

	`CREATE TABLE IF NOT EXISTS webhook_events (
		id BLOB NOT NULL PRIMARY KEY,
		source TEXT NOT NULL,
		event_type TEXT NOT NULL,
		event_id TEXT NOT NULL,
		payload TEXT NOT NULL DEFAULT '',
		signature TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'PENDING',
		error TEXT NOT NULL DEFAULT '',
		retry_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		processed_at TIMESTAMP,
		UNIQUE (source, event_id, event_type)
	)`,

	`CREATE TABLE IF NOT EXISTS organizations (
		id BLOB NOT NULL PRIMARY KEY,
		name TEXT NOT NULL,
		owner_id BLOB NOT NULL REFERENCES users (id),
		seat_limit INTEGER NOT NULL DEFAULT 10,
		seat_count INTEGER NOT NULL DEFAULT 0,
		stripe_subscription_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS org_members (
		id BLOB NOT NULL PRIMARY KEY,
		org_id BLOB NOT NULL REFERENCES organizations (id),
		user_id BLOB NOT NULL REFERENCES users (id),
		role TEXT NOT NULL DEFAULT 'member',
		created_at TIMESTAMP NOT NULL,
		UNIQUE (org_id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS club_members (
		id BLOB NOT NULL PRIMARY KEY,
		club_slug TEXT NOT NULL,
		user_id BLOB NOT NULL REFERENCES users (id),
		created_at TIMESTAMP NOT NULL,
		UNIQUE (club_slug, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS gift_subscriptions (
		id BLOB NOT NULL PRIMARY KEY,
		purchaser_id BLOB NOT NULL REFERENCES users (id),
		recipient_email TEXT NOT NULL,
		code TEXT NOT NULL UNIQUE,
		tier TEXT NOT NULL DEFAULT 'pro',
		months INTEGER NOT NULL DEFAULT 1,
		redeemed_by BLOB REFERENCES users (id),
		redeemed_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL
	)`,
}
