// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

// Package webhooks keeps a durable ledger of received webhook events and
// drives their processing, so that upstream redeliveries never apply the
// same side effect twice.
package webhooks

import (
	"context"
	"time"

	"storj.io/common/uuid"
)

// Source identifies the upstream system that sent an event.
type Source string

const (
	// SourcePlaid is the bank aggregator.
	SourcePlaid Source = "plaid"
	// SourceStripe is the payment processor.
	SourceStripe Source = "stripe"
	// SourceEveryOrg is the disbursement partner.
	SourceEveryOrg Source = "every_org"
)

// EventStatus is the processing state of a ledger entry.
type EventStatus string

const (
	// EventPending means the event is recorded but not processed.
	EventPending EventStatus = "PENDING"
	// EventProcessing means a handler is running.
	EventProcessing EventStatus = "PROCESSING"
	// EventCompleted means the handler finished without error.
	EventCompleted EventStatus = "COMPLETED"
	// EventFailed means the handler returned an error.
	EventFailed EventStatus = "FAILED"
)

// Event is one received webhook, deduplicated on (source, eventID, eventType).
type Event struct {
	ID          uuid.UUID
	Source      Source
	EventType   string
	EventID     string
	Payload     []byte
	Signature   string
	Status      EventStatus
	Error       string
	RetryCount  int
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// Events is the interface for webhook event ledger.
//
// architecture: Database
type Events interface {
	// Insert records an event. inserted is false when an entry with the
	// same (source, eventID, eventType) already exists.
	Insert(ctx context.Context, event *Event) (_ *Event, inserted bool, err error)
	// Get returns an event by id.
	Get(ctx context.Context, id uuid.UUID) (*Event, error)
	// SetStatus transitions the event and records the handler outcome.
	// Failures increment the retry counter.
	SetStatus(ctx context.Context, id uuid.UUID, status EventStatus, handlerErr string, processedAt *time.Time) error
	// ListFailed returns failed events with fewer than maxRetries attempts.
	ListFailed(ctx context.Context, maxRetries int) ([]Event, error)
	// ListRecent returns the newest events for monitoring.
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
