// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package countercartdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/zeebo/errs"

	"storj.io/common/uuid"
	"storj.io/private/tagsql"

	"countercart.io/countercart/webhooks"
)

// eventsDB implements the webhooks.Events ledger.
type eventsDB struct {
	db *DB
	h  handle
}

const eventColumns = `id, source, event_type, event_id, payload, signature,
	status, error, retry_count, created_at, processed_at`

func (db *eventsDB) Insert(ctx context.Context, event *webhooks.Event) (_ *webhooks.Event, inserted bool, err error) {
	defer mon.Task()(&ctx)(&err)

	if event.ID.IsZero() {
		event.ID, err = uuid.New()
		if err != nil {
			return nil, false, Error.Wrap(err)
		}
	}
	if event.Status == "" {
		event.Status = webhooks.EventPending
	}
	event.CreatedAt = time.Now().UTC()

	result, err := db.h.ExecContext(ctx, db.db.rebind(`
		INSERT INTO webhook_events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source, event_id, event_type) DO NOTHING`),
		event.ID.Bytes(), string(event.Source), event.EventType,
		event.EventID, string(event.Payload), event.Signature,
		string(event.Status), event.Error, event.RetryCount,
		event.CreatedAt, nullTime(event.ProcessedAt),
	)
	if err != nil {
		return nil, false, Error.Wrap(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, Error.Wrap(err)
	}
	if affected == 0 {
		existing, err := db.getByKey(ctx, event.Source, event.EventID, event.EventType)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return event, true, nil
}

func (db *eventsDB) Get(ctx context.Context, id uuid.UUID) (_ *webhooks.Event, err error) {
	defer mon.Task()(&ctx)(&err)

	row := db.h.QueryRowContext(ctx, db.db.rebind(`
		SELECT `+eventColumns+` FROM webhook_events WHERE id = ?`), id.Bytes())
	return scanEventRow(row)
}

func (db *eventsDB) getByKey(ctx context.Context, source webhooks.Source, eventID, eventType string) (*webhooks.Event, error) {
	row := db.h.QueryRowContext(ctx, db.db.rebind(`
		SELECT `+eventColumns+` FROM webhook_events
		WHERE source = ? AND event_id = ? AND event_type = ?`),
		string(source), eventID, eventType)
	return scanEventRow(row)
}

func (db *eventsDB) SetStatus(ctx context.Context, id uuid.UUID, status webhooks.EventStatus, handlerErr string, processedAt *time.Time) (err error) {
	defer mon.Task()(&ctx)(&err)

	if status == webhooks.EventFailed {
		_, err = db.h.ExecContext(ctx, db.db.rebind(`
			UPDATE webhook_events
			SET status = ?, error = ?, retry_count = retry_count + 1, processed_at = ?
			WHERE id = ?`),
			string(status), handlerErr, nullTime(processedAt), id.Bytes())
	} else {
		_, err = db.h.ExecContext(ctx, db.db.rebind(`
			UPDATE webhook_events SET status = ?, error = ?, processed_at = ?
			WHERE id = ?`),
			string(status), handlerErr, nullTime(processedAt), id.Bytes())
	}
	return Error.Wrap(err)
}

func (db *eventsDB) ListFailed(ctx context.Context, maxRetries int) (_ []webhooks.Event, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := db.h.QueryContext(ctx, db.db.rebind(`
		SELECT `+eventColumns+` FROM webhook_events
		WHERE status = ? AND retry_count < ? ORDER BY created_at`),
		string(webhooks.EventFailed), maxRetries)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return scanEvents(rows)
}

func (db *eventsDB) ListRecent(ctx context.Context, limit int) (_ []webhooks.Event, err error) {
	defer mon.Task()(&ctx)(&err)

	if limit <= 0 {
		limit = 50
	}
	rows, err := db.h.QueryContext(ctx, db.db.rebind(`
		SELECT `+eventColumns+` FROM webhook_events
		ORDER BY created_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return scanEvents(rows)
}

func scanEvents(rows tagsql.Rows) (list []webhooks.Event, err error) {
	defer func() { err = Error.Wrap(errs.Combine(err, rows.Err(), rows.Close())) }()

	for rows.Next() {
		event, err := scanEventRow(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *event)
	}
	return list, nil
}

func scanEventRow(row scanner) (*webhooks.Event, error) {
	var event webhooks.Event
	var id []byte
	var source, status, payload string
	var processedAt sql.NullTime

	err := row.Scan(&id, &source, &event.EventType, &event.EventID, &payload,
		&event.Signature, &status, &event.Error, &event.RetryCount,
		&event.CreatedAt, &processedAt)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if event.ID, err = uuid.FromBytes(id); err != nil {
		return nil, Error.Wrap(err)
	}
	event.Source = webhooks.Source(source)
	event.Status = webhooks.EventStatus(status)
	event.Payload = []byte(payload)
	event.CreatedAt = event.CreatedAt.UTC()
	event.ProcessedAt = parseNullTime(processedAt)
	return &event, nil
}
