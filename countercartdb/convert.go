// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package countercartdb

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"storj.io/common/uuid"
)

// Decimals are stored as text so that amounts round-trip exactly on both
// backends. Aggregate queries cast them back to numeric in SQL.

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	return d, Error.Wrap(err)
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDecimal(ns sql.NullString) (*decimal.Decimal, error) {
	if !ns.Valid {
		return nil, nil
	}
	d, err := parseDecimal(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func nullUUID(id *uuid.UUID) []byte {
	if id == nil {
		return nil
	}
	return id.Bytes()
}

func parseNullUUID(b []byte) (*uuid.UUID, error) {
	if len(b) == 0 {
		return nil, nil
	}
	id, err := uuid.FromBytes(b)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &id, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func parseNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func encodeStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	return string(raw), Error.Wrap(err)
}

func decodeStrings(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, Error.Wrap(err)
	}
	return values, nil
}
