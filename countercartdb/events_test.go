// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package countercartdb_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"

	"countercart.io/countercart/countercartdb"
	"countercart.io/countercart/countercartdb/countercartdbtest"
	"countercart.io/countercart/webhooks"
)

func TestEventsInsertDeduplicates(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		event := &webhooks.Event{
			Source:    webhooks.SourcePlaid,
			EventType: "TRANSACTIONS",
			EventID:   "item-1:SYNC_UPDATES_AVAILABLE",
			Payload:   []byte(`{"webhook_type":"TRANSACTIONS"}`),
			Status:    webhooks.EventPending,
		}

		first, inserted, err := db.Events().Insert(ctx, event)
		require.NoError(t, err)
		require.True(t, inserted)
		require.False(t, first.ID.IsZero())

		// same key returns the stored entry without inserting
		second, inserted, err := db.Events().Insert(ctx, event)
		require.NoError(t, err)
		require.False(t, inserted)
		require.Equal(t, first.ID, second.ID)

		// a different event type under the same id is new
		other := *event
		other.EventType = "ITEM"
		_, inserted, err = db.Events().Insert(ctx, &other)
		require.NoError(t, err)
		require.True(t, inserted)
	})
}

func TestEventsSetStatus(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		event, _, err := db.Events().Insert(ctx, &webhooks.Event{
			Source:    webhooks.SourceStripe,
			EventType: "payment_intent.succeeded",
			EventID:   "evt_1",
			Payload:   []byte(`{}`),
			Status:    webhooks.EventPending,
		})
		require.NoError(t, err)

		require.NoError(t, db.Events().SetStatus(ctx, event.ID, webhooks.EventProcessing, "", nil))

		now := time.Now().UTC()
		require.NoError(t, db.Events().SetStatus(ctx, event.ID, webhooks.EventFailed, "handler broke", &now))

		got, err := db.Events().Get(ctx, event.ID)
		require.NoError(t, err)
		require.Equal(t, webhooks.EventFailed, got.Status)
		require.Equal(t, "handler broke", got.Error)
		require.Equal(t, 1, got.RetryCount)
		require.NotNil(t, got.ProcessedAt)

		// only failures consume retry budget
		require.NoError(t, db.Events().SetStatus(ctx, event.ID, webhooks.EventCompleted, "", &now))
		got, err = db.Events().Get(ctx, event.ID)
		require.NoError(t, err)
		require.Equal(t, 1, got.RetryCount)

		failed, err := db.Events().ListFailed(ctx, 3)
		require.NoError(t, err)
		require.Empty(t, failed)
	})
}

func TestEventsListFailedAndRecent(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		now := time.Now().UTC()

		for _, id := range []string{"evt_1", "evt_2", "evt_3"} {
			event, _, err := db.Events().Insert(ctx, &webhooks.Event{
				Source:    webhooks.SourceEveryOrg,
				EventType: "failed",
				EventID:   id,
				Payload:   []byte(`{}`),
				Status:    webhooks.EventPending,
			})
			require.NoError(t, err)
			require.NoError(t, db.Events().SetStatus(ctx, event.ID, webhooks.EventFailed, "partner unavailable", &now))
		}

		failed, err := db.Events().ListFailed(ctx, 3)
		require.NoError(t, err)
		require.Len(t, failed, 3)

		// one event exhausts its budget
		require.NoError(t, db.Events().SetStatus(ctx, failed[0].ID, webhooks.EventFailed, "again", &now))
		require.NoError(t, db.Events().SetStatus(ctx, failed[0].ID, webhooks.EventFailed, "and again", &now))

		failed, err = db.Events().ListFailed(ctx, 3)
		require.NoError(t, err)
		require.Len(t, failed, 2)

		recent, err := db.Events().ListRecent(ctx, 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
	})
}
