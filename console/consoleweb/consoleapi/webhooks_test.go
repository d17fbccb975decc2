// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package consoleapi_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"

	"countercart.io/countercart/console/consoleweb/consoleapi"
	"countercart.io/countercart/countercartdb"
	"countercart.io/countercart/countercartdb/countercartdbtest"
	"countercart.io/countercart/everyorg"
	"countercart.io/countercart/plaid"
	"countercart.io/countercart/webhooks"
)

type ingressFixture struct {
	controller *consoleapi.Webhooks
	service    *webhooks.Service
	verifier   *plaid.Verifier

	handled []webhooks.Event
}

func newIngressFixture(t *testing.T, db *countercartdb.DB, partnerSecret string) *ingressFixture {
	log := zaptest.NewLogger(t)

	fixture := &ingressFixture{}
	fixture.service = webhooks.NewService(log.Named("webhooks"), db.Events(), webhooks.Config{MaxRetries: 3})
	record := webhooks.HandlerFunc(func(ctx context.Context, event webhooks.Event) error {
		fixture.handled = append(fixture.handled, event)
		return nil
	})
	fixture.service.RegisterHandler(webhooks.SourcePlaid, record)
	fixture.service.RegisterHandler(webhooks.SourceEveryOrg, record)

	fixture.verifier = plaid.NewVerifier(plaid.NewClient(plaid.Config{}))

	dispatcher := webhooks.NewDispatcher(log.Named("dispatcher"), webhooks.DispatcherConfig{})
	partner := everyorg.NewClient(everyorg.Config{WebhookSecret: partnerSecret})

	fixture.controller = consoleapi.NewWebhooks(log.Named("ingress"), fixture.service, dispatcher, fixture.verifier, partner)
	return fixture
}

func plaidToken(t *testing.T, key *ecdsa.PrivateKey, kid string, body []byte) string {
	digest := sha256.Sum256(body)
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iat":                 time.Now().Unix(),
		"request_body_sha256": hex.EncodeToString(digest[:]),
	})
	token.Header["kid"] = kid

	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func partnerSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestHandlePlaid(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		fixture := newIngressFixture(t, db, "")

		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(t, err)
		fixture.verifier.TestSetKey("kid-1", &key.PublicKey)

		body := []byte(`{"webhook_type":"TRANSACTIONS","webhook_code":"SYNC_UPDATES_AVAILABLE","item_id":"item-1"}`)

		w := httptest.NewRecorder()
		r := httptest.NewRequest("POST", "/api/v0/webhooks/plaid", strings.NewReader(string(body)))
		r.Header.Set("Plaid-Verification", plaidToken(t, key, "kid-1", body))
		fixture.controller.HandlePlaid(w, r)

		require.Equal(t, 200, w.Code)
		require.Contains(t, w.Body.String(), "received")
		require.Len(t, fixture.handled, 1)
		require.Equal(t, webhooks.SourcePlaid, fixture.handled[0].Source)
		require.Equal(t, "item-1:SYNC_UPDATES_AVAILABLE", fixture.handled[0].EventID)

		recent, err := db.Events().ListRecent(ctx, 10)
		require.NoError(t, err)
		require.Len(t, recent, 1)
		require.Equal(t, webhooks.EventCompleted, recent[0].Status)

		// Aggregator redelivery of the same event is acknowledged without
		// running the handler again.
		w = httptest.NewRecorder()
		r = httptest.NewRequest("POST", "/api/v0/webhooks/plaid", strings.NewReader(string(body)))
		r.Header.Set("Plaid-Verification", plaidToken(t, key, "kid-1", body))
		fixture.controller.HandlePlaid(w, r)

		require.Equal(t, 200, w.Code)
		require.Len(t, fixture.handled, 1)
	})
}

func TestHandlePlaidRejectsBadToken(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		fixture := newIngressFixture(t, db, "")

		trusted, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(t, err)
		fixture.verifier.TestSetKey("kid-1", &trusted.PublicKey)

		attacker, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(t, err)

		body := []byte(`{"webhook_type":"ITEM","webhook_code":"ERROR","item_id":"item-1"}`)

		w := httptest.NewRecorder()
		r := httptest.NewRequest("POST", "/api/v0/webhooks/plaid", strings.NewReader(string(body)))
		r.Header.Set("Plaid-Verification", plaidToken(t, attacker, "kid-1", body))
		fixture.controller.HandlePlaid(w, r)

		require.Equal(t, 401, w.Code)
		require.Empty(t, fixture.handled)

		recent, err := db.Events().ListRecent(ctx, 10)
		require.NoError(t, err)
		require.Empty(t, recent)
	})
}

func TestHandleDisbursement(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		fixture := newIngressFixture(t, db, "whsec-test")

		body := []byte(`{"id":"disb_1","status":"completed"}`)

		w := httptest.NewRecorder()
		r := httptest.NewRequest("POST", "/api/v0/webhooks/everyorg", strings.NewReader(string(body)))
		r.Header.Set("X-Everyorg-Signature", partnerSignature("whsec-test", body))
		fixture.controller.HandleDisbursement(w, r)

		require.Equal(t, 200, w.Code)
		require.Len(t, fixture.handled, 1)
		require.Equal(t, webhooks.SourceEveryOrg, fixture.handled[0].Source)
		require.Equal(t, "disb_1", fixture.handled[0].EventID)
		require.Equal(t, "completed", fixture.handled[0].EventType)

		// Redelivery is acknowledged without processing twice.
		w = httptest.NewRecorder()
		r = httptest.NewRequest("POST", "/api/v0/webhooks/everyorg", strings.NewReader(string(body)))
		r.Header.Set("X-Everyorg-Signature", partnerSignature("whsec-test", body))
		fixture.controller.HandleDisbursement(w, r)

		require.Equal(t, 200, w.Code)
		require.Len(t, fixture.handled, 1)
	})
}

func TestHandleDisbursementRejectsBadSignature(t *testing.T) {
	countercartdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB) {
		fixture := newIngressFixture(t, db, "whsec-test")

		body := []byte(`{"id":"disb_1","status":"completed"}`)

		w := httptest.NewRecorder()
		r := httptest.NewRequest("POST", "/api/v0/webhooks/everyorg", strings.NewReader(string(body)))
		r.Header.Set("X-Everyorg-Signature", partnerSignature("wrong-secret", body))
		fixture.controller.HandleDisbursement(w, r)

		require.Equal(t, 401, w.Code)
		require.Empty(t, fixture.handled)

		recent, err := db.Events().ListRecent(ctx, 10)
		require.NoError(t, err)
		require.Empty(t, recent)
	})
}
