// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package plaid_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"

	"countercart.io/countercart/plaid"
)

func signedToken(t *testing.T, key *ecdsa.PrivateKey, kid string, body []byte, issuedAt time.Time) string {
	digest := sha256.Sum256(body)
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iat":                 issuedAt.Unix(),
		"request_body_sha256": hex.EncodeToString(digest[:]),
	})
	token.Header["kid"] = kid

	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestVerify(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	verifier := plaid.NewVerifier(plaid.NewClient(plaid.Config{}))
	verifier.TestSetKey("kid-1", &key.PublicKey)

	body := []byte(`{"webhook_type":"TRANSACTIONS","webhook_code":"SYNC_UPDATES_AVAILABLE","item_id":"item-1"}`)

	require.NoError(t, verifier.Verify(ctx, signedToken(t, key, "kid-1", body, time.Now()), body))
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	verifier := plaid.NewVerifier(plaid.NewClient(plaid.Config{}))
	verifier.TestSetKey("kid-1", &key.PublicKey)

	body := []byte(`{"item_id":"item-1"}`)
	token := signedToken(t, key, "kid-1", body, time.Now())

	err = verifier.Verify(ctx, token, []byte(`{"item_id":"item-2"}`))
	require.True(t, plaid.ErrVerification.Has(err))
}

func TestVerifyRejectsOldToken(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	verifier := plaid.NewVerifier(plaid.NewClient(plaid.Config{}))
	verifier.TestSetKey("kid-1", &key.PublicKey)

	body := []byte(`{"item_id":"item-1"}`)
	token := signedToken(t, key, "kid-1", body, time.Now().Add(-time.Hour))

	err = verifier.Verify(ctx, token, body)
	require.True(t, plaid.ErrVerification.Has(err))
}

func TestVerifyRejectsWrongSigner(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	otherKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	verifier := plaid.NewVerifier(plaid.NewClient(plaid.Config{}))
	verifier.TestSetKey("kid-1", &key.PublicKey)

	body := []byte(`{"item_id":"item-1"}`)
	token := signedToken(t, otherKey, "kid-1", body, time.Now())

	err = verifier.Verify(ctx, token, body)
	require.True(t, plaid.ErrVerification.Has(err))
}
