// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package plaid

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v4"
	gocache "github.com/patrickmn/go-cache"
	"github.com/zeebo/errs"
)

// ErrVerification is error class for webhook verification failures.
var ErrVerification = errs.Class("webhook verification")

const maxTokenAge = 5 * time.Minute

// Verifier checks the signed verification header the aggregator attaches
// to webhook deliveries. Verification keys are fetched on demand and
// cached by key id.
type Verifier struct {
	client *Client
	keys   *gocache.Cache
}

// NewVerifier creates a new webhook verifier using the given client for
// key retrieval.
func NewVerifier(client *Client) *Verifier {
	return &Verifier{
		client: client,
		keys:   gocache.New(24*time.Hour, time.Hour),
	}
}

// TestSetKey seeds the key cache, bypassing key retrieval.
func (v *Verifier) TestSetKey(kid string, key *ecdsa.PublicKey) {
	v.keys.Set(kid, key, gocache.DefaultExpiration)
}

type webhookClaims struct {
	jwt.RegisteredClaims
	RequestBodySHA256 string `json:"request_body_sha256"`
}

// Verify checks the verification token against the raw webhook body. It
// returns an ErrVerification error when the delivery cannot be trusted.
func (v *Verifier) Verify(ctx context.Context, token string, body []byte) error {
	claims := &webhookClaims{}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodES256.Alg() {
			return nil, ErrVerification.New("unexpected signing method %s", t.Method.Alg())
		}
		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, ErrVerification.New("missing key id")
		}
		return v.verificationKey(ctx, kid)
	})
	if err != nil {
		return ErrVerification.Wrap(err)
	}
	if !parsed.Valid {
		return ErrVerification.New("invalid token")
	}

	if claims.IssuedAt == nil || time.Since(claims.IssuedAt.Time) > maxTokenAge {
		return ErrVerification.New("token is too old")
	}

	digest := sha256.Sum256(body)
	if claims.RequestBodySHA256 != hex.EncodeToString(digest[:]) {
		return ErrVerification.New("body digest mismatch")
	}

	return nil
}

// verificationKey returns the public key for the given key id, fetching it
// from the aggregator when not cached.
func (v *Verifier) verificationKey(ctx context.Context, kid string) (*ecdsa.PublicKey, error) {
	if cached, ok := v.keys.Get(kid); ok {
		return cached.(*ecdsa.PublicKey), nil
	}

	var response struct {
		Key struct {
			X string `json:"x"`
			Y string `json:"y"`

			Crv       string `json:"crv"`
			ExpiredAt *int64 `json:"expired_at"`
		} `json:"key"`
	}
	err := v.client.do(ctx, "/webhook_verification_key/get", map[string]interface{}{"key_id": kid}, &response)
	if err != nil {
		return nil, err
	}
	if response.Key.ExpiredAt != nil {
		return nil, ErrVerification.New("verification key %s is expired", kid)
	}
	if response.Key.Crv != "P-256" {
		return nil, ErrVerification.New("unexpected curve %s", response.Key.Crv)
	}

	x, err := base64.RawURLEncoding.DecodeString(response.Key.X)
	if err != nil {
		return nil, ErrVerification.Wrap(err)
	}
	y, err := base64.RawURLEncoding.DecodeString(response.Key.Y)
	if err != nil {
		return nil, ErrVerification.Wrap(err)
	}

	key := &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(x),
		Y:     new(big.Int).SetBytes(y),
	}

	v.keys.Set(kid, key, gocache.DefaultExpiration)
	return key, nil
}
