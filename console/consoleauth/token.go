// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package consoleauth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"

	"github.com/zeebo/errs"
)

// Token represents authentication data structure.
type Token struct {
	Payload   []byte
	Signature []byte
}

// String returns base64URLEncoded data joined with .
func (t Token) String() string {
	payload := base64.URLEncoding.EncodeToString(t.Payload)
	signature := base64.URLEncoding.EncodeToString(t.Signature)

	return payload + "." + signature
}

// FromBase64URLString creates Token from base64URLEncoded string representation.
func FromBase64URLString(token string) (Token, error) {
	i := bytes.IndexByte([]byte(token), '.')
	if i < 0 {
		return Token{}, errs.New("invalid token format")
	}

	payload := token[:i]
	signature := token[i+1:]

	payloadDecoded, err := base64.URLEncoding.DecodeString(payload)
	if err != nil {
		return Token{}, errs.New("invalid token format: %v", err)
	}

	signatureDecoded, err := base64.URLEncoding.DecodeString(signature)
	if err != nil {
		return Token{}, errs.New("invalid token format: %v", err)
	}

	return Token{Payload: payloadDecoded, Signature: signatureDecoded}, nil
}

// Signer creates signature for provided data.
type Signer interface {
	Sign(data []byte) ([]byte, error)
}

// Hmac is hmac signer.
type Hmac struct {
	Secret []byte
}

// Sign implements Signer.
func (a *Hmac) Sign(data []byte) ([]byte, error) {
	mac := hmac.New(sha256.New, a.Secret)

	_, err := mac.Write(data)
	if err != nil {
		return nil, err
	}

	return mac.Sum(nil), nil
}
