// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

// Package kms provides the encrypt/decrypt boundary for persisted
// third-party credentials, most importantly Plaid access tokens.
package kms

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"golang.org/x/crypto/scrypt"
)

var (
	// Error is the default kms error class.
	Error = errs.Class("kms")

	mon = monkit.Package()
)

const (
	ivLength      = 16
	authTagLength = 16
	saltLength    = 32
	keyLength     = 32

	// keySalt seeds the first scrypt derivation. Changing it invalidates
	// every stored token, so it is fixed for the lifetime of the data.
	keySalt = "plaid-token-salt"
)

// Config holds the secrets service configuration.
type Config struct {
	EncryptionSecret string `help:"secret used to derive the token encryption key" default:""`
}

// Service encrypts and decrypts stored credentials with AES-256-GCM.
// Stored format is base64(IV || auth tag || ciphertext).
//
// architecture: Service
type Service struct {
	key []byte
}

// NewService derives the encryption key and returns a new Service.
func NewService(config Config) (*Service, error) {
	if config.EncryptionSecret == "" {
		return nil, Error.New("encryption secret is not configured")
	}

	secret := []byte(config.EncryptionSecret)

	salt, err := scrypt.Key(secret, []byte(keySalt), 16384, 8, 1, saltLength)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	key, err := scrypt.Key(secret, salt, 16384, 8, 1, keyLength)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	return &Service{key: key}, nil
}

// Encrypt encrypts plaintext for storage.
func (service *Service) Encrypt(ctx context.Context, plaintext string) (_ string, err error) {
	defer mon.Task()(&ctx)(&err)

	iv := make([]byte, ivLength)
	if _, err := rand.Read(iv); err != nil {
		return "", Error.Wrap(err)
	}

	aead, err := service.aead()
	if err != nil {
		return "", err
	}

	sealed := aead.Seal(nil, iv, []byte(plaintext), nil)

	// Seal appends the auth tag to the ciphertext; the stored layout
	// keeps the tag in front of the ciphertext instead.
	ciphertext := sealed[:len(sealed)-authTagLength]
	authTag := sealed[len(sealed)-authTagLength:]

	combined := make([]byte, 0, ivLength+authTagLength+len(ciphertext))
	combined = append(combined, iv...)
	combined = append(combined, authTag...)
	combined = append(combined, ciphertext...)

	return base64.StdEncoding.EncodeToString(combined), nil
}

// Decrypt decrypts a stored value.
func (service *Service) Decrypt(ctx context.Context, encrypted string) (_ string, err error) {
	defer mon.Task()(&ctx)(&err)

	combined, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", Error.Wrap(err)
	}

	if len(combined) < ivLength+authTagLength {
		return "", Error.New("encrypted value is too short")
	}

	iv := combined[:ivLength]
	authTag := combined[ivLength : ivLength+authTagLength]
	ciphertext := combined[ivLength+authTagLength:]

	aead, err := service.aead()
	if err != nil {
		return "", err
	}

	sealed := make([]byte, 0, len(ciphertext)+authTagLength)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, authTag...)

	plaintext, err := aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", Error.Wrap(err)
	}

	return string(plaintext), nil
}

// IsEncrypted reports whether value looks like an encrypted token.
func (service *Service) IsEncrypted(value string) bool {
	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return false
	}
	return len(decoded) > ivLength+authTagLength
}

func (service *Service) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(service.key)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	aead, err := cipher.NewGCMWithNonceSize(block, ivLength)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	return aead, nil
}
