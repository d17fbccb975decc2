// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package console

import (
	"context"

	"countercart.io/countercart/console/consoleauth"
)

// Authorization contains the authenticated user and the claims the session
// token carried.
type Authorization struct {
	User   User
	Claims consoleauth.Claims
}

type contextKey int

const (
	authKey contextKey = iota
	tokenKey
)

// WithAuth creates new context with Authorization.
func WithAuth(ctx context.Context, auth Authorization) context.Context {
	return context.WithValue(ctx, authKey, auth)
}

// WithAuthFailure creates new context with authorization failure.
func WithAuthFailure(ctx context.Context, err error) context.Context {
	return context.WithValue(ctx, authKey, err)
}

// GetAuth returns Authorization from context.
func GetAuth(ctx context.Context) (Authorization, error) {
	value := ctx.Value(authKey)

	if auth, ok := value.(Authorization); ok {
		return auth, nil
	}

	if err, ok := value.(error); ok {
		return Authorization{}, ErrUnauthorized.Wrap(err)
	}

	return Authorization{}, ErrUnauthorized.New("unauthorized")
}

// WithSessionToken creates new context carrying the raw session token.
func WithSessionToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

// GetSessionToken returns the raw session token from context.
func GetSessionToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey).(string)
	return token, ok
}
