// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package ratelimit_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"

	"countercart.io/countercart/ratelimit"
)

func TestAllowWithinWindow(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	limiter := ratelimit.NewLimiter(zaptest.NewLogger(t), ratelimit.NewMemoryStore(), ratelimit.Config{
		Limit:  3,
		Window: time.Minute,
	})

	now := time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)
	limiter.TestSetNow(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		require.True(t, limiter.Allow(ctx, "1.2.3.4"), "request %d", i)
	}
	require.False(t, limiter.Allow(ctx, "1.2.3.4"))

	// other clients have their own budget
	require.True(t, limiter.Allow(ctx, "5.6.7.8"))

	// the next window starts fresh
	now = now.Add(time.Minute)
	require.True(t, limiter.Allow(ctx, "1.2.3.4"))
}

func TestMiddleware(t *testing.T) {
	limiter := ratelimit.NewLimiter(zaptest.NewLogger(t), ratelimit.NewMemoryStore(), ratelimit.Config{
		Limit:  1,
		Window: time.Minute,
	})

	now := time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)
	limiter.TestSetNow(func() time.Time { return now })

	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	request := httptest.NewRequest(http.MethodGet, "/api/user/settings", nil)
	request.RemoteAddr = "1.2.3.4:51234"

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, request)
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, request)
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	require.NotEmpty(t, second.Header().Get("Retry-After"))
}

func TestMiddlewareHonorsForwardedFor(t *testing.T) {
	limiter := ratelimit.NewLimiter(zaptest.NewLogger(t), ratelimit.NewMemoryStore(), ratelimit.Config{
		Limit:  1,
		Window: time.Minute,
	})

	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i, forwarded := range []string{"10.0.0.1", "10.0.0.2, 192.168.0.1"} {
		request := httptest.NewRequest(http.MethodGet, "/api/user/settings", nil)
		request.RemoteAddr = "1.2.3.4:51234"
		request.Header.Set("X-Forwarded-For", forwarded)

		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		require.Equal(t, http.StatusOK, recorder.Code, "client %d", i)
	}
}
