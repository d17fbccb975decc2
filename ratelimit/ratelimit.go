// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

// Package ratelimit provides fixed-window request limiting keyed by client
// address, with a pluggable counter store for multi-instance deployments.
package ratelimit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

// Error is error class for rate limiter errors.
var Error = errs.Class("ratelimit")

// Config contains configuration for the limiter.
type Config struct {
	Limit    int           `help:"allowed requests per window per client" default:"60"`
	Window   time.Duration `help:"length of the counting window" default:"1m"`
	RedisURL string        `help:"redis url for the shared counter store, empty means in-process counters" default:""`
}

// Store counts requests per key within fixed windows.
type Store interface {
	// Increment bumps the counter for key in the window containing now
	// and returns the new count.
	Increment(ctx context.Context, key string, window time.Duration, now time.Time) (int64, error)
}

// MemoryStore keeps counters in process memory. Suitable for a single
// instance.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewMemoryStore creates an in-process counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]int64)}
}

// Increment implements Store.
func (store *MemoryStore) Increment(ctx context.Context, key string, window time.Duration, now time.Time) (int64, error) {
	bucket := windowKey(key, window, now)

	store.mu.Lock()
	defer store.mu.Unlock()

	store.counters[bucket]++
	count := store.counters[bucket]

	// drop stale windows opportunistically
	if len(store.counters) > 10000 {
		prev := windowKey(key, window, now.Add(-window))
		delete(store.counters, prev)
	}
	return count, nil
}

// RedisStore keeps counters in redis so several instances share one
// window.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a redis-backed counter store.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

// Increment implements Store.
func (store *RedisStore) Increment(ctx context.Context, key string, window time.Duration, now time.Time) (int64, error) {
	bucket := windowKey(key, window, now)

	pipe := store.client.TxPipeline()
	incr := pipe.Incr(ctx, bucket)
	pipe.Expire(ctx, bucket, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, Error.Wrap(err)
	}
	return incr.Val(), nil
}

// Close closes the redis connection.
func (store *RedisStore) Close() error {
	return Error.Wrap(store.client.Close())
}

func windowKey(key string, window time.Duration, now time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%d", key, now.UnixNano()/int64(window))
}

// Limiter enforces the configured request budget.
type Limiter struct {
	log    *zap.Logger
	store  Store
	config Config

	nowFn func() time.Time
}

// NewLimiter creates a limiter over the given store.
func NewLimiter(log *zap.Logger, store Store, config Config) *Limiter {
	return &Limiter{
		log:    log,
		store:  store,
		config: config,
		nowFn:  time.Now,
	}
}

// TestSetNow allows tests to have the limiter act as if the current time
// is whatever they want.
func (limiter *Limiter) TestSetNow(nowFn func() time.Time) {
	limiter.nowFn = nowFn
}

// Allow reports whether the client identified by key may make another
// request in the current window. Store failures fail open.
func (limiter *Limiter) Allow(ctx context.Context, key string) bool {
	count, err := limiter.store.Increment(ctx, key, limiter.config.Window, limiter.nowFn())
	if err != nil {
		limiter.log.Warn("rate limit store failed, allowing request", zap.Error(err))
		return true
	}
	return count <= int64(limiter.config.Limit)
}

// Middleware wraps a handler with per-client-IP limiting.
func (limiter *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow(r.Context(), clientIP(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(int(limiter.config.Window.Seconds())))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the originating address, honoring the first entry of
// X-Forwarded-For when present.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if i := strings.Index(forwarded, ","); i >= 0 {
			return strings.TrimSpace(forwarded[:i])
		}
		return strings.TrimSpace(forwarded)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
