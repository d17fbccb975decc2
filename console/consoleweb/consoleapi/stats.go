// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package consoleapi

import (
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"countercart.io/countercart/console"
)

const statsCacheKey = "public-stats"

// PublicStats is an api controller exposing aggregate donation totals and
// the leaderboard without authentication. Results are cached because the
// underlying query scans all completed donations.
type PublicStats struct {
	log     *zap.Logger
	service *console.Service
	cache   *gocache.Cache
}

// NewPublicStats is a constructor for public stats controller.
func NewPublicStats(log *zap.Logger, service *console.Service, ttl time.Duration) *PublicStats {
	return &PublicStats{
		log:     log,
		service: service,
		cache:   gocache.New(ttl, 10*time.Minute),
	}
}

// GetStats returns the cached public stats.
func (stats *PublicStats) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	w.Header().Set("Access-Control-Allow-Origin", "*")

	if cached, ok := stats.cache.Get(statsCacheKey); ok {
		serveJSON(stats.log, w, http.StatusOK, cached)
		return
	}

	result, err := stats.service.GetPublicStats(ctx)
	if err != nil {
		stats.log.Error("public stats query failed", zap.Error(err))
		serveJSONError(stats.log, w, http.StatusInternalServerError, err)
		return
	}
	stats.cache.SetDefault(statsCacheKey, result)

	serveJSON(stats.log, w, http.StatusOK, result)
}
