// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package consoleapi

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health exposes liveness and readiness probes.
type Health struct {
	log *zap.Logger
	db  Pinger
}

// NewHealth is a constructor for health controller.
func NewHealth(log *zap.Logger, db Pinger) *Health {
	return &Health{
		log: log,
		db:  db,
	}
}

// Live reports that the process is running.
func (health *Health) Live(w http.ResponseWriter, r *http.Request) {
	serveJSON(health.log, w, http.StatusOK, map[string]string{"status": "alive"})
}

// Ready reports whether the service can do useful work.
func (health *Health) Ready(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := health.db.Ping(ctx); err != nil {
		health.log.Warn("readiness probe failed", zap.Error(err))
		serveJSON(health.log, w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  "database unreachable",
		})
		return
	}
	serveJSON(health.log, w, http.StatusOK, map[string]string{"status": "ready"})
}

// Status is the general health endpoint.
func (health *Health) Status(w http.ResponseWriter, r *http.Request) {
	health.Ready(w, r)
}
