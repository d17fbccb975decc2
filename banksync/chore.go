// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package banksync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"storj.io/common/sync2"
)

// ChoreConfig contains configuration for the daily sync chore.
type ChoreConfig struct {
	Interval    time.Duration `help:"how often all bank connections are synced" default:"24h"`
	DisableLoop bool          `help:"disable the periodic sync loop" default:"false"`
}

// Chore periodically syncs all active bank connections.
//
// architecture: Chore
type Chore struct {
	log     *zap.Logger
	service *Service
	config  ChoreConfig

	Loop *sync2.Cycle
}

// NewChore creates new chore.
func NewChore(log *zap.Logger, service *Service, config ChoreConfig) *Chore {
	return &Chore{
		log:     log,
		service: service,
		config:  config,
		Loop:    sync2.NewCycle(config.Interval),
	}
}

// Run runs the sync loop.
func (chore *Chore) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	return chore.Loop.Run(ctx, func(ctx context.Context) error {
		if chore.config.DisableLoop {
			chore.log.Debug("skipping chore iteration as loop is disabled")
			return nil
		}

		stats, err := chore.service.SyncAll(ctx)
		if err != nil {
			chore.log.Error("daily sync finished with errors", zap.Error(err))
		}
		chore.log.Info("daily sync finished",
			zap.Int("added", stats.Added),
			zap.Int("modified", stats.Modified),
			zap.Int("removed", stats.Removed),
			zap.Int("matched", stats.Matched))
		return nil
	})
}

// Close closes all underlying resources.
func (chore *Chore) Close() error {
	chore.Loop.Close()
	return nil
}
