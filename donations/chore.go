// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package donations

import (
	"context"
	"time"

	"go.uber.org/zap"

	"storj.io/common/sync2"
)

// Users is the subset of the console users repository the chore needs.
// It is declared here to avoid an import cycle with the console package.
type Users interface {
	// ResetMonthTotals zeroes every user's running month total.
	ResetMonthTotals(ctx context.Context) (affected int64, err error)
}

// ChoreConfig contains configuration for the monthly reset chore.
type ChoreConfig struct {
	Interval    time.Duration `help:"how often the month rollover is checked" default:"1h"`
	DisableLoop bool          `help:"disable the periodic reset loop" default:"false"`
}

// Chore zeroes every user's running month total when the month rolls
// over.
//
// architecture: Chore
type Chore struct {
	log    *zap.Logger
	users  Users
	config ChoreConfig

	Loop *sync2.Cycle

	lastMonth time.Month
	nowFn     func() time.Time
}

// NewChore creates new chore.
func NewChore(log *zap.Logger, users Users, config ChoreConfig) *Chore {
	return &Chore{
		log:       log,
		users:     users,
		config:    config,
		Loop:      sync2.NewCycle(config.Interval),
		lastMonth: time.Now().UTC().Month(),
		nowFn:     time.Now,
	}
}

// TestSetNow allows tests to have the chore act as if the current time is
// whatever they want.
func (chore *Chore) TestSetNow(nowFn func() time.Time) {
	chore.nowFn = nowFn
}

// Run runs the reset loop.
func (chore *Chore) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	return chore.Loop.Run(ctx, func(ctx context.Context) error {
		if chore.config.DisableLoop {
			chore.log.Debug("skipping chore iteration as loop is disabled")
			return nil
		}

		month := chore.nowFn().UTC().Month()
		if month == chore.lastMonth {
			return nil
		}

		affected, err := chore.users.ResetMonthTotals(ctx)
		if err != nil {
			chore.log.Error("monthly reset failed", zap.Error(err))
			return nil
		}

		chore.lastMonth = month
		chore.log.Info("monthly totals reset", zap.Int64("usersReset", affected))
		return nil
	})
}

// Close closes all underlying resources.
func (chore *Chore) Close() error {
	chore.Loop.Close()
	return nil
}
