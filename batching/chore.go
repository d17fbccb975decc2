// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package batching

import (
	"context"
	"time"

	"go.uber.org/zap"

	"storj.io/common/sync2"

	"countercart.io/countercart/donations"
)

// ChoreConfig contains configuration for the weekly processing chore.
type ChoreConfig struct {
	Interval    time.Duration `help:"how often batching eligibility is checked" default:"1h"`
	DisableLoop bool          `help:"disable the periodic batching loop" default:"false"`
}

// Chore runs weekly donation processing every Sunday evening. The loop
// ticks hourly and fires once the processing window of the week opens.
//
// architecture: Chore
type Chore struct {
	log     *zap.Logger
	service *Service
	config  ChoreConfig

	Loop *sync2.Cycle

	lastRunWeek time.Time
	nowFn       func() time.Time
}

// NewChore creates new chore.
func NewChore(log *zap.Logger, service *Service, config ChoreConfig) *Chore {
	return &Chore{
		log:     log,
		service: service,
		config:  config,
		Loop:    sync2.NewCycle(config.Interval),
		nowFn:   time.Now,
	}
}

// TestSetNow allows tests to have the chore act as if the current time is
// whatever they want.
func (chore *Chore) TestSetNow(nowFn func() time.Time) {
	chore.nowFn = nowFn
	chore.service.TestSetNow(nowFn)
}

// Run runs the batching loop.
func (chore *Chore) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	return chore.Loop.Run(ctx, func(ctx context.Context) error {
		if chore.config.DisableLoop {
			chore.log.Debug("skipping chore iteration as loop is disabled")
			return nil
		}

		now := chore.nowFn().UTC()
		// Sunday from 20:00 UTC on, once per week.
		if now.Weekday() != time.Sunday || now.Hour() < 20 {
			return nil
		}
		week := donations.WeekOf(now)
		if chore.lastRunWeek.Equal(week) {
			return nil
		}

		if err := chore.service.RunWeekly(ctx); err != nil {
			chore.log.Error("weekly donation processing finished with errors", zap.Error(err))
		}
		chore.lastRunWeek = week
		return nil
	})
}

// Close closes all underlying resources.
func (chore *Chore) Close() error {
	chore.Loop.Close()
	return nil
}
