// Package maintenance runs the periodic work the scheduler depends on: a
// regular queue tick for every location and the daily reset of flagged
// queues.
package maintenance

import (
	"context"
	"time"

	"github.com/chargeq/chargeq/core/sched"
	"github.com/chargeq/chargeq/core/store"
	"github.com/chargeq/chargeq/infra/logger"
)

// Runner drives the maintenance loops until its context is canceled.
type Runner struct {
	Engine       *sched.Engine
	Store        store.Store
	Log          logger.Logger
	TickInterval time.Duration
	ResetHourUTC int
}

// Run blocks until ctx is canceled. A zero TickInterval disables the
// periodic tick; the daily reset always runs.
func (r Runner) Run(ctx context.Context) {
	var tick <-chan time.Time
	if r.TickInterval > 0 {
		t := time.NewTicker(r.TickInterval)
		defer t.Stop()
		tick = t.C
	}
	reset := time.NewTimer(untilHour(time.Now().UTC(), r.ResetHourUTC))
	defer reset.Stop()

	for {
		select {
		case <-tick:
			r.TickAll(ctx)
		case <-reset.C:
			if err := r.Engine.ResetQueues(ctx); err != nil {
				r.Log.Errorf("daily queue reset: %v", err)
			}
			reset.Reset(untilHour(time.Now().UTC(), r.ResetHourUTC))
		case <-ctx.Done():
			return
		}
	}
}

// TickAll re-evaluates every location's queue once.
func (r Runner) TickAll(ctx context.Context) {
	locations, err := r.Store.ListLocations(ctx)
	if err != nil {
		r.Log.Errorf("listing locations for tick: %v", err)
		return
	}
	for _, loc := range locations {
		if err := r.Engine.TickQueue(ctx, loc.ID); err != nil {
			r.Log.Errorf("tick at %s: %v", loc.ID, err)
		}
	}
}

// untilHour returns the duration from now until the next occurrence of the
// given hour.
func untilHour(now time.Time, hour int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}
