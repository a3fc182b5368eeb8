package sched

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/chargeq/chargeq/core/events"
	"github.com/chargeq/chargeq/core/model"
	"github.com/chargeq/chargeq/core/score"
	"github.com/chargeq/chargeq/core/store"
)

// JoinQueue appends the user to the location's waiting list, moves them to
// in_queue and immediately ticks the queue.
func (e *Engine) JoinQueue(ctx context.Context, locationID, username string) error {
	lock := e.locationLock(locationID)
	lock.Lock()
	defer lock.Unlock()

	cctx, cancel := e.opCtx(ctx)
	loc, err := e.store.GetLocation(cctx, locationID)
	cancel()
	if err != nil {
		return err
	}
	if loc.Queued(username) {
		return fmt.Errorf("%s at %s: %w", username, locationID, model.ErrConflict)
	}
	cctx, cancel = e.opCtx(ctx)
	u, err := e.store.GetUser(cctx, username)
	cancel()
	if err != nil {
		return err
	}

	queue := append(append([]string(nil), loc.Queue...), username)
	cctx, cancel = e.opCtx(ctx)
	err = e.store.UpdateLocationQueue(cctx, locationID, queue)
	cancel()
	if err != nil {
		return err
	}
	if err := e.setUserState(ctx, &u, model.UserInQueue); err != nil {
		return err
	}

	queueLength.WithLabelValues(locationID).Set(float64(len(queue)))
	e.publish(events.QueueEvent{LocationID: locationID, Username: username, Joined: true, QueueLen: len(queue)})
	e.log.Infof("%s joined queue at %s (length %d)", username, locationID, len(queue))

	return e.tickLocked(ctx, locationID)
}

// LeaveQueue removes the user from the waiting list and returns them to
// inactive. The score catch-up happens once, inside the state change.
func (e *Engine) LeaveQueue(ctx context.Context, locationID, username string) error {
	lock := e.locationLock(locationID)
	lock.Lock()
	defer lock.Unlock()

	cctx, cancel := e.opCtx(ctx)
	loc, err := e.store.GetLocation(cctx, locationID)
	cancel()
	if err != nil {
		return err
	}
	if !loc.Queued(username) {
		return fmt.Errorf("%s not queued at %s: %w", username, locationID, model.ErrNotFound)
	}
	cctx, cancel = e.opCtx(ctx)
	u, err := e.store.GetUser(cctx, username)
	cancel()
	if err != nil {
		return err
	}

	if err := e.removeFromQueue(ctx, locationID, username); err != nil {
		return err
	}
	if err := e.setUserState(ctx, &u, model.UserInactive); err != nil {
		return err
	}
	e.publish(events.QueueEvent{LocationID: locationID, Username: username, QueueLen: len(loc.Queue) - 1})
	e.log.Infof("%s left queue at %s", username, locationID)
	return nil
}

// removeFromQueue rewrites the location queue without username. A username
// not present is a no-op.
func (e *Engine) removeFromQueue(ctx context.Context, locationID, username string) error {
	cctx, cancel := e.opCtx(ctx)
	loc, err := e.store.GetLocation(cctx, locationID)
	cancel()
	if err != nil {
		return err
	}
	queue := make([]string, 0, len(loc.Queue))
	for _, q := range loc.Queue {
		if q != username {
			queue = append(queue, q)
		}
	}
	if len(queue) == len(loc.Queue) {
		return nil
	}
	cctx, cancel = e.opCtx(ctx)
	defer cancel()
	if err := e.store.UpdateLocationQueue(cctx, locationID, queue); err != nil {
		return err
	}
	queueLength.WithLabelValues(locationID).Set(float64(len(queue)))
	return nil
}

// TickQueue re-evaluates a location's queue: every queued user's score is
// brought up to date, then the lowest-scoring users are paired with idle
// chargers. Safe to call from a periodic job.
func (e *Engine) TickQueue(ctx context.Context, locationID string) error {
	lock := e.locationLock(locationID)
	lock.Lock()
	defer lock.Unlock()
	return e.tickLocked(ctx, locationID)
}

type queued struct {
	user    model.User
	arrival int
}

func (e *Engine) tickLocked(ctx context.Context, locationID string) error {
	started := time.Now()
	defer func() { tickDuration.Observe(time.Since(started).Seconds()) }()

	cctx, cancel := e.opCtx(ctx)
	loc, err := e.store.GetLocation(cctx, locationID)
	cancel()
	if err != nil {
		return err
	}
	if len(loc.Queue) == 0 {
		return nil
	}

	now := e.now()
	waiting := make([]queued, 0, len(loc.Queue))
	for i, username := range loc.Queue {
		cctx, cancel := e.opCtx(ctx)
		u, err := e.store.GetUser(cctx, username)
		cancel()
		if err != nil {
			return fmt.Errorf("queued user %s: %w", username, err)
		}
		score.Apply(&u, now)
		cctx, cancel = e.opCtx(ctx)
		err = e.store.UpdateUser(cctx, username, store.UserFields{Score: &u.Score, ScoreUpdatedAt: &u.ScoreUpdatedAt})
		cancel()
		if err != nil {
			return fmt.Errorf("updating score for %s: %w", username, err)
		}
		waiting = append(waiting, queued{user: u, arrival: i})
	}
	observeQueueScores(locationID, waiting)

	cctx, cancel = e.opCtx(ctx)
	chargers, err := e.store.ListChargers(cctx, locationID)
	cancel()
	if err != nil {
		return err
	}
	var idle []model.Charger
	for _, c := range chargers {
		if c.Idle() {
			idle = append(idle, c)
		}
	}
	if len(idle) == 0 {
		return nil
	}

	// Lowest score first; arrival order breaks ties.
	sort.SliceStable(waiting, func(i, j int) bool { return waiting[i].user.Score < waiting[j].user.Score })

	k := len(idle)
	if len(waiting) < k {
		k = len(waiting)
	}
	var firstErr error
	for i := 0; i < k; i++ {
		u := waiting[i].user
		ch := idle[i]
		if _, err := e.startSessionLocked(ctx, locationID, ch.ID, u.Username); err != nil {
			e.log.Errorf("assigning %s to %s:%s: %v", u.Username, locationID, ch.ID, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		assignmentsTotal.WithLabelValues(locationID).Inc()
		e.publish(events.AssignmentEvent{
			LocationID: locationID,
			ChargerID:  ch.ID,
			Username:   u.Username,
			Score:      u.Score,
		})
	}
	return firstErr
}

// ResetQueues drains the queue of every location flagged for daily reset,
// returning the waiting users to inactive. Used by the maintenance job.
func (e *Engine) ResetQueues(ctx context.Context) error {
	cctx, cancel := e.opCtx(ctx)
	locations, err := e.store.ListLocations(cctx)
	cancel()
	if err != nil {
		return err
	}
	var firstErr error
	for _, loc := range locations {
		if !loc.ResetQueueDaily {
			continue
		}
		if err := e.resetLocation(ctx, loc.ID); err != nil {
			e.log.Errorf("resetting queue at %s: %v", loc.ID, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (e *Engine) resetLocation(ctx context.Context, locationID string) error {
	lock := e.locationLock(locationID)
	lock.Lock()
	defer lock.Unlock()

	cctx, cancel := e.opCtx(ctx)
	loc, err := e.store.GetLocation(cctx, locationID)
	cancel()
	if err != nil {
		return err
	}
	for _, username := range loc.Queue {
		cctx, cancel := e.opCtx(ctx)
		u, err := e.store.GetUser(cctx, username)
		cancel()
		if err != nil {
			return err
		}
		if err := e.setUserState(ctx, &u, model.UserInactive); err != nil {
			return err
		}
	}
	cctx, cancel = e.opCtx(ctx)
	defer cancel()
	if err := e.store.UpdateLocationQueue(cctx, locationID, nil); err != nil {
		return err
	}
	queueLength.WithLabelValues(locationID).Set(0)
	e.log.Infof("queue reset at %s (%d users released)", locationID, len(loc.Queue))
	return nil
}
