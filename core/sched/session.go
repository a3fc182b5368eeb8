package sched

import (
	"context"
	"fmt"

	"github.com/chargeq/chargeq/core/events"
	"github.com/chargeq/chargeq/core/model"
	"github.com/chargeq/chargeq/core/store"
)

// StartSession assigns a charger to a user: it allocates the next session id,
// creates the session record, occupies the charger (cascading the user to
// assigned) and removes the user from the location's queue.
func (e *Engine) StartSession(ctx context.Context, locationID, chargerID, username string) (model.Session, error) {
	lock := e.locationLock(locationID)
	lock.Lock()
	defer lock.Unlock()
	return e.startSessionLocked(ctx, locationID, chargerID, username)
}

func (e *Engine) startSessionLocked(ctx context.Context, locationID, chargerID, username string) (model.Session, error) {
	cctx, cancel := e.opCtx(ctx)
	ch, err := e.store.GetCharger(cctx, locationID, chargerID)
	cancel()
	if err != nil {
		return model.Session{}, err
	}
	if ch.ActiveSession != nil {
		return model.Session{}, fmt.Errorf("charger %s:%s: %w", locationID, chargerID, model.ErrAlreadyActive)
	}

	cctx, cancel = e.opCtx(ctx)
	sessions, err := e.store.GetSessions(cctx, locationID, chargerID)
	cancel()
	if err != nil {
		return model.Session{}, err
	}
	id := nextSessionID(sessions)

	sess := model.Session{
		LocationID: locationID,
		ChargerID:  chargerID,
		ID:         id,
		StartTime:  e.now(),
		Username:   username,
	}
	cctx, cancel = e.opCtx(ctx)
	err = e.store.CreateSession(cctx, sess)
	cancel()
	if err != nil {
		return model.Session{}, err
	}

	cctx, cancel = e.opCtx(ctx)
	err = e.store.UpdateCharger(cctx, locationID, chargerID, store.ChargerFields{ActiveSession: &id})
	cancel()
	if err != nil {
		return model.Session{}, err
	}
	ch.ActiveSession = &id

	if err := e.transitionCharger(ctx, &ch, model.ChargerPreSession); err != nil {
		return model.Session{}, err
	}

	if err := e.removeFromQueue(ctx, locationID, username); err != nil {
		e.log.Errorf("removing %s from %s queue after assignment: %v", username, locationID, err)
	}

	sessionsStarted.WithLabelValues(locationID).Inc()
	e.publish(events.SessionEvent{Session: sess, At: sess.StartTime})
	if r := e.sessionRecorder(); r != nil {
		if err := r.RecordSessionStart(sess); err != nil {
			e.log.Errorf("recording session start %s:%s#%d: %v", locationID, chargerID, id, err)
		}
	}
	e.log.Infof("session %d started at %s:%s for %s", id, locationID, chargerID, username)
	return sess, nil
}

// nextSessionID allocates max+1 over the charger's history, then steps past
// any identifier already present. The scan guards against manually seeded or
// out-of-order data; concurrent allocation is excluded by the location lock.
func nextSessionID(sessions []model.Session) int64 {
	used := make(map[int64]bool, len(sessions))
	var max int64
	for _, s := range sessions {
		used[s.ID] = true
		if s.ID > max {
			max = s.ID
		}
	}
	id := max + 1
	for used[id] {
		id++
	}
	return id
}

// EndSession closes the charger's active session, frees the charger
// (cascading the user to inactive) and immediately ticks the queue so the
// freed charger can be reassigned.
func (e *Engine) EndSession(ctx context.Context, locationID, chargerID string) error {
	lock := e.locationLock(locationID)
	lock.Lock()
	defer lock.Unlock()

	cctx, cancel := e.opCtx(ctx)
	ch, err := e.store.GetCharger(cctx, locationID, chargerID)
	cancel()
	if err != nil {
		return err
	}
	if ch.ActiveSession == nil {
		return fmt.Errorf("no active session at %s:%s: %w", locationID, chargerID, model.ErrNotFound)
	}

	sess, err := e.activeSessionRecord(ctx, &ch)
	if err != nil {
		return err
	}
	end := e.now()
	cctx, cancel = e.opCtx(ctx)
	err = e.store.UpdateSession(cctx, locationID, chargerID, sess.ID, store.SessionFields{EndTime: &end})
	cancel()
	if err != nil {
		return err
	}
	sess.EndTime = &end

	if err := e.transitionCharger(ctx, &ch, model.ChargerAvailable); err != nil {
		return err
	}

	sessionsEnded.WithLabelValues(locationID).Inc()
	e.publish(events.SessionEvent{Session: sess, Ended: true, At: end})
	if r := e.sessionRecorder(); r != nil {
		if err := r.RecordSessionEnd(sess); err != nil {
			e.log.Errorf("recording session end %s:%s#%d: %v", locationID, chargerID, sess.ID, err)
		}
	}
	e.log.Infof("session %d ended at %s:%s", sess.ID, locationID, chargerID)

	return e.tickLocked(ctx, locationID)
}
