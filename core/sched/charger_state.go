package sched

import (
	"context"
	"errors"
	"fmt"

	"github.com/chargeq/chargeq/core/events"
	"github.com/chargeq/chargeq/core/model"
	"github.com/chargeq/chargeq/core/store"
)

// ErrQueueManaged is returned when a caller tries to drive a charger edge
// that only the session lifecycle may perform.
var ErrQueueManaged = errors.New("transition is managed by the queue")

type chargerEdge struct {
	from, to model.ChargerState
}

type chargerEffect struct {
	occupant  model.UserState
	anomalous bool
}

// chargerTransitions is the exhaustive legal transition table. Every edge
// carries a side effect on the occupying user; any pair not listed fails
// with IllegalTransitionError and leaves the charger untouched.
var chargerTransitions = map[chargerEdge]chargerEffect{
	{model.ChargerAvailable, model.ChargerPreSession}: {occupant: model.UserAssigned},
	{model.ChargerPreSession, model.ChargerCharging}:  {occupant: model.UserConnectedCharging},
	{model.ChargerPreSession, model.ChargerAvailable}: {occupant: model.UserInactive},
	{model.ChargerCharging, model.ChargerAvailable}:   {occupant: model.UserInactive},
	{model.ChargerCharging, model.ChargerFull}:        {occupant: model.UserConnectedFull},
	{model.ChargerFull, model.ChargerAvailable}:       {occupant: model.UserInactive},
	{model.ChargerFull, model.ChargerCharging}:        {occupant: model.UserConnectedCharging, anomalous: true},
}

// transitionCharger validates the edge, resolves the occupying user through
// the active session record and applies the charger and user writes. The
// charger's ActiveSession must be set before any edge is driven; edges into
// available clear it. ch is updated in place on success.
func (e *Engine) transitionCharger(ctx context.Context, ch *model.Charger, to model.ChargerState) error {
	effect, ok := chargerTransitions[chargerEdge{ch.State, to}]
	if !ok {
		return model.IllegalTransitionError{From: ch.State, To: to}
	}
	if effect.anomalous {
		e.log.Warnf("anomalous charger transition %s -> %s at %s:%s", ch.State, to, ch.LocationID, ch.ID)
	}

	occupant, err := e.resolveOccupant(ctx, ch)
	if err != nil {
		return err
	}

	fields := store.ChargerFields{State: &to}
	if to == model.ChargerAvailable {
		fields.ClearActiveSession = true
	}
	cctx, cancel := e.opCtx(ctx)
	defer cancel()
	if err := e.store.UpdateCharger(cctx, ch.LocationID, ch.ID, fields); err != nil {
		return err
	}
	from := ch.State
	ch.State = to
	if to == model.ChargerAvailable {
		ch.ActiveSession = nil
	}

	if err := e.setUserState(ctx, &occupant, effect.occupant); err != nil {
		// The charger write already landed; record the torn transition
		// rather than guessing at a rollback.
		e.log.Errorf("charger %s:%s moved to %s but occupant %s transition failed: %v",
			ch.LocationID, ch.ID, to, occupant.Username, err)
		return fmt.Errorf("occupant transition: %w", err)
	}

	e.publish(events.ChargerEvent{
		LocationID: ch.LocationID,
		ChargerID:  ch.ID,
		From:       from,
		To:         to,
		Anomalous:  effect.anomalous,
	})
	return nil
}

// resolveOccupant loads the user owning the charger's active session. The
// charger only caches the session identifier, so both the session record and
// the user are fetched on demand.
func (e *Engine) resolveOccupant(ctx context.Context, ch *model.Charger) (model.User, error) {
	if ch.ActiveSession == nil {
		return model.User{}, fmt.Errorf("charger %s:%s has no active session: %w", ch.LocationID, ch.ID, model.ErrNotFound)
	}
	sess, err := e.activeSessionRecord(ctx, ch)
	if err != nil {
		return model.User{}, err
	}
	cctx, cancel := e.opCtx(ctx)
	defer cancel()
	return e.store.GetUser(cctx, sess.Username)
}

// activeSessionRecord fetches the session the charger's ActiveSession id
// points at.
func (e *Engine) activeSessionRecord(ctx context.Context, ch *model.Charger) (model.Session, error) {
	cctx, cancel := e.opCtx(ctx)
	defer cancel()
	sessions, err := e.store.GetSessions(cctx, ch.LocationID, ch.ID)
	if err != nil {
		return model.Session{}, err
	}
	for _, s := range sessions {
		if s.ID == *ch.ActiveSession {
			return s, nil
		}
	}
	return model.Session{}, fmt.Errorf("session %d at %s:%s: %w", *ch.ActiveSession, ch.LocationID, ch.ID, model.ErrNotFound)
}

// SetChargerState is the entry point for service accounts reporting hardware
// state from the charger itself. Session boundaries are reserved for the
// queue: starting (available -> pre_session) and ending (full -> available)
// must go through StartSession and EndSession.
func (e *Engine) SetChargerState(ctx context.Context, locationID, chargerID string, to model.ChargerState) error {
	if !to.Valid() {
		return fmt.Errorf("unknown charger state %q: %w", to, model.ErrInvalidIdentifier)
	}
	lock := e.locationLock(locationID)
	lock.Lock()
	defer lock.Unlock()

	cctx, cancel := e.opCtx(ctx)
	ch, err := e.store.GetCharger(cctx, locationID, chargerID)
	cancel()
	if err != nil {
		return err
	}
	if ch.State == model.ChargerAvailable && to == model.ChargerPreSession {
		return fmt.Errorf("sessions must be started from the queue: %w", ErrQueueManaged)
	}
	if ch.State == model.ChargerFull && to == model.ChargerAvailable {
		return fmt.Errorf("sessions must be ended from the queue: %w", ErrQueueManaged)
	}
	return e.transitionCharger(ctx, &ch, to)
}
