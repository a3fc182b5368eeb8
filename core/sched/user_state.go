package sched

import (
	"context"

	"github.com/chargeq/chargeq/core/model"
	"github.com/chargeq/chargeq/core/score"
	"github.com/chargeq/chargeq/core/store"
)

// expectedUserEdges is the adjacency graph a user is expected to follow.
// Edges outside the graph are permitted but logged as anomalous; the charger
// state machine is the layer that hard-rejects.
var expectedUserEdges = map[model.UserState][]model.UserState{
	model.UserInactive:          {model.UserInQueue, model.UserAssigned},
	model.UserInQueue:           {model.UserInactive, model.UserAssigned, model.UserConnectedCharging},
	model.UserAssigned:          {model.UserConnectedCharging, model.UserInactive},
	model.UserConnectedCharging: {model.UserConnectedFull, model.UserInactive},
	model.UserConnectedFull:     {model.UserInactive, model.UserConnectedCharging},
}

func expectedUserEdge(from, to model.UserState) bool {
	for _, s := range expectedUserEdges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// setUserState moves a user to next. Setting the current state again is a
// no-op. The score model is applied for the elapsed interval using the old
// state's rate before the switch, then state, score and timestamp are
// persisted together. On persistence failure the in-memory user is left
// unchanged. Notification side effects fire after the write, off-lock.
func (e *Engine) setUserState(ctx context.Context, u *model.User, next model.UserState) error {
	if u.State == next {
		return nil
	}
	prev := u.State
	if !expectedUserEdge(prev, next) {
		e.log.Warnf("anomalous user transition %s -> %s for %s", prev, next, u.Username)
	}

	updated := *u
	score.Apply(&updated, e.now())
	updated.State = next

	cctx, cancel := e.opCtx(ctx)
	defer cancel()
	err := e.store.UpdateUser(cctx, u.Username, store.UserFields{
		State:          &updated.State,
		Score:          &updated.Score,
		ScoreUpdatedAt: &updated.ScoreUpdatedAt,
	})
	if err != nil {
		return err
	}
	*u = updated

	if title, body, ok := notificationFor(prev, next); ok {
		e.sendNotification(*u, title, body)
	}
	return nil
}

// notificationFor maps a user transition edge to its push notification.
// Only the listed edges notify.
func notificationFor(prev, next model.UserState) (title, body string, ok bool) {
	switch {
	case next == model.UserAssigned && (prev == model.UserInactive || prev == model.UserInQueue):
		return "Charger assigned", "A charger is ready for you. Plug in to start charging.", true
	case prev == model.UserInQueue && next == model.UserConnectedCharging:
		return "Charging started", "Your vehicle is now charging.", true
	case prev == model.UserConnectedCharging && next == model.UserConnectedFull:
		return "Charge finished", "Your vehicle is fully charged. Please move your car.", true
	case prev == model.UserConnectedCharging && next == model.UserInactive:
		return "Session cancelled", "Your charging session has ended.", true
	}
	return "", "", false
}

// sendNotification delivers asynchronously with a bounded timeout. Failures,
// including a missing notification token, are logged and swallowed.
func (e *Engine) sendNotification(u model.User, title, body string) {
	if u.NotificationToken == "" {
		e.log.Debugf("no notification token registered for %s, skipping %q", u.Username, title)
		return
	}
	e.notifyWG.Add(1)
	go func() {
		defer e.notifyWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.notifyTimeout)
		defer cancel()
		if err := e.notifier.Notify(ctx, u, title, body); err != nil {
			notifyFailures.Inc()
			e.log.Errorf("notification %q to %s failed: %v", title, u.Username, err)
		}
	}()
}
