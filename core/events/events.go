// Package events defines the typed events the engine publishes on the
// in-process event bus. Subscribers must not assume delivery: publishing is
// non-blocking and slow consumers drop events.
package events

import (
	"time"

	"github.com/chargeq/chargeq/core/model"
)

// QueueEvent is emitted when a user joins or leaves a location's queue.
type QueueEvent struct {
	LocationID string
	Username   string
	Joined     bool
	QueueLen   int
}

// AssignmentEvent is emitted when a queued user is paired with a charger.
type AssignmentEvent struct {
	LocationID string
	ChargerID  string
	Username   string
	Score      float64
}

// SessionEvent is emitted when a session starts or ends.
type SessionEvent struct {
	Session model.Session
	Ended   bool
	At      time.Time
}

// ChargerEvent is emitted on every charger state transition, including
// anomalous but permitted edges.
type ChargerEvent struct {
	LocationID string
	ChargerID  string
	From       model.ChargerState
	To         model.ChargerState
	Anomalous  bool
}
