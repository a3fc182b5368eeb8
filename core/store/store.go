// Package store defines the persistence gateway the scheduling engine is
// written against. Implementations live under infra/store; the engine never
// assumes a particular storage technology.
package store

import (
	"context"
	"time"

	"github.com/chargeq/chargeq/core/model"
)

// UserFields is a partial update of a user record. Nil fields are left
// untouched.
type UserFields struct {
	State             *model.UserState
	Score             *float64
	ScoreUpdatedAt    *time.Time
	NotificationToken *string
	PasswordHash      *string
}

// ChargerFields is a partial update of a charger record. ClearActiveSession
// resets the active session reference to nil; it wins over ActiveSession.
type ChargerFields struct {
	State              *model.ChargerState
	ActiveSession      *int64
	ClearActiveSession bool
}

// SessionFields is a partial update of a session record.
type SessionFields struct {
	EndTime *time.Time
}

// Store is the durable record of users, locations, chargers and sessions.
//
// Lookups return model.ErrNotFound wrapped with context when the addressed
// record is absent, and creations return model.ErrAlreadyExists on duplicate
// identity. Updates apply a field merge to the addressed record and must be
// atomic per record. Deleting a location cascades to its chargers and their
// sessions.
type Store interface {
	GetUser(ctx context.Context, username string) (model.User, error)
	CreateUser(ctx context.Context, u model.User) error
	UpdateUser(ctx context.Context, username string, f UserFields) error
	DeleteUser(ctx context.Context, username string) error

	GetLocation(ctx context.Context, id string) (model.Location, error)
	ListLocations(ctx context.Context) ([]model.Location, error)
	CreateLocation(ctx context.Context, l model.Location) error
	DeleteLocation(ctx context.Context, id string) error
	// UpdateLocationQueue replaces the location's waiting list wholesale.
	// The engine serializes queue mutations per location.
	UpdateLocationQueue(ctx context.Context, id string, queue []string) error

	GetCharger(ctx context.Context, locationID, chargerID string) (model.Charger, error)
	ListChargers(ctx context.Context, locationID string) ([]model.Charger, error)
	CreateCharger(ctx context.Context, c model.Charger) error
	DeleteCharger(ctx context.Context, locationID, chargerID string) error
	UpdateCharger(ctx context.Context, locationID, chargerID string, f ChargerFields) error

	CreateSession(ctx context.Context, s model.Session) error
	GetSessions(ctx context.Context, locationID, chargerID string) ([]model.Session, error)
	UpdateSession(ctx context.Context, locationID, chargerID string, sessionID int64, f SessionFields) error
}
