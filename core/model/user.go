package model

import "time"

// Role determines what a caller is allowed to do. Service accounts are used
// by charger firmware integrations to report hardware state changes.
type Role string

const (
	RoleUser    Role = "user"
	RoleAdmin   Role = "admin"
	RoleService Role = "service"
)

// UserState is the lifecycle state of a user with respect to charging.
type UserState string

const (
	UserInactive          UserState = "inactive"
	UserInQueue           UserState = "in_queue"
	UserAssigned          UserState = "assigned"
	UserConnectedCharging UserState = "connected_charging"
	UserConnectedFull     UserState = "connected_full"
)

// Valid reports whether s is a known user state.
func (s UserState) Valid() bool {
	switch s {
	case UserInactive, UserInQueue, UserAssigned, UserConnectedCharging, UserConnectedFull:
		return true
	}
	return false
}

// User is a registered account holding a fairness score. Score is always
// non-negative and ScoreUpdatedAt records the last time the score model was
// evaluated for this user.
type User struct {
	Username          string
	PasswordHash      string
	Role              Role
	NotificationToken string
	State             UserState
	Score             float64
	ScoreUpdatedAt    time.Time
}

// NewUser returns a user in the initial state with the resting score.
// The score model treats 500 as the equilibrium value.
func NewUser(username, passwordHash string, role Role, now time.Time) User {
	return User{
		Username:       username,
		PasswordHash:   passwordHash,
		Role:           role,
		State:          UserInactive,
		Score:          500.0,
		ScoreUpdatedAt: now,
	}
}
