package model

import "time"

// Session links a user to a charger for an interval. IDs are allocated
// monotonically per charger and never reused. EndTime is nil while the
// session is running; a charger has at most one such session at a time.
type Session struct {
	LocationID string
	ChargerID  string
	ID         int64
	StartTime  time.Time
	EndTime    *time.Time
	Username   string
}

// Active reports whether the session is still running.
func (s Session) Active() bool { return s.EndTime == nil }
