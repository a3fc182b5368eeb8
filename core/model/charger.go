package model

// ChargerState is the operational state of a physical charger.
type ChargerState string

const (
	ChargerAvailable  ChargerState = "available"
	ChargerPreSession ChargerState = "pre_session"
	ChargerCharging   ChargerState = "charging"
	ChargerFull       ChargerState = "full"
)

// Valid reports whether s is a known charger state.
func (s ChargerState) Valid() bool {
	switch s {
	case ChargerAvailable, ChargerPreSession, ChargerCharging, ChargerFull:
		return true
	}
	return false
}

// Charger is one plug at a location. ActiveSession holds the identifier of
// the session currently occupying the charger; it is nil exactly when the
// charger is available. The occupying user is resolved lazily through the
// session record rather than held as a reference.
type Charger struct {
	LocationID    string
	ID            string
	State         ChargerState
	ActiveSession *int64
}

// Idle reports whether the charger has no active session.
func (c Charger) Idle() bool { return c.ActiveSession == nil }
