package model

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the engine and the persistence gateways. All are
// recoverable; the calling layer decides how each maps to a response.
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrAlreadyActive     = errors.New("session already active")
	ErrConflict          = errors.New("already queued")
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

// IllegalTransitionError reports a charger state change outside the allowed
// transition table. The charger is left unchanged when this is returned.
type IllegalTransitionError struct {
	From ChargerState
	To   ChargerState
}

func (e IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal charger transition %s -> %s", e.From, e.To)
}
