// Package score implements the fairness score model. The score is a pure
// function of the user's state and the elapsed time since the last
// evaluation; it carries no dependencies beyond the state enum.
package score

import (
	"time"

	"github.com/chargeq/chargeq/core/model"
)

const (
	// Resting is the equilibrium value inactive users drift toward.
	Resting = 500.0
	// Rate is the base decay rate in score units per second (about 25 per hour).
	Rate = 0.00694444444
	// AssignedFixedPenalty is retained from an earlier revision of the model.
	// The assigned state is score-invariant; no penalty is applied.
	AssignedFixedPenalty = 25.0
)

// Update returns the score after elapsed time spent in the given state.
//
//   - inactive relaxes linearly toward Resting and never overshoots
//   - in_queue grows at twice Rate, unbounded
//   - assigned is held constant
//   - connected_charging shrinks at three times Rate, floored at zero
//   - connected_full shrinks at six times Rate, floored at zero
//
// A zero or negative elapsed interval leaves the score unchanged.
func Update(state model.UserState, current float64, elapsed time.Duration) float64 {
	secs := elapsed.Seconds()
	if secs <= 0 {
		return current
	}
	switch state {
	case model.UserInactive:
		delta := Rate * secs
		if current > Resting {
			next := current - delta
			if next < Resting {
				return Resting
			}
			return next
		}
		next := current + delta
		if next > Resting {
			return Resting
		}
		return next
	case model.UserInQueue:
		return current + 2*Rate*secs
	case model.UserAssigned:
		return current
	case model.UserConnectedCharging:
		return floor(current - 3*Rate*secs)
	case model.UserConnectedFull:
		return floor(current - 6*Rate*secs)
	}
	return current
}

// Apply evaluates the model for the time since the user's last update and
// advances ScoreUpdatedAt to now. The elapsed interval is never negative: a
// now earlier than the last update leaves both score and timestamp alone so
// the interval cannot be credited twice.
func Apply(u *model.User, now time.Time) {
	if now.Before(u.ScoreUpdatedAt) {
		return
	}
	u.Score = Update(u.State, u.Score, now.Sub(u.ScoreUpdatedAt))
	u.ScoreUpdatedAt = now
}

func floor(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
