package score

import (
	"math"
	"testing"
	"time"

	"github.com/chargeq/chargeq/core/model"
)

func TestUpdateZeroElapsedIsIdempotent(t *testing.T) {
	states := []model.UserState{
		model.UserInactive, model.UserInQueue, model.UserAssigned,
		model.UserConnectedCharging, model.UserConnectedFull,
	}
	for _, s := range states {
		if got := Update(s, 123.45, 0); got != 123.45 {
			t.Errorf("%s: zero elapsed changed score to %f", s, got)
		}
	}
}

func TestUpdateAdditivity(t *testing.T) {
	// Splitting an interval must equal evaluating it in one go, except where
	// clamping kicks in. Start values are chosen to stay clear of the clamps.
	cases := []struct {
		state model.UserState
		start float64
	}{
		{model.UserInactive, 300},
		{model.UserInQueue, 500},
		{model.UserAssigned, 500},
		{model.UserConnectedCharging, 400},
		{model.UserConnectedFull, 400},
	}
	a := 30 * time.Minute
	b := 45 * time.Minute
	for _, c := range cases {
		split := Update(c.state, Update(c.state, c.start, a), b)
		whole := Update(c.state, c.start, a+b)
		if math.Abs(split-whole) > 1e-9 {
			t.Errorf("%s: split=%f whole=%f", c.state, split, whole)
		}
	}
}

func TestInactiveConvergesToResting(t *testing.T) {
	for _, start := range []float64{0, 100, 499.9, 500, 500.1, 900, 5000} {
		got := Update(model.UserInactive, start, 1000*time.Hour)
		if got != Resting {
			t.Errorf("start %f: expected exactly %f, got %f", start, Resting, got)
		}
	}
	// A short interval from below must not overshoot.
	if got := Update(model.UserInactive, 499.999, time.Hour); got != Resting {
		t.Errorf("expected clamp at %f, got %f", Resting, got)
	}
}

func TestInQueueGrowsUnbounded(t *testing.T) {
	got := Update(model.UserInQueue, 500, time.Hour)
	want := 500 + 2*Rate*3600
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("expected %f, got %f", want, got)
	}
	if Update(model.UserInQueue, 1e6, time.Hour) <= 1e6 {
		t.Error("in_queue score should keep growing")
	}
}

func TestAssignedHoldsConstant(t *testing.T) {
	if got := Update(model.UserAssigned, 321, 500*time.Hour); got != 321 {
		t.Errorf("assigned score changed to %f", got)
	}
}

func TestConnectedStatesFloorAtZero(t *testing.T) {
	if got := Update(model.UserConnectedCharging, 10, 100*time.Hour); got != 0 {
		t.Errorf("connected_charging went to %f", got)
	}
	if got := Update(model.UserConnectedFull, 10, 100*time.Hour); got != 0 {
		t.Errorf("connected_full went to %f", got)
	}
}

func TestConnectedFullDecaysTwiceAsFast(t *testing.T) {
	charging := Update(model.UserConnectedCharging, 500, time.Hour)
	full := Update(model.UserConnectedFull, 500, time.Hour)
	lostCharging := 500 - charging
	lostFull := 500 - full
	if math.Abs(lostFull-2*lostCharging) > 1e-6 {
		t.Errorf("full lost %f, charging lost %f", lostFull, lostCharging)
	}
}

func TestApplyAdvancesTimestamp(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	u := model.User{State: model.UserInQueue, Score: 500, ScoreUpdatedAt: t0}
	now := t0.Add(time.Hour)
	Apply(&u, now)
	if !u.ScoreUpdatedAt.Equal(now) {
		t.Errorf("timestamp not advanced: %v", u.ScoreUpdatedAt)
	}
	want := 500 + 2*Rate*3600
	if math.Abs(u.Score-want) > 1e-6 {
		t.Errorf("expected %f, got %f", want, u.Score)
	}
}

func TestApplyIgnoresPastInstants(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	u := model.User{State: model.UserInQueue, Score: 500, ScoreUpdatedAt: t0}
	Apply(&u, t0.Add(-time.Hour))
	if u.Score != 500 || !u.ScoreUpdatedAt.Equal(t0) {
		t.Errorf("past instant mutated user: score=%f ts=%v", u.Score, u.ScoreUpdatedAt)
	}
}
