package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chargeq/chargeq/core/model"
	corestore "github.com/chargeq/chargeq/core/store"
)

// testStore runs the behavioural contract every Store implementation must
// satisfy.
func testStore(t *testing.T, newStore func(t *testing.T) corestore.Store) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	t.Run("user crud", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		if _, err := st.GetUser(ctx, "alice"); !errors.Is(err, model.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		u := model.NewUser("alice", "hash", model.RoleUser, now)
		u.NotificationToken = "tok"
		if err := st.CreateUser(ctx, u); err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
		if err := st.CreateUser(ctx, u); !errors.Is(err, model.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}
		got, err := st.GetUser(ctx, "alice")
		if err != nil {
			t.Fatalf("GetUser: %v", err)
		}
		if got.Role != model.RoleUser || got.State != model.UserInactive || got.Score != 500 || got.NotificationToken != "tok" {
			t.Errorf("unexpected user %+v", got)
		}
		if !got.ScoreUpdatedAt.Equal(now) {
			t.Errorf("score timestamp %v, want %v", got.ScoreUpdatedAt, now)
		}

		state := model.UserInQueue
		sc := 512.5
		ts := now.Add(time.Hour)
		tok := "new-tok"
		err = st.UpdateUser(ctx, "alice", corestore.UserFields{State: &state, Score: &sc, ScoreUpdatedAt: &ts, NotificationToken: &tok})
		if err != nil {
			t.Fatalf("UpdateUser: %v", err)
		}
		got, _ = st.GetUser(ctx, "alice")
		if got.State != state || got.Score != sc || !got.ScoreUpdatedAt.Equal(ts) || got.NotificationToken != tok {
			t.Errorf("merge not applied: %+v", got)
		}
		if got.PasswordHash != "hash" {
			t.Errorf("untouched field changed: %q", got.PasswordHash)
		}

		if err := st.DeleteUser(ctx, "alice"); err != nil {
			t.Fatalf("DeleteUser: %v", err)
		}
		if err := st.DeleteUser(ctx, "alice"); !errors.Is(err, model.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("location crud and queue", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		if err := st.CreateLocation(ctx, model.Location{ID: "Bad ID"}); !errors.Is(err, model.ErrInvalidIdentifier) {
			t.Errorf("expected ErrInvalidIdentifier, got %v", err)
		}
		if err := st.CreateLocation(ctx, model.Location{ID: "garage", ResetQueueDaily: true}); err != nil {
			t.Fatalf("CreateLocation: %v", err)
		}
		if err := st.CreateLocation(ctx, model.Location{ID: "garage"}); !errors.Is(err, model.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}
		if err := st.UpdateLocationQueue(ctx, "garage", []string{"a", "b"}); err != nil {
			t.Fatalf("UpdateLocationQueue: %v", err)
		}
		loc, err := st.GetLocation(ctx, "garage")
		if err != nil {
			t.Fatalf("GetLocation: %v", err)
		}
		if !loc.ResetQueueDaily || len(loc.Queue) != 2 || loc.Queue[0] != "a" || loc.Queue[1] != "b" {
			t.Errorf("unexpected location %+v", loc)
		}
		all, err := st.ListLocations(ctx)
		if err != nil {
			t.Fatalf("ListLocations: %v", err)
		}
		if len(all) != 1 {
			t.Errorf("expected 1 location, got %d", len(all))
		}
		if err := st.UpdateLocationQueue(ctx, "garage", nil); err != nil {
			t.Fatalf("clearing queue: %v", err)
		}
		loc, _ = st.GetLocation(ctx, "garage")
		if len(loc.Queue) != 0 {
			t.Errorf("queue not cleared: %v", loc.Queue)
		}
	})

	t.Run("charger crud", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		c := model.Charger{LocationID: "garage", ID: "c1", State: model.ChargerAvailable}
		if err := st.CreateCharger(ctx, c); !errors.Is(err, model.ErrNotFound) {
			t.Errorf("expected ErrNotFound for missing location, got %v", err)
		}
		if err := st.CreateLocation(ctx, model.Location{ID: "garage"}); err != nil {
			t.Fatalf("CreateLocation: %v", err)
		}
		if err := st.CreateCharger(ctx, c); err != nil {
			t.Fatalf("CreateCharger: %v", err)
		}
		if err := st.CreateCharger(ctx, c); !errors.Is(err, model.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}
		if err := st.CreateCharger(ctx, model.Charger{LocationID: "garage", ID: "c2", State: model.ChargerAvailable}); err != nil {
			t.Fatalf("CreateCharger(c2): %v", err)
		}

		list, err := st.ListChargers(ctx, "garage")
		if err != nil {
			t.Fatalf("ListChargers: %v", err)
		}
		if len(list) != 2 || list[0].ID != "c1" || list[1].ID != "c2" {
			t.Errorf("expected [c1 c2] in creation order, got %+v", list)
		}

		state := model.ChargerCharging
		sid := int64(7)
		if err := st.UpdateCharger(ctx, "garage", "c1", corestore.ChargerFields{State: &state, ActiveSession: &sid}); err != nil {
			t.Fatalf("UpdateCharger: %v", err)
		}
		got, err := st.GetCharger(ctx, "garage", "c1")
		if err != nil {
			t.Fatalf("GetCharger: %v", err)
		}
		if got.State != state || got.ActiveSession == nil || *got.ActiveSession != 7 {
			t.Errorf("merge not applied: %+v", got)
		}
		if err := st.UpdateCharger(ctx, "garage", "c1", corestore.ChargerFields{ClearActiveSession: true}); err != nil {
			t.Fatalf("clearing session: %v", err)
		}
		got, _ = st.GetCharger(ctx, "garage", "c1")
		if got.ActiveSession != nil {
			t.Errorf("active session not cleared: %v", *got.ActiveSession)
		}
		if got.State != state {
			t.Errorf("state changed by partial update: %s", got.State)
		}

		if err := st.DeleteCharger(ctx, "garage", "c1"); err != nil {
			t.Fatalf("DeleteCharger: %v", err)
		}
		if _, err := st.GetCharger(ctx, "garage", "c1"); !errors.Is(err, model.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("session crud", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		if err := st.CreateLocation(ctx, model.Location{ID: "garage"}); err != nil {
			t.Fatalf("CreateLocation: %v", err)
		}
		if err := st.CreateCharger(ctx, model.Charger{LocationID: "garage", ID: "c1", State: model.ChargerAvailable}); err != nil {
			t.Fatalf("CreateCharger: %v", err)
		}
		s := model.Session{LocationID: "garage", ChargerID: "c1", ID: 1, StartTime: now, Username: "alice"}
		if err := st.CreateSession(ctx, s); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
		if err := st.CreateSession(ctx, s); !errors.Is(err, model.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}
		end := now.Add(2 * time.Hour)
		if err := st.UpdateSession(ctx, "garage", "c1", 1, corestore.SessionFields{EndTime: &end}); err != nil {
			t.Fatalf("UpdateSession: %v", err)
		}
		if err := st.UpdateSession(ctx, "garage", "c1", 99, corestore.SessionFields{EndTime: &end}); !errors.Is(err, model.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		list, err := st.GetSessions(ctx, "garage", "c1")
		if err != nil {
			t.Fatalf("GetSessions: %v", err)
		}
		if len(list) != 1 {
			t.Fatalf("expected 1 session, got %d", len(list))
		}
		got := list[0]
		if got.Username != "alice" || !got.StartTime.Equal(now) {
			t.Errorf("unexpected session %+v", got)
		}
		if got.EndTime == nil || !got.EndTime.Equal(end) {
			t.Errorf("end time not persisted: %v", got.EndTime)
		}
	})

	t.Run("cascade deletes", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		if err := st.CreateLocation(ctx, model.Location{ID: "garage"}); err != nil {
			t.Fatalf("CreateLocation: %v", err)
		}
		if err := st.CreateCharger(ctx, model.Charger{LocationID: "garage", ID: "c1", State: model.ChargerAvailable}); err != nil {
			t.Fatalf("CreateCharger: %v", err)
		}
		s := model.Session{LocationID: "garage", ChargerID: "c1", ID: 1, StartTime: now, Username: "alice"}
		if err := st.CreateSession(ctx, s); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}

		if err := st.DeleteCharger(ctx, "garage", "c1"); err != nil {
			t.Fatalf("DeleteCharger: %v", err)
		}
		sessions, err := st.GetSessions(ctx, "garage", "c1")
		if err != nil {
			t.Fatalf("GetSessions: %v", err)
		}
		if len(sessions) != 0 {
			t.Errorf("sessions survived charger delete: %+v", sessions)
		}

		if err := st.DeleteLocation(ctx, "garage"); err != nil {
			t.Fatalf("DeleteLocation: %v", err)
		}
		if _, err := st.GetLocation(ctx, "garage"); !errors.Is(err, model.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}
