// Package store provides persistence gateway implementations: an in-memory
// store for tests and single-process deployments, and a SQLite store for
// durable single-node deployments.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/chargeq/chargeq/core/model"
	corestore "github.com/chargeq/chargeq/core/store"
)

// MemoryStore keeps all records in process memory guarded by one RWMutex.
// Values are copied on the way in and out so callers never share state with
// the store.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]model.User
	locations map[string]model.Location
	chargers  map[string][]model.Charger // per location, creation order
	sessions  map[string][]model.Session // per location/charger
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]model.User),
		locations: make(map[string]model.Location),
		chargers:  make(map[string][]model.Charger),
		sessions:  make(map[string][]model.Session),
	}
}

var _ corestore.Store = (*MemoryStore)(nil)

func chargerKey(locationID, chargerID string) string { return locationID + "/" + chargerID }

func copyCharger(c model.Charger) model.Charger {
	if c.ActiveSession != nil {
		id := *c.ActiveSession
		c.ActiveSession = &id
	}
	return c
}

func copySession(s model.Session) model.Session {
	if s.EndTime != nil {
		t := *s.EndTime
		s.EndTime = &t
	}
	return s
}

func copyLocation(l model.Location) model.Location {
	l.Queue = append([]string(nil), l.Queue...)
	return l
}

func (m *MemoryStore) GetUser(ctx context.Context, username string) (model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[username]
	if !ok {
		return model.User{}, fmt.Errorf("user %s: %w", username, model.ErrNotFound)
	}
	return u, nil
}

func (m *MemoryStore) CreateUser(ctx context.Context, u model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.Username]; ok {
		return fmt.Errorf("user %s: %w", u.Username, model.ErrAlreadyExists)
	}
	m.users[u.Username] = u
	return nil
}

func (m *MemoryStore) UpdateUser(ctx context.Context, username string, f corestore.UserFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return fmt.Errorf("user %s: %w", username, model.ErrNotFound)
	}
	if f.State != nil {
		u.State = *f.State
	}
	if f.Score != nil {
		u.Score = *f.Score
	}
	if f.ScoreUpdatedAt != nil {
		u.ScoreUpdatedAt = *f.ScoreUpdatedAt
	}
	if f.NotificationToken != nil {
		u.NotificationToken = *f.NotificationToken
	}
	if f.PasswordHash != nil {
		u.PasswordHash = *f.PasswordHash
	}
	m.users[username] = u
	return nil
}

func (m *MemoryStore) DeleteUser(ctx context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[username]; !ok {
		return fmt.Errorf("user %s: %w", username, model.ErrNotFound)
	}
	delete(m.users, username)
	return nil
}

func (m *MemoryStore) GetLocation(ctx context.Context, id string) (model.Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.locations[id]
	if !ok {
		return model.Location{}, fmt.Errorf("location %s: %w", id, model.ErrNotFound)
	}
	return copyLocation(l), nil
}

func (m *MemoryStore) ListLocations(ctx context.Context) ([]model.Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Location, 0, len(m.locations))
	for _, l := range m.locations {
		out = append(out, copyLocation(l))
	}
	return out, nil
}

func (m *MemoryStore) CreateLocation(ctx context.Context, l model.Location) error {
	if err := model.ValidateIdentifier(l.ID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.locations[l.ID]; ok {
		return fmt.Errorf("location %s: %w", l.ID, model.ErrAlreadyExists)
	}
	m.locations[l.ID] = copyLocation(l)
	return nil
}

func (m *MemoryStore) DeleteLocation(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.locations[id]; !ok {
		return fmt.Errorf("location %s: %w", id, model.ErrNotFound)
	}
	for _, c := range m.chargers[id] {
		delete(m.sessions, chargerKey(id, c.ID))
	}
	delete(m.chargers, id)
	delete(m.locations, id)
	return nil
}

func (m *MemoryStore) UpdateLocationQueue(ctx context.Context, id string, queue []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locations[id]
	if !ok {
		return fmt.Errorf("location %s: %w", id, model.ErrNotFound)
	}
	l.Queue = append([]string(nil), queue...)
	m.locations[id] = l
	return nil
}

func (m *MemoryStore) GetCharger(ctx context.Context, locationID, chargerID string) (model.Charger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.chargers[locationID] {
		if c.ID == chargerID {
			return copyCharger(c), nil
		}
	}
	return model.Charger{}, fmt.Errorf("charger %s:%s: %w", locationID, chargerID, model.ErrNotFound)
}

func (m *MemoryStore) ListChargers(ctx context.Context, locationID string) ([]model.Charger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.locations[locationID]; !ok {
		return nil, fmt.Errorf("location %s: %w", locationID, model.ErrNotFound)
	}
	out := make([]model.Charger, 0, len(m.chargers[locationID]))
	for _, c := range m.chargers[locationID] {
		out = append(out, copyCharger(c))
	}
	return out, nil
}

func (m *MemoryStore) CreateCharger(ctx context.Context, c model.Charger) error {
	if err := model.ValidateIdentifier(c.ID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.locations[c.LocationID]; !ok {
		return fmt.Errorf("location %s: %w", c.LocationID, model.ErrNotFound)
	}
	for _, existing := range m.chargers[c.LocationID] {
		if existing.ID == c.ID {
			return fmt.Errorf("charger %s:%s: %w", c.LocationID, c.ID, model.ErrAlreadyExists)
		}
	}
	m.chargers[c.LocationID] = append(m.chargers[c.LocationID], copyCharger(c))
	return nil
}

func (m *MemoryStore) DeleteCharger(ctx context.Context, locationID, chargerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.chargers[locationID]
	for i, c := range list {
		if c.ID == chargerID {
			m.chargers[locationID] = append(list[:i], list[i+1:]...)
			delete(m.sessions, chargerKey(locationID, chargerID))
			return nil
		}
	}
	return fmt.Errorf("charger %s:%s: %w", locationID, chargerID, model.ErrNotFound)
}

func (m *MemoryStore) UpdateCharger(ctx context.Context, locationID, chargerID string, f corestore.ChargerFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.chargers[locationID]
	for i, c := range list {
		if c.ID != chargerID {
			continue
		}
		if f.State != nil {
			c.State = *f.State
		}
		switch {
		case f.ClearActiveSession:
			c.ActiveSession = nil
		case f.ActiveSession != nil:
			id := *f.ActiveSession
			c.ActiveSession = &id
		}
		list[i] = c
		return nil
	}
	return fmt.Errorf("charger %s:%s: %w", locationID, chargerID, model.ErrNotFound)
}

func (m *MemoryStore) CreateSession(ctx context.Context, s model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := chargerKey(s.LocationID, s.ChargerID)
	for _, existing := range m.sessions[key] {
		if existing.ID == s.ID {
			return fmt.Errorf("session %d at %s: %w", s.ID, key, model.ErrAlreadyExists)
		}
	}
	m.sessions[key] = append(m.sessions[key], copySession(s))
	return nil
}

func (m *MemoryStore) GetSessions(ctx context.Context, locationID, chargerID string) ([]model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.sessions[chargerKey(locationID, chargerID)]
	out := make([]model.Session, 0, len(list))
	for _, s := range list {
		out = append(out, copySession(s))
	}
	return out, nil
}

func (m *MemoryStore) UpdateSession(ctx context.Context, locationID, chargerID string, sessionID int64, f corestore.SessionFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := chargerKey(locationID, chargerID)
	list := m.sessions[key]
	for i, s := range list {
		if s.ID != sessionID {
			continue
		}
		if f.EndTime != nil {
			t := *f.EndTime
			s.EndTime = &t
		}
		list[i] = s
		return nil
	}
	return fmt.Errorf("session %d at %s: %w", sessionID, key, model.ErrNotFound)
}
