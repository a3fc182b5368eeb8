package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chargeq/chargeq/core/model"
	corestore "github.com/chargeq/chargeq/core/store"
)

// SQLiteStore persists records to a SQLite database. Field merges are single
// UPDATE statements, so every mutation is atomic per record.
type SQLiteStore struct {
	db *sql.DB
}

var _ corestore.Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; serialize access through one connection.
	db.SetMaxOpenConns(1)
	schema := []string{
		`CREATE TABLE IF NOT EXISTS users (
            username TEXT PRIMARY KEY,
            password_hash TEXT NOT NULL DEFAULT '',
            role TEXT NOT NULL DEFAULT 'user',
            notification_token TEXT NOT NULL DEFAULT '',
            state TEXT NOT NULL DEFAULT 'inactive',
            score REAL NOT NULL DEFAULT 500,
            score_updated_at INTEGER NOT NULL DEFAULT 0
        )`,
		`CREATE TABLE IF NOT EXISTS locations (
            id TEXT PRIMARY KEY,
            reset_queue_daily INTEGER NOT NULL DEFAULT 0,
            queue TEXT NOT NULL DEFAULT '[]'
        )`,
		`CREATE TABLE IF NOT EXISTS chargers (
            seq INTEGER PRIMARY KEY AUTOINCREMENT,
            location_id TEXT NOT NULL,
            id TEXT NOT NULL,
            state TEXT NOT NULL DEFAULT 'available',
            active_session INTEGER,
            UNIQUE (location_id, id)
        )`,
		`CREATE TABLE IF NOT EXISTS sessions (
            location_id TEXT NOT NULL,
            charger_id TEXT NOT NULL,
            id INTEGER NOT NULL,
            start_time INTEGER NOT NULL,
            end_time INTEGER,
            username TEXT NOT NULL,
            PRIMARY KEY (location_id, charger_id, id)
        )`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			if cerr := db.Close(); cerr != nil {
				return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
			}
			return nil, err
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) GetUser(ctx context.Context, username string) (model.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT username, password_hash, role, notification_token, state, score, score_updated_at
         FROM users WHERE username = ?`, username)
	var u model.User
	var role, state string
	var updated int64
	err := row.Scan(&u.Username, &u.PasswordHash, &role, &u.NotificationToken, &state, &u.Score, &updated)
	if err == sql.ErrNoRows {
		return model.User{}, fmt.Errorf("user %s: %w", username, model.ErrNotFound)
	}
	if err != nil {
		return model.User{}, err
	}
	u.Role = model.Role(role)
	u.State = model.UserState(state)
	u.ScoreUpdatedAt = time.Unix(0, updated)
	return u, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, u model.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, role, notification_token, state, score, score_updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.Username, u.PasswordHash, string(u.Role), u.NotificationToken, string(u.State), u.Score, u.ScoreUpdatedAt.UnixNano())
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return fmt.Errorf("user %s: %w", u.Username, model.ErrAlreadyExists)
	}
	return err
}

func (s *SQLiteStore) UpdateUser(ctx context.Context, username string, f corestore.UserFields) error {
	var sets []string
	var args []any
	if f.State != nil {
		sets, args = append(sets, "state = ?"), append(args, string(*f.State))
	}
	if f.Score != nil {
		sets, args = append(sets, "score = ?"), append(args, *f.Score)
	}
	if f.ScoreUpdatedAt != nil {
		sets, args = append(sets, "score_updated_at = ?"), append(args, f.ScoreUpdatedAt.UnixNano())
	}
	if f.NotificationToken != nil {
		sets, args = append(sets, "notification_token = ?"), append(args, *f.NotificationToken)
	}
	if f.PasswordHash != nil {
		sets, args = append(sets, "password_hash = ?"), append(args, *f.PasswordHash)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, username)
	res, err := s.db.ExecContext(ctx, "UPDATE users SET "+strings.Join(sets, ", ")+" WHERE username = ?", args...)
	if err != nil {
		return err
	}
	return requireRow(res, fmt.Sprintf("user %s", username))
}

func (s *SQLiteStore) DeleteUser(ctx context.Context, username string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE username = ?", username)
	if err != nil {
		return err
	}
	return requireRow(res, fmt.Sprintf("user %s", username))
}

func (s *SQLiteStore) GetLocation(ctx context.Context, id string) (model.Location, error) {
	row := s.db.QueryRowContext(ctx, "SELECT id, reset_queue_daily, queue FROM locations WHERE id = ?", id)
	var l model.Location
	var reset int
	var queueJSON string
	err := row.Scan(&l.ID, &reset, &queueJSON)
	if err == sql.ErrNoRows {
		return model.Location{}, fmt.Errorf("location %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.Location{}, err
	}
	l.ResetQueueDaily = reset != 0
	if err := json.Unmarshal([]byte(queueJSON), &l.Queue); err != nil {
		return model.Location{}, fmt.Errorf("decoding queue for %s: %w", id, err)
	}
	return l, nil
}

func (s *SQLiteStore) ListLocations(ctx context.Context) ([]model.Location, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, reset_queue_daily, queue FROM locations ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.Location
	for rows.Next() {
		var l model.Location
		var reset int
		var queueJSON string
		if err := rows.Scan(&l.ID, &reset, &queueJSON); err != nil {
			return nil, err
		}
		l.ResetQueueDaily = reset != 0
		if err := json.Unmarshal([]byte(queueJSON), &l.Queue); err != nil {
			return nil, fmt.Errorf("decoding queue for %s: %w", l.ID, err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreateLocation(ctx context.Context, l model.Location) error {
	if err := model.ValidateIdentifier(l.ID); err != nil {
		return err
	}
	queueJSON, err := json.Marshal(l.Queue)
	if err != nil {
		return err
	}
	if l.Queue == nil {
		queueJSON = []byte("[]")
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO locations (id, reset_queue_daily, queue) VALUES (?, ?, ?)",
		l.ID, boolInt(l.ResetQueueDaily), string(queueJSON))
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return fmt.Errorf("location %s: %w", l.ID, model.ErrAlreadyExists)
	}
	return err
}

func (s *SQLiteStore) DeleteLocation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	res, err := tx.ExecContext(ctx, "DELETE FROM locations WHERE id = ?", id)
	if err != nil {
		return err
	}
	if err := requireRow(res, fmt.Sprintf("location %s", id)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chargers WHERE location_id = ?", id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE location_id = ?", id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) UpdateLocationQueue(ctx context.Context, id string, queue []string) error {
	if queue == nil {
		queue = []string{}
	}
	queueJSON, err := json.Marshal(queue)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, "UPDATE locations SET queue = ? WHERE id = ?", string(queueJSON), id)
	if err != nil {
		return err
	}
	return requireRow(res, fmt.Sprintf("location %s", id))
}

func (s *SQLiteStore) GetCharger(ctx context.Context, locationID, chargerID string) (model.Charger, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT location_id, id, state, active_session FROM chargers WHERE location_id = ? AND id = ?",
		locationID, chargerID)
	c, err := scanCharger(row.Scan)
	if err == sql.ErrNoRows {
		return model.Charger{}, fmt.Errorf("charger %s:%s: %w", locationID, chargerID, model.ErrNotFound)
	}
	return c, err
}

func (s *SQLiteStore) ListChargers(ctx context.Context, locationID string) ([]model.Charger, error) {
	if _, err := s.GetLocation(ctx, locationID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT location_id, id, state, active_session FROM chargers WHERE location_id = ? ORDER BY seq",
		locationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.Charger
	for rows.Next() {
		c, err := scanCharger(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCharger(scan func(dest ...any) error) (model.Charger, error) {
	var c model.Charger
	var state string
	var active sql.NullInt64
	if err := scan(&c.LocationID, &c.ID, &state, &active); err != nil {
		return model.Charger{}, err
	}
	c.State = model.ChargerState(state)
	if active.Valid {
		id := active.Int64
		c.ActiveSession = &id
	}
	return c, nil
}

func (s *SQLiteStore) CreateCharger(ctx context.Context, c model.Charger) error {
	if err := model.ValidateIdentifier(c.ID); err != nil {
		return err
	}
	if _, err := s.GetLocation(ctx, c.LocationID); err != nil {
		return err
	}
	var active any
	if c.ActiveSession != nil {
		active = *c.ActiveSession
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO chargers (location_id, id, state, active_session) VALUES (?, ?, ?, ?)",
		c.LocationID, c.ID, string(c.State), active)
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return fmt.Errorf("charger %s:%s: %w", c.LocationID, c.ID, model.ErrAlreadyExists)
	}
	return err
}

func (s *SQLiteStore) DeleteCharger(ctx context.Context, locationID, chargerID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	res, err := tx.ExecContext(ctx, "DELETE FROM chargers WHERE location_id = ? AND id = ?", locationID, chargerID)
	if err != nil {
		return err
	}
	if err := requireRow(res, fmt.Sprintf("charger %s:%s", locationID, chargerID)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE location_id = ? AND charger_id = ?", locationID, chargerID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) UpdateCharger(ctx context.Context, locationID, chargerID string, f corestore.ChargerFields) error {
	var sets []string
	var args []any
	if f.State != nil {
		sets, args = append(sets, "state = ?"), append(args, string(*f.State))
	}
	switch {
	case f.ClearActiveSession:
		sets = append(sets, "active_session = NULL")
	case f.ActiveSession != nil:
		sets, args = append(sets, "active_session = ?"), append(args, *f.ActiveSession)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, locationID, chargerID)
	res, err := s.db.ExecContext(ctx,
		"UPDATE chargers SET "+strings.Join(sets, ", ")+" WHERE location_id = ? AND id = ?", args...)
	if err != nil {
		return err
	}
	return requireRow(res, fmt.Sprintf("charger %s:%s", locationID, chargerID))
}

func (s *SQLiteStore) CreateSession(ctx context.Context, sess model.Session) error {
	var end any
	if sess.EndTime != nil {
		end = sess.EndTime.UnixNano()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (location_id, charger_id, id, start_time, end_time, username)
         VALUES (?, ?, ?, ?, ?, ?)`,
		sess.LocationID, sess.ChargerID, sess.ID, sess.StartTime.UnixNano(), end, sess.Username)
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return fmt.Errorf("session %d at %s:%s: %w", sess.ID, sess.LocationID, sess.ChargerID, model.ErrAlreadyExists)
	}
	return err
}

func (s *SQLiteStore) GetSessions(ctx context.Context, locationID, chargerID string) ([]model.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT location_id, charger_id, id, start_time, end_time, username
         FROM sessions WHERE location_id = ? AND charger_id = ? ORDER BY id`,
		locationID, chargerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.Session
	for rows.Next() {
		var sess model.Session
		var start int64
		var end sql.NullInt64
		if err := rows.Scan(&sess.LocationID, &sess.ChargerID, &sess.ID, &start, &end, &sess.Username); err != nil {
			return nil, err
		}
		sess.StartTime = time.Unix(0, start)
		if end.Valid {
			t := time.Unix(0, end.Int64)
			sess.EndTime = &t
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateSession(ctx context.Context, locationID, chargerID string, sessionID int64, f corestore.SessionFields) error {
	if f.EndTime == nil {
		return nil
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET end_time = ? WHERE location_id = ? AND charger_id = ? AND id = ?",
		f.EndTime.UnixNano(), locationID, chargerID, sessionID)
	if err != nil {
		return err
	}
	return requireRow(res, fmt.Sprintf("session %d at %s:%s", sessionID, locationID, chargerID))
}

func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
