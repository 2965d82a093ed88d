// Package store persists per-session connection profiles in sqlite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrStorage marks any failure of the underlying database so callers
// can tell persistence problems apart from bad input or remote errors.
var ErrStorage = errors.New("storage failure")

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA busy_timeout = 5000;

CREATE TABLE IF NOT EXISTS profiles (
    session_id         TEXT PRIMARY KEY,
    employee_id        TEXT NOT NULL,
    name               TEXT NOT NULL DEFAULT '',
    tracker_url        TEXT NOT NULL,
    api_key            TEXT NOT NULL,
    default_project_id TEXT NOT NULL DEFAULT '',
    created_at         TEXT NOT NULL,
    updated_at         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_profiles_employee ON profiles (employee_id);
`

// Profile is one user's tracker connection settings, keyed by the chat
// session id. DefaultProjectID is empty when the user skipped it.
type Profile struct {
	SessionID        string
	EmployeeID       string
	Name             string
	TrackerURL       string
	APIKey           string
	DefaultProjectID string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the profile database at dbPath.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create db dir: %v", ErrStorage, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open db: %v", ErrStorage, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: init schema: %v", ErrStorage, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const timeLayout = "2006-01-02T15:04:05Z"

// Upsert inserts the profile or fully overwrites the existing row for
// the same session id, refreshing updated_at. The single statement
// keeps concurrent upserts for one session atomic.
func (s *Store) Upsert(p *Profile) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		INSERT INTO profiles
		    (session_id, employee_id, name, tracker_url, api_key, default_project_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
		    employee_id        = excluded.employee_id,
		    name               = excluded.name,
		    tracker_url        = excluded.tracker_url,
		    api_key            = excluded.api_key,
		    default_project_id = excluded.default_project_id,
		    updated_at         = excluded.updated_at`,
		p.SessionID, p.EmployeeID, p.Name, p.TrackerURL, p.APIKey, p.DefaultProjectID,
		now.Format(timeLayout), now.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("%w: upsert profile: %v", ErrStorage, err)
	}
	return nil
}

// GetBySessionID returns the profile for the session, or (nil, nil)
// when none exists.
func (s *Store) GetBySessionID(sessionID string) (*Profile, error) {
	return s.getOne("session_id", sessionID)
}

// GetByEmployeeID returns the profile for the employee, or (nil, nil)
// when none exists.
func (s *Store) GetByEmployeeID(employeeID string) (*Profile, error) {
	return s.getOne("employee_id", employeeID)
}

func (s *Store) getOne(column, value string) (*Profile, error) {
	var p Profile
	var created, updated string
	err := s.db.QueryRow(fmt.Sprintf(`
		SELECT session_id, employee_id, name, tracker_url, api_key, default_project_id, created_at, updated_at
		FROM profiles WHERE %s = ?`, column), value,
	).Scan(&p.SessionID, &p.EmployeeID, &p.Name, &p.TrackerURL, &p.APIKey, &p.DefaultProjectID, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get profile by %s: %v", ErrStorage, column, err)
	}
	p.CreatedAt, _ = time.Parse(timeLayout, created)
	p.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return &p, nil
}

// All returns every stored profile, oldest first.
func (s *Store) All() ([]*Profile, error) {
	rows, err := s.db.Query(`
		SELECT session_id, employee_id, name, tracker_url, api_key, default_project_id, created_at, updated_at
		FROM profiles ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("%w: list profiles: %v", ErrStorage, err)
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		var p Profile
		var created, updated string
		if err := rows.Scan(&p.SessionID, &p.EmployeeID, &p.Name, &p.TrackerURL, &p.APIKey, &p.DefaultProjectID, &created, &updated); err != nil {
			return nil, fmt.Errorf("%w: scan profile: %v", ErrStorage, err)
		}
		p.CreatedAt, _ = time.Parse(timeLayout, created)
		p.UpdatedAt, _ = time.Parse(timeLayout, updated)
		profiles = append(profiles, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list profiles: %v", ErrStorage, err)
	}
	return profiles, nil
}

// Delete removes the profile for the session. Deleting a missing
// profile is not an error.
func (s *Store) Delete(sessionID string) error {
	if _, err := s.db.Exec("DELETE FROM profiles WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("%w: delete profile: %v", ErrStorage, err)
	}
	return nil
}
