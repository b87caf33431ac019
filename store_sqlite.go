package baikon

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements VariableStore and session history persistence
// using modernc.org/sqlite (pure Go).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Enable WAL mode for concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Init creates the schema tables.
func (s *SQLiteStore) Init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS variables (
		module     TEXT NOT NULL,
		name       TEXT NOT NULL,
		value      TEXT NOT NULL DEFAULT 'null',
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (module, name)
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT PRIMARY KEY,
		module     TEXT NOT NULL DEFAULT '',
		variables  TEXT NOT NULL DEFAULT '{}',
		saved_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS history (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		timestamp  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		type       TEXT NOT NULL,
		content    TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_session ON history(session_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveVariable upserts one persistent variable, JSON-encoded.
func (s *SQLiteStore) SaveVariable(module, name string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode variable %s: %w", name, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO variables (module, name, value, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(module, name) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		module, name, string(data))
	return err
}

// LoadVariables returns all stored variables for a module. A module with
// nothing stored yields an empty map.
func (s *SQLiteStore) LoadVariables(module string) (map[string]any, error) {
	rows, err := s.db.Query(`SELECT name, value FROM variables WHERE module = ?`, module)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vars := make(map[string]any)
	for rows.Next() {
		var name, raw string
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, err
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			// Older rows may hold plain text.
			value = raw
		}
		vars[name] = value
	}
	return vars, rows.Err()
}

// SaveSession upserts a session snapshot, replacing its transcript.
func (s *SQLiteStore) SaveSession(id string, snap *SessionSnapshot) error {
	vars, err := json.Marshal(snap.Variables)
	if err != nil {
		return fmt.Errorf("encode session variables: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO sessions (id, module, variables, saved_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			module = excluded.module,
			variables = excluded.variables,
			saved_at = excluded.saved_at`,
		id, snap.Module, string(vars), snap.Timestamp); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM history WHERE session_id = ?`, id); err != nil {
		return err
	}
	for _, h := range snap.History {
		if _, err := tx.Exec(`
			INSERT INTO history (session_id, timestamp, type, content)
			VALUES (?, ?, ?, ?)`,
			id, h.Timestamp, h.Type, h.Content); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadSession reads a saved session snapshot, or sql.ErrNoRows if none.
func (s *SQLiteStore) LoadSession(id string) (*SessionSnapshot, error) {
	var (
		module string
		raw    string
		saved  time.Time
	)
	err := s.db.QueryRow(`SELECT module, variables, saved_at FROM sessions WHERE id = ?`, id).
		Scan(&module, &raw, &saved)
	if err != nil {
		return nil, err
	}

	snap := &SessionSnapshot{Timestamp: saved, Module: module}
	if err := json.Unmarshal([]byte(raw), &snap.Variables); err != nil {
		return nil, fmt.Errorf("decode session variables: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT timestamp, type, content FROM history
		WHERE session_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.Timestamp, &h.Type, &h.Content); err != nil {
			return nil, err
		}
		snap.History = append(snap.History, h)
	}
	return snap, rows.Err()
}

// AppendHistory records one transcript line for a session.
func (s *SQLiteStore) AppendHistory(sessionID string, entry HistoryEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO history (session_id, timestamp, type, content)
		VALUES (?, ?, ?, ?)`,
		sessionID, entry.Timestamp, entry.Type, entry.Content)
	return err
}
