package baikon

import (
	"encoding/json"
	"os"
	"time"
)

// VariableStore persists variables declared persistent in a module. The
// engine treats the store as an optional collaborator: stored values load
// into fresh contexts over declaration defaults, and assignments to
// persistent variables write through immediately.
type VariableStore interface {
	SaveVariable(module, name string, value any) error
	LoadVariables(module string) (map[string]any, error)
}

// HistoryEntry is one line of a conversation transcript.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"` // "user" or "bot"
	Content   string    `json:"content"`
}

// SessionSnapshot is the saved form of one session: its variables and
// transcript at a point in time.
type SessionSnapshot struct {
	Timestamp time.Time      `json:"timestamp"`
	Module    string         `json:"module"`
	Variables map[string]any `json:"variables"`
	History   []HistoryEntry `json:"history"`
}

// SaveSessionFile writes a snapshot as indented JSON.
func SaveSessionFile(path string, snap *SessionSnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadSessionFile reads a snapshot written by SaveSessionFile.
func LoadSessionFile(path string) (*SessionSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap SessionSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
