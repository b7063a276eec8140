// Package store persists session lifecycle records, conversation messages,
// and exec history. Persistence is advisory: the engine is correct without
// it, and callers treat failures as warnings.
package store

import (
	"context"
	"time"
)

// SessionRecord is one persisted session lifecycle row.
type SessionRecord struct {
	ID         string     `json:"id"`
	Preset     string     `json:"preset"`
	Command    string     `json:"command,omitempty"`
	FinalState string     `json:"final_state,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

// MessageRecord is one persisted conversation message.
type MessageRecord struct {
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ExecRecord is one persisted exec invocation.
type ExecRecord struct {
	SessionID  string    `json:"session_id"`
	Command    string    `json:"command"`
	Severity   string    `json:"severity"`
	DurationMs int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// Repository is the persistence contract the manager and API consume.
type Repository interface {
	Ping(ctx context.Context) error

	RecordSessionCreated(id, preset, command string, createdAt time.Time) error
	RecordSessionEnded(id string, state string, endedAt time.Time) error
	RecordMessage(sessionID, role, content string, ts time.Time) error
	RecordExec(sessionID, command string, severity string, durationMs int64, ts time.Time) error

	GetSession(ctx context.Context, id string) (*SessionRecord, error)
	ListSessions(ctx context.Context, limit int) ([]SessionRecord, error)
	ListMessages(ctx context.Context, sessionID string, limit int) ([]MessageRecord, error)
	ListExecs(ctx context.Context, sessionID string, limit int) ([]ExecRecord, error)

	Close() error
}
