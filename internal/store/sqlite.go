package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode for better concurrency between the manager and read paths.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		preset TEXT NOT NULL,
		command TEXT,
		final_state TEXT,
		created_at INTEGER NOT NULL,
		ended_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, timestamp);

	CREATE TABLE IF NOT EXISTS exec_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		command TEXT NOT NULL,
		severity TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_exec_session ON exec_history(session_id, timestamp);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RecordSessionCreated inserts a session lifecycle row.
func (s *SQLiteStore) RecordSessionCreated(id, preset, command string, createdAt time.Time) error {
	return s.withBusyRetry(func() error {
		_, err := s.db.Exec(
			`INSERT OR REPLACE INTO sessions (id, preset, command, created_at) VALUES (?, ?, ?, ?)`,
			id, preset, command, createdAt.UnixMilli(),
		)
		return err
	})
}

// RecordSessionEnded stamps a session's final state and end time.
func (s *SQLiteStore) RecordSessionEnded(id string, state string, endedAt time.Time) error {
	return s.withBusyRetry(func() error {
		_, err := s.db.Exec(
			`UPDATE sessions SET final_state = ?, ended_at = ? WHERE id = ?`,
			state, endedAt.UnixMilli(), id,
		)
		return err
	})
}

// RecordMessage appends a conversation message.
func (s *SQLiteStore) RecordMessage(sessionID, role, content string, ts time.Time) error {
	return s.withBusyRetry(func() error {
		_, err := s.db.Exec(
			`INSERT INTO messages (session_id, role, content, timestamp) VALUES (?, ?, ?, ?)`,
			sessionID, role, content, ts.UnixMilli(),
		)
		return err
	})
}

// RecordExec appends an exec history row.
func (s *SQLiteStore) RecordExec(sessionID, command string, severity string, durationMs int64, ts time.Time) error {
	return s.withBusyRetry(func() error {
		_, err := s.db.Exec(
			`INSERT INTO exec_history (session_id, command, severity, duration_ms, timestamp) VALUES (?, ?, ?, ?, ?)`,
			sessionID, command, severity, durationMs, ts.UnixMilli(),
		)
		return err
	})
}

// GetSession retrieves a session row; nil when not found.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, preset, command, final_state, created_at, ended_at FROM sessions WHERE id = ?`, id)

	var rec SessionRecord
	var command, finalState sql.NullString
	var createdAt int64
	var endedAt sql.NullInt64
	err := row.Scan(&rec.ID, &rec.Preset, &command, &finalState, &createdAt, &endedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	rec.Command = command.String
	rec.FinalState = finalState.String
	rec.CreatedAt = time.UnixMilli(createdAt)
	if endedAt.Valid {
		t := time.UnixMilli(endedAt.Int64)
		rec.EndedAt = &t
	}
	return &rec, nil
}

// ListSessions returns the most recent sessions, newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, preset, command, final_state, created_at, ended_at
		 FROM sessions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var command, finalState sql.NullString
		var createdAt int64
		var endedAt sql.NullInt64
		if err := rows.Scan(&rec.ID, &rec.Preset, &command, &finalState, &createdAt, &endedAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		rec.Command = command.String
		rec.FinalState = finalState.String
		rec.CreatedAt = time.UnixMilli(createdAt)
		if endedAt.Valid {
			t := time.UnixMilli(endedAt.Int64)
			rec.EndedAt = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListMessages returns a session's messages in chronological order.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string, limit int) ([]MessageRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, role, content, timestamp
		 FROM messages WHERE session_id = ? ORDER BY timestamp ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []MessageRecord
	for rows.Next() {
		var rec MessageRecord
		var ts int64
		if err := rows.Scan(&rec.SessionID, &rec.Role, &rec.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		rec.Timestamp = time.UnixMilli(ts)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListExecs returns a session's exec history in chronological order.
func (s *SQLiteStore) ListExecs(ctx context.Context, sessionID string, limit int) ([]ExecRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, command, severity, duration_ms, timestamp
		 FROM exec_history WHERE session_id = ? ORDER BY timestamp ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query exec history: %w", err)
	}
	defer rows.Close()

	var out []ExecRecord
	for rows.Next() {
		var rec ExecRecord
		var ts int64
		if err := rows.Scan(&rec.SessionID, &rec.Command, &rec.Severity, &rec.DurationMs, &ts); err != nil {
			return nil, fmt.Errorf("scan exec row: %w", err)
		}
		rec.Timestamp = time.UnixMilli(ts)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// withBusyRetry retries a write on SQLITE_BUSY with exponential backoff.
func (s *SQLiteStore) withBusyRetry(fn func() error) error {
	const maxRetries = 3
	delay := 50 * time.Millisecond
	var err error
	for i := 0; i < maxRetries; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return err
		}
		time.Sleep(delay)
		delay *= 2
	}
	return err
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
