package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists sessions to SQLite.
// It is suitable for single-process production use: session state and run
// history survive process restarts, which is what makes GetRun work for
// runs started by an earlier process.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite session store.
// The path should be a file path (e.g., "./sessions.db") or ":memory:"
// for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS workflow_sessions (
			session_id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			workflow_name TEXT NOT NULL,
			user_id TEXT,
			session_state BLOB,
			runs BLOB,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_workflow_sessions_workflow_id
		ON workflow_sessions(workflow_id)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// UpsertSession implements Store.
func (s *SQLiteStore) UpsertSession(ctx context.Context, session *SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	stateBytes, err := json.Marshal(session.SessionState)
	if err != nil {
		return fmt.Errorf("serialize session state: %w", err)
	}
	runBytes, err := json.Marshal(session.Runs)
	if err != nil {
		return fmt.Errorf("serialize run history: %w", err)
	}

	createdAt := session.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_sessions
			(session_id, workflow_id, workflow_name, user_id, session_state, runs, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			workflow_id = excluded.workflow_id,
			workflow_name = excluded.workflow_name,
			user_id = excluded.user_id,
			session_state = excluded.session_state,
			runs = excluded.runs,
			updated_at = excluded.updated_at
	`, session.SessionID, session.WorkflowID, session.WorkflowName, session.UserID,
		stateBytes, runBytes,
		createdAt.Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano))

	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// ReadSession implements Store.
func (s *SQLiteStore) ReadSession(ctx context.Context, sessionID string) (*SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var (
		record     SessionRecord
		userID     sql.NullString
		stateBytes []byte
		runBytes   []byte
		createdAt  string
		updatedAt  string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, workflow_id, workflow_name, user_id, session_state, runs, created_at, updated_at
		FROM workflow_sessions
		WHERE session_id = ?
	`, sessionID).Scan(&record.SessionID, &record.WorkflowID, &record.WorkflowName,
		&userID, &stateBytes, &runBytes, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	record.UserID = userID.String
	if len(stateBytes) > 0 {
		if err := json.Unmarshal(stateBytes, &record.SessionState); err != nil {
			return nil, fmt.Errorf("deserialize session state: %w", err)
		}
	}
	if len(runBytes) > 0 {
		if err := json.Unmarshal(runBytes, &record.Runs); err != nil {
			return nil, fmt.Errorf("deserialize run history: %w", err)
		}
	}
	record.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	record.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

	return &record, nil
}

// DeleteSession implements Store.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM workflow_sessions WHERE session_id = ?
	`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
