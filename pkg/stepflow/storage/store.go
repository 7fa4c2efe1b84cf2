// Package storage provides persistent session and run-history storage for
// workflows.
//
// The engine reads and writes sessions at run boundaries only, never
// per-step: a session record is loaded before a run starts (to restore the
// session state map) and upserted after the run reaches a terminal status
// (to persist the updated state and append the run to the history).
package storage

import (
	"context"
	"errors"
	"time"
)

// Store persists workflow sessions.
// Implementations must be safe for concurrent use.
type Store interface {
	// UpsertSession stores a session record, overwriting any existing
	// record with the same session ID.
	UpsertSession(ctx context.Context, session *SessionRecord) error

	// ReadSession retrieves a session record.
	// Returns ErrNotFound if the session doesn't exist.
	ReadSession(ctx context.Context, sessionID string) (*SessionRecord, error)

	// DeleteSession removes a session and its run history.
	// Returns nil if the session doesn't exist.
	DeleteSession(ctx context.Context, sessionID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// SessionRecord is the persisted state of one workflow session: the
// session-scoped state map plus the history of runs executed under it.
type SessionRecord struct {
	SessionID    string         `json:"session_id"`
	WorkflowID   string         `json:"workflow_id"`
	WorkflowName string         `json:"workflow_name"`
	UserID       string         `json:"user_id,omitempty"`
	SessionState map[string]any `json:"session_state,omitempty"`
	Runs         []RunRecord    `json:"runs,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// RunRecord is one run in a session's history.
type RunRecord struct {
	RunID       string    `json:"run_id"`
	Status      string    `json:"status"`
	Content     string    `json:"content,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// Run returns the run record with the given ID, or nil if absent.
func (s *SessionRecord) Run(runID string) *RunRecord {
	for i := range s.Runs {
		if s.Runs[i].RunID == runID {
			return &s.Runs[i]
		}
	}
	return nil
}

// UpsertRun appends the run to the history, replacing an existing record
// with the same run ID.
func (s *SessionRecord) UpsertRun(run RunRecord) {
	for i := range s.Runs {
		if s.Runs[i].RunID == run.RunID {
			s.Runs[i] = run
			return
		}
	}
	s.Runs = append(s.Runs, run)
}

// Sentinel errors for storage operations.
var (
	// ErrNotFound indicates a session doesn't exist.
	ErrNotFound = errors.New("session not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("session store closed")
)
