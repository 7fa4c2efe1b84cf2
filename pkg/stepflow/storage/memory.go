package storage

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore is an in-memory session store for testing and
// single-process use. Data is lost when the process exits.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte // sessionID -> serialized record
	closed   bool
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]byte),
	}
}

// UpsertSession implements Store.
// Records are stored serialized so callers can't mutate stored state
// through retained references.
func (m *MemoryStore) UpsertSession(_ context.Context, session *SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	m.sessions[session.SessionID] = data
	return nil
}

// ReadSession implements Store.
func (m *MemoryStore) ReadSession(_ context.Context, sessionID string) (*SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	data, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}

	var record SessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// DeleteSession implements Store.
func (m *MemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	delete(m.sessions, sessionID)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.sessions = nil
	return nil
}
