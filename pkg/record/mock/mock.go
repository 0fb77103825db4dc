// Package mock provides an in-memory test double for [record.Store].
//
// The mock records every method call for assertion in tests and exposes
// exported *Err fields that control failure injection. It is safe for
// concurrent use via an internal [sync.Mutex].
//
// Typical usage:
//
//	store := &mock.Store{}
//	// inject store into the system under test …
//	if got := store.CallCount("AppendChunk"); got != 1 {
//	    t.Errorf("expected 1 AppendChunk call, got %d", got)
//	}
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/agnij-dutta/attack-capital/pkg/record"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Store is a configurable in-memory implementation of [record.Store].
// The zero value is ready to use.
type Store struct {
	mu sync.Mutex

	calls    []Call
	sessions map[string]record.Session
	chunks   map[string][]record.Chunk

	// CreateSessionErr is returned by CreateSession when non-nil.
	CreateSessionErr error

	// UpdateStatusErr is returned by UpdateStatus when non-nil.
	UpdateStatusErr error

	// CompleteSessionErr is returned by CompleteSession when non-nil.
	CompleteSessionErr error

	// AppendChunkErr is returned by AppendChunk when non-nil.
	AppendChunkErr error

	// ListChunksErr is returned by ListChunks when non-nil.
	ListChunksErr error
}

// Compile-time interface check.
var _ record.Store = (*Store)(nil)

// Calls returns a copy of all recorded method invocations.
func (m *Store) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *Store) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears recorded calls but keeps stored sessions and chunks.
func (m *Store) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// record appends a call entry. Must be called with m.mu held.
func (m *Store) record(method string, args ...any) {
	m.calls = append(m.calls, Call{Method: method, Args: args})
}

// CreateSession implements [record.Store].
func (m *Store) CreateSession(_ context.Context, s record.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CreateSession", s)
	if m.CreateSessionErr != nil {
		return m.CreateSessionErr
	}
	if m.sessions == nil {
		m.sessions = make(map[string]record.Session)
	}
	if _, ok := m.sessions[s.ID]; ok {
		return record.ErrSessionExists
	}
	m.sessions[s.ID] = s
	return nil
}

// GetSession implements [record.Store].
func (m *Store) GetSession(_ context.Context, id string) (record.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("GetSession", id)
	s, ok := m.sessions[id]
	if !ok {
		return record.Session{}, record.ErrSessionNotFound
	}
	return s, nil
}

// UpdateStatus implements [record.Store].
func (m *Store) UpdateStatus(_ context.Context, id string, status record.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("UpdateStatus", id, status)
	if m.UpdateStatusErr != nil {
		return m.UpdateStatusErr
	}
	s, ok := m.sessions[id]
	if !ok {
		return record.ErrSessionNotFound
	}
	s.Status = status
	m.sessions[id] = s
	return nil
}

// CompleteSession implements [record.Store].
func (m *Store) CompleteSession(_ context.Context, id, transcript, summary string, duration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CompleteSession", id, transcript, summary, duration)
	if m.CompleteSessionErr != nil {
		return m.CompleteSessionErr
	}
	s, ok := m.sessions[id]
	if !ok {
		return record.ErrSessionNotFound
	}
	s.Status = record.StatusCompleted
	s.TranscriptText = transcript
	s.Summary = summary
	s.Duration = duration
	m.sessions[id] = s
	return nil
}

// AppendChunk implements [record.Store].
func (m *Store) AppendChunk(_ context.Context, c record.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("AppendChunk", c)
	if m.AppendChunkErr != nil {
		return m.AppendChunkErr
	}
	if m.chunks == nil {
		m.chunks = make(map[string][]record.Chunk)
	}
	m.chunks[c.SessionID] = append(m.chunks[c.SessionID], c)
	return nil
}

// ListChunks implements [record.Store].
func (m *Store) ListChunks(_ context.Context, sessionID string) ([]record.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ListChunks", sessionID)
	if m.ListChunksErr != nil {
		return nil, m.ListChunksErr
	}
	out := make([]record.Chunk, len(m.chunks[sessionID]))
	copy(out, m.chunks[sessionID])
	return out, nil
}

// CountChunks implements [record.Store].
func (m *Store) CountChunks(_ context.Context, sessionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CountChunks", sessionID)
	return len(m.chunks[sessionID]), nil
}

// LastChunks implements [record.Store].
func (m *Store) LastChunks(_ context.Context, sessionID string, n int) ([]record.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("LastChunks", sessionID, n)
	all := m.chunks[sessionID]
	if len(all) > n {
		all = all[len(all)-n:]
	}
	out := make([]record.Chunk, len(all))
	copy(out, all)
	return out, nil
}
