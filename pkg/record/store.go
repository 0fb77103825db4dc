package record

import (
	"context"
	"errors"
	"time"
)

// ErrSessionExists is returned by [Store.CreateSession] when the session ID
// is already taken.
var ErrSessionExists = errors.New("record: session already exists")

// ErrSessionNotFound is returned when the named session has no row.
var ErrSessionNotFound = errors.New("record: session not found")

// Store persists recording sessions and transcript chunks.
//
// Implementations must be safe for concurrent use; the pipeline issues
// writes from many per-session goroutines in parallel.
type Store interface {
	// CreateSession inserts a new session row in [StatusRecording].
	// Returns [ErrSessionExists] if the ID collides.
	CreateSession(ctx context.Context, s Session) error

	// GetSession returns the session row for id, or [ErrSessionNotFound].
	GetSession(ctx context.Context, id string) (Session, error)

	// UpdateStatus flips the persisted status of session id.
	UpdateStatus(ctx context.Context, id string, status Status) error

	// CompleteSession marks the session completed and records the final
	// transcript, summary, and duration in one write.
	CompleteSession(ctx context.Context, id, transcript, summary string, duration time.Duration) error

	// AppendChunk inserts a transcript chunk row. The caller assigns the
	// index; implementations must preserve insertion order per session.
	AppendChunk(ctx context.Context, c Chunk) error

	// ListChunks returns all chunks for a session ordered by index.
	ListChunks(ctx context.Context, sessionID string) ([]Chunk, error)

	// CountChunks returns the number of chunk rows for a session. The next
	// chunk index is exactly this count.
	CountChunks(ctx context.Context, sessionID string) (int, error)

	// LastChunks returns up to n most recent chunks for a session, ordered
	// by ascending index. Used to assemble the rolling transcriber context.
	LastChunks(ctx context.Context, sessionID string, n int) ([]Chunk, error)
}
