// Package record defines the persistence layer for recording sessions and
// their transcript chunks.
//
// The pipeline writes two kinds of rows: one recording_session row per
// session (created at start, completed at finalisation) and one
// transcript_chunk row per successfully transcribed ~30 s chunk. The
// [Store] interface abstracts the backing database so that the pipeline
// and its tests can run against the in-memory double in
// [github.com/agnij-dutta/attack-capital/pkg/record/mock].
package record

import "time"

// Status is the lifecycle state of a recording session.
type Status string

const (
	// StatusRecording is the initial state; the session accepts fragments
	// and the chunk scheduler is armed.
	StatusRecording Status = "recording"

	// StatusPaused accepts fragments but suppresses scheduler ticks.
	StatusPaused Status = "paused"

	// StatusProcessing is entered when the client stops the recording and
	// the finalizer is producing the consolidated transcript and summary.
	StatusProcessing Status = "processing"

	// StatusCompleted is a terminal state; transcript and summary are set.
	StatusCompleted Status = "completed"

	// StatusCancelled is a terminal state; buffered audio was discarded.
	StatusCancelled Status = "cancelled"
)

// IsValid reports whether s is a recognised session status.
func (s Status) IsValid() bool {
	switch s {
	case StatusRecording, StatusPaused, StatusProcessing, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether the transition s → to is legal.
//
// Legal transitions:
//
//	recording  → paused, processing, cancelled
//	paused     → recording, processing, cancelled
//	processing → completed, cancelled
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusRecording:
		return to == StatusPaused || to == StatusProcessing || to == StatusCancelled
	case StatusPaused:
		return to == StatusRecording || to == StatusProcessing || to == StatusCancelled
	case StatusProcessing:
		return to == StatusCompleted || to == StatusCancelled
	}
	return false
}

// Session is one recording from start to stop.
type Session struct {
	// ID is the client-chosen session identifier.
	ID string

	// UserID identifies the owning user.
	UserID string

	// Title is a human-readable session title.
	Title string

	// Status is the current lifecycle state.
	Status Status

	// CreatedAt is the session start instant.
	CreatedAt time.Time

	// TranscriptText is the consolidated transcript, set at finalisation.
	TranscriptText string

	// Summary is the post-hoc summary, set at finalisation.
	Summary string

	// Duration is the recording length, set at finalisation.
	Duration time.Duration
}

// Chunk is one transcribed unit of roughly 30 s of stitched audio.
type Chunk struct {
	// ID is the database row identifier.
	ID string

	// SessionID is the owning session.
	SessionID string

	// Index is the zero-based chunk ordinal. Indices for a session form
	// the gapless sequence 0, 1, 2, … in store order.
	Index int

	// Text is the speaker-labelled transcription of the chunk.
	Text string

	// Timestamp is when the chunk's audio was received.
	Timestamp time.Time

	// Confidence is the average client-reported energy of the chunk's
	// fragments, in [0, 1]. Zero when the client supplied no energy.
	Confidence float64
}
