package ws

import (
	"time"

	"github.com/agnij-dutta/attack-capital/pkg/record"
)

// Inbound message types.
const (
	typeStartRecording  = "start-recording"
	typeAudioChunk      = "audio-chunk"
	typePauseRecording  = "pause-recording"
	typeResumeRecording = "resume-recording"
	typeStopRecording   = "stop-recording"
	typeCancelRecording = "cancel-recording"
	typeJoinSession     = "join-session"
	typeGetSessionState = "get-session-state"
	typePong            = "pong"
)

// Outbound message types.
const (
	typeRecordingStarted   = "recording-started"
	typeChunkReceived      = "chunk-received"
	typeRecordingPaused    = "recording-paused"
	typeRecordingResumed   = "recording-resumed"
	typeRecordingCompleted = "recording-completed"
	typeRecordingCancelled = "recording-cancelled"
	typeLiveUpdate         = "live-transcript-update"
	typeStatusUpdate       = "status-update"
	typeSessionState       = "session-state"
	typeError              = "error"
	typePing               = "ping"
)

// clientMsg is the envelope for every inbound message. Fields beyond Type
// are populated per message type.
type clientMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	UserID    string `json:"userId,omitempty"`
	Title     string `json:"title,omitempty"`
	MIMEType  string `json:"mimeType,omitempty"`

	// AudioData is the base64 fragment payload of an audio-chunk.
	AudioData string `json:"audioData,omitempty"`

	// AudioLevel is the client-measured energy in [0, 1]; nil when the
	// recorder does not report one.
	AudioLevel *float64 `json:"audioLevel,omitempty"`

	// ChunkID is an optional client-side fragment identifier echoed back
	// in chunk-received.
	ChunkID string `json:"chunkId,omitempty"`
}

// serverMsg is the envelope for every outbound message.
type serverMsg struct {
	Type       string        `json:"type"`
	SessionID  string        `json:"sessionId,omitempty"`
	ChunkID    string        `json:"chunkId,omitempty"`
	Status     record.Status `json:"status,omitempty"`
	Message    string        `json:"message,omitempty"`
	Transcript string        `json:"transcript,omitempty"`
	Summary    string        `json:"summary,omitempty"`
	NewChunk   *newChunk     `json:"newChunk,omitempty"`
	State      *sessionState `json:"state,omitempty"`
}

// newChunk is the payload of a live-transcript-update.
type newChunk struct {
	ChunkIndex int       `json:"chunkIndex"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
}

// sessionState is the payload of a session-state reply.
type sessionState struct {
	SessionID     string        `json:"sessionId"`
	UserID        string        `json:"userId"`
	Title         string        `json:"title,omitempty"`
	Status        record.Status `json:"status"`
	CreatedAt     time.Time     `json:"createdAt"`
	ChunkCount    int           `json:"chunkCount"`
	BufferedBytes int64         `json:"bufferedBytes"`
}
