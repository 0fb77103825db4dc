package session

import "errors"

// Error taxonomy surfaced to transport layers. Callers branch on these
// with [errors.Is]; the duplex channel maps them to client error
// messages.
var (
	// ErrNotFound means the session is unknown to the registry.
	ErrNotFound = errors.New("session not found")

	// ErrBufferOverflow means the session's cumulative buffered bytes
	// would exceed the hard cap. The fragment is rejected; the session
	// stays usable only for stop or cancel.
	ErrBufferOverflow = errors.New("session buffer overflow")

	// ErrStitchFailed means every stitch strategy was exhausted. The
	// fragments are restored for the next tick; not fatal to the session.
	ErrStitchFailed = errors.New("stitch failed")

	// ErrTranscribe means the transcriber failed after retries. The chunk
	// is skipped without advancing the index; not fatal.
	ErrTranscribe = errors.New("transcription failed")

	// ErrSummarize means the summarizer failed; finalisation still
	// completes with a fallback summary.
	ErrSummarize = errors.New("summarization failed")

	// ErrIO means a durable-store write failed.
	ErrIO = errors.New("fragment store i/o failed")

	// ErrBadState means the operation is illegal for the session's
	// current state.
	ErrBadState = errors.New("operation invalid in current session state")
)
