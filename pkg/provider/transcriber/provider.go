// Package transcriber defines the Provider interface for batch audio
// transcription backends.
//
// A transcriber receives one stitched ~30 s chunk of audio (base64-encoded,
// typically MP3) plus an optional rolling-context prompt, and returns the
// speaker-labelled transcription text. The pipeline depends only on this
// narrow contract and on the error predicates of [*Error]; everything else
// (models, endpoints, auth) is the provider's concern.
//
// Implementations must be safe for concurrent use — many sessions transcribe
// in parallel.
package transcriber

import "context"

// Request carries one chunk of audio to transcribe.
type Request struct {
	// AudioBase64 is the base64-encoded audio payload.
	AudioBase64 string

	// MIMEType describes the audio container (e.g. "audio/mpeg").
	MIMEType string

	// Prompt is the full transcription instruction, including any rolling
	// context assembled by the gateway. Providers that support prompting
	// should pass it through; others may ignore it.
	Prompt string
}

// Provider is the abstraction over any batch transcription backend.
type Provider interface {
	// Transcribe submits one audio chunk and returns the raw transcription
	// text. Failures should be returned as [*Error] so the gateway can
	// classify them for retry.
	Transcribe(ctx context.Context, req Request) (string, error)
}
