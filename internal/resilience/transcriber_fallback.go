package resilience

import (
	"context"

	"github.com/agnij-dutta/attack-capital/pkg/provider/transcriber"
)

// TranscriberFallback implements [transcriber.Provider] with automatic
// failover across multiple transcription backends. Each backend has its
// own circuit breaker.
type TranscriberFallback struct {
	group *FallbackGroup[transcriber.Provider]
}

// Compile-time interface assertion.
var _ transcriber.Provider = (*TranscriberFallback)(nil)

// NewTranscriberFallback creates a [TranscriberFallback] with primary as
// the preferred backend.
func NewTranscriberFallback(primary transcriber.Provider, primaryName string, cfg FallbackConfig) *TranscriberFallback {
	return &TranscriberFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional transcription backend.
func (f *TranscriberFallback) AddFallback(name string, provider transcriber.Provider) {
	f.group.AddFallback(name, provider)
}

// Transcribe forwards to the first healthy backend. If the primary fails
// or its circuit is open, fallbacks are tried in registration order.
func (f *TranscriberFallback) Transcribe(ctx context.Context, req transcriber.Request) (string, error) {
	return ExecuteWithResult(f.group, func(p transcriber.Provider) (string, error) {
		return p.Transcribe(ctx, req)
	})
}
