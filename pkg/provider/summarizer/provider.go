// Package summarizer defines the Provider interface for post-hoc
// transcript summarisation.
//
// The finalizer hands the provider the full consolidated transcript of a
// session and expects a short prose summary back. Implementations must be
// safe for concurrent use.
package summarizer

import "context"

// Provider is the abstraction over any summarisation backend.
type Provider interface {
	// Summarize produces a concise summary of transcript. An empty
	// transcript should yield an empty summary, not an error.
	Summarize(ctx context.Context, transcript string) (string, error)
}
