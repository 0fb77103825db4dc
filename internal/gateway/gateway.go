// Package gateway wraps the external transcription provider with the
// policy the chunk pipeline needs: rolling-context prompt assembly,
// bounded retry with back-off, and output scrubbing.
package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/agnij-dutta/attack-capital/internal/observe"
	"github.com/agnij-dutta/attack-capital/internal/resilience"
	"github.com/agnij-dutta/attack-capital/internal/transcript"
	"github.com/agnij-dutta/attack-capital/pkg/provider/transcriber"
	"github.com/agnij-dutta/attack-capital/pkg/record"
)

// minContextChars is the length below which a chunk text is too trivial
// to feed back as context.
const minContextChars = 15

// Options tunes the gateway.
type Options struct {
	// ProviderName labels provider metrics. Default: "transcriber".
	ProviderName string

	// ContextChunks is how many recent chunk texts feed the rolling
	// context. Default: 5.
	ContextChunks int

	// ContextChars is the character budget for the context tail.
	// Default: 500.
	ContextChars int

	// Attempts is the per-chunk transcriber attempt budget. Default: 3.
	Attempts int

	// RetryBase is the base back-off between attempts. Default: 2s.
	RetryBase time.Duration
}

// Gateway is safe for concurrent use across sessions; the per-session
// pipeline serialises calls within one session.
type Gateway struct {
	provider transcriber.Provider
	store    record.Store
	opts     Options
	retry    resilience.RetryPolicy
	metrics  *observe.Metrics
}

// New creates a Gateway over the given provider and chunk store.
func New(provider transcriber.Provider, store record.Store, opts Options) *Gateway {
	if opts.ProviderName == "" {
		opts.ProviderName = "transcriber"
	}
	if opts.ContextChunks <= 0 {
		opts.ContextChunks = 5
	}
	if opts.ContextChars <= 0 {
		opts.ContextChars = 500
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 2 * time.Second
	}
	return &Gateway{
		provider: provider,
		store:    store,
		opts:     opts,
		metrics:  observe.DefaultMetrics(),
		retry: resilience.RetryPolicy{
			Attempts:       opts.Attempts,
			BaseDelay:      opts.RetryBase,
			Retryable:      retryable,
			SuggestedDelay: suggestedDelay,
		},
	}
}

// TranscribeChunk sends one stitched chunk to the provider and returns
// the scrubbed text. The result is never empty: unusable provider output
// collapses to a silence or unclear marker.
func (g *Gateway) TranscribeChunk(ctx context.Context, sessionID string, audio []byte, mimeType string) (string, error) {
	prompt, err := g.buildPrompt(ctx, sessionID)
	if err != nil {
		return "", err
	}

	req := transcriber.Request{
		AudioBase64: base64.StdEncoding.EncodeToString(audio),
		MIMEType:    mimeType,
		Prompt:      prompt,
	}

	var raw string
	err = g.retry.Do(ctx, func(ctx context.Context) error {
		var callErr error
		raw, callErr = g.provider.Transcribe(ctx, req)
		if callErr != nil {
			g.metrics.RecordProviderRequest(ctx, g.opts.ProviderName, "transcriber", "error")
			g.metrics.RecordProviderError(ctx, g.opts.ProviderName, "transcriber")
			return callErr
		}
		g.metrics.RecordProviderRequest(ctx, g.opts.ProviderName, "transcriber", "ok")
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("gateway: transcribe chunk for session %s: %w", sessionID, err)
	}

	return transcript.Scrub(raw, prompt), nil
}

// buildPrompt assembles the rolling-context prompt from the session's
// recent persisted chunks.
func (g *Gateway) buildPrompt(ctx context.Context, sessionID string) (string, error) {
	chunks, err := g.store.LastChunks(ctx, sessionID, g.opts.ContextChunks)
	if err != nil {
		return "", fmt.Errorf("gateway: load context chunks: %w", err)
	}
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}
	cctx := transcript.BuildContext(texts, minContextChars, g.opts.ContextChars)
	return transcript.BuildPrompt(cctx), nil
}

// retryable maps provider error classes onto the retry policy: timeouts,
// rate limits, and server errors are retryable; a failed fallback sweep
// is retried as a whole.
func retryable(err error) bool {
	if terr := transcriber.AsError(err); terr != nil {
		return terr.Retryable()
	}
	return errors.Is(err, resilience.ErrAllFailed)
}

// suggestedDelay surfaces a rate-limit retry hint from the provider.
func suggestedDelay(err error) (time.Duration, bool) {
	if terr := transcriber.AsError(err); terr != nil && terr.RetryAfter > 0 {
		return terr.RetryAfter, true
	}
	return 0, false
}
