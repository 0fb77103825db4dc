package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agnij-dutta/attack-capital/internal/fanout"
	"github.com/agnij-dutta/attack-capital/internal/transcript"
	"github.com/agnij-dutta/attack-capital/pkg/record"
)

// finalizeLocked builds the final transcript from persisted chunks,
// summarises it, completes the session row, and purges the fragment
// directory. Caller must hold st.mu and have already moved the session
// to Processing.
func (m *Manager) finalizeLocked(ctx context.Context, st *state) (StopResult, error) {
	chunks, err := m.store.ListChunks(ctx, st.id)
	if err != nil {
		return StopResult{}, fmt.Errorf("session %s: load chunks: %w", st.id, err)
	}
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}
	finalTranscript := transcript.JoinChunks(texts)

	summary := m.summarize(ctx, st.id, finalTranscript)
	duration := time.Since(st.startTime)

	if err := m.store.CompleteSession(ctx, st.id, finalTranscript, summary, duration); err != nil {
		return StopResult{}, fmt.Errorf("session %s: complete: %w", st.id, err)
	}
	m.hub.PublishStatus(fanout.StatusUpdate{SessionID: st.id, Status: record.StatusCompleted})

	if err := m.frags.PurgeSession(st.id); err != nil {
		slog.Warn("purge after stop failed", "session_id", st.id, "err", err)
	}

	slog.Info("session completed",
		"session_id", st.id,
		"chunks", len(chunks),
		"transcript_len", len(finalTranscript),
		"duration", duration.Round(time.Second),
	)
	return StopResult{
		SessionID:  st.id,
		Transcript: finalTranscript,
		Summary:    summary,
		Duration:   duration,
	}, nil
}

// summarize runs the summarizer and scrubs its output. Failures and a
// missing summarizer degrade to the fallback text; finalisation never
// fails on the summary.
func (m *Manager) summarize(ctx context.Context, sessionID, finalTranscript string) string {
	if m.summarizer == nil || !nonWhitespace(finalTranscript) {
		return FallbackSummary
	}
	start := time.Now()
	raw, err := m.summarizer.Summarize(ctx, finalTranscript)
	m.metrics.SummarizeDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		m.metrics.RecordPipelineError(ctx, "summarize")
		slog.Error("summarizer failed, using fallback summary",
			"session_id", sessionID, "err", fmt.Errorf("%w: %v", ErrSummarize, err))
		return FallbackSummary
	}
	summary := transcript.ScrubSummary(raw, finalTranscript)
	if !nonWhitespace(summary) {
		return FallbackSummary
	}
	return summary
}
