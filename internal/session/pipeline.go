package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/agnij-dutta/attack-capital/internal/fanout"
	"github.com/agnij-dutta/attack-capital/internal/observe"
	"github.com/agnij-dutta/attack-capital/internal/stitch"
	"github.com/agnij-dutta/attack-capital/pkg/record"
)

// processLocked runs one pipeline pass: swap the buffer, gate, stitch,
// transcribe, persist, fan out. Caller must hold st.mu. No failure in
// here ever advances the chunk index; failed batches are restored so the
// next tick (or crash recovery) retries them. Gated and committed batches
// have their fragment files destroyed so crash recovery replays only
// audio that never produced a chunk.
func (m *Manager) processLocked(ctx context.Context, st *state) {
	n := len(st.payloads)
	if n == 0 {
		return
	}

	payloads, mimes, energies := st.takeBatch()
	paths := m.frags.TakeBatch(st.id, n)

	size := 0
	for _, p := range payloads {
		size += len(p)
	}
	m.metrics.BufferedBytes.Add(ctx, -int64(size))
	avgEnergy, energyKnown := batchEnergy(energies)

	// Gates: too small to stitch, likely silence, or a byte-identical
	// repeat of the last transcribed batch. Gated batches produce no row
	// and are not retried, so their files are destroyed.
	if size < m.cfg.MinStitchBytes {
		slog.Debug("batch below stitch threshold, skipped",
			"session_id", st.id, "bytes", size, "fragments", n)
		m.frags.Remove(st.id, paths)
		return
	}
	if energyKnown && avgEnergy < m.cfg.SilenceEnergy && size < m.cfg.SilenceMaxBytes {
		slog.Debug("batch gated as silence",
			"session_id", st.id, "bytes", size, "avg_energy", avgEnergy)
		m.frags.Remove(st.id, paths)
		return
	}
	hash := stitch.CombinedHash(payloads)
	if hash == st.lastHash {
		slog.Debug("duplicate batch suppressed", "session_id", st.id, "hash", hash[:12])
		m.frags.Remove(st.id, paths)
		return
	}

	restore := func() {
		st.restoreBatch(payloads, mimes, energies)
		m.frags.Restore(st.id, paths)
		m.metrics.BufferedBytes.Add(ctx, int64(size))
	}

	stitchStart := time.Now()
	res, err := m.stitcher.Stitch(ctx, stitch.Batch{
		SessionID: st.id,
		Payloads:  payloads,
		Paths:     paths,
		MIMETypes: mimes,
	})
	m.metrics.StitchDuration.Record(ctx, time.Since(stitchStart).Seconds())
	if err != nil {
		slog.Error("stitch failed, batch restored",
			"session_id", st.id, "fragments", n, "err", err)
		m.metrics.RecordPipelineError(ctx, "stitch")
		restore()
		return
	}

	transcribeStart := time.Now()
	text, err := m.transcriber.TranscribeChunk(ctx, st.id, res.Audio, res.MIMEType)
	m.metrics.TranscribeDuration.Record(ctx, time.Since(transcribeStart).Seconds())
	if err != nil {
		slog.Error("transcription failed, batch restored",
			"session_id", st.id, "chunk_index", st.nextIndex, "err", err)
		m.metrics.RecordPipelineError(ctx, "transcribe")
		restore()
		return
	}

	// Post-flight check: a cancel issued while the call was outstanding
	// wins, and the result is discarded.
	if st.cancelled.Load() {
		slog.Info("session cancelled mid-chunk, result discarded", "session_id", st.id)
		return
	}

	chunk := record.Chunk{
		ID:         uuid.NewString(),
		SessionID:  st.id,
		Index:      st.nextIndex,
		Text:       text,
		Timestamp:  time.Now(),
		Confidence: avgEnergy,
	}
	if err := m.store.AppendChunk(ctx, chunk); err != nil {
		slog.Error("chunk persist failed, batch restored",
			"session_id", st.id, "chunk_index", chunk.Index, "err", err)
		m.metrics.RecordPipelineError(ctx, "persist")
		restore()
		return
	}

	st.nextIndex++
	st.lastHash = hash
	m.frags.Remove(st.id, paths)
	m.metrics.ChunksTranscribed.Add(ctx, 1,
		metric.WithAttributes(observe.Attr("strategy", res.Strategy)))

	if nonWhitespace(text) {
		m.hub.PublishTranscript(fanout.TranscriptUpdate{
			SessionID:  st.id,
			ChunkIndex: chunk.Index,
			Text:       text,
			Timestamp:  chunk.Timestamp,
		})
	}
	slog.Info("chunk transcribed",
		"session_id", st.id,
		"chunk_index", chunk.Index,
		"fragments", n,
		"bytes", size,
		"strategy", res.Strategy,
		"text_len", len(text),
	)
}
