package session

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/agnij-dutta/attack-capital/internal/fragstore"
	"github.com/agnij-dutta/attack-capital/pkg/record"
)

// Recover re-attaches sessions that were in flight when the process last
// stopped. For each directory under the fragment root it rebuilds the
// in-memory buffer from the on-disk fragment files:
//
//   - Recording sessions get their scheduler re-armed; the next tick
//     processes the recovered fragments as usual.
//   - Processing sessions crashed mid-stop: one synchronous tick drains
//     the remaining fragments, then finalisation completes.
//   - Anything else (unknown rows, terminal states) is left to the
//     retention sweep.
//
// Call once at startup before accepting connections.
func (m *Manager) Recover(ctx context.Context) error {
	ids, err := m.frags.Sessions()
	if err != nil {
		return err
	}

	for _, id := range ids {
		sess, err := m.store.GetSession(ctx, id)
		if err != nil {
			if errors.Is(err, record.ErrSessionNotFound) {
				slog.Warn("fragment directory without session row, leaving for sweep", "session_id", id)
				continue
			}
			return err
		}
		if sess.Status != record.StatusRecording && sess.Status != record.StatusProcessing {
			continue
		}
		if err := m.recoverOne(ctx, sess); err != nil {
			slog.Error("session recovery failed", "session_id", id, "err", err)
		}
	}
	return nil
}

func (m *Manager) recoverOne(ctx context.Context, sess record.Session) error {
	paths, err := m.frags.List(sess.ID)
	if err != nil {
		return err
	}

	st := &state{
		id:        sess.ID,
		userID:    sess.UserID,
		startTime: sess.CreatedAt,
		stopTick:  make(chan struct{}),
	}
	// An unreadable file is skipped together with its path so the
	// payloads and the restored queue stay aligned.
	readable := make([]string, 0, len(paths))
	for _, p := range paths {
		payload, err := os.ReadFile(p)
		if err != nil {
			slog.Warn("unreadable fragment skipped during recovery", "path", p, "err", err)
			continue
		}
		readable = append(readable, p)
		st.payloads = append(st.payloads, payload)
		st.mimes = append(st.mimes, fragstore.MIMEForExt(filepath.Ext(p)))
		// Client-reported levels do not survive a restart; recovered
		// batches bypass the energy gate.
		st.energies = append(st.energies, energyUnknown)
		st.total += int64(len(payload))
	}
	m.frags.Restore(sess.ID, readable)

	count, err := m.store.CountChunks(ctx, sess.ID)
	if err != nil {
		return err
	}
	st.nextIndex = count

	m.mu.Lock()
	m.sessions[sess.ID] = st
	m.mu.Unlock()
	m.metrics.ActiveSessions.Add(ctx, 1)
	m.metrics.BufferedBytes.Add(ctx, st.bufferedSize())

	slog.Info("session recovered",
		"session_id", sess.ID,
		"status", sess.Status,
		"fragments", len(readable),
		"buffered_bytes", st.total,
		"next_chunk_index", count,
	)

	if sess.Status == record.StatusProcessing {
		// The process died between stop and completion; finish the job.
		st.mu.Lock()
		defer st.mu.Unlock()
		m.processLocked(ctx, st)
		st.finished = true
		st.disarm()
		m.metrics.BufferedBytes.Add(ctx, -st.bufferedSize())
		st.clearBuffers()
		if _, err := m.finalizeLocked(ctx, st); err != nil {
			return err
		}
		m.remove(sess.ID)
		return nil
	}

	m.armScheduler(st)
	return nil
}
