// Package session owns the live recording sessions: the per-session
// ingest buffer, the 30-second chunk scheduler, and the state machine
// from Recording through Completed or Cancelled.
//
// The concurrency model is parallel across sessions, serial within one:
// each session's ingest, scheduler tick, and finalisation share a single
// mutex, while the registry map itself is guarded only for add/remove.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/agnij-dutta/attack-capital/internal/fanout"
	"github.com/agnij-dutta/attack-capital/internal/fragstore"
	"github.com/agnij-dutta/attack-capital/internal/observe"
	"github.com/agnij-dutta/attack-capital/internal/stitch"
	"github.com/agnij-dutta/attack-capital/pkg/provider/summarizer"
	"github.com/agnij-dutta/attack-capital/pkg/record"
)

// FallbackSummary is stored when the summarizer fails or is not
// configured.
const FallbackSummary = "Summary could not be generated from the transcript."

// Stitcher converts a fragment batch into one decodable audio payload.
// Implemented by [stitch.Stitcher].
type Stitcher interface {
	Stitch(ctx context.Context, batch stitch.Batch) (stitch.Result, error)
}

// Transcriber turns stitched chunk audio into text. Implemented by the
// transcription gateway.
type Transcriber interface {
	TranscribeChunk(ctx context.Context, sessionID string, audio []byte, mimeType string) (string, error)
}

// Config holds the pipeline tuning knobs.
type Config struct {
	// ChunkPeriod is the scheduler tick period. Default: 30s.
	ChunkPeriod time.Duration

	// MinFragmentBytes is the ingest silence gate; smaller fragments are
	// silently dropped. Default: 1 KiB.
	MinFragmentBytes int

	// MinStitchBytes is the smallest batch worth stitching. Default: 10 KiB.
	MinStitchBytes int

	// SilenceEnergy is the average-level threshold below which a small
	// batch is treated as silence. Default: 0.02.
	SilenceEnergy float64

	// SilenceMaxBytes bounds the batch size the energy gate applies to.
	// Default: 40 KiB.
	SilenceMaxBytes int

	// MaxSessionBytes is the hard cap on cumulative buffered bytes.
	// Default: 2 GiB.
	MaxSessionBytes int64
}

func (c *Config) applyDefaults() {
	if c.ChunkPeriod <= 0 {
		c.ChunkPeriod = 30 * time.Second
	}
	if c.MinFragmentBytes <= 0 {
		c.MinFragmentBytes = 1024
	}
	if c.MinStitchBytes <= 0 {
		c.MinStitchBytes = 10 * 1024
	}
	if c.SilenceEnergy <= 0 {
		c.SilenceEnergy = 0.02
	}
	if c.SilenceMaxBytes <= 0 {
		c.SilenceMaxBytes = 40 * 1024
	}
	if c.MaxSessionBytes <= 0 {
		c.MaxSessionBytes = 2 << 30
	}
}

// Manager is the session registry and the entry point for every session
// operation. All methods are safe for concurrent use.
type Manager struct {
	cfg         Config
	store       record.Store
	frags       *fragstore.Store
	stitcher    Stitcher
	transcriber Transcriber
	summarizer  summarizer.Provider
	hub         *fanout.Hub
	metrics     *observe.Metrics

	mu       sync.Mutex
	sessions map[string]*state
}

// Deps bundles the collaborators a Manager needs. Summarizer may be nil;
// finalisation then stores the fallback summary.
type Deps struct {
	Store       record.Store
	Fragments   *fragstore.Store
	Stitcher    Stitcher
	Transcriber Transcriber
	Summarizer  summarizer.Provider
	Hub         *fanout.Hub
}

// NewManager creates a Manager.
func NewManager(cfg Config, deps Deps) *Manager {
	cfg.applyDefaults()
	return &Manager{
		cfg:         cfg,
		store:       deps.Store,
		frags:       deps.Fragments,
		stitcher:    deps.Stitcher,
		transcriber: deps.Transcriber,
		summarizer:  deps.Summarizer,
		hub:         deps.Hub,
		metrics:     observe.DefaultMetrics(),
		sessions:    make(map[string]*state),
	}
}

// StartResult reports a created session.
type StartResult struct {
	SessionID string
}

// Start creates a session row and arms its scheduler. An empty sessionID
// is replaced with a generated one.
func (m *Manager) Start(ctx context.Context, sessionID, userID, title string) (StartResult, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	now := time.Now()
	if title == "" {
		title = "Recording " + now.Format(time.RFC3339)
	}
	err := m.store.CreateSession(ctx, record.Session{
		ID:        sessionID,
		UserID:    userID,
		Title:     title,
		Status:    record.StatusRecording,
		CreatedAt: now,
	})
	if err != nil {
		return StartResult{}, fmt.Errorf("session: create %s: %w", sessionID, err)
	}

	st := &state{
		id:        sessionID,
		userID:    userID,
		startTime: now,
		stopTick:  make(chan struct{}),
	}
	m.mu.Lock()
	m.sessions[sessionID] = st
	m.mu.Unlock()
	m.metrics.ActiveSessions.Add(ctx, 1)

	m.armScheduler(st)
	slog.Info("session started", "session_id", sessionID, "user_id", userID)
	return StartResult{SessionID: sessionID}, nil
}

// AddFragment buffers one received audio payload for the session.
// Fragments below the minimum size are silently dropped. energy < 0
// means the client reported no level. The write to the durable store
// happens before AddFragment returns.
func (m *Manager) AddFragment(ctx context.Context, sessionID string, payload []byte, mimeType string, energy float64, fragmentID string) error {
	st, err := m.lookup(sessionID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.finished || st.cancelled.Load() {
		return fmt.Errorf("session %s: %w", sessionID, ErrBadState)
	}
	if len(payload) < m.cfg.MinFragmentBytes {
		// Browser recorders emit near-empty tail fragments that
		// destabilise the stitcher.
		slog.Debug("fragment below silence gate, dropped",
			"session_id", sessionID, "bytes", len(payload), "fragment_id", fragmentID)
		return nil
	}
	if st.total+int64(len(payload)) > m.cfg.MaxSessionBytes {
		return fmt.Errorf("session %s: %d buffered bytes: %w", sessionID, st.total, ErrBufferOverflow)
	}

	if _, err := m.frags.Append(sessionID, payload, fragstore.ExtForMIME(mimeType)); err != nil {
		return fmt.Errorf("session %s: %w: %v", sessionID, ErrIO, err)
	}

	if energy < 0 {
		energy = energyUnknown
	}
	st.payloads = append(st.payloads, payload)
	st.mimes = append(st.mimes, mimeType)
	st.energies = append(st.energies, energy)
	st.total += int64(len(payload))

	m.metrics.FragmentsIngested.Add(ctx, 1,
		metric.WithAttributes(observe.Attr("container", fragstore.ExtForMIME(mimeType))))
	m.metrics.BufferedBytes.Add(ctx, int64(len(payload)))
	return nil
}

// Pause suppresses scheduler ticks; ingest keeps buffering.
func (m *Manager) Pause(ctx context.Context, sessionID string) error {
	return m.setPaused(ctx, sessionID, true, record.StatusPaused)
}

// Resume re-enables scheduler ticks.
func (m *Manager) Resume(ctx context.Context, sessionID string) error {
	return m.setPaused(ctx, sessionID, false, record.StatusRecording)
}

func (m *Manager) setPaused(ctx context.Context, sessionID string, paused bool, status record.Status) error {
	st, err := m.lookup(sessionID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.finished || st.cancelled.Load() || st.paused == paused {
		return fmt.Errorf("session %s: %w", sessionID, ErrBadState)
	}
	st.paused = paused
	if err := m.store.UpdateStatus(ctx, sessionID, status); err != nil {
		st.paused = !paused
		return fmt.Errorf("session %s: update status: %w", sessionID, err)
	}
	m.hub.PublishStatus(fanout.StatusUpdate{SessionID: sessionID, Status: status})
	slog.Info("session pause state changed", "session_id", sessionID, "paused", paused)
	return nil
}

// StopResult carries the finalised artefacts back to the caller.
type StopResult struct {
	SessionID  string
	Transcript string
	Summary    string
	Duration   time.Duration
}

// Stop drains the remaining buffer through one synchronous tick,
// finalises the transcript and summary, persists the completed session,
// and purges the fragment directory.
func (m *Manager) Stop(ctx context.Context, sessionID string) (StopResult, error) {
	st, err := m.lookup(sessionID)
	if err != nil {
		return StopResult{}, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.finished || st.cancelled.Load() {
		return StopResult{}, fmt.Errorf("session %s: %w", sessionID, ErrBadState)
	}

	// Drain: a final tick for whatever is still buffered. Failures here
	// follow tick semantics (logged, chunk skipped) and never block stop.
	st.paused = false
	m.processLocked(ctx, st)

	st.finished = true
	st.disarm()
	m.metrics.BufferedBytes.Add(ctx, -st.bufferedSize())
	st.clearBuffers()

	if err := m.store.UpdateStatus(ctx, sessionID, record.StatusProcessing); err != nil {
		return StopResult{}, fmt.Errorf("session %s: enter processing: %w", sessionID, err)
	}
	m.hub.PublishStatus(fanout.StatusUpdate{SessionID: sessionID, Status: record.StatusProcessing})

	res, err := m.finalizeLocked(ctx, st)
	if err != nil {
		return StopResult{}, err
	}

	m.remove(sessionID)
	return res, nil
}

// Cancel discards the session: buffered audio is dropped, the fragment
// directory purged, and no summarizer call is made. Effective immediately
// for future ticks; an in-flight transcriber call has its result
// discarded by the post-flight check.
func (m *Manager) Cancel(ctx context.Context, sessionID string) error {
	st, err := m.lookup(sessionID)
	if err != nil {
		return err
	}

	// Flip before taking the mutex so an in-flight tick observes it.
	st.cancelled.Store(true)

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.finished {
		return nil
	}
	st.finished = true
	st.disarm()
	m.metrics.BufferedBytes.Add(ctx, -st.bufferedSize())
	st.clearBuffers()

	if err := m.store.UpdateStatus(ctx, sessionID, record.StatusCancelled); err != nil {
		return fmt.Errorf("session %s: cancel: %w", sessionID, err)
	}
	m.hub.PublishStatus(fanout.StatusUpdate{SessionID: sessionID, Status: record.StatusCancelled})

	if err := m.frags.PurgeSession(sessionID); err != nil {
		slog.Warn("purge after cancel failed", "session_id", sessionID, "err", err)
	}
	m.remove(sessionID)
	slog.Info("session cancelled", "session_id", sessionID)
	return nil
}

// Snapshot reports a session's persisted row plus live buffer counters.
// Works for active and finished sessions.
type Snapshot struct {
	Session       record.Session
	BufferedBytes int64
	ChunkCount    int
}

// GetSnapshot returns the current view of a session.
func (m *Manager) GetSnapshot(ctx context.Context, sessionID string) (Snapshot, error) {
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	count, err := m.store.CountChunks(ctx, sessionID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("session %s: count chunks: %w", sessionID, err)
	}

	snap := Snapshot{Session: sess, ChunkCount: count}
	m.mu.Lock()
	st := m.sessions[sessionID]
	m.mu.Unlock()
	if st != nil {
		st.mu.Lock()
		snap.BufferedBytes = st.total
		st.mu.Unlock()
	}
	return snap, nil
}

// ActiveSessions returns the number of sessions in the registry.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown disarms every scheduler without purging fragment directories,
// so a restart recovers the in-flight sessions from disk.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	states := make([]*state, 0, len(m.sessions))
	for _, st := range m.sessions {
		states = append(states, st)
	}
	m.mu.Unlock()

	for _, st := range states {
		st.disarm()
	}
	slog.Info("session manager shut down", "active_sessions", len(states))
}

// armScheduler launches the session's tick loop.
func (m *Manager) armScheduler(st *state) {
	go func() {
		ticker := time.NewTicker(m.cfg.ChunkPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-st.stopTick:
				return
			case <-ticker.C:
				m.tick(st)
			}
		}
	}()
}

// tick runs one scheduler pass under the session mutex.
func (m *Manager) tick(st *state) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.finished || st.cancelled.Load() || st.paused {
		return
	}
	m.processLocked(context.Background(), st)
}

func (m *Manager) lookup(sessionID string) (*state, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return st, nil
}

func (m *Manager) remove(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	m.metrics.ActiveSessions.Add(context.Background(), -1)
}

// nonWhitespace reports whether text carries anything beyond whitespace.
func nonWhitespace(text string) bool {
	return strings.TrimSpace(text) != ""
}
