// Package fanout delivers live pipeline events to session subscribers.
//
// Subscribers register interest in one session and receive transcript and
// status events for it. Delivery is best-effort per subscriber: a failing
// or slow subscriber never blocks the pipeline or its peers. Events for a
// session are published under the session's pipeline lock, so subscribers
// observe them in chunk-index order.
package fanout

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/agnij-dutta/attack-capital/internal/observe"
	"github.com/agnij-dutta/attack-capital/pkg/record"
)

// TranscriptUpdate is emitted after a chunk's text is persisted.
type TranscriptUpdate struct {
	SessionID  string    `json:"sessionId"`
	ChunkIndex int       `json:"chunkIndex"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
}

// StatusUpdate is emitted on session state transitions.
type StatusUpdate struct {
	SessionID string        `json:"sessionId"`
	Status    record.Status `json:"status"`
}

// Subscriber receives events for one session. Implementations must be
// quick or hand off internally; errors are logged and otherwise ignored.
type Subscriber interface {
	OnTranscript(TranscriptUpdate) error
	OnStatus(StatusUpdate) error
}

// Hub indexes subscribers by session. The zero value is not usable; use
// [NewHub].
type Hub struct {
	metrics *observe.Metrics

	mu   sync.RWMutex
	subs map[string]map[int]Subscriber
	next int
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		metrics: observe.DefaultMetrics(),
		subs:    make(map[string]map[int]Subscriber),
	}
}

// Subscribe registers sub for sessionID and returns an unsubscribe
// function. Unsubscribing twice is harmless.
func (h *Hub) Subscribe(sessionID string, sub Subscriber) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	m, ok := h.subs[sessionID]
	if !ok {
		m = make(map[int]Subscriber)
		h.subs[sessionID] = m
	}
	m[id] = sub
	h.metrics.ActiveSubscribers.Add(context.Background(), 1)

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if m, ok := h.subs[sessionID]; ok {
			if _, live := m[id]; live {
				delete(m, id)
				h.metrics.ActiveSubscribers.Add(context.Background(), -1)
			}
			if len(m) == 0 {
				delete(h.subs, sessionID)
			}
		}
	}
}

// SubscriberCount returns the number of subscribers for sessionID.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

// PublishTranscript delivers a transcript event to every subscriber of
// the session.
func (h *Hub) PublishTranscript(ev TranscriptUpdate) {
	for _, sub := range h.snapshot(ev.SessionID) {
		if err := sub.OnTranscript(ev); err != nil {
			slog.Warn("fanout: transcript delivery failed",
				"session_id", ev.SessionID, "chunk_index", ev.ChunkIndex, "err", err)
		}
	}
}

// PublishStatus delivers a status event to every subscriber of the
// session.
func (h *Hub) PublishStatus(ev StatusUpdate) {
	for _, sub := range h.snapshot(ev.SessionID) {
		if err := sub.OnStatus(ev); err != nil {
			slog.Warn("fanout: status delivery failed",
				"session_id", ev.SessionID, "status", ev.Status, "err", err)
		}
	}
}

// snapshot copies the subscriber set so delivery happens outside the
// lock; a subscriber may unsubscribe from within its callback.
func (h *Hub) snapshot(sessionID string) []Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()
	m := h.subs[sessionID]
	out := make([]Subscriber, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	return out
}
