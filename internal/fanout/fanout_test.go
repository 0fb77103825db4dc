package fanout

import (
	"errors"
	"sync"
	"testing"

	"github.com/agnij-dutta/attack-capital/pkg/record"
)

// recorder is a test subscriber collecting delivered events.
type recorder struct {
	mu          sync.Mutex
	transcripts []TranscriptUpdate
	statuses    []StatusUpdate

	// TranscriptErr is returned by OnTranscript when non-nil.
	TranscriptErr error
}

func (r *recorder) OnTranscript(ev TranscriptUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcripts = append(r.transcripts, ev)
	return r.TranscriptErr
}

func (r *recorder) OnStatus(ev StatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, ev)
	return nil
}

func (r *recorder) transcriptCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.transcripts)
}

func TestHubDeliversToSessionSubscribersOnly(t *testing.T) {
	hub := NewHub()
	a := &recorder{}
	b := &recorder{}
	hub.Subscribe("s1", a)
	hub.Subscribe("s2", b)

	hub.PublishTranscript(TranscriptUpdate{SessionID: "s1", ChunkIndex: 0, Text: "hello"})

	if a.transcriptCount() != 1 {
		t.Errorf("s1 subscriber got %d events, want 1", a.transcriptCount())
	}
	if b.transcriptCount() != 0 {
		t.Errorf("s2 subscriber got %d events, want 0", b.transcriptCount())
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub()
	r := &recorder{}
	cancel := hub.Subscribe("s1", r)

	hub.PublishTranscript(TranscriptUpdate{SessionID: "s1", ChunkIndex: 0})
	cancel()
	cancel() // double unsubscribe is harmless
	hub.PublishTranscript(TranscriptUpdate{SessionID: "s1", ChunkIndex: 1})

	if r.transcriptCount() != 1 {
		t.Errorf("got %d events, want 1", r.transcriptCount())
	}
	if hub.SubscriberCount("s1") != 0 {
		t.Errorf("SubscriberCount = %d, want 0", hub.SubscriberCount("s1"))
	}
}

func TestHubFailingSubscriberDoesNotBlockPeers(t *testing.T) {
	hub := NewHub()
	bad := &recorder{TranscriptErr: errors.New("slow consumer")}
	good := &recorder{}
	hub.Subscribe("s1", bad)
	hub.Subscribe("s1", good)

	hub.PublishTranscript(TranscriptUpdate{SessionID: "s1", ChunkIndex: 0})
	hub.PublishTranscript(TranscriptUpdate{SessionID: "s1", ChunkIndex: 1})

	if good.transcriptCount() != 2 {
		t.Errorf("healthy subscriber got %d events, want 2", good.transcriptCount())
	}
}

func TestHubStatusDelivery(t *testing.T) {
	hub := NewHub()
	r := &recorder{}
	hub.Subscribe("s1", r)

	hub.PublishStatus(StatusUpdate{SessionID: "s1", Status: record.StatusProcessing})

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) != 1 || r.statuses[0].Status != record.StatusProcessing {
		t.Errorf("statuses = %+v", r.statuses)
	}
}

func TestHubEventsArriveInPublishOrder(t *testing.T) {
	hub := NewHub()
	r := &recorder{}
	hub.Subscribe("s1", r)

	for i := 0; i < 10; i++ {
		hub.PublishTranscript(TranscriptUpdate{SessionID: "s1", ChunkIndex: i})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, ev := range r.transcripts {
		if ev.ChunkIndex != i {
			t.Fatalf("event %d has chunk index %d", i, ev.ChunkIndex)
		}
	}
}
