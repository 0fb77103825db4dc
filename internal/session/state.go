package session

import (
	"sync"
	"sync/atomic"
	"time"
)

// energyUnknown marks fragments whose client did not report a level
// (and fragments rebuilt from disk during recovery). The silence gate
// only applies when at least one fragment in a batch carries a level.
const energyUnknown = -1

// state is the runtime-only registry entry for one active session.
//
// mu serialises ingest, scheduler ticks, and finalisation for the
// session, so none of them observes partial buffer state. cancelled is
// outside the mutex on purpose: Cancel must take effect while a tick is
// in flight, and the tick's post-flight check reads it before persisting.
type state struct {
	id        string
	userID    string
	startTime time.Time

	cancelled atomic.Bool

	mu        sync.Mutex
	paused    bool
	finished  bool
	payloads  [][]byte
	mimes     []string
	energies  []float64
	total     int64
	nextIndex int
	lastHash  string

	stopTick chan struct{}
	tickOnce sync.Once
}

// disarm stops the session's scheduler goroutine. Safe to call more than
// once and from within a tick.
func (st *state) disarm() {
	st.tickOnce.Do(func() { close(st.stopTick) })
}

// takeBatch swaps the buffered fragments out of the state. Caller must
// hold st.mu.
func (st *state) takeBatch() (payloads [][]byte, mimes []string, energies []float64) {
	payloads, mimes, energies = st.payloads, st.mimes, st.energies
	st.payloads, st.mimes, st.energies = nil, nil, nil
	return payloads, mimes, energies
}

// restoreBatch pushes a failed batch back to the head of the buffer in
// order, so the next tick retries it before newer fragments. Caller must
// hold st.mu.
func (st *state) restoreBatch(payloads [][]byte, mimes []string, energies []float64) {
	st.payloads = append(payloads, st.payloads...)
	st.mimes = append(mimes, st.mimes...)
	st.energies = append(energies, st.energies...)
}

// bufferedSize sums the in-memory fragment bytes. Caller must hold st.mu.
func (st *state) bufferedSize() int64 {
	var n int64
	for _, p := range st.payloads {
		n += int64(len(p))
	}
	return n
}

// clearBuffers drops all in-memory fragment state. The start time
// survives so finalisation can compute the session duration. Caller must
// hold st.mu.
func (st *state) clearBuffers() {
	st.payloads, st.mimes, st.energies = nil, nil, nil
	st.total = 0
}

// batchEnergy averages the known fragment levels. known is false when no
// fragment in the batch reported one.
func batchEnergy(energies []float64) (avg float64, known bool) {
	sum, n := 0.0, 0
	for _, e := range energies {
		if e >= 0 {
			sum += e
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
