// Package mock provides a scriptable test double for [transcriber.Provider].
package mock

import (
	"context"
	"sync"

	"github.com/agnij-dutta/attack-capital/pkg/provider/transcriber"
)

// Provider is a configurable test double for [transcriber.Provider].
// Results are consumed in order; when the script runs out the last entry
// repeats. The zero value returns empty text forever.
//
// All fields must be set before first use; the mock is then safe for
// concurrent use.
type Provider struct {
	mu sync.Mutex

	// Results are returned by successive Transcribe calls.
	Results []string

	// Errs are paired with Results by index; a nil entry means success.
	Errs []error

	// Delay, when non-nil, is closed-over per call: Transcribe blocks until
	// the function returns. Used to simulate slow upstream calls.
	Delay func(ctx context.Context) error

	calls []transcriber.Request
}

// Compile-time interface check.
var _ transcriber.Provider = (*Provider)(nil)

// Transcribe implements [transcriber.Provider].
func (m *Provider) Transcribe(ctx context.Context, req transcriber.Request) (string, error) {
	m.mu.Lock()
	i := len(m.calls)
	m.calls = append(m.calls, req)
	delay := m.Delay
	m.mu.Unlock()

	if delay != nil {
		if err := delay(ctx); err != nil {
			return "", err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	if len(m.Errs) > 0 {
		j := min(i, len(m.Errs)-1)
		err = m.Errs[j]
	}
	if err != nil {
		return "", err
	}
	if len(m.Results) == 0 {
		return "", nil
	}
	return m.Results[min(i, len(m.Results)-1)], nil
}

// Calls returns a copy of every request received so far.
func (m *Provider) Calls() []transcriber.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]transcriber.Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Transcribe invocations.
func (m *Provider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
