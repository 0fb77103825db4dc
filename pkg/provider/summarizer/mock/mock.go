// Package mock provides a test double for [summarizer.Provider].
package mock

import (
	"context"
	"sync"

	"github.com/agnij-dutta/attack-capital/pkg/provider/summarizer"
)

// Provider is a configurable test double for [summarizer.Provider].
type Provider struct {
	mu sync.Mutex

	// Result is returned by every Summarize call.
	Result string

	// Err is returned by Summarize when non-nil.
	Err error

	calls []string
}

// Compile-time interface check.
var _ summarizer.Provider = (*Provider)(nil)

// Summarize implements [summarizer.Provider].
func (m *Provider) Summarize(_ context.Context, transcript string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, transcript)
	if m.Err != nil {
		return "", m.Err
	}
	return m.Result, nil
}

// Calls returns a copy of every transcript received so far.
func (m *Provider) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Summarize invocations.
func (m *Provider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
