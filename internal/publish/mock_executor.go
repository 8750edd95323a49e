package publish

import (
	"context"
	"fmt"
	"sync"
)

// MockExecutor is a hand-written Executor used in unit tests.
// Results are scripted per item id; unscripted items succeed.
type MockExecutor struct {
	mu     sync.Mutex
	calls  []Request
	errs   map[string][]error
	closed bool
}

func NewMockExecutor() *MockExecutor {
	return &MockExecutor{errs: make(map[string][]error)}
}

// FailWith queues errors returned by the next publishes of itemID, in order.
func (m *MockExecutor) FailWith(itemID string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[itemID] = append(m.errs[itemID], errs...)
}

func (m *MockExecutor) Publish(_ context.Context, r Request) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, r)
	if queued := m.errs[r.ItemID]; len(queued) > 0 {
		err := queued[0]
		m.errs[r.ItemID] = queued[1:]
		if err != nil {
			return nil, err
		}
	}
	return &Result{RemoteID: fmt.Sprintf("remote-%s", r.ItemID)}, nil
}

// Calls returns the publish requests received so far.
func (m *MockExecutor) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.calls...)
}

func (m *MockExecutor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockExecutor) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

var _ Executor = (*MockExecutor)(nil)
