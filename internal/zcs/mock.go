package zcs

import (
	"context"
	"sync"
)

// Call records one Execute invocation for testing.
type Call struct {
	Command string
	Params  map[string]any
}

// MockAPI implements the API interface for testing. Responses and errors are
// scripted per command; every Execute call is recorded in order.
type MockAPI struct {
	mu        sync.Mutex
	calls     []Call
	responses map[string]map[string]any
	errors    map[string]error
	last      map[string]any
}

// NewMockAPI creates a new mock vendor API.
func NewMockAPI() *MockAPI {
	return &MockAPI{
		responses: make(map[string]map[string]any),
		errors:    make(map[string]error),
	}
}

// SetResponse scripts the payload returned for a command.
func (m *MockAPI) SetResponse(command string, payload map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[command] = payload
}

// SetError scripts a failure for a command.
func (m *MockAPI) SetError(command string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[command] = err
}

// ClearError removes a scripted failure.
func (m *MockAPI) ClearError(command string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.errors, command)
}

// Execute records the call and plays back the scripted outcome.
func (m *MockAPI) Execute(_ context.Context, command string, params map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, Call{Command: command, Params: params})
	if err := m.errors[command]; err != nil {
		return err
	}
	if payload, ok := m.responses[command]; ok {
		m.last = payload
	}
	return nil
}

// Response returns the payload of the last successful scripted command.
func (m *MockAPI) Response() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Calls returns a copy of all recorded calls.
func (m *MockAPI) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallsFor returns the recorded calls for one command.
func (m *MockAPI) CallsFor(command string) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()

	var calls []Call
	for _, call := range m.calls {
		if call.Command == command {
			calls = append(calls, call)
		}
	}
	return calls
}

// Reset clears recorded calls.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}
