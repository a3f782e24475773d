package ha

import (
	"fmt"
	"sync"
	"time"
)

// ServiceCall records a service call for testing.
type ServiceCall struct {
	Domain  string
	Service string
	Data    map[string]any
	Time    time.Time
}

// MockClient implements HAClient for testing.
type MockClient struct {
	connected    bool
	connMu       sync.RWMutex
	serviceCalls []ServiceCall
	callsMu      sync.Mutex
	failCalls    bool
}

// NewMockClient creates a new mock Home Assistant client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Connect simulates connecting to Home Assistant.
func (m *MockClient) Connect() error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}
	m.connected = true
	return nil
}

// Disconnect simulates disconnecting.
func (m *MockClient) Disconnect() error {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	m.connected = false
	return nil
}

// IsConnected returns the connection status.
func (m *MockClient) IsConnected() bool {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	return m.connected
}

// FailCalls makes every subsequent service call return an error.
func (m *MockClient) FailCalls(fail bool) {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	m.failCalls = fail
}

// CallService records the service call.
func (m *MockClient) CallService(domain, service string, data map[string]any) error {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()

	if m.failCalls {
		return fmt.Errorf("service call failed")
	}
	m.serviceCalls = append(m.serviceCalls, ServiceCall{
		Domain:  domain,
		Service: service,
		Data:    data,
		Time:    time.Now(),
	})
	return nil
}

// SetInputBoolean records an input_boolean service call.
func (m *MockClient) SetInputBoolean(name string, value bool) error {
	service := "turn_off"
	if value {
		service = "turn_on"
	}
	return m.CallService("input_boolean", service, map[string]any{
		"entity_id": fmt.Sprintf("input_boolean.%s", name),
	})
}

// SetInputNumber records an input_number service call.
func (m *MockClient) SetInputNumber(name string, value float64) error {
	return m.CallService("input_number", "set_value", map[string]any{
		"entity_id": fmt.Sprintf("input_number.%s", name),
		"value":     value,
	})
}

// SetInputText records an input_text service call.
func (m *MockClient) SetInputText(name string, value string) error {
	return m.CallService("input_text", "set_value", map[string]any{
		"entity_id": fmt.Sprintf("input_text.%s", name),
		"value":     value,
	})
}

// GetServiceCalls returns all recorded service calls.
func (m *MockClient) GetServiceCalls() []ServiceCall {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	return append([]ServiceCall(nil), m.serviceCalls...)
}

// ClearServiceCalls clears recorded service calls.
func (m *MockClient) ClearServiceCalls() {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	m.serviceCalls = nil
}
