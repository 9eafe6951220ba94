package provider

import (
	"context"
	"sync"

	"github.com/veiloq/wallet-bridge/pkg/jsonrpc"
)

// RequestHandler produces the outcome of a mock provider RPC call.
type RequestHandler func(method string, params []interface{}) (interface{}, error)

// MockProvider implements Provider (and optionally Initializer) for
// testing. It tracks per-method call counts and listener registrations
// and lets tests script request outcomes.
type MockProvider struct {
	mu sync.Mutex

	handler   RequestHandler
	listeners map[string][]*Listener

	// For verifying test expectations
	requestCalls    map[string]int
	initializeCalls int

	// For simulating errors
	requestErrs   map[string][]error
	initializeErr error
}

// NewMockProvider creates a mock provider whose requests succeed with a
// nil result until a handler or scripted errors are installed.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		listeners:    make(map[string][]*Listener),
		requestCalls: make(map[string]int),
		requestErrs:  make(map[string][]error),
	}
}

// Request implements Provider interface
func (m *MockProvider) Request(_ context.Context, method string, params []interface{}) (interface{}, error) {
	m.mu.Lock()
	m.requestCalls[method]++
	if queue := m.requestErrs[method]; len(queue) > 0 {
		err := queue[0]
		m.requestErrs[method] = queue[1:]
		m.mu.Unlock()
		return nil, err
	}
	handler := m.handler
	m.mu.Unlock()

	if handler != nil {
		return handler(method, params)
	}
	return nil, nil
}

// On implements Provider interface
func (m *MockProvider) On(event string, listener *Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners[event] = append(m.listeners[event], listener)
}

// RemoveListener implements Provider interface
func (m *MockProvider) RemoveListener(event string, listener *Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.listeners[event]
	for i, l := range current {
		if l == listener {
			m.listeners[event] = append(current[:i:i], current[i+1:]...)
			return
		}
	}
}

// Initialize implements Initializer interface
func (m *MockProvider) Initialize(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initializeCalls++
	return m.initializeErr
}

// Emit invokes every listener registered for event.
func (m *MockProvider) Emit(event string, args ...interface{}) {
	m.mu.Lock()
	current := make([]*Listener, len(m.listeners[event]))
	copy(current, m.listeners[event])
	m.mu.Unlock()

	for _, l := range current {
		l.Invoke(args...)
	}
}

// SetRequestHandler installs a handler for request outcomes.
func (m *MockProvider) SetRequestHandler(handler RequestHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// QueueRequestError queues an error returned by the next Request call
// for method; subsequent calls fall through to the handler.
func (m *MockProvider) QueueRequestError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestErrs[method] = append(m.requestErrs[method], err)
}

// QueueUserRejection queues a 4001 user-rejected error for method.
func (m *MockProvider) QueueUserRejection(method string) {
	m.QueueRequestError(method, &jsonrpc.ErrorObject{
		Code:    jsonrpc.CodeUserRejected,
		Message: "user rejected request",
	})
}

// SetInitializeError sets an error to be returned by Initialize
func (m *MockProvider) SetInitializeError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initializeErr = err
}

// GetRequestCalls returns the number of times Request was called for a method
func (m *MockProvider) GetRequestCalls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCalls[method]
}

// GetInitializeCalls returns the number of times Initialize was called
func (m *MockProvider) GetInitializeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initializeCalls
}

// ListenerCount returns the number of listeners registered for event
func (m *MockProvider) ListenerCount(event string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners[event])
}
