package module

import "sync"

// MockFacade is a Facade that records everything sent through it.
// RegisterModule forwards to Registry when one is set.
type MockFacade struct {
	Registry *Registry

	mu       sync.Mutex
	messages []string
	errors   []string
	stops    int
}

// SendMessage records text as a message.
func (m *MockFacade) SendMessage(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, text)
}

// SendError records text as an error.
func (m *MockFacade) SendError(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, text)
}

// Stop counts shutdown requests.
func (m *MockFacade) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
}

// RegisterModule registers d with Registry, if any.
func (m *MockFacade) RegisterModule(d Descriptor) error {
	if m.Registry == nil {
		return nil
	}
	return m.Registry.Register(d)
}

// Messages returns a copy of the recorded messages.
func (m *MockFacade) Messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages...)
}

// Errors returns a copy of the recorded errors.
func (m *MockFacade) Errors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.errors...)
}

// Stops returns how many times Stop was called.
func (m *MockFacade) Stops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

// Reset clears everything recorded so far.
func (m *MockFacade) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages, m.errors, m.stops = nil, nil, 0
}
