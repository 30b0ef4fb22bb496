package telephony

import (
	"context"
	"io"
	"sync"
)

// MockStream is a channel-backed Stream for testing bridge sessions.
type MockStream struct {
	mu     sync.Mutex
	closed bool

	// Inbound messages delivered by Read.
	Incoming chan *Message

	// Captured outbound messages.
	Sent []*Message

	// Configurable behavior
	SendFunc func(*Message) error
}

// NewMockStream creates a mock stream with a buffered inbound queue.
func NewMockStream() *MockStream {
	return &MockStream{
		Incoming: make(chan *Message, 64),
	}
}

// Read implements Stream. It returns io.EOF once Incoming is closed.
func (m *MockStream) Read() (*Message, error) {
	msg, ok := <-m.Incoming
	if !ok {
		return nil, io.EOF
	}
	return msg, nil
}

// Send implements Stream.
func (m *MockStream) Send(msg *Message) error {
	if m.SendFunc != nil {
		return m.SendFunc(msg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, msg)
	return nil
}

// SentEvents returns the event types of all captured outbound messages.
func (m *MockStream) SentEvents() []EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := make([]EventType, len(m.Sent))
	for i, msg := range m.Sent {
		events[i] = msg.Event
	}
	return events
}

// Close closes the inbound queue, unblocking Read with io.EOF. Safe to call
// more than once.
func (m *MockStream) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.Incoming)
	return nil
}

// MockController is a Controller that records hangups.
type MockController struct {
	mu sync.Mutex

	EndedCalls []string

	// Configurable behavior
	EndCallFunc func(ctx context.Context, callSID string) error
}

// NewMockController creates a mock call controller.
func NewMockController() *MockController {
	return &MockController{}
}

// EndCall implements Controller.
func (m *MockController) EndCall(ctx context.Context, callSID string) error {
	if m.EndCallFunc != nil {
		return m.EndCallFunc(ctx, callSID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EndedCalls = append(m.EndedCalls, callSID)
	return nil
}

// Ended reports whether the given call was hung up.
func (m *MockController) Ended(callSID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sid := range m.EndedCalls {
		if sid == callSID {
			return true
		}
	}
	return false
}

var _ Stream = (*MockStream)(nil)
var _ Controller = (*MockController)(nil)
