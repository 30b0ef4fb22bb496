package realtime

import (
	"context"
	"sync"
)

// Mock is an in-memory Endpoint for tests. Inbound events are injected with
// Emit; every outbound call is captured for assertions. Zero value usable via
// NewMock.
type Mock struct {
	mu sync.Mutex

	events chan Event
	closed bool

	ConnectFunc func(ctx context.Context) error

	Configured  []SessionOptions
	Appended    [][]byte
	Truncations []Truncation
	UserTexts   []string
	Responses   int
}

// Truncation records one TruncateUtterance call.
type Truncation struct {
	UtteranceID string
	ElapsedMS   int64
}

var _ Endpoint = (*Mock)(nil)

func NewMock() *Mock {
	return &Mock{events: make(chan Event, 256)}
}

// Emit injects an inbound event as if it arrived from the endpoint.
func (m *Mock) Emit(ev Event) {
	m.events <- ev
}

func (m *Mock) Connect(ctx context.Context) error {
	if m.ConnectFunc != nil {
		return m.ConnectFunc(ctx)
	}
	return nil
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.events)
	return nil
}

func (m *Mock) Events() <-chan Event {
	return m.events
}

func (m *Mock) ConfigureSession(opts SessionOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Configured = append(m.Configured, opts)
	return nil
}

func (m *Mock) AppendAudio(audio []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(audio))
	copy(buf, audio)
	m.Appended = append(m.Appended, buf)
	return nil
}

func (m *Mock) TruncateUtterance(utteranceID string, elapsedMS int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Truncations = append(m.Truncations, Truncation{UtteranceID: utteranceID, ElapsedMS: elapsedMS})
	return nil
}

func (m *Mock) CreateUserMessage(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UserTexts = append(m.UserTexts, text)
	return nil
}

func (m *Mock) CreateResponse() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses++
	return nil
}

// TruncationCount returns how many truncate calls were captured.
func (m *Mock) TruncationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Truncations)
}

// AppendedBytes returns the total caller audio bytes forwarded so far.
func (m *Mock) AppendedBytes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.Appended {
		n += len(a)
	}
	return n
}
