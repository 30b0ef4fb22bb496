package scenario

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store for tests and for running without a
// database.
type Memory struct {
	mu    sync.RWMutex
	tests map[string]*Test
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{tests: make(map[string]*Test)}
}

func (m *Memory) Create(ctx context.Context, t *Test) error {
	if t.ID == "" {
		return ErrMissingID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tests[t.ID]; ok {
		return fmt.Errorf("scenario: test %s already exists", t.ID)
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	cp := *t
	m.tests[t.ID] = &cp
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (*Test, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tests[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *Memory) List(ctx context.Context) ([]*Test, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tests := make([]*Test, 0, len(m.tests))
	for _, t := range m.tests {
		cp := *t
		tests = append(tests, &cp)
	}
	sort.Slice(tests, func(i, j int) bool { return tests[i].CreatedAt.Before(tests[j].CreatedAt) })
	return tests, nil
}

func (m *Memory) UpdateStatus(ctx context.Context, id string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tests[id]
	if !ok {
		return ErrNotFound
	}
	if !validTransition(t.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrBadStatus, t.Status, status)
	}
	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	return nil
}
