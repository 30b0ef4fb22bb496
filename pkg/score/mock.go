package score

import (
	"context"
	"sync"
)

// Mock is a configurable Scorer for tests.
type Mock struct {
	mu sync.Mutex

	ScoreFunc func(ctx context.Context, question, expected string, conversation []Turn) (Metrics, error)

	Calls []MockCall
}

// MockCall records one Score invocation.
type MockCall struct {
	Question     string
	Expected     string
	Conversation []Turn
}

var _ Scorer = (*Mock)(nil)

func (m *Mock) Score(ctx context.Context, question, expected string, conversation []Turn) (Metrics, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Question: question, Expected: expected, Conversation: conversation})
	m.mu.Unlock()

	if m.ScoreFunc != nil {
		return m.ScoreFunc(ctx, question, expected, conversation)
	}
	return Metrics{Accuracy: 1, Empathy: 1, Successful: true}, nil
}

// CallCount reports how many times Score was invoked.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
