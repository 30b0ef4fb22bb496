// Package scenario holds the evaluation test definitions a call runs
// against: the persona the AI plays, the caller behavior under test, and the
// opening question.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound  = errors.New("scenario: test not found")
	ErrBadStatus = errors.New("scenario: invalid status transition")
	ErrMissingID = errors.New("scenario: missing test id")
)

// Status tracks a test through its lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Test is one evaluation scenario. Persona and Behavior become the system
// instructions for the AI side; Question is the opening prompt; Expected is
// the reference answer scoring compares against.
type Test struct {
	ID        string
	Persona   string
	Behavior  string
	Question  string
	Expected  string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Instructions renders the system prompt for this test.
func (t *Test) Instructions() string {
	return fmt.Sprintf(
		"You are role-playing as %s. %s Stay in character for the whole call. "+
			"Speak naturally and keep replies short, this is a phone conversation.",
		t.Persona, t.Behavior)
}

// Store persists tests and their lifecycle status.
type Store interface {
	Create(ctx context.Context, t *Test) error
	Get(ctx context.Context, id string) (*Test, error)
	List(ctx context.Context) ([]*Test, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
}

// validTransition enforces the lifecycle: pending -> in_progress -> terminal.
func validTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusInProgress || to == StatusFailed
	case StatusInProgress:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}
