package scenario

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func newTest(id string) *Test {
	return &Test{
		ID:       id,
		Persona:  "a patient support agent",
		Behavior: "The caller will interrupt you mid-sentence.",
		Question: "What are your opening hours?",
		Expected: "We are open 9 to 5 on weekdays.",
	}
}

func TestInstructions(t *testing.T) {
	test := newTest("t1")
	got := test.Instructions()
	if !strings.Contains(got, test.Persona) {
		t.Errorf("instructions missing persona: %q", got)
	}
	if !strings.Contains(got, test.Behavior) {
		t.Errorf("instructions missing behavior: %q", got)
	}
}

func TestMemoryCreateAndGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.Create(ctx, newTest("t1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.Create(ctx, newTest("t1")); err == nil {
		t.Error("duplicate create should fail")
	}
	if err := m.Create(ctx, &Test{}); !errors.Is(err, ErrMissingID) {
		t.Errorf("empty id err = %v", err)
	}

	got, err := m.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("status = %q, want pending", got.Status)
	}

	if _, err := m.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing err = %v", err)
	}
}

func TestMemoryStatusTransitions(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name  string
		steps []Status
		fails int // index of the step expected to fail, -1 for none
	}{
		{"happy path", []Status{StatusInProgress, StatusCompleted}, -1},
		{"fail early", []Status{StatusFailed}, -1},
		{"fail mid call", []Status{StatusInProgress, StatusFailed}, -1},
		{"skip in_progress", []Status{StatusCompleted}, 0},
		{"reopen completed", []Status{StatusInProgress, StatusCompleted, StatusInProgress}, 2},
		{"reopen failed", []Status{StatusFailed, StatusInProgress}, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewMemory()
			if err := m.Create(ctx, newTest("t1")); err != nil {
				t.Fatal(err)
			}
			for i, s := range tc.steps {
				err := m.UpdateStatus(ctx, "t1", s)
				if i == tc.fails {
					if !errors.Is(err, ErrBadStatus) {
						t.Fatalf("step %d err = %v, want ErrBadStatus", i, err)
					}
					return
				}
				if err != nil {
					t.Fatalf("step %d: %v", i, err)
				}
			}
		})
	}
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.Create(ctx, newTest("t1")); err != nil {
		t.Fatal(err)
	}

	got, _ := m.Get(ctx, "t1")
	got.Persona = "mutated"

	again, _ := m.Get(ctx, "t1")
	if again.Persona == "mutated" {
		t.Error("Get leaked internal state")
	}
}

func TestMemoryListOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, id := range []string{"a", "b", "c"} {
		if err := m.Create(ctx, newTest(id)); err != nil {
			t.Fatal(err)
		}
	}
	tests, err := m.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(tests) != 3 {
		t.Fatalf("len = %d", len(tests))
	}
}
