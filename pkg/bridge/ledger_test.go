package bridge

import (
	"errors"
	"testing"
)

func TestLedgerSequencesAreContiguous(t *testing.T) {
	l := NewLedger()
	for i := 0; i < 5; i++ {
		speaker := SpeakerAgent
		if i%2 == 1 {
			speaker = SpeakerEvaluator
		}
		l.Append(speaker, "text", "")
	}

	turns := l.Snapshot()
	if len(turns) != 5 {
		t.Fatalf("len = %d", len(turns))
	}
	for i, turn := range turns {
		if turn.Sequence != i+1 {
			t.Errorf("turn %d sequence = %d, want %d", i, turn.Sequence, i+1)
		}
	}
	if l.NextSequence() != 6 {
		t.Errorf("next sequence = %d, want 6", l.NextSequence())
	}
}

func TestLedgerAmendOnce(t *testing.T) {
	l := NewLedger()
	turn := l.Append(SpeakerAgent, "", "")

	if err := l.AmendText(turn.Sequence, "hello"); err != nil {
		t.Fatalf("first amend: %v", err)
	}
	if err := l.AmendText(turn.Sequence, "overwrite"); !errors.Is(err, ErrFieldOccupied) {
		t.Errorf("second amend err = %v, want ErrFieldOccupied", err)
	}

	if err := l.AmendAudio(turn.Sequence, "memory://a.wav"); err != nil {
		t.Fatalf("audio amend: %v", err)
	}
	if err := l.AmendAudio(turn.Sequence, "memory://b.wav"); !errors.Is(err, ErrFieldOccupied) {
		t.Errorf("second audio amend err = %v, want ErrFieldOccupied", err)
	}

	got := l.Snapshot()[0]
	if got.Text != "hello" || got.AudioRef != "memory://a.wav" {
		t.Errorf("turn = %+v", got)
	}
}

func TestLedgerAmendMissingTurn(t *testing.T) {
	l := NewLedger()
	if err := l.AmendText(1, "x"); !errors.Is(err, ErrTurnNotFound) {
		t.Errorf("err = %v, want ErrTurnNotFound", err)
	}
	if err := l.AmendText(0, "x"); !errors.Is(err, ErrTurnNotFound) {
		t.Errorf("sequence 0 err = %v, want ErrTurnNotFound", err)
	}
}

func TestLedgerLastMissing(t *testing.T) {
	l := NewLedger()

	if _, ok := l.LastMissingText(SpeakerAgent); ok {
		t.Error("empty ledger reported amendable turn")
	}

	l.Append(SpeakerAgent, "", "memory://1.wav")
	l.Append(SpeakerEvaluator, "full", "memory://2.wav")

	seq, ok := l.LastMissingText(SpeakerAgent)
	if !ok || seq != 1 {
		t.Errorf("LastMissingText = %d, %v", seq, ok)
	}
	if _, ok := l.LastMissingText(SpeakerEvaluator); ok {
		t.Error("complete evaluator turn reported as amendable")
	}

	// A newer complete turn for the speaker blocks amending older ones.
	l.Append(SpeakerAgent, "newer", "memory://3.wav")
	if _, ok := l.LastMissingText(SpeakerAgent); ok {
		t.Error("amend should only target the speaker's newest turn")
	}
}

func TestLedgerSnapshotIsolation(t *testing.T) {
	l := NewLedger()
	l.Append(SpeakerAgent, "original", "")

	snap := l.Snapshot()
	snap[0].Text = "mutated"

	if l.Snapshot()[0].Text != "original" {
		t.Error("snapshot aliased ledger storage")
	}
}
