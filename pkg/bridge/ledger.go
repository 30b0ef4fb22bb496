// Package bridge runs the realtime conversation bridge for one evaluation
// call: it relays audio between the telephony media stream and the AI
// endpoint, segments the exchange into ordered turns, and handles barge-in.
package bridge

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrTurnNotFound  = errors.New("bridge: turn not found")
	ErrFieldOccupied = errors.New("bridge: turn field already populated")
)

// Speaker identifies who produced a turn. The evaluator is the AI-driven
// caller persona; the agent is the system under test answering the phone.
type Speaker string

const (
	SpeakerEvaluator Speaker = "evaluator"
	SpeakerAgent     Speaker = "agent"
)

// Turn is one committed conversational unit. Sequence and Speaker are fixed
// at commit; Text and AudioRef may each be filled in once afterwards if they
// were missing, never overwritten.
type Turn struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	AudioRef  string    `json:"audio_ref,omitempty"`
	Sequence  int       `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
}

// Ledger is the append-only record of committed turns for one session.
// Writes come from the owning session only; readers get copies.
type Ledger struct {
	mu    sync.RWMutex
	turns []Turn
}

func NewLedger() *Ledger {
	return &Ledger{}
}

// NextSequence is the sequence the next appended turn will receive.
func (l *Ledger) NextSequence() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns) + 1
}

// Append commits a new turn and returns it with its assigned sequence.
func (l *Ledger) Append(speaker Speaker, text, audioRef string) Turn {
	l.mu.Lock()
	defer l.mu.Unlock()
	t := Turn{
		Speaker:   speaker,
		Text:      text,
		AudioRef:  audioRef,
		Sequence:  len(l.turns) + 1,
		Timestamp: time.Now().UTC(),
	}
	l.turns = append(l.turns, t)
	return t
}

// AmendText fills in the text of a committed turn that was audio-only.
func (l *Ledger) AmendText(sequence int, text string) error {
	return l.amend(sequence, func(t *Turn) error {
		if t.Text != "" {
			return fmt.Errorf("%w: text of turn %d", ErrFieldOccupied, sequence)
		}
		t.Text = text
		return nil
	})
}

// AmendAudio fills in the audio reference of a committed turn that had none.
func (l *Ledger) AmendAudio(sequence int, audioRef string) error {
	return l.amend(sequence, func(t *Turn) error {
		if t.AudioRef != "" {
			return fmt.Errorf("%w: audio of turn %d", ErrFieldOccupied, sequence)
		}
		t.AudioRef = audioRef
		return nil
	})
}

func (l *Ledger) amend(sequence int, fn func(*Turn) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if sequence < 1 || sequence > len(l.turns) {
		return fmt.Errorf("%w: sequence %d", ErrTurnNotFound, sequence)
	}
	return fn(&l.turns[sequence-1])
}

// LastMissingText finds the most recent turn by speaker still lacking text.
func (l *Ledger) LastMissingText(speaker Speaker) (int, bool) {
	return l.lastMatching(speaker, func(t Turn) bool { return t.Text == "" })
}

// LastMissingAudio finds the most recent turn by speaker still lacking audio.
func (l *Ledger) LastMissingAudio(speaker Speaker) (int, bool) {
	return l.lastMatching(speaker, func(t Turn) bool { return t.AudioRef == "" })
}

func (l *Ledger) lastMatching(speaker Speaker, match func(Turn) bool) (int, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := len(l.turns) - 1; i >= 0; i-- {
		if l.turns[i].Speaker == speaker {
			if match(l.turns[i]) {
				return l.turns[i].Sequence, true
			}
			// The newest turn for this speaker is complete, nothing to amend.
			return 0, false
		}
	}
	return 0, false
}

// Len reports how many turns are committed.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

// Snapshot returns an immutable copy of the committed turns in order.
func (l *Ledger) Snapshot() []Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Turn, len(l.turns))
	copy(out, l.turns)
	return out
}
