package bridge

import (
	"strings"
	"sync"
	"time"
)

// TurnBuffer accumulates one speaker's audio bytes and transcript fragments
// until they are flushed into a committed turn. Audio below the minimum byte
// threshold is treated as noise and discarded at flush.
type TurnBuffer struct {
	mu sync.Mutex

	speaker  Speaker
	minBytes int

	audio      []byte
	text       strings.Builder
	lastUpdate time.Time
}

func NewTurnBuffer(speaker Speaker, minBytes int) *TurnBuffer {
	return &TurnBuffer{speaker: speaker, minBytes: minBytes}
}

// Speaker identifies whose audio/text this buffer holds.
func (b *TurnBuffer) Speaker() Speaker {
	return b.speaker
}

// AppendAudio adds raw audio bytes.
func (b *TurnBuffer) AppendAudio(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.audio = append(b.audio, data...)
	b.lastUpdate = time.Now()
}

// AppendText adds a transcript fragment.
func (b *TurnBuffer) AppendText(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text.WriteString(text)
	b.lastUpdate = time.Now()
}

// AudioBytes reports how much audio has accumulated.
func (b *TurnBuffer) AudioBytes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.audio)
}

// HasText reports whether any transcript text has accumulated.
func (b *TurnBuffer) HasText() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text.Len() > 0
}

// ShouldFlush reports whether the accumulated audio alone justifies a flush.
func (b *TurnBuffer) ShouldFlush() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.audio) >= b.minBytes
}

// LastUpdate is when the buffer last received data.
func (b *TurnBuffer) LastUpdate() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastUpdate
}

// Flush drains the buffer. Audio under the minimum threshold is dropped;
// text is always returned. Both return values may be empty.
func (b *TurnBuffer) Flush() (audio []byte, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.audio) >= b.minBytes {
		audio = b.audio
	}
	b.audio = nil

	text = strings.TrimSpace(b.text.String())
	b.text.Reset()

	return audio, text
}
