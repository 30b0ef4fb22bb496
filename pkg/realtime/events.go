// Package realtime provides the duplex client for the conversational AI
// endpoint (OpenAI Realtime API). Inbound traffic is surfaced as a typed
// event stream so the bridge can dispatch exhaustively on event kind instead
// of on raw message-type strings.
package realtime

import "fmt"

// EventKind identifies one kind of endpoint message.
type EventKind int

const (
	// KindTranscriptDelta carries transcribed caller speech.
	KindTranscriptDelta EventKind = iota
	// KindAudioDelta carries a chunk of generated assistant audio.
	KindAudioDelta
	// KindResponseTextDelta carries a fragment of the assistant's own transcript.
	KindResponseTextDelta
	// KindResponseDone signals the in-flight assistant utterance is complete.
	KindResponseDone
	// KindSpeechStarted signals the caller began speaking (server VAD).
	KindSpeechStarted
	// KindError carries an endpoint-reported failure.
	KindError
)

// String returns a human-readable event kind.
func (k EventKind) String() string {
	switch k {
	case KindTranscriptDelta:
		return "transcript.delta"
	case KindAudioDelta:
		return "audio.delta"
	case KindResponseTextDelta:
		return "response.text.delta"
	case KindResponseDone:
		return "response.done"
	case KindSpeechStarted:
		return "speech.started"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Event is one inbound endpoint message. Fields beyond Kind are populated
// per kind: Audio for audio deltas, Text for transcript fragments,
// UtteranceID for anything tied to a generated utterance, Err for errors.
type Event struct {
	Kind        EventKind
	Text        string
	Audio       []byte
	UtteranceID string
	Err         error
}

// SessionOptions configures the endpoint session before audio flows.
type SessionOptions struct {
	// Instructions is the system prompt (persona, behavior, scenario).
	Instructions string

	// Voice is the TTS voice name.
	Voice string

	// VADThreshold tunes server-side turn detection (0.0-1.0).
	VADThreshold float64

	// AudioFormat is the audio codec for both directions:
	// "g711_ulaw" for telephony passthrough or "pcm16".
	AudioFormat string

	// Temperature controls response randomness.
	Temperature float64
}
