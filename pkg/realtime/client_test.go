package realtime

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"
)

// A read loop stuck behind a full event buffer must unblock when the client
// closes instead of leaking.
func TestDeliverUnblocksOnClose(t *testing.T) {
	c, err := NewClient("sk-test")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < cap(c.events); i++ {
		if !c.deliver(Event{Kind: KindResponseTextDelta, Text: "x"}) {
			t.Fatal("deliver failed with buffer space available")
		}
	}

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	result := make(chan bool, 1)
	go func() { result <- c.deliver(Event{Kind: KindResponseTextDelta}) }()
	select {
	case ok := <-result:
		if ok {
			t.Error("deliver reported success after close with a full buffer")
		}
	case <-time.After(time.Second):
		t.Fatal("deliver still blocked after close")
	}
}

func mustEvent(t *testing.T, payload string) serverEvent {
	t.Helper()
	var raw serverEvent
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		t.Fatalf("unmarshal %q: %v", payload, err)
	}
	return raw
}

func TestTranslateTranscriptCompleted(t *testing.T) {
	raw := mustEvent(t, `{"type":"conversation.item.input_audio_transcription.completed","transcript":"hello there"}`)
	ev, ok := translate(raw)
	if !ok {
		t.Fatal("expected event")
	}
	if ev.Kind != KindTranscriptDelta {
		t.Errorf("kind = %v, want %v", ev.Kind, KindTranscriptDelta)
	}
	if ev.Text != "hello there" {
		t.Errorf("text = %q", ev.Text)
	}
}

func TestTranslateAudioDelta(t *testing.T) {
	audio := []byte{0xff, 0x7f, 0x00, 0x80}
	raw := mustEvent(t, `{"type":"response.audio.delta","item_id":"item_42","delta":"`+
		base64.StdEncoding.EncodeToString(audio)+`"}`)

	ev, ok := translate(raw)
	if !ok {
		t.Fatal("expected event")
	}
	if ev.Kind != KindAudioDelta {
		t.Errorf("kind = %v, want %v", ev.Kind, KindAudioDelta)
	}
	if ev.UtteranceID != "item_42" {
		t.Errorf("utterance id = %q", ev.UtteranceID)
	}
	if string(ev.Audio) != string(audio) {
		t.Errorf("audio = %v, want %v", ev.Audio, audio)
	}
}

func TestTranslateAudioDeltaBadBase64(t *testing.T) {
	raw := mustEvent(t, `{"type":"response.audio.delta","item_id":"x","delta":"%%%not-base64%%%"}`)
	if _, ok := translate(raw); ok {
		t.Error("undecodable delta should be dropped")
	}
}

func TestTranslateResponseTextDelta(t *testing.T) {
	raw := mustEvent(t, `{"type":"response.audio_transcript.delta","item_id":"item_9","delta":"partial "}`)
	ev, ok := translate(raw)
	if !ok {
		t.Fatal("expected event")
	}
	if ev.Kind != KindResponseTextDelta || ev.Text != "partial " || ev.UtteranceID != "item_9" {
		t.Errorf("got %+v", ev)
	}
}

func TestTranslateResponseDone(t *testing.T) {
	raw := mustEvent(t, `{"type":"response.done","response":{"id":"resp_1"}}`)
	ev, ok := translate(raw)
	if !ok {
		t.Fatal("expected event")
	}
	if ev.Kind != KindResponseDone || ev.UtteranceID != "resp_1" {
		t.Errorf("got %+v", ev)
	}
}

func TestTranslateSpeechStarted(t *testing.T) {
	raw := mustEvent(t, `{"type":"input_audio_buffer.speech_started"}`)
	ev, ok := translate(raw)
	if !ok || ev.Kind != KindSpeechStarted {
		t.Errorf("got %+v ok=%v", ev, ok)
	}
}

func TestTranslateError(t *testing.T) {
	raw := mustEvent(t, `{"type":"error","error":{"message":"session expired"}}`)
	ev, ok := translate(raw)
	if !ok || ev.Kind != KindError || ev.Err == nil {
		t.Fatalf("got %+v ok=%v", ev, ok)
	}
}

func TestTranslateIgnoresUnknown(t *testing.T) {
	for _, typ := range []string{
		"session.created",
		"session.updated",
		"input_audio_buffer.committed",
		"rate_limits.updated",
		"response.output_item.added",
	} {
		raw := mustEvent(t, `{"type":"`+typ+`"}`)
		if _, ok := translate(raw); ok {
			t.Errorf("type %q should be skipped", typ)
		}
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(""); err != ErrMissingAPIKey {
		t.Errorf("err = %v, want ErrMissingAPIKey", err)
	}
	c, err := NewClient("sk-test")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.Events() == nil {
		t.Error("event channel not initialized")
	}
}

func TestSendJSONNotConnected(t *testing.T) {
	c, _ := NewClient("sk-test")
	if err := c.AppendAudio([]byte{1, 2, 3}); err != ErrNotConnected {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestMockCapturesCalls(t *testing.T) {
	m := NewMock()
	defer m.Close()

	if err := m.ConfigureSession(SessionOptions{Voice: "coral"}); err != nil {
		t.Fatal(err)
	}
	if err := m.AppendAudio([]byte{0xff, 0xff}); err != nil {
		t.Fatal(err)
	}
	if err := m.TruncateUtterance("item_1", 850); err != nil {
		t.Fatal(err)
	}
	if err := m.CreateUserMessage("start the call"); err != nil {
		t.Fatal(err)
	}
	if err := m.CreateResponse(); err != nil {
		t.Fatal(err)
	}

	if len(m.Configured) != 1 || m.Configured[0].Voice != "coral" {
		t.Errorf("configured = %+v", m.Configured)
	}
	if m.AppendedBytes() != 2 {
		t.Errorf("appended bytes = %d", m.AppendedBytes())
	}
	if m.TruncationCount() != 1 || m.Truncations[0].ElapsedMS != 850 {
		t.Errorf("truncations = %+v", m.Truncations)
	}
	if len(m.UserTexts) != 1 || m.Responses != 1 {
		t.Errorf("texts = %v responses = %d", m.UserTexts, m.Responses)
	}

	m.Emit(Event{Kind: KindSpeechStarted})
	ev := <-m.Events()
	if ev.Kind != KindSpeechStarted {
		t.Errorf("emitted kind = %v", ev.Kind)
	}
}
