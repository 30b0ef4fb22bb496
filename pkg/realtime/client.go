package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/probelab/callprobe/internal/log"
)

const (
	openAIRealtimeURL = "wss://api.openai.com/v1/realtime"
	openAIModel       = "gpt-4o-realtime-preview-2024-12-17"
)

var (
	ErrNotConnected   = errors.New("realtime: not connected")
	ErrAlreadyStarted = errors.New("realtime: already connected")
	ErrMissingAPIKey  = errors.New("realtime: missing API key")
)

// Endpoint is the duplex AI-side stream a bridge session talks to. Events
// returns the inbound message stream; the channel is closed when the
// connection ends.
type Endpoint interface {
	Connect(ctx context.Context) error
	Close() error
	Events() <-chan Event

	ConfigureSession(opts SessionOptions) error
	AppendAudio(audio []byte) error
	TruncateUtterance(utteranceID string, elapsedMS int64) error
	CreateUserMessage(text string) error
	CreateResponse() error
}

// Client implements Endpoint against the OpenAI Realtime API over a single
// WebSocket connection.
type Client struct {
	apiKey string
	model  string
	url    string

	ws   *websocket.Conn
	wsMu sync.Mutex

	mu        sync.Mutex
	connected bool
	closed    bool

	events chan Event
	done   chan struct{}
}

var _ Endpoint = (*Client)(nil)

// NewClient creates a realtime client. The connection is established by
// Connect.
func NewClient(apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	return &Client{
		apiKey: apiKey,
		model:  openAIModel,
		url:    openAIRealtimeURL,
		events: make(chan Event, 256),
		done:   make(chan struct{}),
	}, nil
}

// Connect dials the endpoint and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected || c.closed {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.mu.Unlock()

	header := make(map[string][]string)
	header["Authorization"] = []string{"Bearer " + c.apiKey}
	header["OpenAI-Beta"] = []string{"realtime=v1"}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	url := fmt.Sprintf("%s?model=%s", c.url, c.model)
	ws, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return fmt.Errorf("realtime: failed to connect: %w", err)
	}

	ws.SetPingHandler(func(appData string) error {
		c.wsMu.Lock()
		defer c.wsMu.Unlock()
		return ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	c.mu.Lock()
	c.ws = ws
	c.connected = true
	c.mu.Unlock()

	go c.readLoop(ws)

	return nil
}

// Close shuts down the connection. The event channel is closed by the read
// loop once it unwinds.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	ws := c.ws
	c.mu.Unlock()
	close(c.done)

	if ws != nil {
		return ws.Close()
	}
	return nil
}

// Events returns the inbound event stream.
func (c *Client) Events() <-chan Event {
	return c.events
}

// ConfigureSession sends session.update with audio formats, VAD tuning,
// voice, and system instructions.
func (c *Client) ConfigureSession(opts SessionOptions) error {
	voice := opts.Voice
	if voice == "" {
		voice = "coral"
	}
	format := opts.AudioFormat
	if format == "" {
		format = "g711_ulaw"
	}
	threshold := opts.VADThreshold
	if threshold == 0 {
		threshold = 0.8
	}
	temperature := opts.Temperature
	if temperature == 0 {
		temperature = 0.7
	}

	msg := map[string]any{
		"type": "session.update",
		"session": map[string]any{
			"modalities":          []string{"text", "audio"},
			"instructions":        opts.Instructions,
			"voice":               voice,
			"input_audio_format":  format,
			"output_audio_format": format,
			"input_audio_transcription": map[string]any{
				"model": "whisper-1",
			},
			"turn_detection": map[string]any{
				"type":      "server_vad",
				"threshold": threshold,
			},
			"temperature": temperature,
		},
	}

	return c.sendJSON(msg)
}

// AppendAudio streams one frame of caller audio to the endpoint.
func (c *Client) AppendAudio(audio []byte) error {
	return c.sendJSON(map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": base64.StdEncoding.EncodeToString(audio),
	})
}

// TruncateUtterance cuts the in-flight assistant utterance at the elapsed
// playback time so the endpoint's conversation state matches what the caller
// actually heard.
func (c *Client) TruncateUtterance(utteranceID string, elapsedMS int64) error {
	return c.sendJSON(map[string]any{
		"type":          "conversation.item.truncate",
		"item_id":       utteranceID,
		"content_index": 0,
		"audio_end_ms":  elapsedMS,
	})
}

// CreateUserMessage injects a text conversation item, typically the opening
// prompt that kicks off the call.
func (c *Client) CreateUserMessage(text string) error {
	return c.sendJSON(map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type": "message",
			"role": "user",
			"content": []map[string]any{
				{"type": "input_text", "text": text},
			},
		},
	})
}

// CreateResponse asks the endpoint to start generating a reply.
func (c *Client) CreateResponse() error {
	return c.sendJSON(map[string]string{"type": "response.create"})
}

// serverEvent is the wire shape of endpoint messages. Only the fields the
// bridge consumes are decoded.
type serverEvent struct {
	Type       string `json:"type"`
	Delta      string `json:"delta,omitempty"`
	ItemID     string `json:"item_id,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Error      *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Response *struct {
		ID string `json:"id"`
	} `json:"response,omitempty"`
}

// readLoop pumps wire messages into the typed event channel until the
// connection closes, then closes the channel.
func (c *Client) readLoop(ws *websocket.Conn) {
	defer close(c.events)

	for {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}

		_, data, err := ws.ReadMessage()
		if err != nil {
			c.deliver(Event{Kind: KindError, Err: fmt.Errorf("realtime: read: %w", err)})
			return
		}

		var raw serverEvent
		if err := json.Unmarshal(data, &raw); err != nil {
			log.Warn("realtime: dropping malformed message", "error", err)
			continue
		}

		ev, ok := translate(raw)
		if !ok {
			continue
		}
		if !c.deliver(ev) {
			return
		}
	}
}

// deliver queues an event for the session, giving up once Close is called so
// a full buffer cannot strand the read loop.
func (c *Client) deliver(ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

// translate maps a wire message onto the typed event union. Messages the
// bridge has no use for (session acks, rate-limit notices) are skipped.
func translate(raw serverEvent) (Event, bool) {
	switch raw.Type {
	case "conversation.item.input_audio_transcription.completed":
		return Event{Kind: KindTranscriptDelta, Text: raw.Transcript}, true

	case "response.audio.delta":
		audio, err := base64.StdEncoding.DecodeString(raw.Delta)
		if err != nil {
			log.Warn("realtime: dropping undecodable audio delta", "error", err)
			return Event{}, false
		}
		return Event{Kind: KindAudioDelta, Audio: audio, UtteranceID: raw.ItemID}, true

	case "response.audio_transcript.delta":
		return Event{Kind: KindResponseTextDelta, Text: raw.Delta, UtteranceID: raw.ItemID}, true

	case "response.done":
		id := ""
		if raw.Response != nil {
			id = raw.Response.ID
		}
		return Event{Kind: KindResponseDone, UtteranceID: id}, true

	case "input_audio_buffer.speech_started":
		return Event{Kind: KindSpeechStarted}, true

	case "error":
		msg := "unknown endpoint error"
		if raw.Error != nil {
			msg = raw.Error.Message
		}
		return Event{Kind: KindError, Err: fmt.Errorf("realtime: endpoint error: %s", msg)}, true
	}

	return Event{}, false
}

func (c *Client) sendJSON(v any) error {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()

	if c.ws == nil {
		return ErrNotConnected
	}
	return c.ws.WriteJSON(v)
}
