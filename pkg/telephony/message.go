// Package telephony defines the media-stream WebSocket protocol spoken by the
// call controller (Twilio Media Streams framing) and the REST control surface
// used to end calls.
package telephony

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
)

// EventType identifies the type of media-stream message.
type EventType string

const (
	// Controller → Bridge events
	EventConnected EventType = "connected" // Socket established
	EventStart     EventType = "start"     // Media stream metadata
	EventMedia     EventType = "media"     // Audio frame
	EventMark      EventType = "mark"      // Playback marker echo
	EventStop      EventType = "stop"      // Stream ended

	// Bridge → Controller events
	EventClear EventType = "clear" // Discard queued playback
)

// Message is the wire format for all media-stream messages. Exactly one of
// the payload fields is set, matching Event.
type Message struct {
	Event     EventType  `json:"event"`
	StreamSID string     `json:"streamSid,omitempty"`
	Start     *StartData `json:"start,omitempty"`
	Media     *MediaData `json:"media,omitempty"`
	Mark      *MarkData  `json:"mark,omitempty"`
	Stop      *StopData  `json:"stop,omitempty"`
}

// StartData carries stream metadata sent once when media begins flowing.
// StreamSID is the correlation token required before any outbound audio.
type StartData struct {
	StreamSID        string            `json:"streamSid"`
	AccountSID       string            `json:"accountSid,omitempty"`
	CallSID          string            `json:"callSid"`
	Tracks           []string          `json:"tracks,omitempty"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

// MediaData carries one audio frame. Payload is base64 G.711 mu-law and
// Timestamp is the stream-relative presentation time in milliseconds,
// transmitted as a decimal string.
type MediaData struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

// MarkData names a playback marker.
type MarkData struct {
	Name string `json:"name"`
}

// StopData carries stream teardown metadata.
type StopData struct {
	AccountSID string `json:"accountSid,omitempty"`
	CallSID    string `json:"callSid,omitempty"`
}

// Audio decodes the frame payload.
func (m *MediaData) Audio() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(m.Payload)
	if err != nil {
		return nil, fmt.Errorf("telephony: bad media payload: %w", err)
	}
	return data, nil
}

// TimestampMS parses the frame timestamp. Returns 0 for missing or malformed
// timestamps; the stream clock starts at zero anyway.
func (m *MediaData) TimestampMS() int64 {
	if m.Timestamp == "" {
		return 0
	}
	ts, err := strconv.ParseInt(m.Timestamp, 10, 64)
	if err != nil {
		return 0
	}
	return ts
}

// ParseMessage parses a JSON media-stream message.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("telephony: failed to parse message: %w", err)
	}
	if msg.Event == "" {
		return nil, fmt.Errorf("telephony: message missing event type")
	}
	return &msg, nil
}

// Bytes returns the JSON-encoded message.
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// NewMediaMessage builds an outbound audio frame for the given stream.
func NewMediaMessage(streamSID string, audio []byte) *Message {
	return &Message{
		Event:     EventMedia,
		StreamSID: streamSID,
		Media: &MediaData{
			Payload: base64.StdEncoding.EncodeToString(audio),
		},
	}
}

// NewMarkMessage builds a playback marker for the given stream.
func NewMarkMessage(streamSID, name string) *Message {
	return &Message{
		Event:     EventMark,
		StreamSID: streamSID,
		Mark:      &MarkData{Name: name},
	}
}

// NewClearMessage tells the controller to drop any queued playback audio.
func NewClearMessage(streamSID string) *Message {
	return &Message{
		Event:     EventClear,
		StreamSID: streamSID,
	}
}
