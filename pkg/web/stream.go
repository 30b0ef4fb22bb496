package web

import (
	"sync"

	"github.com/gofiber/contrib/websocket"

	"github.com/probelab/callprobe/internal/log"
	"github.com/probelab/callprobe/pkg/telephony"
)

// wsConn is the slice of the websocket connection the stream uses.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Stream adapts a media-stream websocket connection to telephony.Stream.
// Malformed frames are dropped, not fatal; writes are serialized.
type Stream struct {
	conn    wsConn
	writeMu sync.Mutex

	mu       sync.Mutex
	pushback []*telephony.Message
	closed   bool
}

var _ telephony.Stream = (*Stream)(nil)

func NewStream(conn wsConn) *Stream {
	return &Stream{conn: conn}
}

// Pushback requeues a message so the next Read returns it. Used when the
// handler consumes the stream-start frame before handing the socket to a
// session.
func (s *Stream) Pushback(msg *telephony.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushback = append(s.pushback, msg)
}

func (s *Stream) Read() (*telephony.Message, error) {
	s.mu.Lock()
	if len(s.pushback) > 0 {
		msg := s.pushback[0]
		s.pushback = s.pushback[1:]
		s.mu.Unlock()
		return msg, nil
	}
	s.mu.Unlock()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		msg, err := telephony.ParseMessage(data)
		if err != nil {
			log.Warn("web: dropping malformed media message", "error", err)
			continue
		}
		return msg, nil
	}
}

func (s *Stream) Send(msg *telephony.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.conn.Close()
}
