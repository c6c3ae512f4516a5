// Package session implements the client side of the chat pipeline: a
// visitor session and an admin session, each merging pushed events with
// polled history into a single transcript.
package session

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"portfolio-chat/internal/chat"
)

// Socket is a process-wide realtime connection resource: constructed
// eagerly, connected lazily on first use, acquired idempotently, and torn
// down explicitly. Handlers registered with On run on the read loop.
type Socket struct {
	url string
	log zerolog.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	writeMu  sync.Mutex
	handlers map[string][]func(json.RawMessage)
	closed   bool
}

// NewSocket builds the resource for a server base URL ("http://host:port").
func NewSocket(baseURL string, log zerolog.Logger) *Socket {
	wsURL := strings.Replace(baseURL, "http", "ws", 1) + "/ws"
	return &Socket{
		url:      wsURL,
		log:      log,
		handlers: make(map[string][]func(json.RawMessage)),
	}
}

// Acquire connects on first call and is a no-op afterwards.
func (s *Socket) Acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("socket already closed")
	}
	if s.conn != nil {
		return nil
	}

	conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.url, err)
	}
	s.conn = conn
	go s.readLoop(conn)
	return nil
}

// On registers a handler for a server event. Registration is allowed
// before Acquire.
func (s *Socket) On(event string, fn func(json.RawMessage)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = append(s.handlers[event], fn)
}

// Emit sends one event frame. The connection must have been acquired.
func (s *Socket) Emit(event string, data any) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("socket not acquired")
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(chat.Envelope{Event: event, Data: raw})
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func (s *Socket) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			stillCurrent := s.conn == conn
			closed := s.closed
			s.mu.Unlock()
			if stillCurrent && !closed {
				s.log.Warn().Err(err).Msg("socket read loop ended")
			}
			return
		}

		var env chat.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			s.log.Warn().Err(err).Msg("bad server frame")
			continue
		}

		s.mu.Lock()
		handlers := append([]func(json.RawMessage){}, s.handlers[env.Event]...)
		s.mu.Unlock()
		for _, fn := range handlers {
			fn(env.Data)
		}
	}
}

// Close tears the connection down. The socket cannot be reacquired.
func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
