package chat

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 4096                // Maximum frame size allowed from peer.
)

// Session is a middleman between one websocket connection and the hub.
// Room membership lives in the hub and is dropped on disconnect; a
// reconnect must explicitly rejoin.
type Session struct {
	ID   string
	Send chan []byte

	hub  *Hub
	conn *websocket.Conn
	log  zerolog.Logger
}

func NewSession(hub *Hub, conn *websocket.Conn, log zerolog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		ID:   id,
		Send: make(chan []byte, 256),
		hub:  hub,
		conn: conn,
		log:  log.With().Str("session", id).Logger(),
	}
}

// Start registers the session and runs both pumps.
func (s *Session) Start() {
	s.hub.Register(s)
	go s.writePump()
	go s.readPump()
}

// readPump pumps frames from the websocket connection to the hub.
func (s *Session) readPump() {
	defer func() {
		s.hub.Unregister(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Warn().Err(err).Msg("websocket read")
			}
			return
		}
		s.dispatch(raw)
	}
}

// dispatch routes one inbound frame. Malformed frames are logged and
// skipped; they never take the connection down.
func (s *Session) dispatch(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.log.Warn().Err(err).Msg("bad frame")
		return
	}

	switch env.Event {
	case EventJoinConversation:
		var id string
		if err := json.Unmarshal(env.Data, &id); err != nil || id == "" {
			return
		}
		s.hub.Join(s, id)

	case EventLeaveConversation:
		var id string
		if err := json.Unmarshal(env.Data, &id); err != nil || id == "" {
			return
		}
		s.hub.Leave(s, id)

	case EventJoinAdmin:
		s.hub.JoinAdmin(s)

	case EventSendMessage:
		var p SendMessagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.ConversationID == "" {
			return
		}
		s.hub.SendMessage(p)

	case EventTyping, EventStopTyping:
		var p TypingPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.ConversationID == "" {
			return
		}
		relayed := EventUserTyping
		if env.Event == EventStopTyping {
			relayed = EventUserStopTyping
		}
		s.hub.Relay(s, relayed, p)

	default:
		s.log.Debug().Str("event", env.Event).Msg("unknown event")
	}
}

// writePump pumps frames from the hub to the websocket connection.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-s.Send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub dropped us.
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
