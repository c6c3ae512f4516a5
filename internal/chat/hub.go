package chat

import (
	"context"

	"github.com/rs/zerolog"
)

// AdminRoom is the well-known room every admin session joins to receive
// cross-conversation notifications.
const AdminRoom = "admin-room"

type membership struct {
	session *Session
	room    string
	join    bool
}

type frame struct {
	room    string
	payload []byte
	// exclude skips one member, used by the typing relays so the sender
	// does not see their own indicator.
	exclude *Session
}

// Hub is the realtime room broker. It owns ephemeral room membership and
// fans out frames to room members; it never touches the message store.
// Delivery is at-most-once per member per publish, with no retry and no
// persistence — a disconnected member recovers by re-fetching history.
//
// All state is owned by the single Run goroutine and reached only through
// channels, so no locks are needed.
type Hub struct {
	log zerolog.Logger

	sessions map[*Session]bool
	rooms    map[string]map[*Session]bool

	register   chan *Session
	unregister chan *Session
	membership chan membership
	frames     chan frame
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:        log,
		sessions:   make(map[*Session]bool),
		rooms:      make(map[string]map[*Session]bool),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		membership: make(chan membership),
		frames:     make(chan frame),
	}
}

// Run owns the hub state until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for session := range h.sessions {
				h.drop(session)
			}
			return

		case session := <-h.register:
			h.sessions[session] = true
			h.log.Debug().Str("session", session.ID).Msg("session connected")

		case session := <-h.unregister:
			if h.sessions[session] {
				h.drop(session)
				h.log.Debug().Str("session", session.ID).Msg("session disconnected")
			}

		case m := <-h.membership:
			if m.join {
				h.joinRoom(m.session, m.room)
			} else {
				h.leaveRoom(m.session, m.room)
			}

		case f := <-h.frames:
			h.fanOut(f)
		}
	}
}

// drop removes a session from every room and closes its send channel,
// which stops its write pump.
func (h *Hub) drop(session *Session) {
	delete(h.sessions, session)
	for room, members := range h.rooms {
		if members[session] {
			h.leaveRoom(session, room)
		}
	}
	close(session.Send)
}

func (h *Hub) joinRoom(session *Session, room string) {
	if !h.sessions[session] {
		return
	}
	members := h.rooms[room]
	if members == nil {
		members = make(map[*Session]bool)
		h.rooms[room] = members
	}
	if members[session] {
		return // redundant join is a no-op
	}
	members[session] = true
	h.log.Debug().Str("session", session.ID).Str("room", room).Msg("joined room")
}

func (h *Hub) leaveRoom(session *Session, room string) {
	members := h.rooms[room]
	if members == nil || !members[session] {
		return
	}
	delete(members, session)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
	h.log.Debug().Str("session", session.ID).Str("room", room).Msg("left room")
}

// fanOut delivers a frame to every current member of the room. A room with
// no members is a silent no-op: realtime delivery is best-effort and the
// store stays authoritative. Members that cannot keep up are dropped.
func (h *Hub) fanOut(f frame) {
	for session := range h.rooms[f.room] {
		if session == f.exclude {
			continue
		}
		select {
		case session.Send <- f.payload:
		default:
			h.log.Warn().Str("session", session.ID).Msg("send buffer full, dropping session")
			h.drop(session)
		}
	}
}

// ---------------------------------------------
// Operations (safe to call from any goroutine)
// ---------------------------------------------

func (h *Hub) Register(session *Session)   { h.register <- session }
func (h *Hub) Unregister(session *Session) { h.unregister <- session }

func (h *Hub) Join(session *Session, room string) {
	h.membership <- membership{session: session, room: room, join: true}
}

func (h *Hub) Leave(session *Session, room string) {
	h.membership <- membership{session: session, room: room, join: false}
}

// JoinAdmin subscribes a session to the fixed admin room.
func (h *Hub) JoinAdmin(session *Session) {
	h.Join(session, AdminRoom)
}

// Publish delivers an event to every member of a room.
func (h *Hub) Publish(room, event string, data any) {
	h.frames <- frame{room: room, payload: EncodeEvent(event, data)}
}

// SendMessage relays an already-persisted message to its conversation room
// and, for visitor messages, additionally notifies the admin room. This
// dual publish is the only branching the broker does.
func (h *Hub) SendMessage(p SendMessagePayload) {
	h.Publish(p.ConversationID, EventNewMessage, p.Message)
	if p.Message.Sender == SenderVisitor {
		h.Publish(AdminRoom, EventAdminNotification, AdminNotification{
			ConversationID: p.ConversationID,
			Message:        p.Message,
		})
	}
}

// Relay forwards a typing indicator to all other members of the room.
func (h *Hub) Relay(from *Session, event string, p TypingPayload) {
	h.frames <- frame{
		room:    p.ConversationID,
		payload: EncodeEvent(event, p),
		exclude: from,
	}
}
