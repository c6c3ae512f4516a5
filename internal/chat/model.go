package chat

import (
	"encoding/json"
	"time"
)

const (
	SenderVisitor = "visitor"
	SenderAdmin   = "admin"

	StatusActive   = "active"
	StatusArchived = "archived"
)

// Conversation is the persistent thread between one visitor and the admin.
// The visitor id doubles as the primary key: one conversation per visitor,
// created lazily on the first name submission, archived but never deleted.
type Conversation struct {
	VisitorID       string    `json:"visitorId"`
	VisitorName     string    `json:"visitorName"`
	VisitorEmail    string    `json:"visitorEmail,omitempty"`
	VisitorWhatsApp string    `json:"visitorWhatsApp,omitempty"`
	LastMessage     string    `json:"lastMessage"`
	LastMessageTime time.Time `json:"lastMessageTime"`
	UnreadCount     int       `json:"unreadCount"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Message is an append-only log entry. Messages are never edited or
// deleted; ordering is by timestamp, insertion order breaking ties.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversationId"`
	Sender         string    `json:"sender"`
	SenderName     string    `json:"senderName"`
	Message        string    `json:"message"`
	Timestamp      time.Time `json:"timestamp"`
	Read           bool      `json:"read"`
}

// ---------------------------------------------
// Realtime wire protocol
// ---------------------------------------------

// Event names a client may send over the websocket.
const (
	EventJoinConversation  = "join-conversation"
	EventLeaveConversation = "leave-conversation"
	EventJoinAdmin         = "join-admin"
	EventSendMessage       = "send-message"
	EventTyping            = "typing"
	EventStopTyping        = "stop-typing"
)

// Event names the server pushes to room members.
const (
	EventNewMessage        = "new-message"
	EventAdminNotification = "admin-notification"
	EventUserTyping        = "user-typing"
	EventUserStopTyping    = "user-stop-typing"
)

// Envelope is the frame exchanged in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SendMessagePayload is the body of a send-message event. The message has
// already been persisted via the REST API; the broker only relays it.
type SendMessagePayload struct {
	ConversationID string  `json:"conversationId"`
	Message        Message `json:"message"`
}

// AdminNotification is pushed to the admin room for visitor messages.
type AdminNotification struct {
	ConversationID string  `json:"conversationId"`
	Message        Message `json:"message"`
}

// TypingPayload identifies who is typing in which conversation.
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	SenderName     string `json:"senderName,omitempty"`
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// EncodeEvent renders a server-side event as a wire frame.
func EncodeEvent(event string, data any) []byte {
	return mustMarshal(Envelope{Event: event, Data: mustMarshal(data)})
}
