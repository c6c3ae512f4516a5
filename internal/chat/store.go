package chat

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an operation references a conversation id
// that has no conversation record.
var ErrNotFound = errors.New("conversation not found")

// CreateConversationParams carries the fields of the first name submission.
type CreateConversationParams struct {
	VisitorID       string
	VisitorName     string
	VisitorEmail    string
	VisitorWhatsApp string
}

// Store is the message store contract. Messages are append-only; the
// conversation header is the only mutable record, and its unread counter
// must only ever change through atomic store-level updates (increment on
// visitor append, reset on mark-read), never read-modify-write.
type Store interface {
	// CreateConversation is idempotent: a second call with the same
	// visitor id returns the existing record, updating the WhatsApp
	// contact hint if a new one is provided.
	CreateConversation(ctx context.Context, p CreateConversationParams) (*Conversation, error)

	// GetConversation returns the conversation header for a visitor id,
	// or ErrNotFound.
	GetConversation(ctx context.Context, visitorID string) (*Conversation, error)

	// ListConversations returns conversations with the given status,
	// most recently active first.
	ListConversations(ctx context.Context, status string) ([]*Conversation, error)

	// AppendMessage inserts the message and updates the parent
	// conversation's preview, timestamp, and unread counter (incremented
	// only for visitor messages). Returns ErrNotFound if the conversation
	// does not exist.
	AppendMessage(ctx context.Context, conversationID, sender, senderName, text string) (*Message, error)

	// ListMessages returns the full transcript, ascending by timestamp,
	// insertion order breaking ties.
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)

	// MarkRead flips every unread message and zeroes the conversation's
	// unread counter. Returns ErrNotFound if the conversation does not
	// exist.
	MarkRead(ctx context.Context, conversationID string) error
}

// Reconciler is implemented by stores that can recount a conversation's
// unread counter from the message log. The two mark-read writes are not
// transactional, so a periodic recount keeps the counter from diverging.
type Reconciler interface {
	RecountUnread(ctx context.Context, conversationID string) (int, error)
}
