package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"portfolio-chat/internal/chat"
)

// ViewState tracks the admin's conversation view.
type ViewState int

const (
	ViewClosed ViewState = iota
	ViewLoading
	ViewReady
)

// AdminSession subscribes to the admin room for cross-conversation
// notifications and to one conversation room at a time while a thread is
// open.
type AdminSession struct {
	api       *Client
	sock      *Socket
	adminName string
	log       zerolog.Logger

	mu            sync.Mutex
	conversations []*chat.Conversation
	openID        string
	view          ViewState
	transcript    *Transcript

	// OnChange fires after the conversation list or open transcript
	// changes. Handlers must not block.
	OnChange func()
}

func NewAdminSession(api *Client, sock *Socket, adminName string, log zerolog.Logger) *AdminSession {
	a := &AdminSession{
		api:        api,
		sock:       sock,
		adminName:  adminName,
		log:        log.With().Str("role", "admin").Logger(),
		transcript: NewTranscript(),
	}

	sock.On(chat.EventAdminNotification, func(data json.RawMessage) {
		var n chat.AdminNotification
		if err := json.Unmarshal(data, &n); err != nil {
			a.log.Warn().Err(err).Msg("bad admin-notification payload")
			return
		}
		a.handleNotification(n)
	})

	sock.On(chat.EventNewMessage, func(data json.RawMessage) {
		var m chat.Message
		if err := json.Unmarshal(data, &m); err != nil {
			return
		}
		a.appendIfOpen(m.ConversationID, m)
	})

	return a
}

// Start joins the admin room and loads the active conversation list.
func (a *AdminSession) Start(ctx context.Context) error {
	if err := a.sock.Acquire(); err != nil {
		return err
	}
	if err := a.sock.Emit(chat.EventJoinAdmin, nil); err != nil {
		return err
	}
	return a.RefreshConversations(ctx)
}

func (a *AdminSession) handleNotification(n chat.AdminNotification) {
	// The list fetch picks up the new lastMessage/unreadCount; the open
	// transcript (if it is this thread) gets the message directly.
	if err := a.RefreshConversations(context.Background()); err != nil {
		a.log.Warn().Err(err).Msg("refresh conversations")
	}
	a.appendIfOpen(n.ConversationID, n.Message)
}

// appendIfOpen folds a pushed message into the open transcript. Loading
// counts as open: a push racing the history fetch lands here and the
// transcript's idempotent merge absorbs the overlap.
func (a *AdminSession) appendIfOpen(conversationID string, m chat.Message) {
	a.mu.Lock()
	open := a.openID == conversationID && a.view != ViewClosed
	t := a.transcript
	a.mu.Unlock()
	if !open {
		return
	}
	if t.Add(m) {
		a.notifyChange()
	}
}

func (a *AdminSession) notifyChange() {
	if a.OnChange != nil {
		a.OnChange()
	}
}

// RefreshConversations reloads the active conversation list.
func (a *AdminSession) RefreshConversations(ctx context.Context) error {
	conversations, err := a.api.ListConversations(ctx, chat.StatusActive)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.conversations = conversations
	a.mu.Unlock()
	a.notifyChange()
	return nil
}

func (a *AdminSession) Conversations() []*chat.Conversation {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*chat.Conversation, len(a.conversations))
	copy(out, a.conversations)
	return out
}

func (a *AdminSession) View() ViewState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.view
}

func (a *AdminSession) OpenID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.openID
}

func (a *AdminSession) Transcript() []chat.Message {
	a.mu.Lock()
	t := a.transcript
	a.mu.Unlock()
	return t.Messages()
}

// Open views a conversation: join its room, load its history, and mark it
// read. Any previously open conversation is closed first.
func (a *AdminSession) Open(ctx context.Context, conversationID string) error {
	a.Close()

	t := NewTranscript()
	a.mu.Lock()
	a.openID = conversationID
	a.view = ViewLoading
	a.transcript = t
	a.mu.Unlock()

	fail := func(err error) error {
		a.mu.Lock()
		a.openID = ""
		a.view = ViewClosed
		a.mu.Unlock()
		return err
	}

	if err := a.sock.Emit(chat.EventJoinConversation, conversationID); err != nil {
		return fail(err)
	}
	history, err := a.api.ListMessages(ctx, conversationID)
	if err != nil {
		_ = a.sock.Emit(chat.EventLeaveConversation, conversationID)
		return fail(err)
	}
	t.Merge(history)

	if err := a.api.MarkRead(ctx, conversationID); err != nil {
		a.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("mark read")
	}
	if err := a.RefreshConversations(ctx); err != nil {
		a.log.Warn().Err(err).Msg("refresh after open")
	}

	a.mu.Lock()
	a.view = ViewReady
	a.mu.Unlock()
	a.notifyChange()
	return nil
}

// Close leaves the open conversation's room, if any.
func (a *AdminSession) Close() {
	a.mu.Lock()
	openID := a.openID
	a.openID = ""
	a.view = ViewClosed
	a.mu.Unlock()

	if openID != "" {
		_ = a.sock.Emit(chat.EventLeaveConversation, openID)
	}
}

// Reply persists an admin message to the open conversation and explicitly
// re-publishes it through the broker; the store call alone notifies no
// one.
func (a *AdminSession) Reply(ctx context.Context, text string) (*chat.Message, error) {
	a.mu.Lock()
	openID := a.openID
	ready := a.view == ViewReady
	t := a.transcript
	a.mu.Unlock()
	if openID == "" || !ready {
		return nil, fmt.Errorf("no open conversation")
	}
	if text == "" {
		return nil, fmt.Errorf("message is empty")
	}

	m, err := a.api.SendMessage(ctx, openID, chat.SenderAdmin, a.adminName, text)
	if err != nil {
		return nil, err
	}
	if t.Add(*m) {
		a.notifyChange()
	}

	if err := a.sock.Emit(chat.EventSendMessage, chat.SendMessagePayload{
		ConversationID: openID,
		Message:        *m,
	}); err != nil {
		a.log.Warn().Err(err).Msg("realtime emit failed")
	}
	if err := a.RefreshConversations(ctx); err != nil {
		a.log.Warn().Err(err).Msg("refresh after reply")
	}
	return m, nil
}

// Typing relays a typing indicator into the open conversation.
func (a *AdminSession) Typing(stop bool) {
	a.mu.Lock()
	openID := a.openID
	a.mu.Unlock()
	if openID == "" {
		return
	}
	event := chat.EventTyping
	if stop {
		event = chat.EventStopTyping
	}
	_ = a.sock.Emit(event, chat.TypingPayload{ConversationID: openID, SenderName: a.adminName})
}
