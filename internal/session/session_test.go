package session

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-chat/internal/chat"
)

type noopNotifier struct{}

func (noopNotifier) NotifyNewMessage(context.Context, *chat.Conversation, *chat.Message) {}

// newChatServer stands up the real stack: memory store, running hub, chi
// routes, httptest listener.
func newChatServer(t *testing.T) (*httptest.Server, *chat.MemoryStore) {
	t.Helper()
	store := chat.NewMemoryStore()
	hub := chat.NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	h := chat.NewHandler(store, hub, noopNotifier{}, zerolog.Nop())
	r := chi.NewRouter()
	r.Get("/ws", h.ServeWs)
	r.Get("/api/chat/conversations", h.ListConversations)
	r.Post("/api/chat/conversations", h.StartConversation)
	r.Get("/api/chat/messages", h.GetChatHistory)
	r.Post("/api/chat/messages", h.PostMessage)
	r.Patch("/api/chat/messages", h.MarkRead)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, store
}

func newVisitor(t *testing.T, srv *httptest.Server) (*VisitorSession, *Identity) {
	t.Helper()
	identity, err := LoadIdentity(filepath.Join(t.TempDir(), "identity.json"))
	require.NoError(t, err)

	sock := NewSocket(srv.URL, zerolog.Nop())
	t.Cleanup(func() { sock.Close() })
	return NewVisitorSession(NewClient(srv.URL), sock, identity, zerolog.Nop()), identity
}

func newAdmin(t *testing.T, srv *httptest.Server) *AdminSession {
	t.Helper()
	sock := NewSocket(srv.URL, zerolog.Nop())
	t.Cleanup(func() { sock.Close() })
	return NewAdminSession(NewClient(srv.URL), sock, "Admin", zerolog.Nop())
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 3*time.Second, 20*time.Millisecond, msg)
}

// TestFullConversationFlow drives one complete exchange through the real
// pipeline: visitor identifies and says hello, the admin is notified,
// opens the thread, and replies; the reply reaches the visitor live.
func TestFullConversationFlow(t *testing.T) {
	srv, store := newChatServer(t)
	ctx := context.Background()

	admin := newAdmin(t, srv)
	require.NoError(t, admin.Start(ctx))

	visitor, identity := newVisitor(t, srv)
	require.NoError(t, visitor.Identify(ctx, "Alice", "alice@example.com", ""))
	assert.Equal(t, StateSubscribed, visitor.State())

	_, err := visitor.Send(ctx, "Hello")
	require.NoError(t, err)

	// Store state after the visitor message.
	conv, err := store.GetConversation(ctx, identity.VisitorID)
	require.NoError(t, err)
	assert.Equal(t, 1, conv.UnreadCount)
	assert.Equal(t, "Hello", conv.LastMessage)

	// The admin-room notification refreshes the admin's list.
	eventually(t, func() bool {
		for _, c := range admin.Conversations() {
			if c.VisitorID == identity.VisitorID && c.UnreadCount == 1 {
				return true
			}
		}
		return false
	}, "admin never saw the new conversation")

	// Opening the thread loads history and marks it read.
	require.NoError(t, admin.Open(ctx, identity.VisitorID))
	assert.Equal(t, ViewReady, admin.View())
	messages := admin.Transcript()
	require.Len(t, messages, 1)
	assert.Equal(t, "Hello", messages[0].Message)

	conv, err = store.GetConversation(ctx, identity.VisitorID)
	require.NoError(t, err)
	assert.Equal(t, 0, conv.UnreadCount)

	// The reply reaches the visitor over the socket, no poll involved.
	_, err = admin.Reply(ctx, "Hi Alice")
	require.NoError(t, err)

	eventually(t, func() bool {
		for _, m := range visitor.Transcript() {
			if m.Message == "Hi Alice" && m.Sender == chat.SenderAdmin {
				return true
			}
		}
		return false
	}, "visitor never received the reply")

	// The visitor's own message was echoed back through the room but the
	// transcript holds exactly one copy.
	count := 0
	for _, m := range visitor.Transcript() {
		if m.Message == "Hello" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestIdentifyIsIdempotentAndResumable(t *testing.T) {
	srv, store := newChatServer(t)
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "identity.json")

	identity, err := LoadIdentity(path)
	require.NoError(t, err)
	sock := NewSocket(srv.URL, zerolog.Nop())
	defer sock.Close()

	v := NewVisitorSession(NewClient(srv.URL), sock, identity, zerolog.Nop())
	require.NoError(t, v.Identify(ctx, "Alice", "", ""))
	require.NoError(t, v.Identify(ctx, "Alice", "", ""), "second identify is a no-op")
	_, err = v.Send(ctx, "first visit")
	require.NoError(t, err)
	v.Close()
	sock.Close()

	// A later session loads the same file and resumes without a prompt,
	// landing in the same conversation with history intact.
	reloaded, err := LoadIdentity(path)
	require.NoError(t, err)
	assert.Equal(t, identity.VisitorID, reloaded.VisitorID)
	assert.Equal(t, "Alice", reloaded.VisitorName)

	sock2 := NewSocket(srv.URL, zerolog.Nop())
	defer sock2.Close()
	v2 := NewVisitorSession(NewClient(srv.URL), sock2, reloaded, zerolog.Nop())
	require.NoError(t, v2.Resume(ctx))

	messages := v2.Transcript()
	require.Len(t, messages, 1)
	assert.Equal(t, "first visit", messages[0].Message)

	all, err := store.ListConversations(ctx, chat.StatusActive)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestPollingRecoversMissedMessages(t *testing.T) {
	srv, store := newChatServer(t)
	ctx := context.Background()

	visitor, identity := newVisitor(t, srv)
	require.NoError(t, visitor.Identify(ctx, "Alice", "", ""))

	// Write straight to the store: no realtime publish happens, so only
	// the poll can surface it.
	_, err := store.AppendMessage(ctx, identity.VisitorID, chat.SenderAdmin, "Admin", "missed you")
	require.NoError(t, err)

	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	visitor.StartPolling(pollCtx, 50*time.Millisecond)

	eventually(t, func() bool {
		for _, m := range visitor.Transcript() {
			if m.Message == "missed you" {
				return true
			}
		}
		return false
	}, "poll never recovered the missed message")
}

func TestSendRequiresSubscription(t *testing.T) {
	srv, _ := newChatServer(t)

	visitor, _ := newVisitor(t, srv)
	_, err := visitor.Send(context.Background(), "too early")
	assert.Error(t, err)
	assert.Equal(t, StateIdentified, visitor.State())
}

// TestAdminPushDuringLoadingIsKept covers the window between joining a
// conversation's room and the view flipping to ready: a message pushed
// while the history fetch is in flight must land in the transcript, and
// the later history merge must not duplicate it.
func TestAdminPushDuringLoadingIsKept(t *testing.T) {
	a := &AdminSession{transcript: NewTranscript(), log: zerolog.Nop()}
	a.openID = "v1"
	a.view = ViewLoading

	m := chat.Message{
		ID:             1,
		ConversationID: "v1",
		Sender:         chat.SenderVisitor,
		SenderName:     "Alice",
		Message:        "raced the history fetch",
		Timestamp:      time.Now(),
	}
	a.appendIfOpen("v1", m)
	require.Len(t, a.Transcript(), 1)

	// The in-flight history fetch returns the same message afterwards.
	a.transcript.Merge([]*chat.Message{&m})
	assert.Len(t, a.Transcript(), 1)

	// Pushes for other conversations are still ignored.
	a.appendIfOpen("v2", chat.Message{ID: 2, ConversationID: "v2", Message: "elsewhere"})
	assert.Len(t, a.Transcript(), 1)

	// A closed view drops pushes.
	a.mu.Lock()
	a.openID = ""
	a.view = ViewClosed
	a.mu.Unlock()
	a.appendIfOpen("v1", chat.Message{ID: 3, ConversationID: "v1", Message: "too late"})
	assert.Len(t, a.Transcript(), 1)
}

func TestAdminOpenSwitchesRooms(t *testing.T) {
	srv, _ := newChatServer(t)
	ctx := context.Background()

	alice, aliceID := newVisitor(t, srv)
	require.NoError(t, alice.Identify(ctx, "Alice", "", ""))
	bob, bobID := newVisitor(t, srv)
	require.NoError(t, bob.Identify(ctx, "Bob", "", ""))

	_, err := alice.Send(ctx, "from alice")
	require.NoError(t, err)
	_, err = bob.Send(ctx, "from bob")
	require.NoError(t, err)

	admin := newAdmin(t, srv)
	require.NoError(t, admin.Start(ctx))
	require.Len(t, admin.Conversations(), 2)

	require.NoError(t, admin.Open(ctx, aliceID.VisitorID))
	assert.Equal(t, aliceID.VisitorID, admin.OpenID())
	require.Len(t, admin.Transcript(), 1)
	assert.Equal(t, "from alice", admin.Transcript()[0].Message)

	// Switching threads swaps the transcript wholesale.
	require.NoError(t, admin.Open(ctx, bobID.VisitorID))
	assert.Equal(t, bobID.VisitorID, admin.OpenID())
	require.Len(t, admin.Transcript(), 1)
	assert.Equal(t, "from bob", admin.Transcript()[0].Message)

	admin.Close()
	assert.Equal(t, ViewClosed, admin.View())
	assert.Empty(t, admin.OpenID())
}
