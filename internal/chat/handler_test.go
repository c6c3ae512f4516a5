package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedNotification struct {
	conv *Conversation
	msg  *Message
}

type fakeNotifier struct {
	ch chan capturedNotification
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{ch: make(chan capturedNotification, 8)}
}

func (f *fakeNotifier) NotifyNewMessage(_ context.Context, conv *Conversation, msg *Message) {
	f.ch <- capturedNotification{conv: conv, msg: msg}
}

func newTestServer(t *testing.T) (*httptest.Server, *MemoryStore, *fakeNotifier) {
	t.Helper()
	store := NewMemoryStore()
	hub := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	notifier := newFakeNotifier()
	h := NewHandler(store, hub, notifier, zerolog.Nop())

	r := chi.NewRouter()
	r.Get("/ws", h.ServeWs)
	r.Get("/api/chat/conversations", h.ListConversations)
	r.Post("/api/chat/conversations", h.StartConversation)
	r.Get("/api/chat/messages", h.GetChatHistory)
	r.Post("/api/chat/messages", h.PostMessage)
	r.Patch("/api/chat/messages", h.MarkRead)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, store, notifier
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(method, url, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	decoded := map[string]json.RawMessage{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestStartConversationValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/chat/conversations", map[string]string{
		"visitorName": "Alice",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `false`, string(body["success"]))
}

func TestStartConversationIdempotentOverHTTP(t *testing.T) {
	srv, store, _ := newTestServer(t)

	payload := map[string]string{"visitorId": "v1", "visitorName": "Alice"}
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/chat/conversations", payload)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/chat/conversations", payload)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	all, err := store.ListConversations(context.Background(), StatusActive)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestPostMessageValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/chat/messages", map[string]string{
		"conversationId": "v1",
		"sender":         SenderVisitor,
		// senderName and message missing
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/chat/messages", map[string]string{
		"conversationId": "v1",
		"sender":         "bot",
		"senderName":     "Bot",
		"message":        "hi",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPostMessageUnknownConversation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/chat/messages", map[string]string{
		"conversationId": "nope",
		"sender":         SenderVisitor,
		"senderName":     "Alice",
		"message":        "hi",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `false`, string(body["success"]))
}

func TestVisitorMessageTriggersNotification(t *testing.T) {
	srv, _, notifier := newTestServer(t)

	doJSON(t, http.MethodPost, srv.URL+"/api/chat/conversations", map[string]string{
		"visitorId":       "v1",
		"visitorName":     "Alice",
		"visitorWhatsApp": "+1 555 0100",
	})
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/chat/messages", map[string]string{
		"conversationId": "v1",
		"sender":         SenderVisitor,
		"senderName":     "Alice",
		"message":        "hello there",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case n := <-notifier.ch:
		assert.Equal(t, "v1", n.conv.VisitorID)
		assert.Equal(t, "+1 555 0100", n.conv.VisitorWhatsApp)
		assert.Equal(t, "hello there", n.msg.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("notification never dispatched")
	}
}

func TestAdminReplyDoesNotNotify(t *testing.T) {
	srv, _, notifier := newTestServer(t)

	doJSON(t, http.MethodPost, srv.URL+"/api/chat/conversations", map[string]string{
		"visitorId": "v1", "visitorName": "Alice",
	})
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/chat/messages", map[string]string{
		"conversationId": "v1",
		"sender":         SenderAdmin,
		"senderName":     "Admin",
		"message":        "hi",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case <-notifier.ch:
		t.Fatal("admin replies must not trigger notifications")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestMarkReadOverHTTP(t *testing.T) {
	srv, store, _ := newTestServer(t)
	ctx := context.Background()

	doJSON(t, http.MethodPost, srv.URL+"/api/chat/conversations", map[string]string{
		"visitorId": "v1", "visitorName": "Alice",
	})
	_, err := store.AppendMessage(ctx, "v1", SenderVisitor, "Alice", "hi")
	require.NoError(t, err)

	resp, _ := doJSON(t, http.MethodPatch, srv.URL+"/api/chat/messages", map[string]string{
		"conversationId": "v1",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	c, err := store.GetConversation(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 0, c.UnreadCount)

	resp, _ = doJSON(t, http.MethodPatch, srv.URL+"/api/chat/messages", map[string]string{
		"conversationId": "missing",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListMessagesRequiresConversationID(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/chat/messages")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
