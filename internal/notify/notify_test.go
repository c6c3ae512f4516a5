package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name  string
	err   error
	calls int
	last  Notification
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Send(_ context.Context, n Notification) error {
	f.calls++
	f.last = n
	return f.err
}

func TestDispatcherStopsAtFirstSuccess(t *testing.T) {
	first := &fakeProvider{name: "first"}
	second := &fakeProvider{name: "second"}
	d := NewDispatcher("admin@example.com", "http://localhost", zerolog.Nop(), first, second)

	ok := d.Send(context.Background(), Notification{To: "admin@example.com", Subject: "s"})
	assert.True(t, ok)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, second.calls, "chain must stop at the first success")
}

func TestDispatcherFallsBackInOrder(t *testing.T) {
	first := &fakeProvider{name: "first", err: errors.New("smtp down")}
	second := &fakeProvider{name: "second"}
	d := NewDispatcher("admin@example.com", "http://localhost", zerolog.Nop(), first, second)

	ok := d.Send(context.Background(), Notification{To: "admin@example.com", Subject: "s"})
	assert.True(t, ok)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
}

func TestDispatcherSwallowsTotalFailure(t *testing.T) {
	first := &fakeProvider{name: "first", err: errors.New("down")}
	second := &fakeProvider{name: "second", err: errors.New("also down")}
	d := NewDispatcher("admin@example.com", "http://localhost", zerolog.Nop(), first, second)

	// All providers failing yields false, never a panic or error.
	ok := d.Send(context.Background(), Notification{To: "admin@example.com", Subject: "s"})
	assert.False(t, ok)
}

func TestDispatcherSkipsWithoutRecipient(t *testing.T) {
	p := &fakeProvider{name: "p"}
	d := NewDispatcher("", "http://localhost", zerolog.Nop(), p)

	results := d.SendNewMessageNotifications(context.Background(), NewMessageData{
		VisitorName:    "Alice",
		Message:        "hi",
		ConversationID: "v1",
	})
	assert.False(t, results.Email)
	assert.False(t, results.WhatsApp)
	assert.Equal(t, 0, p.calls)
}

func TestSendNewMessageNotificationsResults(t *testing.T) {
	p := &fakeProvider{name: "p"}
	d := NewDispatcher("admin@example.com", "http://localhost:8080", zerolog.Nop(), p)

	results := d.SendNewMessageNotifications(context.Background(), NewMessageData{
		VisitorName:    "Alice",
		Message:        "hi there",
		ConversationID: "v1",
	})
	assert.True(t, results.Email)
	assert.False(t, results.WhatsApp, "no number, no wa.me link")
	assert.Contains(t, p.last.Text, "hi there")
	assert.Contains(t, p.last.Text, "/admin/chat?conversation=v1")

	results = d.SendNewMessageNotifications(context.Background(), NewMessageData{
		VisitorName:     "Alice",
		Message:         "hi",
		ConversationID:  "v1",
		VisitorWhatsApp: "+1 (555) 010-0",
	})
	assert.True(t, results.Email)
	assert.True(t, results.WhatsApp)
	assert.Contains(t, p.last.Text, "https://wa.me/15550100")
}

func TestWhatsAppLink(t *testing.T) {
	assert.Equal(t, "", WhatsAppLink("", "hi"))
	assert.Equal(t, "", WhatsAppLink("no digits", "hi"))

	link := WhatsAppLink("+49 (170) 123-4567", "Hi Alice, thanks!")
	assert.Equal(t, "https://wa.me/491701234567?text=Hi+Alice%2C+thanks%21", link)
}

func TestResendProvider(t *testing.T) {
	var got map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, jsonDecode(r, &got))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id":"msg_1"}`))
	}))
	defer srv.Close()

	p := &ResendProvider{APIKey: "key", From: "me@example.com", Endpoint: srv.URL}
	err := p.Send(context.Background(), Notification{
		To:      "admin@example.com",
		Subject: "subject",
		Text:    "text",
		HTML:    "<p>html</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer key", auth)
	assert.Equal(t, "me@example.com", got["from"])
	assert.Equal(t, "subject", got["subject"])
}

func TestResendProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := &ResendProvider{APIKey: "bad", From: "me@example.com", Endpoint: srv.URL}
	err := p.Send(context.Background(), Notification{To: "admin@example.com"})
	assert.Error(t, err)

	unconfigured := &ResendProvider{}
	assert.Error(t, unconfigured.Send(context.Background(), Notification{To: "x"}))
}

func jsonDecode(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
