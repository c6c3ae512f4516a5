package session

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-chat/internal/chat"
)

// newFrameServer upgrades /ws and immediately pushes the given frames to
// the client, then holds the connection open until the client closes it.
func newFrameServer(t *testing.T, frames ...[]byte) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSocketDispatchesToAllHandlers(t *testing.T) {
	srv := newFrameServer(t, chat.EncodeEvent("greeting", "hello"))

	sock := NewSocket(srv.URL, zerolog.Nop())
	defer sock.Close()

	// Two handlers on the same event: both must fire for one frame.
	got := make(chan string, 4)
	sock.On("greeting", func(data json.RawMessage) {
		var s string
		require.NoError(t, json.Unmarshal(data, &s))
		got <- "first:" + s
	})
	sock.On("greeting", func(data json.RawMessage) {
		got <- "second"
	})
	require.NoError(t, sock.Acquire())

	received := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case v := <-got:
			received[v] = true
		case <-time.After(2 * time.Second):
			t.Fatal("handler never fired")
		}
	}
	assert.True(t, received["first:hello"])
	assert.True(t, received["second"])
}

func TestSocketIgnoresUnhandledEvents(t *testing.T) {
	srv := newFrameServer(t,
		chat.EncodeEvent("unknown-event", "noise"),
		chat.EncodeEvent("greeting", "after"),
	)

	sock := NewSocket(srv.URL, zerolog.Nop())
	defer sock.Close()

	got := make(chan string, 1)
	sock.On("greeting", func(data json.RawMessage) {
		var s string
		_ = json.Unmarshal(data, &s)
		got <- s
	})
	require.NoError(t, sock.Acquire())

	select {
	case v := <-got:
		assert.Equal(t, "after", v, "unhandled frames must not stall the read loop")
	case <-time.After(2 * time.Second):
		t.Fatal("read loop stalled on an unhandled event")
	}
}

func TestSocketAcquireIsIdempotent(t *testing.T) {
	srv := newFrameServer(t)

	sock := NewSocket(srv.URL, zerolog.Nop())
	require.NoError(t, sock.Acquire())
	require.NoError(t, sock.Acquire())

	require.NoError(t, sock.Close())
	assert.Error(t, sock.Acquire(), "a closed socket cannot be reacquired")
}
