package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"portfolio-chat/internal/chat"
)

// VisitorState tracks the visitor session's lifecycle.
type VisitorState int

const (
	// StateAnonymous is never observable in practice: a visitor id is
	// generated on load, so the session starts Identified.
	StateAnonymous VisitorState = iota
	StateIdentified
	StateSubscribed
)

func (s VisitorState) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateIdentified:
		return "identified"
	case StateSubscribed:
		return "subscribed"
	default:
		return "unknown"
	}
}

// VisitorSession is the per-client state machine owning one visitor's
// side of the conversation. It merges pushed events and polled history
// into one transcript and reconciles optimistic sends through the same
// idempotent merge.
type VisitorSession struct {
	api      *Client
	sock     *Socket
	identity *Identity
	log      zerolog.Logger

	transcript *Transcript

	mu    sync.Mutex
	state VisitorState

	pollCancel context.CancelFunc

	// OnChange, when set, is invoked after the transcript gains
	// messages. Handlers must not block.
	OnChange func()
}

func NewVisitorSession(api *Client, sock *Socket, identity *Identity, log zerolog.Logger) *VisitorSession {
	v := &VisitorSession{
		api:        api,
		sock:       sock,
		identity:   identity,
		log:        log.With().Str("visitor_id", identity.VisitorID).Logger(),
		transcript: NewTranscript(),
		state:      StateIdentified,
	}

	sock.On(chat.EventNewMessage, func(data json.RawMessage) {
		var m chat.Message
		if err := json.Unmarshal(data, &m); err != nil {
			v.log.Warn().Err(err).Msg("bad new-message payload")
			return
		}
		if m.ConversationID != v.identity.VisitorID {
			return
		}
		if v.transcript.Add(m) {
			v.notifyChange()
		}
	})

	return v
}

func (v *VisitorSession) State() VisitorState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

func (v *VisitorSession) Transcript() []chat.Message { return v.transcript.Messages() }

func (v *VisitorSession) notifyChange() {
	if v.OnChange != nil {
		v.OnChange()
	}
}

// Identify supplies the visitor's display name (and optional contact
// channel), creating the conversation and subscribing to its room. On any
// failure the session keeps its previous state; the caller resubmits.
func (v *VisitorSession) Identify(ctx context.Context, name, email, whatsApp string) error {
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if v.State() == StateSubscribed {
		return nil
	}

	if _, err := v.api.CreateConversation(ctx, chat.CreateConversationParams{
		VisitorID:       v.identity.VisitorID,
		VisitorName:     name,
		VisitorEmail:    email,
		VisitorWhatsApp: whatsApp,
	}); err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}

	// Only after the store accepted the conversation does the identity
	// become durable, so future sessions skip the name prompt.
	v.identity.VisitorName = name
	v.identity.VisitorEmail = email
	v.identity.VisitorWhatsApp = whatsApp
	if err := v.identity.Save(); err != nil {
		v.log.Warn().Err(err).Msg("persist identity")
	}

	history, err := v.api.ListMessages(ctx, v.identity.VisitorID)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	v.transcript.Merge(history)

	if err := v.sock.Acquire(); err != nil {
		return err
	}
	if err := v.sock.Emit(chat.EventJoinConversation, v.identity.VisitorID); err != nil {
		return err
	}

	v.mu.Lock()
	v.state = StateSubscribed
	v.mu.Unlock()
	v.notifyChange()
	return nil
}

// Resume re-enters Subscribed using the locally persisted name, skipping
// the prompt on repeat visits.
func (v *VisitorSession) Resume(ctx context.Context) error {
	if v.identity.VisitorName == "" {
		return fmt.Errorf("no persisted name; Identify first")
	}
	return v.Identify(ctx, v.identity.VisitorName, v.identity.VisitorEmail, v.identity.VisitorWhatsApp)
}

// Send persists a message, reflects it locally, and triggers realtime
// fan-out. The realtime echo and the next poll both collapse into the
// transcript's idempotent merge, so the entry appears exactly once.
func (v *VisitorSession) Send(ctx context.Context, text string) (*chat.Message, error) {
	if v.State() != StateSubscribed {
		return nil, fmt.Errorf("session not subscribed")
	}
	if text == "" {
		return nil, fmt.Errorf("message is empty")
	}

	m, err := v.api.SendMessage(ctx, v.identity.VisitorID, chat.SenderVisitor, v.identity.VisitorName, text)
	if err != nil {
		return nil, err
	}
	if v.transcript.Add(*m) {
		v.notifyChange()
	}

	if err := v.sock.Emit(chat.EventSendMessage, chat.SendMessagePayload{
		ConversationID: v.identity.VisitorID,
		Message:        *m,
	}); err != nil {
		// Delivery is best-effort: the message is persisted, peers will
		// catch up on their next poll.
		v.log.Warn().Err(err).Msg("realtime emit failed")
	}
	return m, nil
}

// Typing sends a fire-and-forget typing indicator.
func (v *VisitorSession) Typing(stop bool) {
	if v.State() != StateSubscribed {
		return
	}
	event := chat.EventTyping
	if stop {
		event = chat.EventStopTyping
	}
	_ = v.sock.Emit(event, chat.TypingPayload{
		ConversationID: v.identity.VisitorID,
		SenderName:     v.identity.VisitorName,
	})
}

// StartPolling runs the periodic re-fetch that papers over missed
// realtime events. Safe to call once after Identify.
func (v *VisitorSession) StartPolling(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	v.mu.Lock()
	v.pollCancel = cancel
	v.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				history, err := v.api.ListMessages(ctx, v.identity.VisitorID)
				if err != nil {
					v.log.Warn().Err(err).Msg("poll failed")
					continue
				}
				if v.transcript.Merge(history) > 0 {
					v.notifyChange()
				}
			}
		}
	}()
}

// Close leaves the room and stops polling. The shared socket is left for
// its owner to tear down.
func (v *VisitorSession) Close() {
	v.mu.Lock()
	cancel := v.pollCancel
	v.pollCancel = nil
	subscribed := v.state == StateSubscribed
	v.state = StateIdentified
	v.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if subscribed {
		_ = v.sock.Emit(chat.EventLeaveConversation, v.identity.VisitorID)
	}
}
