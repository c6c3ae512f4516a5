package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS policy is enforced on the router
	},
}

// Notifier alerts the admin out of band about a visitor message. It is
// fire-and-forget: implementations log failures and never surface them.
type Notifier interface {
	NotifyNewMessage(ctx context.Context, conv *Conversation, msg *Message)
}

type Handler struct {
	store    Store
	hub      *Hub
	notifier Notifier
	log      zerolog.Logger
}

func NewHandler(store Store, hub *Hub, notifier Notifier, log zerolog.Logger) *Handler {
	return &Handler{store: store, hub: hub, notifier: notifier, log: log}
}

// ---------------------------------------------
// REST surface
// ---------------------------------------------

// ListConversations handles GET /api/chat/conversations?status=active.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = StatusActive
	}

	conversations, err := h.store.ListConversations(r.Context(), status)
	if err != nil {
		h.log.Error().Err(err).Msg("list conversations")
		fail(w, http.StatusInternalServerError, "Failed to fetch conversations")
		return
	}
	if conversations == nil {
		conversations = []*Conversation{}
	}
	ok(w, map[string]any{"conversations": conversations})
}

// StartConversation handles POST /api/chat/conversations. The create is
// idempotent on visitorId: repeats return the existing record, refreshing
// the WhatsApp hint when one is supplied.
func (h *Handler) StartConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VisitorID       string `json:"visitorId"`
		VisitorName     string `json:"visitorName"`
		VisitorEmail    string `json:"visitorEmail"`
		VisitorWhatsApp string `json:"visitorWhatsApp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.VisitorID == "" || req.VisitorName == "" {
		fail(w, http.StatusBadRequest, "Visitor ID and name are required")
		return
	}

	conversation, err := h.store.CreateConversation(r.Context(), CreateConversationParams{
		VisitorID:       req.VisitorID,
		VisitorName:     req.VisitorName,
		VisitorEmail:    req.VisitorEmail,
		VisitorWhatsApp: req.VisitorWhatsApp,
	})
	if err != nil {
		h.log.Error().Err(err).Str("visitor_id", req.VisitorID).Msg("create conversation")
		fail(w, http.StatusInternalServerError, "Failed to create conversation")
		return
	}
	ok(w, map[string]any{"conversation": conversation})
}

// GetChatHistory handles GET /api/chat/messages?conversationId=.
func (h *Handler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("conversationId")
	if conversationID == "" {
		fail(w, http.StatusBadRequest, "Conversation ID is required")
		return
	}

	messages, err := h.store.ListMessages(r.Context(), conversationID)
	if err != nil {
		h.log.Error().Err(err).Str("conversation_id", conversationID).Msg("list messages")
		fail(w, http.StatusInternalServerError, "Failed to fetch messages")
		return
	}
	if messages == nil {
		messages = []*Message{}
	}
	ok(w, map[string]any{"messages": messages})
}

// PostMessage handles POST /api/chat/messages. The message is persisted
// here; realtime fan-out happens separately when the sending client emits
// send-message over its socket. Visitor messages additionally trigger the
// out-of-band notification chain, which never affects this response.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationID string `json:"conversationId"`
		Sender         string `json:"sender"`
		SenderName     string `json:"senderName"`
		Message        string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ConversationID == "" || req.Sender == "" || req.SenderName == "" || req.Message == "" {
		fail(w, http.StatusBadRequest, "All fields are required")
		return
	}
	if req.Sender != SenderVisitor && req.Sender != SenderAdmin {
		fail(w, http.StatusBadRequest, "Sender must be visitor or admin")
		return
	}

	message, err := h.store.AppendMessage(r.Context(), req.ConversationID, req.Sender, req.SenderName, req.Message)
	if errors.Is(err, ErrNotFound) {
		fail(w, http.StatusNotFound, "Conversation not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("conversation_id", req.ConversationID).Msg("append message")
		fail(w, http.StatusInternalServerError, "Failed to send message")
		return
	}

	if req.Sender == SenderVisitor && h.notifier != nil {
		go h.notifyInBackground(req.ConversationID, message)
	}

	ok(w, map[string]any{"message": message})
}

func (h *Handler) notifyInBackground(conversationID string, message *Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conv, err := h.store.GetConversation(ctx, conversationID)
	if err != nil {
		h.log.Error().Err(err).Str("conversation_id", conversationID).Msg("load conversation for notification")
		return
	}
	h.notifier.NotifyNewMessage(ctx, conv, message)
}

// MarkRead handles PATCH /api/chat/messages.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationID string `json:"conversationId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ConversationID == "" {
		fail(w, http.StatusBadRequest, "Conversation ID is required")
		return
	}

	err := h.store.MarkRead(r.Context(), req.ConversationID)
	if errors.Is(err, ErrNotFound) {
		fail(w, http.StatusNotFound, "Conversation not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("conversation_id", req.ConversationID).Msg("mark read")
		fail(w, http.StatusInternalServerError, "Failed to mark messages as read")
		return
	}
	ok(w, nil)
}

// ServeWs handles GET /ws: upgrades the connection and hands it to the hub.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade")
		return
	}
	NewSession(h.hub, conn, h.log).Start()
}

// ---------------------------------------------
// Response envelopes
// ---------------------------------------------

func ok(w http.ResponseWriter, extra map[string]any) {
	body := map[string]any{"success": true}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

func fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
