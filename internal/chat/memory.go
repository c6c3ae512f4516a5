package chat

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded in-memory Store with the same semantics
// as PostgresStore. It backs the test suite and serves as the dev-mode
// fallback when no database DSN is configured.
type MemoryStore struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
	messages      map[string][]*Message
	nextID        int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]*Message),
		nextID:        1,
	}
}

func (s *MemoryStore) CreateConversation(_ context.Context, p CreateConversationParams) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.conversations[p.VisitorID]; ok {
		if p.VisitorWhatsApp != "" {
			c.VisitorWhatsApp = p.VisitorWhatsApp
		}
		out := *c
		return &out, nil
	}

	now := time.Now()
	c := &Conversation{
		VisitorID:       p.VisitorID,
		VisitorName:     p.VisitorName,
		VisitorEmail:    p.VisitorEmail,
		VisitorWhatsApp: p.VisitorWhatsApp,
		LastMessageTime: now,
		UnreadCount:     0,
		Status:          StatusActive,
		CreatedAt:       now,
	}
	s.conversations[p.VisitorID] = c
	out := *c
	return &out, nil
}

func (s *MemoryStore) GetConversation(_ context.Context, visitorID string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[visitorID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *c
	return &out, nil
}

func (s *MemoryStore) ListConversations(_ context.Context, status string) ([]*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var conversations []*Conversation
	for _, c := range s.conversations {
		if c.Status != status {
			continue
		}
		out := *c
		conversations = append(conversations, &out)
	}
	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].LastMessageTime.After(conversations[j].LastMessageTime)
	})
	return conversations, nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, conversationID, sender, senderName, text string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return nil, ErrNotFound
	}

	m := &Message{
		ID:             s.nextID,
		ConversationID: conversationID,
		Sender:         sender,
		SenderName:     senderName,
		Message:        text,
		Timestamp:      time.Now(),
	}
	s.nextID++
	s.messages[conversationID] = append(s.messages[conversationID], m)

	c.LastMessage = text
	c.LastMessageTime = m.Timestamp
	if sender == SenderVisitor {
		c.UnreadCount++
	}

	out := *m
	return &out, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, conversationID string) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.messages[conversationID]
	messages := make([]*Message, 0, len(stored))
	for _, m := range stored {
		out := *m
		messages = append(messages, &out)
	}
	// Appends carry monotonic ids, so a stable sort on timestamp keeps
	// insertion order for equal timestamps.
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})
	return messages, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	for _, m := range s.messages[conversationID] {
		m.Read = true
	}
	c.UnreadCount = 0
	return nil
}

func (s *MemoryStore) RecountUnread(_ context.Context, conversationID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return 0, ErrNotFound
	}
	count := 0
	for _, m := range s.messages[conversationID] {
		if m.Sender == SenderVisitor && !m.Read {
			count++
		}
	}
	c.UnreadCount = count
	return count, nil
}
