package session

import (
	"fmt"
	"sort"
	"sync"

	"portfolio-chat/internal/chat"
)

// Transcript is the single merge point for both transcript update
// sources: pushed new-message events and polled history fetches. Adds are
// idempotent on message identity, so the two paths converge on exactly
// one copy of each message.
type Transcript struct {
	mu       sync.Mutex
	messages []chat.Message
	seen     map[string]bool
}

func NewTranscript() *Transcript {
	return &Transcript{seen: make(map[string]bool)}
}

// identityKey prefers the store-assigned id; messages that never got one
// fall back to timestamp+sender+text.
func identityKey(m chat.Message) string {
	if m.ID != 0 {
		return fmt.Sprintf("id:%d", m.ID)
	}
	return fmt.Sprintf("k:%d|%s|%s", m.Timestamp.UnixNano(), m.Sender, m.Message)
}

// Add appends a message unless it is already present. Reports whether the
// transcript changed.
func (t *Transcript) Add(m chat.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.add(m)
}

func (t *Transcript) add(m chat.Message) bool {
	key := identityKey(m)
	if t.seen[key] {
		return false
	}
	t.seen[key] = true
	t.messages = append(t.messages, m)
	// Stable sort keeps arrival order for equal timestamps.
	sort.SliceStable(t.messages, func(i, j int) bool {
		return t.messages[i].Timestamp.Before(t.messages[j].Timestamp)
	})
	return true
}

// Merge folds a fetched history into the transcript, returning how many
// messages were new.
func (t *Transcript) Merge(history []*chat.Message) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	added := 0
	for _, m := range history {
		if t.add(*m) {
			added++
		}
	}
	return added
}

// Messages returns a copy of the transcript in display order.
func (t *Transcript) Messages() []chat.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]chat.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}
