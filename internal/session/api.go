package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"portfolio-chat/internal/chat"
)

// Client is a typed wrapper over the chat REST surface.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type apiEnvelope struct {
	Success       bool                 `json:"success"`
	Error         string               `json:"error"`
	Conversation  *chat.Conversation   `json:"conversation"`
	Conversations []*chat.Conversation `json:"conversations"`
	Message       *chat.Message        `json:"message"`
	Messages      []*chat.Message      `json:"messages"`
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*apiEnvelope, error) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	env := &apiEnvelope{}
	if err := json.NewDecoder(resp.Body).Decode(env); err != nil {
		return nil, fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("%s %s: %s", method, path, msg)
	}
	return env, nil
}

// CreateConversation upserts the conversation for a visitor id.
func (c *Client) CreateConversation(ctx context.Context, p chat.CreateConversationParams) (*chat.Conversation, error) {
	env, err := c.do(ctx, http.MethodPost, "/api/chat/conversations", map[string]string{
		"visitorId":       p.VisitorID,
		"visitorName":     p.VisitorName,
		"visitorEmail":    p.VisitorEmail,
		"visitorWhatsApp": p.VisitorWhatsApp,
	})
	if err != nil {
		return nil, err
	}
	return env.Conversation, nil
}

func (c *Client) ListConversations(ctx context.Context, status string) ([]*chat.Conversation, error) {
	path := "/api/chat/conversations"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	env, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return env.Conversations, nil
}

func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]*chat.Message, error) {
	env, err := c.do(ctx, http.MethodGet, "/api/chat/messages?conversationId="+url.QueryEscape(conversationID), nil)
	if err != nil {
		return nil, err
	}
	return env.Messages, nil
}

func (c *Client) SendMessage(ctx context.Context, conversationID, sender, senderName, text string) (*chat.Message, error) {
	env, err := c.do(ctx, http.MethodPost, "/api/chat/messages", map[string]string{
		"conversationId": conversationID,
		"sender":         sender,
		"senderName":     senderName,
		"message":        text,
	})
	if err != nil {
		return nil, err
	}
	return env.Message, nil
}

func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	_, err := c.do(ctx, http.MethodPatch, "/api/chat/messages", map[string]string{
		"conversationId": conversationID,
	})
	return err
}
