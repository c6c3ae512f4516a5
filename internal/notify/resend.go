package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const resendEndpoint = "https://api.resend.com/emails"

// ResendProvider delivers through the Resend HTTP API. It exists as a
// fallback for hosts that block outbound SMTP.
type ResendProvider struct {
	APIKey string
	From   string

	// HTTPClient may be overridden in tests; nil means a default client.
	HTTPClient *http.Client
	// Endpoint may be overridden in tests; "" means the real API.
	Endpoint string
}

func (p *ResendProvider) Name() string { return "resend" }

func (p *ResendProvider) Send(ctx context.Context, n Notification) error {
	if p.APIKey == "" {
		return fmt.Errorf("resend api key not configured")
	}

	payload, err := json.Marshal(map[string]any{
		"from":    p.From,
		"to":      []string{n.To},
		"subject": n.Subject,
		"html":    n.HTML,
		"text":    n.Text,
	})
	if err != nil {
		return err
	}

	endpoint := p.Endpoint
	if endpoint == "" {
		endpoint = resendEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := p.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("resend: status %d: %s", resp.StatusCode, body)
	}
	return nil
}
