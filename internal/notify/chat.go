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

// ChatWebhook posts events to the support chat service, which relays the
// message to the account holder's conversation.
type ChatWebhook struct {
	url        string
	httpClient *http.Client
}

func NewChatWebhook(url string) *ChatWebhook {
	return &ChatWebhook{
		url: url,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (c *ChatWebhook) Name() string { return "chat" }

type chatPayload struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	AccountID string `json:"account_id"`
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	Event     Event  `json:"event"`
}

func (c *ChatWebhook) Send(ctx context.Context, e Event) error {
	payload := chatPayload{
		EventID:   e.ID.String(),
		EventType: string(e.Type),
		AccountID: e.AccountID.String(),
		Sender:    "admin",
		Message:   e.Message,
		Event:     e,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ChatWebhook.Send: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ChatWebhook.Send: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ChatWebhook.Send: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ChatWebhook.Send: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
