// Package notify sends alert notifications through the external channel
// service. Delivery failures are reported, never fatal.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Result is the channel service's delivery verdict.
type Result struct {
	Result  bool   `json:"result"`
	Message string `json:"message,omitempty"`
}

// Sender dispatches one message through a notification channel.
type Sender interface {
	Send(ctx context.Context, channelID, title, content string, users []string) (*Result, error)
}

type Client struct {
	base       string
	httpClient *http.Client
}

func NewClient(base string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base:       strings.TrimSuffix(strings.TrimSpace(base), "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type sendRequest struct {
	ChannelID string   `json:"channel_id"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Receivers []string `json:"receivers"`
}

func (c *Client) Send(ctx context.Context, channelID, title, content string, users []string) (*Result, error) {
	if c.base == "" {
		return nil, fmt.Errorf("notify api base not configured")
	}
	body, _ := json.Marshal(sendRequest{ChannelID: channelID, Title: title, Content: content, Receivers: users})
	endpoint := c.base + "/v1/channels/send"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("channel service status %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode channel response: %w", err)
	}
	return &result, nil
}
