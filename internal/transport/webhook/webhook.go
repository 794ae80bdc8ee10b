// Package webhook posts the engine's asynchronous messages to an operator
// supplied HTTP endpoint. It pairs with the ops server's command ingest:
// synchronous replies come back in the HTTP response, asynchronous sends
// (questions, verdicts) arrive here.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// Deliverer POSTs {"channel","text"} as JSON to a fixed URL.
type Deliverer struct {
	url    string
	token  string
	client *http.Client
}

// New creates a webhook deliverer. token, when set, is sent as a bearer
// Authorization header.
func New(url, token string, timeout time.Duration) *Deliverer {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Deliverer{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

type payload struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

func (d *Deliverer) Deliver(ctx context.Context, channel, text string) error {
	body, err := json.Marshal(payload{Channel: channel, Text: text})
	if err != nil {
		return fmt.Errorf("webhook: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}
