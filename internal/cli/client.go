package cli

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

// apiClient is a minimal HTTP wrapper over the ops API for terminal use.
// Bridge and tooling authors should use the public client under sdk/go
// instead; this one exists so monbanctl has no dependency on it.
type apiClient struct {
	baseURL string
	apiKey  string
	hc      *http.Client
}

func newClient() (*apiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("an API key is required: pass --api-key or set MONBANCTL_API_KEY")
	}
	return &apiClient{
		baseURL: strings.TrimRight(serverURL, "/"),
		apiKey:  apiKey,
		hc:      defaultHTTPClient(),
	}, nil
}

// newProbeClient builds a client without credentials, for endpoints that do
// not require a key.
func newProbeClient() *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(serverURL, "/"),
		hc:      defaultHTTPClient(),
	}
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

func (c *apiClient) get(ctx context.Context, path string, dest any) error {
	return c.do(ctx, http.MethodGet, path, nil, dest, true)
}

// getList decodes the body as-is. List endpoints return the pagination
// envelope at the top level, so unwrapping "data" would lose the page info.
func (c *apiClient) getList(ctx context.Context, path string, dest any) error {
	return c.do(ctx, http.MethodGet, path, nil, dest, false)
}

func (c *apiClient) post(ctx context.Context, path string, body, dest any) error {
	return c.do(ctx, http.MethodPost, path, body, dest, true)
}

func (c *apiClient) del(ctx context.Context, path string, dest any) error {
	return c.do(ctx, http.MethodDelete, path, nil, dest, true)
}

// stream opens a raw response body, for NDJSON downloads. The caller must
// close it.
func (c *apiClient) stream(ctx context.Context, path string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		raw, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("read response: %w", readErr)
		}
		return nil, apiError(resp.StatusCode, raw)
	}
	return resp.Body, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, body, dest any, unwrap bool) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return apiError(resp.StatusCode, raw)
	}
	if resp.StatusCode == http.StatusNoContent || dest == nil {
		return nil
	}

	if !unwrap {
		return json.Unmarshal(raw, dest)
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if envelope.Data == nil {
		return json.Unmarshal(raw, dest)
	}
	return json.Unmarshal(envelope.Data, dest)
}

func apiError(status int, body []byte) error {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return fmt.Errorf("server: %s (%s)", envelope.Error.Message, envelope.Error.Code)
	}
	return fmt.Errorf("server: %s", http.StatusText(status))
}
