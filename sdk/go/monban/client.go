package monban

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the Monban server (e.g. "http://localhost:8787").
	BaseURL string

	// APIKey is the ops API key used as a bearer credential. Keys are
	// static; there is no token exchange.
	APIKey string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with a 30-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the Monban ops API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL or APIKey is empty.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("monban: BaseURL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("monban: APIKey is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  httpClient,
	}, nil
}

// Health checks the server's health status. This endpoint does not require
// authentication and will work even if the client has an invalid key.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var resp Health
	if err := c.getNoAuth(ctx, "/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status returns engine counters: live interviews, cooldowns, locked
// players, and the whitelist size. Requires reader role or above.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var resp Status
	if err := c.get(ctx, "/v1/status", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendCommand submits one chat line on behalf of a requester, exactly as a
// bridge transport would. The returned reply is the synchronous part of the
// conversation; interview questions arrive through the server's deliverer.
// Requires agent role or above.
func (c *Client) SendCommand(ctx context.Context, requester, channel, text string) (string, error) {
	body := commandBody{Requester: requester, Channel: channel, Text: text}
	var resp commandReply
	if err := c.post(ctx, "/v1/commands", body, &resp); err != nil {
		return "", err
	}
	return resp.Reply, nil
}

// ---------------------------------------------------------------------------
// Whitelist
// ---------------------------------------------------------------------------

// Whitelist returns the server's local whitelist mirror.
func (c *Client) Whitelist(ctx context.Context) ([]WhitelistEntry, error) {
	var resp whitelistListResponse
	if err := c.get(ctx, "/v1/whitelist", &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// AddWhitelist adds a player directly, bypassing the interview. Requires
// admin role. If requester is empty, the entry is attributed to the key
// making the call.
func (c *Client) AddWhitelist(ctx context.Context, player, requester string) (*WhitelistAddResult, error) {
	body := whitelistAddBody{Player: player, Requester: requester}
	var resp WhitelistAddResult
	if err := c.post(ctx, "/v1/whitelist", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RemoveWhitelist removes a player from the whitelist and the game server.
// Requires admin role.
func (c *Client) RemoveWhitelist(ctx context.Context, player string) (*WhitelistRemoveResult, error) {
	var resp WhitelistRemoveResult
	if err := c.doDelete(ctx, "/v1/whitelist/"+url.PathEscape(player), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ---------------------------------------------------------------------------
// Cooldowns and interviews
// ---------------------------------------------------------------------------

// Cooldowns returns all active retry lockouts.
func (c *Client) Cooldowns(ctx context.Context) ([]CooldownEntry, error) {
	var resp cooldownListResponse
	if err := c.get(ctx, "/v1/cooldowns", &resp); err != nil {
		return nil, err
	}
	return resp.Cooldowns, nil
}

// ClearCooldown lifts the lockout for a requester/player pair so they may
// apply again immediately. Requires admin role.
func (c *Client) ClearCooldown(ctx context.Context, requester, player string) error {
	path := "/v1/cooldowns/" + url.PathEscape(requester) + "/" + url.PathEscape(player)
	return c.doDelete(ctx, path, nil)
}

// Interviews returns a snapshot of every live interview.
func (c *Client) Interviews(ctx context.Context) ([]InterviewSnapshot, error) {
	var resp interviewListResponse
	if err := c.get(ctx, "/v1/interviews", &resp); err != nil {
		return nil, err
	}
	return resp.Interviews, nil
}

// CancelInterview cancels a live interview without penalty: no cooldown is
// recorded. Requires admin role.
func (c *Client) CancelInterview(ctx context.Context, requester, channel string) error {
	path := "/v1/interviews/" + url.PathEscape(requester) + "/" + url.PathEscape(channel)
	return c.doDelete(ctx, path, nil)
}

// ---------------------------------------------------------------------------
// Audit log
// ---------------------------------------------------------------------------

// Audit retrieves finished interviews from the audit log in append order.
// Nil opts return the first page with server defaults.
func (c *Client) Audit(ctx context.Context, opts *AuditOptions) (*AuditPage, error) {
	params := url.Values{}
	if opts != nil {
		if opts.Requester != "" {
			params.Set("requester", opts.Requester)
		}
		if opts.Player != "" {
			params.Set("player", opts.Player)
		}
		if opts.Passed != nil {
			params.Set("passed", strconv.FormatBool(*opts.Passed))
		}
		if opts.Limit > 0 {
			params.Set("limit", strconv.Itoa(opts.Limit))
		}
		if opts.Offset > 0 {
			params.Set("offset", strconv.Itoa(opts.Offset))
		}
	}

	path := "/v1/audit"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	// List endpoints return the pagination envelope as the top-level body,
	// so the page is decoded directly instead of unwrapped from "data".
	var page AuditPage
	if err := c.getList(ctx, path, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// VerifyAudit asks the server to recompute the audit log's hash chain and
// report whether every record is intact.
func (c *Client) VerifyAudit(ctx context.Context) (*ChainVerify, error) {
	var resp ChainVerify
	if err := c.get(ctx, "/v1/audit/verify", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExportToken mints a short-lived token for ExportAudit. A zero ttl uses the
// server default. Requires admin role.
func (c *Client) ExportToken(ctx context.Context, ttl time.Duration) (*ExportToken, error) {
	body := map[string]any{}
	if ttl > 0 {
		body["ttl_seconds"] = int(ttl.Seconds())
	}
	var resp ExportToken
	if err := c.post(ctx, "/v1/audit/export-token", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExportAudit opens an NDJSON stream of the full audit log, one record per
// line in chain order. The token is the credential; no API key is sent.
// The caller owns the returned body and must close it.
func (c *Client) ExportAudit(ctx context.Context, token string) (io.ReadCloser, error) {
	path := "/v1/audit/export?token=" + url.QueryEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("monban: create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("monban: %s %s: %w", req.Method, req.URL.Path, err)
	}

	if resp.StatusCode >= 400 {
		bodyBytes, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("monban: read response body: %w", readErr)
		}
		return nil, parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	return resp.Body, nil
}

// ---------------------------------------------------------------------------
// API keys (admin-only)
// ---------------------------------------------------------------------------

// CreateKey creates a new ops API key. The raw key in the result is shown
// exactly once.
func (c *Client) CreateKey(ctx context.Context, name, role string) (*CreatedKey, error) {
	body := map[string]any{"name": name, "role": role}
	var resp CreatedKey
	if err := c.post(ctx, "/v1/keys", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Keys lists all ops API keys, revoked ones included.
func (c *Client) Keys(ctx context.Context) ([]APIKey, error) {
	var resp keyListResponse
	if err := c.get(ctx, "/v1/keys", &resp); err != nil {
		return nil, err
	}
	return resp.Keys, nil
}

// RevokeKey revokes an API key. The key stops working immediately.
func (c *Client) RevokeKey(ctx context.Context, id uuid.UUID) error {
	return c.doDelete(ctx, "/v1/keys/"+id.String(), nil)
}

// ---------------------------------------------------------------------------
// Wire-format bodies and list unwrappers
// ---------------------------------------------------------------------------

type commandBody struct {
	Requester string `json:"requester"`
	Channel   string `json:"channel"`
	Text      string `json:"text"`
}

type commandReply struct {
	Reply string `json:"reply"`
}

type whitelistAddBody struct {
	Player    string `json:"player"`
	Requester string `json:"requester,omitempty"`
}

type whitelistListResponse struct {
	Entries []WhitelistEntry `json:"entries"`
}

type cooldownListResponse struct {
	Cooldowns []CooldownEntry `json:"cooldowns"`
}

type interviewListResponse struct {
	Interviews []InterviewSnapshot `json:"interviews"`
}

type keyListResponse struct {
	Keys []APIKey `json:"keys"`
}

// ---------------------------------------------------------------------------
// HTTP transport
// ---------------------------------------------------------------------------

// apiEnvelope is the server's standard response wrapper.
type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// apiErrorEnvelope is the server's standard error response wrapper.
type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("monban: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("monban: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("monban: create request: %w", err)
	}

	return c.doRequest(req, dest)
}

// getList is get without envelope unwrapping, for endpoints whose top-level
// body is the pagination envelope itself.
func (c *Client) getList(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("monban: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("monban: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("monban: read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	return json.Unmarshal(bodyBytes, dest)
}

func (c *Client) doDelete(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("monban: create request: %w", err)
	}

	return c.doRequest(req, dest)
}

func (c *Client) getNoAuth(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("monban: create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("monban: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func (c *Client) doRequest(req *http.Request, dest any) error {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("monban: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("monban: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	// 204 No Content: nothing to decode.
	if resp.StatusCode == http.StatusNoContent || dest == nil {
		return nil
	}

	// Unwrap the server's { "data": ... } envelope.
	var envelope apiEnvelope
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return fmt.Errorf("monban: decode response envelope: %w", err)
	}

	if envelope.Data == nil {
		// Fallback: some endpoints may not wrap in "data".
		return json.Unmarshal(bodyBytes, dest)
	}

	return json.Unmarshal(envelope.Data, dest)
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = string(body)
	}

	return apiErr
}
