package model

import (
	"time"

	"github.com/google/uuid"
)

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// ListResponse is the standard envelope for paginated list endpoints.
type ListResponse struct {
	Data    any          `json:"data"`
	Total   *int         `json:"total,omitempty"`
	HasMore bool         `json:"has_more"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
	Meta    ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
)

// CommandRequest is the request body for POST /v1/commands: one chat line
// from a bridge transport.
type CommandRequest struct {
	Requester string `json:"requester"`
	Channel   string `json:"channel"`
	Text      string `json:"text"`
}

// CommandResponse carries the synchronous reply to an ingested command.
// Asynchronous follow-ups (questions, verdicts) go through the deliverer.
type CommandResponse struct {
	Reply string `json:"reply,omitempty"`
}

// WhitelistAddRequest is the request body for POST /v1/whitelist.
type WhitelistAddRequest struct {
	Player    string `json:"player"`
	Requester string `json:"requester,omitempty"`
}

// InterviewSnapshot is a read-only view of an active interview for the ops
// API. It never exposes the question list of a live interview.
type InterviewSnapshot struct {
	ID            uuid.UUID `json:"id"`
	Requester     string    `json:"requester"`
	Channel       string    `json:"channel"`
	Player        string    `json:"player"`
	QuestionCount int       `json:"question_count"`
	Index         int       `json:"index"`
	AskedAt       time.Time `json:"asked_at"`
	Deadline      time.Time `json:"deadline"`
	CreatedAt     time.Time `json:"created_at"`
}

// HealthResponse is the body of GET /health. Unlike /v1/status it carries
// no counts, so it stays cheap enough for aggressive probe intervals.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Store         string `json:"store"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// StatusResponse is the body of GET /v1/status.
type StatusResponse struct {
	Status           string    `json:"status"`
	Version          string    `json:"version"`
	UptimeSeconds    int64     `json:"uptime_seconds"`
	ActiveInterviews int       `json:"active_interviews"`
	LockedPlayers    int       `json:"locked_players"`
	ActiveCooldowns  int       `json:"active_cooldowns"`
	WhitelistSize    int       `json:"whitelist_size"`
	Time             time.Time `json:"time"`
}

// CreateKeyRequest is the request body for POST /v1/keys.
type CreateKeyRequest struct {
	Name string  `json:"name"`
	Role KeyRole `json:"role"`
}

// ExportTokenRequest is the body of POST /v1/audit/export-token. A zero or
// missing TTL uses the server default.
type ExportTokenRequest struct {
	TTLSeconds int `json:"ttl_seconds,omitempty"`
}

// ExportTokenResponse is the body of POST /v1/audit/export-token.
type ExportTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ChainVerifyResponse is the body of GET /v1/audit/verify.
type ChainVerifyResponse struct {
	OK       bool `json:"ok"`
	Records  int  `json:"records"`
	BadIndex *int `json:"bad_index,omitempty"`
}
