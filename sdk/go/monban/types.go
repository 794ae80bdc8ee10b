package monban

import (
	"time"

	"github.com/google/uuid"
)

// Key roles accepted by CreateKey. Reader keys see state, agent keys may
// also submit commands, admin keys may mutate everything.
const (
	RoleReader = "reader"
	RoleAgent  = "agent"
	RoleAdmin  = "admin"
)

// Health is the body of GET /health. The endpoint requires no
// authentication.
type Health struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Store         string `json:"store"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// Status is the body of GET /v1/status.
type Status struct {
	Status           string    `json:"status"`
	Version          string    `json:"version"`
	UptimeSeconds    int64     `json:"uptime_seconds"`
	ActiveInterviews int       `json:"active_interviews"`
	LockedPlayers    int       `json:"locked_players"`
	ActiveCooldowns  int       `json:"active_cooldowns"`
	WhitelistSize    int       `json:"whitelist_size"`
	Time             time.Time `json:"time"`
}

// WhitelistEntry mirrors the server's whitelist record.
type WhitelistEntry struct {
	Player     string    `json:"player"`
	Requester  string    `json:"requester"`
	ApprovedBy string    `json:"approved_by"`
	Source     string    `json:"source"`
	Score      *int      `json:"score,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// WhitelistAddResult is the body of POST /v1/whitelist. RemoteOK reports
// whether the game server confirmed the add; the local mirror is written
// either way.
type WhitelistAddResult struct {
	Entry    WhitelistEntry `json:"entry"`
	RemoteOK bool           `json:"remote_ok"`
}

// WhitelistRemoveResult is the body of DELETE /v1/whitelist/{player}.
type WhitelistRemoveResult struct {
	Player   string `json:"player"`
	RemoteOK bool   `json:"remote_ok"`
}

// CooldownEntry is an active retry lockout for a requester/player pair.
type CooldownEntry struct {
	Requester string    `json:"requester"`
	Player    string    `json:"player"`
	Reason    string    `json:"reason"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// InterviewSnapshot is a read-only view of a live interview. Questions of
// live interviews are never included.
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

// QA is one question/answer pair from an interview transcript.
type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// AuditRecord is one finished interview from the hash-chained audit log.
type AuditRecord struct {
	ID          uuid.UUID `json:"id"`
	Requester   string    `json:"requester"`
	Channel     string    `json:"channel"`
	Player      string    `json:"player"`
	Transcript  []QA      `json:"transcript"`
	Score       int       `json:"score"`
	Passed      bool      `json:"passed"`
	Reason      string    `json:"reason"`
	TimedOutAt  *int      `json:"timed_out_at,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
	ContentHash string    `json:"content_hash"`
	PrevHash    string    `json:"prev_hash"`
}

// AuditOptions are optional filters for the Audit method. Zero values mean
// no filter; a zero Limit uses the server default.
type AuditOptions struct {
	Requester string
	Player    string
	Passed    *bool
	Limit     int
	Offset    int
}

// AuditPage is one page of audit records. Total is only present on
// unfiltered listings; filtered listings report HasMore from a page-full
// heuristic instead.
type AuditPage struct {
	Records []AuditRecord `json:"data"`
	Total   *int          `json:"total,omitempty"`
	HasMore bool          `json:"has_more"`
	Limit   int           `json:"limit"`
	Offset  int           `json:"offset"`
}

// ChainVerify is the body of GET /v1/audit/verify. When OK is false,
// BadIndex is the position of the first record that fails verification.
type ChainVerify struct {
	OK       bool `json:"ok"`
	Records  int  `json:"records"`
	BadIndex *int `json:"bad_index,omitempty"`
}

// ExportToken is a short-lived credential for GET /v1/audit/export.
type ExportToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// APIKey describes an ops API key. The key material itself is never
// returned after creation; only the prefix is visible.
type APIKey struct {
	ID         uuid.UUID  `json:"id"`
	Prefix     string     `json:"prefix"`
	Name       string     `json:"name"`
	Role       string     `json:"role"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// CreatedKey is the body of POST /v1/keys. RawKey is shown exactly once,
// at creation; store it somewhere safe.
type CreatedKey struct {
	APIKey
	RawKey string `json:"raw_key"`
}
