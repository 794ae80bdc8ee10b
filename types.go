package monban

import (
	"time"

	"github.com/google/uuid"
)

// Role is an ops API key's access level.
type Role string

const (
	// RoleReader can read status, listings, and the audit trail.
	RoleReader Role = "reader"
	// RoleAgent can additionally ingest bridge commands.
	RoleAgent Role = "agent"
	// RoleAdmin can mutate state and manage keys.
	RoleAdmin Role = "admin"
)

// QA is one question/answer pair of an interview transcript.
type QA struct {
	Question string
	Answer   string
}

// Interview is the public view of a live interview, delivered to event
// hooks when an interview starts. It carries the question count but never
// the questions themselves: live question text stays inside the engine.
type Interview struct {
	ID            uuid.UUID
	Requester     string
	Channel       string
	Player        string
	QuestionCount int
	CreatedAt     time.Time
}

// AuditRecord is the public view of a finished interview, delivered to
// event hooks when an interview ends. By then the transcript is part of
// the permanent audit trail, so hooks receive it in full.
type AuditRecord struct {
	ID         uuid.UUID
	Requester  string
	Channel    string
	Player     string
	Transcript []QA
	Score      int
	Passed     bool
	// Reason is the terminal reason: completed, timeout, cancelled, or
	// shutdown.
	Reason string
	// TimedOutAt is the zero-based question index that expired, set only
	// when Reason is "timeout".
	TimedOutAt  *int
	StartedAt   time.Time
	EndedAt     time.Time
	ContentHash string
	PrevHash    string
}
