package model

import (
	"time"

	"github.com/google/uuid"
)

// AuditRecord is one immutable entry in the append-only interview audit log.
// Records are hash-chained: ContentHash covers the record's own canonical
// fields and PrevHash is the ContentHash of the preceding record (genesis
// records carry the chain constant). Never mutated after creation.
type AuditRecord struct {
	ID          uuid.UUID      `json:"id"`
	Requester   string         `json:"requester"`
	Channel     string         `json:"channel"`
	Player      string         `json:"player"`
	Transcript  []QA           `json:"transcript"`
	Score       int            `json:"score"`
	Passed      bool           `json:"passed"`
	Reason      TerminalReason `json:"reason"`
	TimedOutAt  *int           `json:"timed_out_at,omitempty"` // question index, set when Reason == timeout
	StartedAt   time.Time      `json:"started_at"`
	EndedAt     time.Time      `json:"ended_at"`
	ContentHash string         `json:"content_hash"`
	PrevHash    string         `json:"prev_hash"`
}

// AuditFilter narrows audit listings. Zero values mean "no constraint".
type AuditFilter struct {
	Requester string
	Player    string
	Passed    *bool
	Limit     int
	Offset    int
}
