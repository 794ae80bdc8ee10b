package model

import "time"

// WhitelistSource distinguishes how an entry earned its place.
type WhitelistSource string

const (
	// SourceInterview: the requester passed a scored interview.
	SourceInterview WhitelistSource = "interview"
	// SourceAdmin: an operator added the entry directly.
	SourceAdmin WhitelistSource = "admin"
)

// WhitelistEntry is the local mirror of an approved player name. The
// authoritative copy lives on the game server; this record is written even
// when the remote write fails, so local state never disagrees with "a human
// believes this player is approved". Used for quota counting and listing.
type WhitelistEntry struct {
	Player     string          `json:"player"`
	Requester  string          `json:"requester"`
	ApprovedBy string          `json:"approved_by"`
	Source     WhitelistSource `json:"source"`
	Score      *int            `json:"score,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
