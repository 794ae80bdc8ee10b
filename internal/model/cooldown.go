package model

import "time"

// CooldownEntry is a timed lockout preventing a requester from immediately
// re-interviewing the same player name after a failure or expiry. Lazily
// deleted once expired.
type CooldownEntry struct {
	Requester string         `json:"requester"`
	Player    string         `json:"player"`
	Reason    TerminalReason `json:"reason"`
	ExpiresAt time.Time      `json:"expires_at"`
	CreatedAt time.Time      `json:"created_at"`
}

// Active reports whether the cooldown is still in force at now.
func (c CooldownEntry) Active(now time.Time) bool {
	return now.Before(c.ExpiresAt)
}

// Remaining returns the time left until expiry, clamped at zero.
func (c CooldownEntry) Remaining(now time.Time) time.Duration {
	d := c.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
