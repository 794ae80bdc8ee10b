package engine

import (
	"errors"
	"fmt"
	"time"
)

// Validation errors are reported synchronously to the requester and never
// mutate state.
var (
	// ErrChannelNotAllowed: the channel is not authorized for interviews.
	ErrChannelNotAllowed = errors.New("engine: channel not authorized for interviews")
	// ErrBadPlayerName: the player name fails the format check.
	ErrBadPlayerName = errors.New("engine: invalid player name")
	// ErrInterviewActive: the requester already has an interview on this channel.
	ErrInterviewActive = errors.New("engine: interview already in progress")
	// ErrQuotaExceeded: the requester reached the approved-entry quota.
	ErrQuotaExceeded = errors.New("engine: whitelist quota reached")
	// ErrAlreadyWhitelisted: the player name is already approved.
	ErrAlreadyWhitelisted = errors.New("engine: player already whitelisted")
	// ErrNameLocked: another interview is vetting this player name right now.
	ErrNameLocked = errors.New("engine: player name under interview")
	// ErrNoInterview: no active interview for (requester, channel).
	ErrNoInterview = errors.New("engine: no active interview")
	// ErrDeadlineExpired: the answer arrived after the question's deadline.
	ErrDeadlineExpired = errors.New("engine: answer deadline expired")
	// ErrNotReady: questions are still being prepared; nothing to answer yet.
	ErrNotReady = errors.New("engine: questions not ready")
	// ErrEmptyAnswer: the submitted answer contains no text.
	ErrEmptyAnswer = errors.New("engine: empty answer")
	// ErrScoringInProgress: every question is answered and the transcript is
	// being scored; further answers are rejected.
	ErrScoringInProgress = errors.New("engine: scoring in progress")
	// ErrNoCooldown: no cooldown exists for (requester, player).
	ErrNoCooldown = errors.New("engine: no such cooldown")
	// ErrShuttingDown: the engine no longer accepts new interviews.
	ErrShuttingDown = errors.New("engine: shutting down")
)

// CooldownActiveError reports a retry lockout for (requester, player) with
// the remaining wait. errors.Is(err, ErrCooldownActive) matches it.
type CooldownActiveError struct {
	Remaining time.Duration
}

// ErrCooldownActive is the identity target for CooldownActiveError.
var ErrCooldownActive = errors.New("engine: cooldown active")

func (e *CooldownActiveError) Error() string {
	return fmt.Sprintf("engine: cooldown active, %s remaining", e.Remaining.Round(time.Second))
}

func (e *CooldownActiveError) Is(target error) bool {
	return target == ErrCooldownActive
}
