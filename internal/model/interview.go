// Package model defines the domain types shared across Monban: interviews,
// whitelist entries, cooldowns, audit records, and API keys.
package model

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// AnswerSentinel is recorded in place of an answer when a question's deadline
// fires before the requester replies. It is written by the timeout path only
// and never parsed.
const AnswerSentinel = "<no answer>"

// playerNamePattern matches valid game account names: alphanumeric and
// underscore, 3 to 16 characters.
var playerNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,16}$`)

// ValidatePlayerName checks that a player name is a well-formed game account
// name. Returns an error describing the constraint on failure.
func ValidatePlayerName(name string) error {
	if !playerNamePattern.MatchString(name) {
		return fmt.Errorf("player name must be 3-16 characters of [a-zA-Z0-9_], got %q", name)
	}
	return nil
}

// Interview is the live state of one in-progress admission interview.
// It exists only in memory and is owned exclusively by the engine for its
// lifetime: created on Begin, mutated only by the answer and timeout
// transitions, removed exactly once at completion, expiry, or cancellation.
//
// Invariant: len(Answers) == Index between transitions. The question at
// Questions[Index] is the one currently awaiting an answer.
type Interview struct {
	ID        uuid.UUID `json:"id"`
	Requester string    `json:"requester"`
	Channel   string    `json:"channel"`
	Player    string    `json:"player"`
	Questions []string  `json:"questions"`
	Answers   []string  `json:"answers"`
	Index     int       `json:"index"`
	AskedAt   time.Time `json:"asked_at"`
	LastSeen  time.Time `json:"last_seen"`
	CreatedAt time.Time `json:"created_at"`
}

// QA is one question/answer pair of an interview transcript.
type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Transcript pairs questions with the answers given so far. For terminal
// records the engine guarantees len(Answers) == len(Questions).
func (iv *Interview) Transcript() []QA {
	qa := make([]QA, 0, len(iv.Answers))
	for i, a := range iv.Answers {
		qa = append(qa, QA{Question: iv.Questions[i], Answer: a})
	}
	return qa
}

// CurrentQuestion returns the question awaiting an answer, or "" when the
// interview has advanced past the last question.
func (iv *Interview) CurrentQuestion() string {
	if iv.Index >= len(iv.Questions) {
		return ""
	}
	return iv.Questions[iv.Index]
}

// Answered reports whether every question has an answer (real or sentinel).
func (iv *Interview) Answered() bool {
	return iv.Index >= len(iv.Questions)
}

// MaxScore is the scoring ceiling for an interview of n questions: each
// question is worth up to 10 points.
func MaxScore(n int) int { return 10 * n }

// TerminalReason records why an interview reached a terminal state.
type TerminalReason string

const (
	// ReasonCompleted: every question answered, transcript scored.
	ReasonCompleted TerminalReason = "completed"
	// ReasonTimeout: a question deadline fired; score forced to zero.
	ReasonTimeout TerminalReason = "timeout"
	// ReasonCancelled: an admin reset the interview; no cooldown follows.
	ReasonCancelled TerminalReason = "cancelled"
	// ReasonShutdown: the service stopped while the interview was live.
	ReasonShutdown TerminalReason = "shutdown"
)
