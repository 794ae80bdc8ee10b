package engine

import (
	"fmt"
	"time"
)

// Outbound message bodies. The gateway and transports deliver these
// verbatim; keep them channel-agnostic (no markup, no mentions).

func msgQuestion(index, total int, question string, limit time.Duration) string {
	header := ""
	if index > 0 {
		header = "Answer recorded.\n\n"
	}
	return fmt.Sprintf("%s[Question %d/%d]\n\n%s\n\nReply with: wl answer <your answer>\n(time limit per question: %s)",
		header, index+1, total, question, formatDuration(limit))
}

func msgPrepareFailed() string {
	return "Could not prepare the interview questions. Please try again later."
}

func msgVerdictPassed(player string, score, maxScore int, remoteOK bool) string {
	if remoteOK {
		return fmt.Sprintf("Interview passed. Score: %d/%d.\n%s has been added to the server allow list.",
			score, maxScore, player)
	}
	return fmt.Sprintf("Interview passed. Score: %d/%d.\n%s was recorded, but the game server could not be updated; an operator will add the name manually.",
		score, maxScore, player)
}

func msgVerdictFailed(score, maxScore, passScore int, cooldown time.Duration) string {
	return fmt.Sprintf("Interview not passed. Score: %d/%d (pass mark: %d).\nYou can try again in %s.",
		score, maxScore, passScore, formatDuration(cooldown))
}

func msgTimedOut(index, total int, cooldown time.Duration) string {
	return fmt.Sprintf("No answer to question %d/%d in time; the interview is over.\nYou can try again in %s.",
		index+1, total, formatDuration(cooldown))
}

func msgCancelled(player string) string {
	return fmt.Sprintf("The interview for %s was cancelled by an operator. You may start a new one at any time.", player)
}

func msgShutdown(player string) string {
	return fmt.Sprintf("The service is restarting; the interview for %s was ended without penalty. Please start again in a moment.", player)
}

// formatDuration renders a duration for chat messages, rounded to the
// minute.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	if d < time.Minute {
		return "less than a minute"
	}
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case h > 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dm", m)
	}
}
