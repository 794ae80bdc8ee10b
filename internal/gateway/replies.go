package gateway

import (
	"fmt"
	"strings"
	"time"

	"github.com/ashita-ai/monban/internal/engine"
	"github.com/ashita-ai/monban/internal/model"
)

const (
	replyBadName = "Player names are 3 to 16 characters: letters, digits and underscore."

	replyInterviewActive = "You already have an interview in progress. " +
		"Answer the current question or wait for it to expire."

	replyNameLocked = "Someone else is interviewing for that name right now. Try again later."

	replyAlreadyWhitelisted = "That name is already on the allow list."

	replyPreparing = "Your questions are still being prepared. One moment."

	replyScoring = "All answers are in; scoring is in progress."

	replyRestarting = "The service is restarting. Try again in a moment."

	replyInternal = "Something went wrong on our side. Try again later."

	replyNotAdmin = "That command requires operator rights."
)

func replyUsage(prefix string, admin bool) string {
	var b strings.Builder
	b.WriteString("Commands:\n")
	fmt.Fprintf(&b, "  %s apply <player>   start an interview for a player name\n", prefix)
	fmt.Fprintf(&b, "  %s answer <text>    answer the current question\n", prefix)
	fmt.Fprintf(&b, "  %s status           show your interview progress", prefix)
	if admin {
		b.WriteString("\n")
		b.WriteString(replyAdminUsage(prefix))
	}
	return b.String()
}

func replyAdminUsage(prefix string) string {
	var b strings.Builder
	b.WriteString("Admin commands:\n")
	fmt.Fprintf(&b, "  %s admin approve <player>\n", prefix)
	fmt.Fprintf(&b, "  %s admin revoke <player>\n", prefix)
	fmt.Fprintf(&b, "  %s admin reset <requester> <channel>\n", prefix)
	fmt.Fprintf(&b, "  %s admin cooldown clear <requester> <player>\n", prefix)
	fmt.Fprintf(&b, "  %s admin list\n", prefix)
	fmt.Fprintf(&b, "  %s admin pending\n", prefix)
	fmt.Fprintf(&b, "  %s admin sync", prefix)
	return b.String()
}

func replyNoInterview(prefix string) string {
	return "You have no interview in progress. Start one with: " + prefix + " apply <player>"
}

func replyEmptyAnswer(prefix string) string {
	return "Your answer is empty. Reply with: " + prefix + " answer <your answer>"
}

func applyAck(player string, rules engine.Config) string {
	return fmt.Sprintf(
		"Interview for %s started: %d questions, %s per question, pass mark %d/%d.\n"+
			"The first question is on its way.",
		player, rules.QuestionCount, humanDuration(rules.AnswerTimeout),
		rules.PassScore, rules.QuestionCount*10)
}

func quotaReply(max int) string {
	return fmt.Sprintf("You have reached the limit of %d whitelisted name(s) per requester.", max)
}

func cooldownReply(remaining time.Duration) string {
	return fmt.Sprintf("A recent interview for this name did not pass. You can try again in %s.",
		humanDuration(remaining))
}

func statusReply(snap model.InterviewSnapshot, now time.Time) string {
	if snap.AskedAt.IsZero() {
		return fmt.Sprintf("Interview for %s: preparing questions.", snap.Player)
	}
	if snap.Index >= snap.QuestionCount {
		return fmt.Sprintf("Interview for %s: all %d answers in, scoring in progress.",
			snap.Player, snap.QuestionCount)
	}
	return fmt.Sprintf("Interview for %s: question %d/%d, %s left to answer.",
		snap.Player, snap.Index+1, snap.QuestionCount, humanDuration(snap.Deadline.Sub(now)))
}

func idleStatusReply(prefix string, used, max int) string {
	return fmt.Sprintf("No interview in progress. Whitelist slots used: %d/%d.\n"+
		"Apply with: %s apply <player>", used, max, prefix)
}

func approveReply(player string, remoteOK bool) string {
	if remoteOK {
		return fmt.Sprintf("Added %s to the server allow list.", player)
	}
	return fmt.Sprintf("Added %s to the local allow list, but the game server update failed; "+
		"add the name there manually.", player)
}

func revokeReply(player string, remoteOK bool) string {
	if remoteOK {
		return fmt.Sprintf("Removed %s from the server and local allow lists.", player)
	}
	return fmt.Sprintf("Removed %s from the local allow list, but the game server update failed; "+
		"remove the name there manually.", player)
}

// listReply caps the name listing; chat transports reject very long texts.
func listReply(entries []model.WhitelistEntry) string {
	if len(entries) == 0 {
		return "The allow list is empty."
	}
	const maxNames = 50
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Player)
	}
	suffix := ""
	if len(names) > maxNames {
		suffix = fmt.Sprintf(" and %d more", len(names)-maxNames)
		names = names[:maxNames]
	}
	return fmt.Sprintf("Allow list (%d): %s%s", len(entries), strings.Join(names, ", "), suffix)
}

func pendingReply(snaps []model.InterviewSnapshot, now time.Time) string {
	if len(snaps) == 0 {
		return "No interviews in progress."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Interviews in progress (%d):", len(snaps))
	for _, s := range snaps {
		b.WriteString("\n- ")
		switch {
		case s.AskedAt.IsZero():
			fmt.Fprintf(&b, "%s (requester %s): preparing questions", s.Player, s.Requester)
		case s.Index >= s.QuestionCount:
			fmt.Fprintf(&b, "%s (requester %s): scoring in progress", s.Player, s.Requester)
		default:
			fmt.Fprintf(&b, "%s (requester %s): question %d/%d, %s left",
				s.Player, s.Requester, s.Index+1, s.QuestionCount,
				humanDuration(s.Deadline.Sub(now)))
		}
	}
	return b.String()
}

// syncReply shows at most ten per-name results, like a console tail.
func syncReply(ok, failed int, details []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Allow-list sync finished: %d ok, %d failed.", ok, failed)
	const maxDetails = 10
	for i, d := range details {
		if i == maxDetails {
			fmt.Fprintf(&b, "\n... and %d more", len(details)-maxDetails)
			break
		}
		b.WriteString("\n")
		b.WriteString(d)
	}
	return b.String()
}

// humanDuration renders d for chat: seconds below a minute, minutes and
// seconds below an hour, hours and minutes above that.
func humanDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case h > 0:
		return fmt.Sprintf("%dh", h)
	case m > 0 && s > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	case m > 0:
		return fmt.Sprintf("%dm", m)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
