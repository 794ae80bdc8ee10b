// Package examiner talks to the question-generation and answer-scoring
// service. Backends share prompts and response parsing and differ only in
// how a chat exchange reaches the model: an OpenAI-compatible endpoint, a
// local Ollama instance, or the Gemini API.
//
// All calls carry bounded timeouts and bounded retries. Failures never
// propagate as panics; callers turn a returned error into fallback behavior
// (bank questions for generation, score zero for scoring).
package examiner

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ashita-ai/monban/internal/model"
)

// Examiner generates interview questions and scores completed transcripts.
type Examiner interface {
	GenerateQuestions(ctx context.Context, n int) ([]string, error)
	Score(ctx context.Context, transcript []model.QA) (int, error)
}

// ErrDisabled is returned by the Noop examiner. Callers treat it like any
// other examiner failure: bank questions, score zero.
var ErrDisabled = errors.New("examiner: disabled")

// Config selects and parameterizes a backend.
type Config struct {
	// Provider is one of "openai", "ollama", "gemini", or "none".
	Provider string
	// BaseURL overrides the provider endpoint. For "openai" this allows any
	// OpenAI-compatible service; for "ollama" it defaults to the local
	// daemon.
	BaseURL string
	APIKey  string
	Model   string
	// Timeout bounds a single model call.
	Timeout time.Duration
}

// New builds the configured backend. Provider "bank" scores offline against
// the supplied bank; "none" (or empty) returns the Noop examiner.
func New(cfg Config, bank *Bank) (Examiner, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	switch cfg.Provider {
	case "", "none":
		return Noop{}, nil
	case "bank":
		if bank == nil {
			return nil, errors.New("examiner: bank provider requires a question bank")
		}
		return NewStatic(bank), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, errors.New("examiner: openai provider requires an API key")
		}
		return NewOpenAI(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Timeout), nil
	case "ollama":
		return NewOllama(cfg.BaseURL, cfg.Model, cfg.Timeout), nil
	case "gemini":
		if cfg.APIKey == "" {
			return nil, errors.New("examiner: gemini provider requires an API key")
		}
		return NewGemini(cfg.APIKey, cfg.Model, cfg.Timeout)
	default:
		return nil, fmt.Errorf("examiner: unknown provider %q", cfg.Provider)
	}
}

// Retry policy. Generation tolerates more attempts than scoring because a
// failed generation only delays the first question, while scoring holds a
// finished interview open.
const (
	generateAttempts = 3
	scoreAttempts    = 2
	retryDelay       = 2 * time.Second
)

const generateSystemPrompt = "You are the admission examiner for a game server. You write short interview questions that test whether an applicant has read the server rules and will behave."

const scoreSystemPrompt = "You are a strict grader. You reply with a single integer and nothing else."

// generatePrompt asks for exactly n questions, one per line, without
// numbering. Models number them anyway; ParseQuestions strips that.
func generatePrompt(n int) string {
	return fmt.Sprintf(`Write %d interview questions for a player applying to join a community game server.

The questions test knowledge of common server rules: griefing, stealing, chat conduct, dispute handling, reporting problems to moderators.

Output only the questions, one per line. No preamble, no numbering, no commentary.`, n)
}

// scorePrompt renders the transcript with a rubric. Unanswered questions
// (deadline expiries) are labelled so the model scores them zero.
func scorePrompt(transcript []model.QA) string {
	var b strings.Builder
	maxScore := model.MaxScore(len(transcript))
	fmt.Fprintf(&b, `Grade the following admission interview. Each question is worth up to 10 points, %d points total.

Rubric per question:
- reasonable answer consistent with good server conduct: 8-10
- plausible but incomplete: 6-7
- unreasonable or rule-breaking: 0-5
- unanswered: 0

Reply with the final total as a single integer. Nothing else.

`, maxScore)
	for i, qa := range transcript {
		answer := qa.Answer
		if answer == model.AnswerSentinel {
			answer = "[unanswered]"
		}
		fmt.Fprintf(&b, "%d. Question: %s\n   Answer: %s\n\n", i+1, qa.Question, answer)
	}
	return b.String()
}

var (
	questionNumbering = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*])\s*`)
	firstInteger      = regexp.MustCompile(`\d+`)
)

// skipMarkers flag lines that are commentary rather than questions.
var skipMarkers = []string{"---", "===", "```", "score", "points", "here are", "questions:"}

// ParseQuestions extracts one question per line from a model response,
// stripping numbering and bullets and dropping lines too short to be a real
// question.
func ParseQuestions(text string) []string {
	var questions []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		skip := false
		for _, marker := range skipMarkers {
			if strings.Contains(lower, marker) {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		cleaned := questionNumbering.ReplaceAllString(line, "")
		cleaned = strings.TrimSpace(cleaned)
		if len(cleaned) > 10 {
			questions = append(questions, cleaned)
		}
	}
	return questions
}

// ParseScore extracts the first integer from a model response and validates
// it against [0, max]. Out-of-range or missing integers are errors so the
// caller can retry rather than admit on a garbled reply.
func ParseScore(text string, max int) (int, error) {
	m := firstInteger.FindString(text)
	if m == "" {
		return 0, fmt.Errorf("examiner: no integer in score response %q", snippet(text))
	}
	score, err := strconv.Atoi(m)
	if err != nil {
		return 0, fmt.Errorf("examiner: parse score %q: %w", m, err)
	}
	if score < 0 || score > max {
		return 0, fmt.Errorf("examiner: score %d outside [0, %d]", score, max)
	}
	return score, nil
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}

// sleepRetry waits the retry delay or returns early when ctx ends.
func sleepRetry(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(retryDelay):
		return nil
	}
}

// Static is the deterministic offline backend: questions come from the bank
// and each answered question earns full marks, unanswered questions zero.
// Useful for servers that only want to check an applicant bothered to
// answer, and for air-gapped test environments.
type Static struct {
	bank *Bank
}

func NewStatic(bank *Bank) *Static {
	return &Static{bank: bank}
}

func (s *Static) GenerateQuestions(_ context.Context, n int) ([]string, error) {
	return s.bank.Sample(n)
}

func (s *Static) Score(_ context.Context, transcript []model.QA) (int, error) {
	score := 0
	for _, qa := range transcript {
		if qa.Answer != model.AnswerSentinel && strings.TrimSpace(qa.Answer) != "" {
			score += 10
		}
	}
	return score, nil
}

// Noop is the examiner used when no model is configured. Generation fails
// (so the question bank takes over) and scoring fails (so interviews fail
// closed to zero). A deployment without a scorer admits players through the
// operator API only.
type Noop struct{}

func (Noop) GenerateQuestions(_ context.Context, _ int) ([]string, error) {
	return nil, ErrDisabled
}

func (Noop) Score(_ context.Context, _ []model.QA) (int, error) {
	return 0, ErrDisabled
}
