package examiner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/monban/internal/model"
)

// ---------------------------------------------------------------------------
// ParseQuestions unit tests
// ---------------------------------------------------------------------------

func TestParseQuestions_NumberedList(t *testing.T) {
	text := `1. What should you do when you find a bug on the server?
2) How do you report another player for breaking rules?
3. Is taking from unlocked chests allowed on this server?`
	qs := ParseQuestions(text)
	require.Len(t, qs, 3)
	assert.Equal(t, "What should you do when you find a bug on the server?", qs[0])
	assert.Equal(t, "How do you report another player for breaking rules?", qs[1])
}

func TestParseQuestions_BulletsAndPadding(t *testing.T) {
	text := `
Here are the questions:

- What does griefing mean to you as a player?
* Why are duplication exploits against the rules here?

---
`
	qs := ParseQuestions(text)
	require.Len(t, qs, 2)
	assert.Equal(t, "What does griefing mean to you as a player?", qs[0])
	assert.Equal(t, "Why are duplication exploits against the rules here?", qs[1])
}

func TestParseQuestions_DropsShortLines(t *testing.T) {
	qs := ParseQuestions("1. ok\n2. What is the proper way to resolve a land dispute?")
	require.Len(t, qs, 1)
	assert.Equal(t, "What is the proper way to resolve a land dispute?", qs[0])
}

func TestParseQuestions_Empty(t *testing.T) {
	assert.Empty(t, ParseQuestions(""))
	assert.Empty(t, ParseQuestions("Here are the questions:\n---\n```"))
}

// ---------------------------------------------------------------------------
// ParseScore unit tests
// ---------------------------------------------------------------------------

func TestParseScore(t *testing.T) {
	score, err := ParseScore("27", 30)
	require.NoError(t, err)
	assert.Equal(t, 27, score)

	score, err = ParseScore("The final score is 22 points.", 30)
	require.NoError(t, err)
	assert.Equal(t, 22, score)

	score, err = ParseScore("0", 30)
	require.NoError(t, err)
	assert.Equal(t, 0, score)
}

func TestParseScore_OutOfRange(t *testing.T) {
	_, err := ParseScore("42", 30)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside [0, 30]")
}

func TestParseScore_NoInteger(t *testing.T) {
	_, err := ParseScore("I cannot grade this.", 30)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no integer")
}

// ---------------------------------------------------------------------------
// Prompt rendering
// ---------------------------------------------------------------------------

func TestScorePromptMarksUnanswered(t *testing.T) {
	prompt := scorePrompt([]model.QA{
		{Question: "Q one?", Answer: "an answer"},
		{Question: "Q two?", Answer: model.AnswerSentinel},
	})
	assert.Contains(t, prompt, "20 points total")
	assert.Contains(t, prompt, "an answer")
	assert.Contains(t, prompt, "[unanswered]")
	assert.NotContains(t, prompt, model.AnswerSentinel)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, "plain", stripFences("plain"))
	assert.Equal(t, "25", stripFences("```\n25\n```"))
	assert.Equal(t, "a question", stripFences("```text\na question\n```"))
}

// ---------------------------------------------------------------------------
// Question bank
// ---------------------------------------------------------------------------

func TestBankEmbeddedDefaults(t *testing.T) {
	bank, err := NewBank("")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, bank.Size(), 10)

	qs, err := bank.Sample(5)
	require.NoError(t, err)
	require.Len(t, qs, 5)

	seen := make(map[string]bool, 5)
	for _, q := range qs {
		assert.False(t, seen[q], "duplicate question %q", q)
		seen[q] = true
	}
}

func TestBankTooSmall(t *testing.T) {
	bank, err := NewBank("")
	require.NoError(t, err)
	_, err = bank.Sample(bank.Size() + 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "question bank has")
}

func TestBankFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.yaml")
	require.NoError(t, os.WriteFile(path, []byte("questions:\n  - Custom question one?\n  - Custom question two?\n"), 0o600))

	bank, err := NewBank(path)
	require.NoError(t, err)
	assert.Equal(t, 2, bank.Size())

	qs, err := bank.Sample(2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Custom question one?", "Custom question two?"}, qs)
}

func TestBankReloadKeepsOldListOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.yaml")
	require.NoError(t, os.WriteFile(path, []byte("questions:\n  - Question A?\n"), 0o600))

	bank, err := NewBank(path)
	require.NoError(t, err)
	require.Equal(t, 1, bank.Size())

	require.NoError(t, os.WriteFile(path, []byte("questions: []\n"), 0o600))
	require.Error(t, bank.Reload())
	assert.Equal(t, 1, bank.Size())
}

func TestBankWatcherReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.yaml")
	require.NoError(t, os.WriteFile(path, []byte("questions:\n  - Question A?\n"), 0o600))

	bank, err := NewBank(path)
	require.NoError(t, err)

	watcher, err := NewBankWatcher(bank, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = watcher.Run(ctx)
	}()

	require.NoError(t, os.WriteFile(path, []byte("questions:\n  - Question A?\n  - Question B?\n"), 0o600))
	require.Eventually(t, func() bool { return bank.Size() == 2 }, 3*time.Second, 50*time.Millisecond)

	cancel()
	<-done
}

func TestBankWatcherRequiresFile(t *testing.T) {
	bank, err := NewBank("")
	require.NoError(t, err)
	_, err = NewBankWatcher(bank, slog.New(slog.DiscardHandler))
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// OpenAI backend (httptest mock)
// ---------------------------------------------------------------------------

func TestOpenAIGenerateQuestions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		writeOpenAIResponse(t, w, "1. Question number one, padded for length?\n2. Question number two, padded for length?\n3. Question number three, padded out?")
	}))
	defer srv.Close()

	ex := NewOpenAI(srv.URL, "test-key", "test-model", 5*time.Second)
	qs, err := ex.GenerateQuestions(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, qs, 3)
	assert.Equal(t, "Question number one, padded for length?", qs[0])
}

func TestOpenAIGenerateRetriesOnShortList(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			writeOpenAIResponse(t, w, "1. Only one question, which is not enough?")
			return
		}
		writeOpenAIResponse(t, w, "1. First real question, padded for length?\n2. Second real question, padded for length?")
	}))
	defer srv.Close()

	ex := NewOpenAI(srv.URL, "test-key", "test-model", 5*time.Second)
	qs, err := ex.GenerateQuestions(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, qs, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAIScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Messages[1].Content, "[unanswered]")
		writeOpenAIResponse(t, w, "12")
	}))
	defer srv.Close()

	ex := NewOpenAI(srv.URL, "test-key", "test-model", 5*time.Second)
	score, err := ex.Score(context.Background(), []model.QA{
		{Question: "Q1?", Answer: "fine answer"},
		{Question: "Q2?", Answer: model.AnswerSentinel},
	})
	require.NoError(t, err)
	assert.Equal(t, 12, score)
}

func TestOpenAIScoreFailsAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ex := NewOpenAI(srv.URL, "test-key", "test-model", 5*time.Second)
	_, err := ex.Score(context.Background(), []model.QA{{Question: "Q?", Answer: "A"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func writeOpenAIResponse(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	quoted, err := json.Marshal(content)
	require.NoError(t, err)
	_, err = fmt.Fprintf(w, `{"choices":[{"message":{"content":%s}}]}`, quoted)
	require.NoError(t, err)
}

// ---------------------------------------------------------------------------
// Ollama backend (httptest mock)
// ---------------------------------------------------------------------------

func TestOllamaScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)

		w.Header().Set("Content-Type", "application/json")
		var resp ollamaChatResponse
		resp.Message.Content = "Total: 18"
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	ex := NewOllama(srv.URL, "test-model", 5*time.Second)
	score, err := ex.Score(context.Background(), []model.QA{
		{Question: "Q1?", Answer: "A1"},
		{Question: "Q2?", Answer: "A2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 18, score)
}

// ---------------------------------------------------------------------------
// Factory and Noop
// ---------------------------------------------------------------------------

func TestNewProviderSelection(t *testing.T) {
	bank, err := NewBank("")
	require.NoError(t, err)

	ex, err := New(Config{Provider: "none"}, bank)
	require.NoError(t, err)
	_, ok := ex.(Noop)
	assert.True(t, ok)

	ex, err = New(Config{Provider: "bank"}, bank)
	require.NoError(t, err)
	_, ok = ex.(*Static)
	assert.True(t, ok)

	_, err = New(Config{Provider: "bank"}, nil)
	assert.Error(t, err)

	ex, err = New(Config{Provider: "openai", APIKey: "k"}, bank)
	require.NoError(t, err)
	_, ok = ex.(*OpenAI)
	assert.True(t, ok)

	_, err = New(Config{Provider: "openai"}, bank)
	assert.Error(t, err)

	ex, err = New(Config{Provider: "ollama"}, bank)
	require.NoError(t, err)
	_, ok = ex.(*Ollama)
	assert.True(t, ok)

	_, err = New(Config{Provider: "carrier-pigeon"}, bank)
	assert.Error(t, err)
}

func TestStaticScoresByAnswerPresence(t *testing.T) {
	bank, err := NewBank("")
	require.NoError(t, err)
	ex := NewStatic(bank)

	qs, err := ex.GenerateQuestions(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, qs, 3)

	score, err := ex.Score(context.Background(), []model.QA{
		{Question: "Q1?", Answer: "real answer"},
		{Question: "Q2?", Answer: model.AnswerSentinel},
		{Question: "Q3?", Answer: "another"},
	})
	require.NoError(t, err)
	assert.Equal(t, 20, score)
}

func TestNoopFailsClosed(t *testing.T) {
	_, err := Noop{}.GenerateQuestions(context.Background(), 3)
	assert.ErrorIs(t, err, ErrDisabled)

	_, err = Noop{}.Score(context.Background(), nil)
	assert.ErrorIs(t, err, ErrDisabled)
}
