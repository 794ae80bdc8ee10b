package examiner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ashita-ai/monban/internal/model"
)

// Ollama calls a local Ollama daemon's chat API. The model should be a text
// generation model (e.g. qwen2.5:3b), not an embedding model.
type Ollama struct {
	baseURL    string
	model      string
	timeout    time.Duration
	httpClient *http.Client
}

// NewOllama creates the backend. An empty baseURL targets the default local
// daemon.
func NewOllama(baseURL, model string, timeout time.Duration) *Ollama {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &Ollama{
		baseURL: baseURL,
		model:   model,
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout + 5*time.Second,
		},
	}
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

func (o *Ollama) GenerateQuestions(ctx context.Context, n int) ([]string, error) {
	var lastErr error
	for attempt := range generateAttempts {
		text, err := o.chat(ctx, generateSystemPrompt, generatePrompt(n))
		if err == nil {
			questions := ParseQuestions(text)
			if len(questions) >= n {
				return questions[:n], nil
			}
			err = fmt.Errorf("examiner: model produced %d questions, want %d", len(questions), n)
		}
		lastErr = err
		if attempt < generateAttempts-1 {
			if err := sleepRetry(ctx); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

func (o *Ollama) Score(ctx context.Context, transcript []model.QA) (int, error) {
	max := model.MaxScore(len(transcript))
	var lastErr error
	for attempt := range scoreAttempts {
		text, err := o.chat(ctx, scoreSystemPrompt, scorePrompt(transcript))
		if err == nil {
			score, perr := ParseScore(text, max)
			if perr == nil {
				return score, nil
			}
			err = perr
		}
		lastErr = err
		if attempt < scoreAttempts-1 {
			if err := sleepRetry(ctx); err != nil {
				return 0, err
			}
		}
	}
	return 0, lastErr
}

func (o *Ollama) chat(ctx context.Context, system, user string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	body, err := json.Marshal(ollamaChatRequest{
		Model: o.model,
		Messages: []ollamaChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("examiner: ollama marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("examiner: ollama create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("examiner: ollama request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("examiner: ollama status %d: %s", resp.StatusCode, string(respBody))
	}

	var result ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("examiner: ollama decode response: %w", err)
	}
	return result.Message.Content, nil
}
