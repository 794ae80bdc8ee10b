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

// OpenAI calls any OpenAI-compatible chat completions endpoint. The base URL
// is configurable so self-hosted gateways and proxy providers work the same
// way.
type OpenAI struct {
	baseURL    string
	apiKey     string
	model      string
	timeout    time.Duration
	httpClient *http.Client
}

// NewOpenAI creates the backend. An empty baseURL targets api.openai.com; an
// empty model selects gpt-4o-mini.
func NewOpenAI(baseURL, apiKey, model string, timeout time.Duration) *OpenAI {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAI{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout + 5*time.Second, // HTTP timeout slightly beyond per-call context timeout.
		},
	}
}

type openAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
	MaxTokens   int                 `json:"max_tokens"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (o *OpenAI) GenerateQuestions(ctx context.Context, n int) ([]string, error) {
	var lastErr error
	for attempt := range generateAttempts {
		text, err := o.chat(ctx, generateSystemPrompt, generatePrompt(n), 0.7, 2000)
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

func (o *OpenAI) Score(ctx context.Context, transcript []model.QA) (int, error) {
	max := model.MaxScore(len(transcript))
	var lastErr error
	for attempt := range scoreAttempts {
		text, err := o.chat(ctx, scoreSystemPrompt, scorePrompt(transcript), 0.3, 50)
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

func (o *OpenAI) chat(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	body, err := json.Marshal(openAIChatRequest{
		Model: o.model,
		Messages: []openAIChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("examiner: openai marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("examiner: openai create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("examiner: openai request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("examiner: openai status %d: %s", resp.StatusCode, string(respBody))
	}

	var result openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("examiner: openai decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("examiner: openai response has no choices")
	}
	return result.Choices[0].Message.Content, nil
}
