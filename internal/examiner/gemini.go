package examiner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/ashita-ai/monban/internal/model"
)

// Gemini calls the Gemini API through the official client.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGemini creates the backend. An empty model selects gemini-2.0-flash.
func NewGemini(apiKey, modelName string, timeout time.Duration) (*Gemini, error) {
	if modelName == "" {
		modelName = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("examiner: create gemini client: %w", err)
	}
	return &Gemini{client: client, model: modelName, timeout: timeout}, nil
}

// Close releases the underlying API client.
func (g *Gemini) Close() error {
	return g.client.Close()
}

func (g *Gemini) GenerateQuestions(ctx context.Context, n int) ([]string, error) {
	var lastErr error
	for attempt := range generateAttempts {
		text, err := g.chat(ctx, generateSystemPrompt, generatePrompt(n), 0.7, 2000)
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

func (g *Gemini) Score(ctx context.Context, transcript []model.QA) (int, error) {
	max := model.MaxScore(len(transcript))
	var lastErr error
	for attempt := range scoreAttempts {
		text, err := g.chat(ctx, scoreSystemPrompt, scorePrompt(transcript), 0.3, 50)
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

func (g *Gemini) chat(ctx context.Context, system, user string, temperature float32, maxTokens int32) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	m := g.client.GenerativeModel(g.model)
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:     genai.Ptr[float32](temperature),
		MaxOutputTokens: genai.Ptr[int32](maxTokens),
	}

	resp, err := m.GenerateContent(callCtx, genai.Text(user))
	if err != nil {
		return "", fmt.Errorf("examiner: gemini request failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("examiner: gemini response is empty")
	}
	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return "", errors.New("examiner: gemini response part is not text")
	}
	return stripFences(string(text)), nil
}

// stripFences removes markdown code fences Gemini likes to wrap plain-text
// answers in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```text")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
