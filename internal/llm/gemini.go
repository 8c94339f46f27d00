package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const extractAttempts = 3

// generator is the part of *genai.GenerativeModel the extractor uses.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// GeminiExtractor transcribes scanned handwritten exams.
type GeminiExtractor struct {
	client  *genai.Client
	model   generator
	prompt  string
	backoff time.Duration
}

// NewGeminiExtractor connects to Gemini. Close releases the connection.
func NewGeminiExtractor(ctx context.Context, apiKey, modelName, prompt string) (*GeminiExtractor, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini API key is empty")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	m := cl.GenerativeModel(strings.TrimSpace(modelName))
	temp := float32(0)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      &temp,
		ResponseMIMEType: "text/plain",
	}
	return &GeminiExtractor{
		client:  cl,
		model:   m,
		prompt:  prompt,
		backoff: 300 * time.Millisecond,
	}, nil
}

// Close closes the underlying client.
func (e *GeminiExtractor) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}

// Extract returns the transcribed text of a PDF. Transient failures are
// retried; a deadline aborts immediately with ErrTimeout.
func (e *GeminiExtractor) Extract(ctx context.Context, pdf []byte) (string, error) {
	parts := []genai.Part{
		genai.Text(e.prompt),
		genai.Blob{MIMEType: "application/pdf", Data: pdf},
	}

	var lastErr error
	for attempt := 1; attempt <= extractAttempts; attempt++ {
		resp, err := e.model.GenerateContent(ctx, parts...)
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("gemini extract: %w", mapErr(ctx.Err()))
			}
			lastErr = err
			slog.Warn("gemini extract failed", "attempt", attempt, "error", err)
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("gemini extract: %w", mapErr(ctx.Err()))
			case <-time.After(time.Duration(attempt) * e.backoff):
			}
			continue
		}
		txt := strings.TrimSpace(firstText(resp))
		if txt == "" {
			return "", errors.New("gemini extract: empty response")
		}
		return txt, nil
	}
	return "", fmt.Errorf("gemini extract: %w", lastErr)
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		var sb strings.Builder
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		if sb.Len() > 0 {
			return sb.String()
		}
	}
	return ""
}
