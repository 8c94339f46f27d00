// Package llm talks to the external AI services: an OpenAI-compatible
// endpoint that grades exam text and Gemini for handwriting extraction.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/korrekturpilot/internal/llm/prompts"
	"github.com/pavelanni/korrekturpilot/internal/model"
)

// ErrTimeout is returned when an AI call exceeds its deadline.
var ErrTimeout = errors.New("llm: analysis timed out")

// GradeRequest is the input of a single grading call.
type GradeRequest struct {
	Course   model.CourseInfo
	Horizon  string
	ExamText string
	// Variant overrides the client's default prompt variant when set.
	Variant prompts.PromptVariant
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api     *openai.Client
	model   string
	lib     *prompts.Library
	variant prompts.PromptVariant
}

// New creates a grading client. An unknown variant is rejected.
func New(baseURL, apiKey, modelName string, lib *prompts.Library, variant string) (*Client, error) {
	if lib == nil {
		return nil, errors.New("prompt library is nil")
	}
	if !prompts.IsValidVariant(variant) {
		return nil, fmt.Errorf("invalid prompt variant %q", variant)
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		lib:     lib,
		variant: prompts.PromptVariant(variant),
	}, nil
}

// Ping checks that the endpoint is reachable and serves the configured model.
func (c *Client) Ping(ctx context.Context) error {
	list, err := c.api.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", mapErr(err))
	}
	for _, m := range list.Models {
		if m.ID == c.model {
			return nil
		}
	}
	return fmt.Errorf("model %q not served by endpoint", c.model)
}

// Grade sends the exam text to the model and returns its JSON answer as-is.
// The payload is not validated here; see analysis.Normalizer.
func (c *Client) Grade(ctx context.Context, req GradeRequest) (json.RawMessage, error) {
	variant := c.variant
	if req.Variant != "" {
		variant = req.Variant
	}
	prompt, err := c.lib.BuildGradePrompt(variant, prompts.GradeData{
		Course:   req.Course,
		Horizon:  req.Horizon,
		ExamText: req.ExamText,
	})
	if err != nil {
		return nil, fmt.Errorf("build grading prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
			{Role: openai.ChatMessageRoleUser, Content: "Bitte korrigiere die Arbeit."},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM grading API call: %w", mapErr(err))
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New("LLM returned no choices for grading")
	}

	raw := stripCodeFences(resp.Choices[0].Message.Content)
	slog.Debug("LLM grading response", "model", c.model, "bytes", len(raw))
	if raw == "" {
		return nil, errors.New("LLM returned an empty grading response")
	}
	return json.RawMessage(raw), nil
}

// mapErr turns deadline errors into ErrTimeout and keeps the cause.
func mapErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
