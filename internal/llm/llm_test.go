package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/korrekturpilot/internal/llm/prompts"
	"github.com/pavelanni/korrekturpilot/internal/model"
)

const gradedPayload = `{"aufgaben":[{"nummer":"1","punkte":2,"max_punkte":2}]}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	lib, err := prompts.Load(prompts.FS())
	require.NoError(t, err)
	c, err := New(srv.URL+"/v1", "test-key", "grader-1", lib, "standard")
	require.NoError(t, err)
	return c
}

func chatResponse(content string) map[string]any {
	return map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "grader-1",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	}
}

func TestGrade(t *testing.T) {
	var got struct {
		Model          string `json:"model"`
		Temperature    float32
		ResponseFormat struct {
			Type string `json:"type"`
		} `json:"response_format"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponse(gradedPayload))
	})

	raw, err := c.Grade(context.Background(), GradeRequest{
		Course:   model.CourseInfo{Subject: "Physik"},
		Horizon:  "v = s / t",
		ExamText: "v = 12 m/s",
	})
	require.NoError(t, err)
	assert.JSONEq(t, gradedPayload, string(raw))

	assert.Equal(t, "grader-1", got.Model)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[0].Content, "FACH: Physik")
	assert.Contains(t, got.Messages[0].Content, "v = 12 m/s")
	assert.Contains(t, got.Messages[0].Content, "Teilpunkte")
}

func TestGradeVariantOverride(t *testing.T) {
	var system string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		system = req.Messages[0].Content
		_ = json.NewEncoder(w).Encode(chatResponse(gradedPayload))
	})

	_, err := c.Grade(context.Background(), GradeRequest{Variant: prompts.PromptStrict})
	require.NoError(t, err)
	assert.Contains(t, system, "streng")
}

func TestGradeStripsCodeFences(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse("```json\n" + gradedPayload + "\n```"))
	})

	raw, err := c.Grade(context.Background(), GradeRequest{})
	require.NoError(t, err)
	assert.JSONEq(t, gradedPayload, string(raw))
}

func TestGradeNoChoices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "x", "choices": []any{}})
	})

	_, err := c.Grade(context.Background(), GradeRequest{})
	assert.ErrorContains(t, err, "no choices")
}

func TestGradeTimeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Grade(ctx, GradeRequest{})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestPing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   []map[string]any{{"id": "other"}, {"id": "grader-1"}},
		})
	})
	assert.NoError(t, c.Ping(context.Background()))

	c.model = "missing"
	assert.ErrorContains(t, c.Ping(context.Background()), `model "missing" not served`)
}

func TestNewRejectsInvalidVariant(t *testing.T) {
	lib, err := prompts.Load(prompts.FS())
	require.NoError(t, err)

	_, err = New("", "k", "m", lib, "harsh")
	assert.ErrorContains(t, err, "invalid prompt variant")

	_, err = New("", "k", "m", nil, "standard")
	assert.Error(t, err)
}

type fakeGenerator struct {
	calls   int
	errs    []error
	resp    *genai.GenerateContentResponse
	gotPart []genai.Part
}

func (f *fakeGenerator) GenerateContent(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.calls++
	f.gotPart = parts
	if f.calls <= len(f.errs) {
		return nil, f.errs[f.calls-1]
	}
	return f.resp, nil
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{}
	for _, p := range parts {
		content.Parts = append(content.Parts, genai.Text(p))
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: content}}}
}

func TestExtract(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("Aufgabe 1: ", "x = 4\n")}
	e := &GeminiExtractor{model: gen, prompt: "transcribe"}

	txt, err := e.Extract(context.Background(), []byte("%PDF-1.7"))
	require.NoError(t, err)
	assert.Equal(t, "Aufgabe 1: x = 4", txt)

	require.Len(t, gen.gotPart, 2)
	assert.Equal(t, genai.Text("transcribe"), gen.gotPart[0])
	blob, ok := gen.gotPart[1].(genai.Blob)
	require.True(t, ok)
	assert.Equal(t, "application/pdf", blob.MIMEType)
}

func TestExtractRetries(t *testing.T) {
	gen := &fakeGenerator{
		errs: []error{errors.New("503"), errors.New("503")},
		resp: textResponse("ok"),
	}
	e := &GeminiExtractor{model: gen, backoff: time.Millisecond}

	txt, err := e.Extract(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", txt)
	assert.Equal(t, 3, gen.calls)
}

func TestExtractGivesUp(t *testing.T) {
	gen := &fakeGenerator{errs: []error{errors.New("a"), errors.New("b"), errors.New("c")}}
	e := &GeminiExtractor{model: gen, backoff: time.Millisecond}

	_, err := e.Extract(context.Background(), nil)
	assert.ErrorContains(t, err, "c")
	assert.Equal(t, extractAttempts, gen.calls)
}

func TestExtractEmpty(t *testing.T) {
	e := &GeminiExtractor{model: &fakeGenerator{resp: textResponse("  ")}}
	_, err := e.Extract(context.Background(), nil)
	assert.ErrorContains(t, err, "empty response")
}

func TestExtractDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	gen := &fakeGenerator{errs: []error{context.DeadlineExceeded}}
	e := &GeminiExtractor{model: gen, backoff: time.Second}

	_, err := e.Extract(ctx, nil)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 1, gen.calls)
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFences(`  {"a":1} `))
}
