// Package prompts holds the grading and extraction prompt templates.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/korrekturpilot/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

// FS returns the embedded template files.
func FS() fs.FS {
	return templateFS
}

// MaxExamRunes bounds the exam text placed into a grading prompt.
const MaxExamRunes = 20000

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// PromptVariant represents a grading prompt variant.
type PromptVariant string

const (
	// PromptStrict grades strictly against the expectation horizon.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default grading variant.
	PromptStandard PromptVariant = "standard"
	// PromptLenient gives credit for recognizable understanding.
	PromptLenient PromptVariant = "lenient"
)

// Variants lists every supported variant.
var Variants = []PromptVariant{PromptStrict, PromptStandard, PromptLenient}

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	for _, known := range Variants {
		if PromptVariant(v) == known {
			return true
		}
	}
	return false
}

// GradeData holds template data for grading prompts.
type GradeData struct {
	Course   model.CourseInfo
	Horizon  string
	ExamText string
}

// Library is a parsed set of prompt templates.
type Library struct {
	grade   map[PromptVariant]*template.Template
	extract string
}

// Load parses the prompt templates from fsys. The layout is the one of FS():
// templates/grade_<variant>.txt, templates/format.txt and templates/extract.txt.
func Load(fsys fs.FS) (*Library, error) {
	format, err := fs.ReadFile(fsys, "templates/format.txt")
	if err != nil {
		return nil, fmt.Errorf("read format template: %w", err)
	}
	extract, err := fs.ReadFile(fsys, "templates/extract.txt")
	if err != nil {
		return nil, fmt.Errorf("read extract prompt: %w", err)
	}

	lib := &Library{
		grade:   make(map[PromptVariant]*template.Template, len(Variants)),
		extract: strings.TrimSpace(string(extract)),
	}
	for _, v := range Variants {
		file := "templates/grade_" + string(v) + ".txt"
		content, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read prompt file %s: %w", file, err)
		}
		tmpl, err := template.New(string(v)).Option("missingkey=error").Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse prompt template %s: %w", file, err)
		}
		if _, err := tmpl.Parse(string(format)); err != nil {
			return nil, fmt.Errorf("parse format template: %w", err)
		}
		lib.grade[v] = tmpl
	}
	return lib, nil
}

// ExtractPrompt returns the instruction sent along with a scanned exam.
func (l *Library) ExtractPrompt() string {
	return l.extract
}

// BuildGradePrompt renders the grading prompt for variant.
func (l *Library) BuildGradePrompt(variant PromptVariant, data GradeData) (string, error) {
	tmpl, ok := l.grade[variant]
	if !ok {
		return "", fmt.Errorf("invalid prompt variant: %q", variant)
	}

	data.Course = model.CourseInfo{
		Subject:    model.Display(data.Course.Subject),
		GradeLevel: model.Display(data.Course.GradeLevel),
		ClassName:  model.Display(data.Course.ClassName),
		SchoolYear: model.Display(data.Course.SchoolYear),
	}
	data.Horizon = strings.TrimSpace(data.Horizon)
	if data.Horizon == "" {
		data.Horizon = "[Kein Erwartungshorizont angegeben. Bewerte nach fachlicher Richtigkeit.]"
	}
	data.ExamText = sanitizeAnswer(data.ExamText)

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[Keine Antwort erkannt]"
	}

	if utf8.RuneCountInString(answer) > MaxExamRunes {
		runes := []rune(answer)
		answer = string(runes[:MaxExamRunes]) + "\n\n[Text wegen Länge gekürzt]"
	}

	return answer
}
