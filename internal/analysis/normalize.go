// Package analysis turns raw grading payloads into the canonical
// ParsedAnalysis.
package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pavelanni/korrekturpilot/internal/feedback"
	"github.com/pavelanni/korrekturpilot/internal/grade"
	"github.com/pavelanni/korrekturpilot/internal/model"
)

// ErrMalformedPayload is returned when the structure of a raw analysis
// cannot be interpreted: the task collection is missing or not an array,
// or a task carries a non-numeric point value.
var ErrMalformedPayload = errors.New("malformed analysis payload")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedPayload, fmt.Sprintf(format, args...))
}

// Normalizer builds ParsedAnalysis values. It holds no per-payload state
// and is safe for concurrent use.
type Normalizer struct {
	grades *grade.Calculator
}

// NewNormalizer returns a Normalizer that grades with c.
func NewNormalizer(c *grade.Calculator) *Normalizer {
	if c == nil {
		c = grade.Default()
	}
	return &Normalizer{grades: c}
}

// Normalize decodes raw and normalizes it for the given grade level.
func (n *Normalizer) Normalize(raw []byte, gradeLevel string) (*model.ParsedAnalysis, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, malformed("decode: %v", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, malformed("payload is %s, not an object", kind(v))
	}
	return n.NormalizeObject(obj, gradeLevel)
}

// NormalizeObject normalizes an already decoded payload.
func (n *Normalizer) NormalizeObject(obj map[string]any, gradeLevel string) (*model.ParsedAnalysis, error) {
	rawTasks, ok := PayloadFields.Lookup(obj, FieldTasks)
	if !ok {
		return nil, malformed("task collection missing")
	}
	list, ok := rawTasks.([]any)
	if !ok {
		return nil, malformed("task collection is %s, not an array", kind(rawTasks))
	}

	out := &model.ParsedAnalysis{Tasks: make([]model.Task, 0, len(list))}
	var sumAchieved, sumMax float64
	for i, item := range list {
		t, err := normalizeTask(i, item)
		if err != nil {
			return nil, err
		}
		sumAchieved += t.Achieved
		sumMax += t.Max
		out.Tasks = append(out.Tasks, t)
	}

	out.Overall.Achieved = aggregate(obj, FieldAchieved, sumAchieved)
	out.Overall.Max = aggregate(obj, FieldMax, sumMax)
	out.Overall.Percentage = percentage(obj, out.Overall.Achieved, out.Overall.Max)
	if out.Overall.Percentage != nil {
		out.Overall.Grade = n.grades.Grade(*out.Overall.Percentage, gradeLevel)
	} else {
		out.Overall.Grade = model.GradeInfo{Label: model.Placeholder}
	}

	out.Summary = normalizeSummary(obj)
	return out, nil
}

func normalizeTask(i int, item any) (model.Task, error) {
	obj, ok := item.(map[string]any)
	if !ok {
		return model.Task{}, malformed("task %d is %s, not an object", i+1, kind(item))
	}

	t := model.Task{
		ID:    taskString(obj, FieldTaskID),
		Title: taskString(obj, FieldTaskTitle),
	}
	if t.ID == "" {
		t.ID = strconv.Itoa(i + 1)
	}

	var maxFromPair float64
	var hasPair bool
	if v, ok := TaskFields.Lookup(obj, FieldTaskAchieved); ok {
		if s, isStr := v.(string); isStr && strings.Contains(s, "/") {
			a, m, err := parsePair(s)
			if err != nil {
				return model.Task{}, malformed("task %s points %q: %v", t.ID, s, err)
			}
			t.Achieved, maxFromPair, hasPair = a, m, true
		} else {
			f, err := toNumber(v)
			if err != nil {
				return model.Task{}, malformed("task %s points: %v", t.ID, err)
			}
			t.Achieved = f
		}
	}
	if v, ok := TaskFields.Lookup(obj, FieldTaskMax); ok {
		f, err := toNumber(v)
		if err != nil {
			return model.Task{}, malformed("task %s max points: %v", t.ID, err)
		}
		t.Max = f
	} else if hasPair {
		t.Max = maxFromPair
	}
	t.Points = FormatPoints(t.Achieved) + "/" + FormatPoints(t.Max)

	t.Corrections = stringList(obj, TaskFields, FieldTaskCorrections)
	t.NeedsReview = boolField(obj, FieldTaskReview)
	t.Warning = strings.TrimSpace(taskString(obj, FieldTaskWarning))

	comment := taskString(obj, FieldTaskComment)
	parsed := feedback.ParseComment(comment, t.Corrections)
	t.Correct = feedback.Items(parsed.Correct)
	t.Deductions = feedback.Items(parsed.Deductions)
	t.Hints = feedback.Items(parsed.Tip)
	if parsed.Empty() {
		t.Unstructured = strings.TrimSpace(comment)
	}
	return t, nil
}

func aggregate(obj map[string]any, f Field, derived float64) float64 {
	if v, ok := PayloadFields.Lookup(obj, f); ok {
		if n, err := toNumber(v); err == nil {
			return n
		}
	}
	return derived
}

func percentage(obj map[string]any, achieved, total float64) *float64 {
	if v, ok := PayloadFields.Lookup(obj, FieldPercentage); ok {
		if s, isStr := v.(string); isStr {
			v = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
		}
		if p, err := toNumber(v); err == nil {
			p = Round1(p)
			return &p
		}
	}
	if total == 0 {
		return nil
	}
	p := Round1(100 * achieved / total)
	return &p
}

func normalizeSummary(obj map[string]any) model.Summary {
	s := model.Summary{
		Text:        strings.TrimSpace(lookupString(obj, PayloadFields, FieldSummary)),
		Strengths:   stringList(obj, PayloadFields, FieldStrengths),
		Development: stringList(obj, PayloadFields, FieldDevelopment),
	}
	if len(s.Strengths) > 0 || len(s.Development) > 0 {
		return s
	}

	if sections, ok := feedback.ParseSummaryMarkers(s.Text); ok {
		s.Strengths = feedback.Items(sections.Strengths)
		s.Development = feedback.Items(sections.Development)
		return s
	}
	if s.Text != "" {
		h := feedback.ClassifySummary(s.Text)
		s.Strengths = append(s.Strengths, h.Strengths...)
		s.Development = append(s.Development, h.NextSteps...)
	}
	return s
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// FormatPoints renders a point value without trailing zeros.
func FormatPoints(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func taskString(obj map[string]any, f Field) string {
	return lookupString(obj, TaskFields, f)
}

func lookupString(obj map[string]any, table FieldTable, f Field) string {
	v, ok := table.Lookup(obj, f)
	if !ok {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

func stringList(obj map[string]any, table FieldTable, f Field) []string {
	out := []string{}
	v, ok := table.Lookup(obj, f)
	if !ok {
		return out
	}
	switch x := v.(type) {
	case []any:
		for _, e := range x {
			if e == nil {
				continue
			}
			s := strings.TrimSpace(fmt.Sprint(e))
			if s != "" {
				out = append(out, s)
			}
		}
	case string:
		if s := strings.TrimSpace(x); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func boolField(obj map[string]any, f Field) bool {
	v, ok := TaskFields.Lookup(obj, f)
	if !ok {
		return false
	}
	switch x := v.(type) {
	case bool:
		return x
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "ja", "yes", "1":
			return true
		}
	case json.Number:
		return x.String() != "0"
	}
	return false
}

// toNumber accepts JSON numbers and numeric strings, including a German
// decimal comma.
func toNumber(v any) (float64, error) {
	var f float64
	var err error
	switch x := v.(type) {
	case json.Number:
		f, err = x.Float64()
	case float64:
		f = x
	case int:
		f = float64(x)
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(x), ",", ".")
		f, err = strconv.ParseFloat(s, 64)
	default:
		return 0, fmt.Errorf("%s is not numeric", kind(v))
	}
	if err != nil {
		return 0, fmt.Errorf("%v is not numeric", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%v is not a finite number", v)
	}
	return f, nil
}

func parsePair(s string) (float64, float64, error) {
	a, m, _ := strings.Cut(s, "/")
	achieved, err := toNumber(a)
	if err != nil {
		return 0, 0, err
	}
	total, err := toNumber(m)
	if err != nil {
		return 0, 0, err
	}
	return achieved, total, nil
}

func kind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "a string"
	case json.Number, float64:
		return "a number"
	case bool:
		return "a boolean"
	case []any:
		return "an array"
	case map[string]any:
		return "an object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
