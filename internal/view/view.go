// Package view builds the teacher view: the display-ready structure shared
// by the feedback screen and the document export.
package view

import (
	"strconv"

	"github.com/pavelanni/korrekturpilot/internal/analysis"
	"github.com/pavelanni/korrekturpilot/internal/model"
)

// TaskView is one task as shown to the teacher.
type TaskView struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Achieved    string   `json:"achieved"`
	Max         string   `json:"max"`
	Correct     []string `json:"correct"`
	Deductions  []string `json:"deductions"`
	Hints       []string `json:"hints"`
	Corrections []string `json:"corrections"`
	// Comment is the raw task comment, set only when it had no sections.
	Comment string `json:"comment,omitempty"`
	// Warning is set only for tasks flagged for manual review.
	Warning string `json:"warning,omitempty"`
}

// Points returns the "achieved / max" display pair.
func (t TaskView) Points() string {
	return t.Achieved + " / " + t.Max
}

// OverallView is the aggregate block.
type OverallView struct {
	Achieved   string          `json:"achieved"`
	Max        string          `json:"max"`
	Percentage string          `json:"percentage"`
	Grade      model.GradeInfo `json:"grade"`
}

// SummaryView is the overall feedback block. Text is only set when neither
// list has entries.
type SummaryView struct {
	Strengths   []string `json:"strengths"`
	Development []string `json:"development"`
	Text        string   `json:"text,omitempty"`
}

// TeacherView is the complete rendered result.
type TeacherView struct {
	Tasks   []TaskView  `json:"tasks"`
	Overall OverallView `json:"overall"`
	Summary SummaryView `json:"summary"`
}

// Render builds the teacher view for pa. Task order is preserved.
func Render(pa *model.ParsedAnalysis) TeacherView {
	v := TeacherView{Tasks: make([]TaskView, 0, len(pa.Tasks))}
	for _, t := range pa.Tasks {
		tv := TaskView{
			ID:          t.ID,
			Title:       model.Display(t.Title),
			Achieved:    analysis.FormatPoints(t.Achieved),
			Max:         analysis.FormatPoints(t.Max),
			Correct:     nonNil(t.Correct),
			Deductions:  nonNil(t.Deductions),
			Hints:       nonNil(t.Hints),
			Corrections: nonNil(t.Corrections),
		}
		if t.Unstructured != "" {
			tv.Comment = t.Unstructured
		}
		if t.NeedsReview && t.Warning != "" {
			tv.Warning = t.Warning
		}
		v.Tasks = append(v.Tasks, tv)
	}

	v.Overall = OverallView{
		Achieved:   analysis.FormatPoints(pa.Overall.Achieved),
		Max:        analysis.FormatPoints(pa.Overall.Max),
		Percentage: FormatPercentage(pa.Overall.Percentage),
		Grade:      pa.Overall.Grade,
	}

	v.Summary = SummaryView{
		Strengths:   nonNil(pa.Summary.Strengths),
		Development: nonNil(pa.Summary.Development),
	}
	if len(v.Summary.Strengths) == 0 && len(v.Summary.Development) == 0 {
		v.Summary.Text = model.Display(pa.Summary.Text)
	}
	return v
}

// RenderRaw normalizes raw and renders it. Errors are those of
// analysis.Normalizer.Normalize; nothing is rendered for a malformed payload.
func RenderRaw(n *analysis.Normalizer, raw []byte, gradeLevel string) (TeacherView, error) {
	pa, err := n.Normalize(raw, gradeLevel)
	if err != nil {
		return TeacherView{}, err
	}
	return Render(pa), nil
}

// FormatPercentage renders p with one decimal, or the placeholder for nil.
func FormatPercentage(p *float64) string {
	if p == nil {
		return model.Placeholder
	}
	return strconv.FormatFloat(*p, 'f', 1, 64)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
