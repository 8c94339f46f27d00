// Package export turns a teacher view into a downloadable office document.
package export

import (
	"github.com/pavelanni/korrekturpilot/internal/model"
	"github.com/pavelanni/korrekturpilot/internal/view"
)

// Labels are the headings printed in the document.
type Labels struct {
	Title       string
	Student     string
	Subject     string
	ClassName   string
	GradeLevel  string
	SchoolYear  string
	Date        string
	Results     string
	Points      string
	Percentage  string
	Grade       string
	Summary     string
	Strengths   string
	Development string
	Task        string
	Correct     string
	Deductions  string
	Hints       string
	Corrections string
	Comment     string
	Warning     string
}

// DefaultLabels returns the German headings.
func DefaultLabels() Labels {
	return Labels{
		Title:       "Korrektur",
		Student:     "Schüler/in",
		Subject:     "Fach",
		ClassName:   "Klasse",
		GradeLevel:  "Jahrgangsstufe",
		SchoolYear:  "Schuljahr",
		Date:        "Datum",
		Results:     "Ergebnis",
		Points:      "Punkte",
		Percentage:  "Prozent",
		Grade:       "Note",
		Summary:     "Gesamtfeedback",
		Strengths:   "Stärken",
		Development: "Entwicklungsbereiche",
		Task:        "Aufgabe",
		Correct:     "Das war richtig",
		Deductions:  "Hier gab es Abzüge",
		Hints:       "Verbesserungstipp",
		Corrections: "Korrekturen",
		Comment:     "Kommentar",
		Warning:     "Manuelle Prüfung",
	}
}

// Field is a label/value row.
type Field struct {
	Label string
	Value string
}

// SummaryBlock mirrors view.SummaryView.
type SummaryBlock struct {
	Strengths   []string
	Development []string
	Text        string
}

// TaskBlock mirrors view.TaskView.
type TaskBlock struct {
	ID          string
	Title       string
	Achieved    string
	Max         string
	Correct     []string
	Deductions  []string
	Hints       []string
	Corrections []string
	Comment     string
	Warning     string
}

// Document is the logical content of an exported feedback document, in
// print order.
type Document struct {
	Title   string
	Meta    []Field
	Results []Field
	Summary SummaryBlock
	Tasks   []TaskBlock
	Labels  Labels
}

// Build lays out v and meta as a Document. Every value is taken from v so
// the document shows exactly what the teacher saw on screen.
func Build(v view.TeacherView, meta model.DocumentMeta, l Labels) Document {
	title := l.Title
	if meta.ExamName != "" {
		title += ": " + meta.ExamName
	}
	doc := Document{
		Title:  title,
		Labels: l,
		Meta: []Field{
			{l.Student, model.Display(meta.StudentName)},
			{l.Subject, model.Display(meta.Course.Subject)},
			{l.ClassName, model.Display(meta.Course.ClassName)},
			{l.GradeLevel, model.Display(meta.Course.GradeLevel)},
			{l.SchoolYear, model.Display(meta.Course.SchoolYear)},
			{l.Date, model.Display(meta.Date)},
		},
		Results: []Field{
			{l.Points, v.Overall.Achieved + " / " + v.Overall.Max},
			{l.Percentage, percentCell(v.Overall.Percentage)},
			{l.Grade, v.Overall.Grade.Label},
		},
		Summary: SummaryBlock{
			Strengths:   v.Summary.Strengths,
			Development: v.Summary.Development,
			Text:        v.Summary.Text,
		},
		Tasks: make([]TaskBlock, 0, len(v.Tasks)),
	}
	for _, t := range v.Tasks {
		doc.Tasks = append(doc.Tasks, TaskBlock{
			ID:          t.ID,
			Title:       t.Title,
			Achieved:    t.Achieved,
			Max:         t.Max,
			Correct:     t.Correct,
			Deductions:  t.Deductions,
			Hints:       t.Hints,
			Corrections: t.Corrections,
			Comment:     t.Comment,
			Warning:     t.Warning,
		})
	}
	return doc
}

func percentCell(p string) string {
	if p == model.Placeholder {
		return p
	}
	return p + " %"
}

// LabelsFrom builds Labels from a message lookup. Each heading is requested
// as "Export.<Field>", e.g. "Export.Points".
func LabelsFrom(t func(id string) string) Labels {
	get := func(field string) string { return t("Export." + field) }
	return Labels{
		Title:       get("Title"),
		Student:     get("Student"),
		Subject:     get("Subject"),
		ClassName:   get("ClassName"),
		GradeLevel:  get("GradeLevel"),
		SchoolYear:  get("SchoolYear"),
		Date:        get("Date"),
		Results:     get("Results"),
		Points:      get("Points"),
		Percentage:  get("Percentage"),
		Grade:       get("Grade"),
		Summary:     get("Summary"),
		Strengths:   get("Strengths"),
		Development: get("Development"),
		Task:        get("Task"),
		Correct:     get("Correct"),
		Deductions:  get("Deductions"),
		Hints:       get("Hints"),
		Corrections: get("Corrections"),
		Comment:     get("Comment"),
		Warning:     get("Warning"),
	}
}
