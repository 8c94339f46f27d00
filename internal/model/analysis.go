package model

// Placeholder is displayed for any missing or undefined value.
const Placeholder = "–"

// CourseInfo is free-form descriptive metadata attached to a grading result.
type CourseInfo struct {
	Subject    string `json:"subject"`
	GradeLevel string `json:"grade_level"`
	ClassName  string `json:"class_name"`
	SchoolYear string `json:"school_year"`
}

// Display returns s, or the placeholder when s is blank.
func Display(s string) string {
	if s == "" {
		return Placeholder
	}
	return s
}

// GradeTier is the display classification of a grade.
type GradeTier string

const (
	TierGood   GradeTier = "good"
	TierMedium GradeTier = "medium"
	TierPoor   GradeTier = "poor"
)

// GradeInfo is a computed grade label plus its presentation tier.
type GradeInfo struct {
	Label string    `json:"label"`
	Tier  GradeTier `json:"tier"`
	Class string    `json:"class"`
}

// Task is the canonical form of one graded exam task. Exactly one of the
// structured lists (Correct, Deductions, Hints) or Unstructured carries the
// task comment: Unstructured holds the raw comment only when it contained
// none of the known section markers.
type Task struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Achieved     float64  `json:"achieved"`
	Max          float64  `json:"max"`
	Points       string   `json:"points"`
	Correct      []string `json:"correct"`
	Deductions   []string `json:"deductions"`
	Hints        []string `json:"hints"`
	Corrections  []string `json:"corrections"`
	NeedsReview  bool     `json:"needs_review"`
	Warning      string   `json:"warning,omitempty"`
	Unstructured string   `json:"unstructured,omitempty"`
}

// Overall holds the aggregate result. Percentage is nil when max points is
// zero or absent.
type Overall struct {
	Achieved   float64   `json:"achieved"`
	Max        float64   `json:"max"`
	Percentage *float64  `json:"percentage"`
	Grade      GradeInfo `json:"grade"`
}

// Summary is the parsed overall feedback.
type Summary struct {
	Strengths   []string `json:"strengths"`
	Development []string `json:"development"`
	Text        string   `json:"text"`
}

// ParsedAnalysis is the canonical, normalized representation of a graded exam.
type ParsedAnalysis struct {
	Tasks   []Task  `json:"tasks"`
	Overall Overall `json:"overall"`
	Summary Summary `json:"summary"`
}
