package analysis

import "strings"

// Field is a canonical payload concept.
type Field string

const (
	FieldTasks       Field = "tasks"
	FieldAchieved    Field = "achieved"
	FieldMax         Field = "max"
	FieldPercentage  Field = "percentage"
	FieldSummary     Field = "summary"
	FieldStrengths   Field = "strengths"
	FieldDevelopment Field = "development"

	FieldTaskID          Field = "task.id"
	FieldTaskTitle       Field = "task.title"
	FieldTaskAchieved    Field = "task.achieved"
	FieldTaskMax         Field = "task.max"
	FieldTaskComment     Field = "task.comment"
	FieldTaskCorrections Field = "task.corrections"
	FieldTaskReview      Field = "task.review"
	FieldTaskWarning     Field = "task.warning"
)

// FieldTable maps a canonical field to its candidate source keys, current
// producer first, legacy producer after.
type FieldTable map[Field][]string

// PayloadFields resolves the top-level keys of a raw analysis.
var PayloadFields = FieldTable{
	FieldTasks:       {"aufgaben", "tasks"},
	FieldAchieved:    {"gesamtpunkte", "erreichte_punkte", "total_points", "achieved_points"},
	FieldMax:         {"max_gesamtpunkte", "maximalpunkte", "max_total_points", "max_points"},
	FieldPercentage:  {"prozent", "prozentsatz", "percentage", "percent"},
	FieldSummary:     {"zusammenfassung", "gesamtfeedback", "summary", "overall_feedback"},
	FieldStrengths:   {"staerken", "stärken", "strengths"},
	FieldDevelopment: {"entwicklungsbereiche", "development_areas", "next_steps"},
}

// TaskFields resolves the keys of one entry of the task collection.
var TaskFields = FieldTable{
	FieldTaskID:          {"nummer", "aufgabe", "id", "task_id", "number"},
	FieldTaskTitle:       {"titel", "title", "name"},
	FieldTaskAchieved:    {"punkte", "erreichte_punkte", "points", "achieved", "score"},
	FieldTaskMax:         {"max_punkte", "maximalpunkte", "max_points", "max_score"},
	FieldTaskComment:     {"kommentar", "comment", "feedback"},
	FieldTaskCorrections: {"korrekturen", "corrections"},
	FieldTaskReview:      {"manuelle_pruefung", "pruefung_noetig", "needs_review", "needs_manual_review"},
	FieldTaskWarning:     {"warnung", "hinweis", "warning"},
}

// Lookup returns the first non-null value found under one of f's keys.
// Keys are compared ignoring case, underscores and hyphens, so
// "maxPunkte", "MAX_PUNKTE" and "max-punkte" all resolve to "max_punkte".
func (t FieldTable) Lookup(obj map[string]any, f Field) (any, bool) {
	for _, key := range t[f] {
		if v, ok := obj[key]; ok && v != nil {
			return v, true
		}
		want := foldKey(key)
		for k, v := range obj {
			if v != nil && foldKey(k) == want {
				return v, true
			}
		}
	}
	return nil, false
}

var keyFolder = strings.NewReplacer("_", "", "-", "")

func foldKey(k string) string {
	return strings.ToLower(keyFolder.Replace(k))
}
