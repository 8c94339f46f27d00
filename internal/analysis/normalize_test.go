package analysis

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/korrekturpilot/internal/model"
)

func normalize(t *testing.T, raw string) *model.ParsedAnalysis {
	t.Helper()
	pa, err := NewNormalizer(nil).Normalize([]byte(raw), "8")
	require.NoError(t, err)
	return pa
}

func TestNormalizeDerivesAggregates(t *testing.T) {
	pa := normalize(t, `{"aufgaben": [
		{"nummer": "1", "titel": "A", "punkte": 8, "max_punkte": 10},
		{"nummer": "2", "titel": "B", "punkte": 5, "max_punkte": 5},
		{"nummer": "3", "titel": "C", "punkte": 7, "max_punkte": 10}
	]}`)

	assert.Equal(t, 20.0, pa.Overall.Achieved)
	assert.Equal(t, 25.0, pa.Overall.Max)
	require.NotNil(t, pa.Overall.Percentage)
	assert.Equal(t, 80.0, *pa.Overall.Percentage)
	assert.Equal(t, "3", pa.Overall.Grade.Label)
	assert.Equal(t, "8/10", pa.Tasks[0].Points)
}

func TestNormalizePrefersPayloadAggregates(t *testing.T) {
	pa := normalize(t, `{"tasks": [{"id": "1", "points": 3, "max_points": 4}],
		"total_points": 30, "max_total_points": 40, "percentage": "75,04 %"}`)

	assert.Equal(t, 30.0, pa.Overall.Achieved)
	assert.Equal(t, 40.0, pa.Overall.Max)
	assert.Equal(t, 75.0, *pa.Overall.Percentage)
}

func TestNormalizeRoundsPercentage(t *testing.T) {
	pa := normalize(t, `{"aufgaben": [{"punkte": 2, "max_punkte": 3}]}`)
	assert.Equal(t, 66.7, *pa.Overall.Percentage)
}

func TestNormalizeUndefinedPercentage(t *testing.T) {
	for _, raw := range []string{
		`{"aufgaben": []}`,
		`{"aufgaben": [{"punkte": 0, "max_punkte": 0}]}`,
		`{"aufgaben": [{"titel": "ohne Punkte"}]}`,
	} {
		pa := normalize(t, raw)
		assert.Nil(t, pa.Overall.Percentage, raw)
		assert.Equal(t, model.Placeholder, pa.Overall.Grade.Label, raw)
	}
}

func TestNormalizeMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"tasks is string", `{"aufgaben": "Aufgabe 1: 5 Punkte"}`},
		{"tasks is object", `{"tasks": {"1": {}}}`},
		{"tasks missing", `{"zusammenfassung": "gut"}`},
		{"payload is array", `[1, 2]`},
		{"not json", `Die Analyse war leider nicht möglich.`},
		{"task not object", `{"aufgaben": ["eins"]}`},
		{"non-numeric points", `{"aufgaben": [{"punkte": "viele", "max_punkte": 10}]}`},
		{"non-numeric max", `{"aufgaben": [{"punkte": 1, "max_punkte": true}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pa, err := NewNormalizer(nil).Normalize([]byte(tt.raw), "")
			assert.Nil(t, pa)
			assert.True(t, errors.Is(err, ErrMalformedPayload), "got %v", err)
		})
	}
}

func TestNormalizePreservesTaskOrder(t *testing.T) {
	pa := normalize(t, `{"aufgaben": [
		{"nummer": "C", "punkte": 1, "max_punkte": 1},
		{"nummer": "A", "punkte": 1, "max_punkte": 1},
		{"nummer": "B", "punkte": 1, "max_punkte": 1}
	]}`)
	var ids []string
	for _, task := range pa.Tasks {
		ids = append(ids, task.ID)
	}
	assert.Equal(t, []string{"C", "A", "B"}, ids)
}

func TestNormalizeLegacyKeys(t *testing.T) {
	current := normalize(t, `{"aufgaben": [{"nummer": 1, "titel": "Bruch", "punkte": "4,5", "max_punkte": 6,
		"kommentar": "DAS WAR RICHTIG: Kürzen", "korrekturen": ["3/4"], "manuelle_pruefung": true,
		"warnung": "Schrift unleserlich"}], "zusammenfassung": "Stärken: Rechnen"}`)
	legacy := normalize(t, `{"Tasks": [{"ID": 1, "Title": "Bruch", "points": 4.5, "maxPoints": 6,
		"comment": "das war richtig: Kürzen", "corrections": ["3/4"], "needsReview": "ja",
		"warning": "Schrift unleserlich"}], "summary": "Stärken: Rechnen"}`)

	assert.Equal(t, current, legacy)
	task := current.Tasks[0]
	assert.Equal(t, "1", task.ID)
	assert.Equal(t, "4.5/6", task.Points)
	assert.Equal(t, []string{"Kürzen"}, task.Correct)
	assert.True(t, task.NeedsReview)
	assert.Equal(t, "Schrift unleserlich", task.Warning)
}

func TestNormalizeCommentSections(t *testing.T) {
	pa := normalize(t, `{"aufgaben": [
		{"punkte": 3, "max_punkte": 5, "kommentar": "DAS WAR RICHTIG:\n- Ansatz\n- Skizze\n\nHIER GAB ES ABZUEGE: Vorzeichen\n\nVERBESSERUNGSTIP: Probe machen"},
		{"punkte": 5, "max_punkte": 5, "kommentar": "Alles gut gemacht ohne Struktur"}
	]}`)

	structured := pa.Tasks[0]
	assert.Equal(t, []string{"Ansatz", "Skizze"}, structured.Correct)
	assert.Equal(t, []string{"Vorzeichen"}, structured.Deductions)
	assert.Equal(t, []string{"Probe machen"}, structured.Hints)
	assert.Empty(t, structured.Unstructured)

	plain := pa.Tasks[1]
	assert.Empty(t, plain.Correct)
	assert.Empty(t, plain.Deductions)
	assert.Empty(t, plain.Hints)
	assert.Equal(t, "Alles gut gemacht ohne Struktur", plain.Unstructured)
	assert.Equal(t, "2", plain.ID)
}

func TestNormalizePointPairs(t *testing.T) {
	pa := normalize(t, `{"aufgaben": [{"punkte": "7/10"}]}`)
	assert.Equal(t, 7.0, pa.Tasks[0].Achieved)
	assert.Equal(t, 10.0, pa.Tasks[0].Max)
	assert.Equal(t, 70.0, *pa.Overall.Percentage)
}

func TestNormalizeDoesNotEnforcePointLimits(t *testing.T) {
	pa := normalize(t, `{"aufgaben": [{"punkte": 12, "max_punkte": 10}]}`)
	assert.Equal(t, "12/10", pa.Tasks[0].Points)
	assert.Equal(t, 120.0, *pa.Overall.Percentage)
	assert.Equal(t, "1", pa.Overall.Grade.Label)
}

func TestNormalizeSummary(t *testing.T) {
	t.Run("explicit lists", func(t *testing.T) {
		pa := normalize(t, `{"aufgaben": [], "staerken": ["a", "b"], "entwicklungsbereiche": "c"}`)
		assert.Equal(t, []string{"a", "b"}, pa.Summary.Strengths)
		assert.Equal(t, []string{"c"}, pa.Summary.Development)
	})
	t.Run("markers", func(t *testing.T) {
		pa := normalize(t, `{"aufgaben": [], "zusammenfassung": "Stärken:\n- sauber\nEntwicklungsbereiche:\n- Einheiten"}`)
		assert.Equal(t, []string{"sauber"}, pa.Summary.Strengths)
		assert.Equal(t, []string{"Einheiten"}, pa.Summary.Development)
	})
	t.Run("heuristic", func(t *testing.T) {
		pa := normalize(t, `{"aufgaben": [], "zusammenfassung": "Die Rechnung ist korrekt. Die Einheit fehlt leider"}`)
		assert.Equal(t, []string{"Die Rechnung ist korrekt."}, pa.Summary.Strengths)
		assert.Equal(t, []string{"Die Einheit fehlt leider."}, pa.Summary.Development)
	})
	t.Run("empty", func(t *testing.T) {
		pa := normalize(t, `{"aufgaben": []}`)
		assert.Empty(t, pa.Summary.Strengths)
		assert.Empty(t, pa.Summary.Development)
		assert.Empty(t, pa.Summary.Text)
	})
}

func TestNormalizeObject(t *testing.T) {
	var obj map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"tasks": [{"points": 1, "max_points": 2}]}`), &obj))
	pa, err := NewNormalizer(nil).NormalizeObject(obj, "")
	require.NoError(t, err)
	assert.Equal(t, 50.0, *pa.Overall.Percentage)
}

func TestFieldTableLookup(t *testing.T) {
	obj := map[string]any{"MaxPunkte": 3, "kommentar": nil, "comment": "x"}
	v, ok := TaskFields.Lookup(obj, FieldTaskMax)
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	v, ok = TaskFields.Lookup(obj, FieldTaskComment)
	assert.True(t, ok)
	assert.Equal(t, "x", v)

	_, ok = TaskFields.Lookup(obj, FieldTaskWarning)
	assert.False(t, ok)
}
