package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/pavelanni/korrekturpilot/internal/analysis"
	"github.com/pavelanni/korrekturpilot/internal/model"
	"github.com/pavelanni/korrekturpilot/internal/store"
	"github.com/pavelanni/korrekturpilot/internal/view"
)

const payload = `{
	"aufgaben": [
		{"nummer": "1", "titel": "Bruchrechnung", "punkte": 3, "max_punkte": 4,
		 "kommentar": "DAS WAR RICHTIG: Kürzen\n\nHIER GAB ES ABZÜGE: Vorzeichen"},
		{"nummer": "2", "titel": "Gleichungen", "punkte": 4, "max_punkte": 5}
	],
	"zusammenfassung": "Stärken: Sorgfalt\nEntwicklungsbereiche: Vorzeichen"
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	err := cmd.Execute()
	return out.String(), err
}

func TestGradeCalculatorDefault(t *testing.T) {
	c, err := gradeCalculator(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "2", c.Grade(85, "7").Label)
}

func TestGradeCalculatorConfigured(t *testing.T) {
	v := viper.New()
	v.Set("grade_bands", map[string]any{
		"default": "all",
		"bands": []any{
			map[string]any{
				"name": "all", "min_level": 1, "max_level": 13,
				"thresholds": []any{
					map[string]any{"min": 50, "label": "1"},
					map[string]any{"min": 0, "label": "6"},
				},
			},
		},
	})
	c, err := gradeCalculator(v)
	require.NoError(t, err)
	assert.Equal(t, "1", c.Grade(60, "7").Label)
	assert.Equal(t, "6", c.Grade(49.9, "").Label)
}

func TestGradeCalculatorInvalid(t *testing.T) {
	v := viper.New()
	v.Set("grade_bands", map[string]any{"default": "missing"})
	_, err := gradeCalculator(v)
	assert.Error(t, err)
}

func TestNormalizePromptVariant(t *testing.T) {
	assert.Equal(t, "strict", normalizePromptVariant(" Strict "))
	assert.Equal(t, "standard", normalizePromptVariant("harsh"))
}

func TestNormalizeBasePath(t *testing.T) {
	assert.Equal(t, "", normalizeBasePath("/"))
	assert.Equal(t, "/korrektur", normalizeBasePath("korrektur/"))
	assert.Equal(t, "/a/b", normalizeBasePath("/a/b"))
}

func TestRender(t *testing.T) {
	path := writeFile(t, "payload.json", payload)
	out, err := execute(t, renderCmd(), path, "--grade-level", "8")
	require.NoError(t, err)

	var tv view.TeacherView
	require.NoError(t, json.Unmarshal([]byte(out), &tv))
	require.Len(t, tv.Tasks, 2)
	assert.Equal(t, []string{"Kürzen"}, tv.Tasks[0].Correct)
	assert.Equal(t, "7", tv.Overall.Achieved)
	assert.Equal(t, "77.8", tv.Overall.Percentage)
	assert.Equal(t, "3", tv.Overall.Grade.Label)
}

func TestRenderMalformed(t *testing.T) {
	path := writeFile(t, "payload.json", `{"zusammenfassung": "nur Text"}`)
	out, err := execute(t, renderCmd(), path)
	assert.ErrorIs(t, err, analysis.ErrMalformedPayload)
	assert.Empty(t, out)
}

func TestExportSingle(t *testing.T) {
	input := writeFile(t, "payload.json", payload)
	outDir := t.TempDir()
	_, err := execute(t, exportCmd(),
		"--input", input, "--out-dir", outDir,
		"--student", "Lena", "--exam-name", "KA 2", "--grade-level", "8",
		"--date", "01.02.2026", "--lang", "en")
	require.NoError(t, err)

	f, err := excelize.OpenFile(filepath.Join(outDir, "Korrektur_Lena_KA_2.xlsx"))
	require.NoError(t, err)
	defer f.Close()
	title, err := f.GetCellValue(f.GetSheetName(0), "A1")
	require.NoError(t, err)
	assert.Equal(t, "Feedback: KA 2", title)
}

func TestExportRequiresOneSource(t *testing.T) {
	_, err := execute(t, exportCmd())
	assert.Error(t, err)

	_, err = execute(t, exportCmd(), "--input", "a.json", "--db", "b.db")
	assert.Error(t, err)
}

func TestExportStored(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := store.New(dbPath)
	require.NoError(t, err)

	uid, err := db.CreateUser(model.User{Username: "lehrer", PasswordHash: "x", Role: model.UserRoleTeacher, Active: true})
	require.NoError(t, err)
	graded, err := db.CreateExam(model.Exam{OwnerID: uid, StudentName: "Tom", PDFKey: "exams/a.pdf"})
	require.NoError(t, err)
	require.NoError(t, db.SaveAnalysis(graded.ID, []byte(payload)))
	_, err = db.CreateExam(model.Exam{OwnerID: uid, StudentName: "Ungegradet", PDFKey: "exams/b.pdf"})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	outDir := t.TempDir()
	_, err = execute(t, exportCmd(), "--db", dbPath, "--out-dir", outDir)
	require.NoError(t, err)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, graded.ID[:8]+"_Korrektur_Tom.xlsx", entries[0].Name())
}
