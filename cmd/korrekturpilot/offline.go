package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/korrekturpilot/internal/analysis"
	"github.com/pavelanni/korrekturpilot/internal/export"
	appI18n "github.com/pavelanni/korrekturpilot/internal/i18n"
	"github.com/pavelanni/korrekturpilot/internal/model"
	"github.com/pavelanni/korrekturpilot/internal/store"
	"github.com/pavelanni/korrekturpilot/internal/view"
)

func renderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render [file]",
		Short: "Render a raw analysis payload as a teacher view (JSON)",
		Long: `Render reads a raw analysis payload from a file (or stdin when the
argument is "-" or missing), normalizes it and prints the teacher view.
A malformed payload prints nothing and exits non-zero.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runRender,
	}
	cmd.Flags().String("grade-level", "", "Grade level used to select the grade band")
	addLogFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export feedback documents (XLSX)",
		Long: `Export writes feedback documents either for a single raw payload
(--input) or for every graded exam stored in the database (--db).`,
		RunE: runExport,
	}
	f := cmd.Flags()
	f.StringP("input", "i", "", "Raw analysis payload file (\"-\" for stdin)")
	f.String("db", "", "SQLite database path; exports all graded exams")
	f.Int64("owner", 0, "Only export exams of this user ID (0 = all users)")
	f.StringP("output", "o", "", "Output file for --input (default: generated filename in --out-dir)")
	f.String("out-dir", ".", "Output directory")
	f.String("student", "", "Student name")
	f.String("exam-name", "", "Exam name")
	f.String("subject", "", "Subject")
	f.String("grade-level", "", "Grade level")
	f.String("class-name", "", "Class name")
	f.String("school-year", "", "School year")
	f.String("date", "", "Date printed on the document (default: today)")
	f.StringP("lang", "l", appI18n.DefaultLang, "Document language (de, en)")
	addLogFlags(cmd)
	return cmd
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func runRender(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	path := ""
	if len(args) > 0 {
		path = args[0]
	}
	raw, err := readInput(path)
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}

	calc, err := gradeCalculator(v)
	if err != nil {
		return err
	}
	tv, err := view.RenderRaw(analysis.NewNormalizer(calc), raw, v.GetString("grade-level"))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(tv)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	input := v.GetString("input")
	dbPath := v.GetString("db")
	if (input == "") == (dbPath == "") {
		return errors.New("exactly one of --input or --db is required")
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	ctx := appI18n.WithLocalizer(context.Background(), appI18n.NewLocalizer(lang))
	labels := export.LabelsFrom(func(id string) string { return appI18n.T(ctx, id) })

	calc, err := gradeCalculator(v)
	if err != nil {
		return err
	}
	n := analysis.NewNormalizer(calc)

	outDir := v.GetString("out-dir")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	if input != "" {
		return exportSingle(v, n, labels, input, outDir)
	}
	return exportStored(v, n, labels, dbPath, outDir)
}

func exportSingle(v *viper.Viper, n *analysis.Normalizer, labels export.Labels, input, outDir string) error {
	raw, err := readInput(input)
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}
	meta := model.DocumentMeta{
		StudentName: v.GetString("student"),
		ExamName:    v.GetString("exam-name"),
		Course: model.CourseInfo{
			Subject:    v.GetString("subject"),
			GradeLevel: v.GetString("grade-level"),
			ClassName:  v.GetString("class-name"),
			SchoolYear: v.GetString("school-year"),
		},
		Date: v.GetString("date"),
	}
	if meta.Date == "" {
		meta.Date = time.Now().Format("02.01.2006")
	}

	tv, err := view.RenderRaw(n, raw, meta.Course.GradeLevel)
	if err != nil {
		return err
	}
	file, err := export.Export(tv, meta, labels)
	if err != nil {
		return err
	}

	out := v.GetString("output")
	if out == "" {
		out = filepath.Join(outDir, file.Filename)
	}
	if err := os.WriteFile(out, file.Data, 0o644); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	slog.Info("exported document", "path", out)
	return nil
}

func exportStored(v *viper.Viper, n *analysis.Normalizer, labels export.Labels, dbPath, outDir string) error {
	db, err := store.New(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	exams, err := db.ExportExams(v.GetInt64("owner"))
	if err != nil {
		return fmt.Errorf("load exams: %w", err)
	}

	written := 0
	for _, e := range exams {
		tv, err := view.RenderRaw(n, e.RawAnalysis, e.Course.GradeLevel)
		if err != nil {
			slog.Warn("skipping exam with malformed analysis", "exam_id", e.ID, "error", err)
			continue
		}
		meta := model.DocumentMeta{StudentName: e.StudentName, Course: e.Course}
		if e.GradedAt != nil {
			meta.Date = e.GradedAt.Format("02.01.2006")
		}
		file, err := export.Export(tv, meta, labels)
		if err != nil {
			return fmt.Errorf("export exam %s: %w", e.ID, err)
		}
		// Exam IDs keep documents of students with the same name apart.
		name := e.ID[:8] + "_" + file.Filename
		if err := os.WriteFile(filepath.Join(outDir, name), file.Data, 0o644); err != nil {
			return fmt.Errorf("write document: %w", err)
		}
		written++
	}
	slog.Info("export complete", "exams", len(exams), "written", written, "dir", outDir)
	return nil
}
