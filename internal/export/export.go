package export

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/pavelanni/korrekturpilot/internal/model"
	"github.com/pavelanni/korrekturpilot/internal/view"
)

// MIMEType is the content type of the exported workbook.
const MIMEType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ErrDocumentFailed is the only error Export returns.
var ErrDocumentFailed = errors.New("document could not be created")

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]`)

// Export builds and encodes the document for v. On failure no bytes are
// returned.
func Export(v view.TeacherView, meta model.DocumentMeta, l Labels) (model.ExportFile, error) {
	data, err := encode(Build(v, meta, l))
	if err != nil {
		slog.Error("encode document", "student", meta.StudentName, "error", err)
		return model.ExportFile{}, ErrDocumentFailed
	}
	return model.ExportFile{
		Filename: Filename(meta),
		MIMEType: MIMEType,
		Data:     data,
	}, nil
}

// Filename derives the download name from the student and exam names,
// replacing every non-alphanumeric character with an underscore.
func Filename(meta model.DocumentMeta) string {
	parts := []string{"Korrektur"}
	for _, s := range []string{meta.StudentName, meta.ExamName} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, nonAlnum.ReplaceAllString(s, "_"))
		}
	}
	return strings.Join(parts, "_") + ".xlsx"
}

const sheetName = "Korrektur"

var encode = Encode

// Encode writes doc into a single-sheet XLSX workbook.
func Encode(doc Document) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	w, err := newSheetWriter(f, sheetName)
	if err != nil {
		return nil, err
	}

	l := doc.Labels
	w.heading(doc.Title, w.titleStyle)
	w.blank()
	for _, m := range doc.Meta {
		w.field(m.Label, m.Value)
	}
	w.blank()

	w.heading(l.Results, w.sectionStyle)
	for _, r := range doc.Results {
		w.field(r.Label, r.Value)
	}
	w.blank()

	w.heading(l.Summary, w.sectionStyle)
	w.list(l.Strengths, doc.Summary.Strengths)
	w.list(l.Development, doc.Summary.Development)
	if doc.Summary.Text != "" {
		w.field(l.Comment, doc.Summary.Text)
	}

	for _, t := range doc.Tasks {
		w.blank()
		w.heading(fmt.Sprintf("%s %s: %s", l.Task, t.ID, t.Title), w.sectionStyle)
		w.field(l.Points, t.Achieved+" / "+t.Max)
		if t.Warning != "" {
			w.field(l.Warning, t.Warning)
		}
		w.list(l.Correct, t.Correct)
		w.list(l.Deductions, t.Deductions)
		w.list(l.Hints, t.Hints)
		w.list(l.Corrections, t.Corrections)
		if t.Comment != "" {
			w.field(l.Comment, t.Comment)
		}
	}

	if w.err != nil {
		return nil, w.err
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// sheetWriter appends rows to a two-column sheet and keeps the first error.
type sheetWriter struct {
	f            *excelize.File
	sheet        string
	row          int
	err          error
	titleStyle   int
	sectionStyle int
	labelStyle   int
	valueStyle   int
}

func newSheetWriter(f *excelize.File, sheet string) (*sheetWriter, error) {
	w := &sheetWriter{f: f, sheet: sheet, row: 1}
	styles := []struct {
		dst   *int
		style *excelize.Style
	}{
		{&w.titleStyle, &excelize.Style{Font: &excelize.Font{Bold: true, Size: 16}}},
		{&w.sectionStyle, &excelize.Style{Font: &excelize.Font{Bold: true, Size: 12}}},
		{&w.labelStyle, &excelize.Style{
			Font:      &excelize.Font{Bold: true},
			Alignment: &excelize.Alignment{Vertical: "top"},
		}},
		{&w.valueStyle, &excelize.Style{Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"}}},
	}
	for _, s := range styles {
		id, err := f.NewStyle(s.style)
		if err != nil {
			return nil, fmt.Errorf("create style: %w", err)
		}
		*s.dst = id
	}
	if err := f.SetColWidth(sheet, "A", "A", 26); err != nil {
		return nil, fmt.Errorf("set column width: %w", err)
	}
	if err := f.SetColWidth(sheet, "B", "B", 90); err != nil {
		return nil, fmt.Errorf("set column width: %w", err)
	}
	return w, nil
}

func (w *sheetWriter) set(col int, value string, style int) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(col, w.row)
	if err != nil {
		w.err = err
		return
	}
	if err := w.f.SetCellStr(w.sheet, cell, value); err != nil {
		w.err = fmt.Errorf("set %s: %w", cell, err)
		return
	}
	if err := w.f.SetCellStyle(w.sheet, cell, cell, style); err != nil {
		w.err = fmt.Errorf("style %s: %w", cell, err)
	}
}

func (w *sheetWriter) heading(text string, style int) {
	w.set(1, text, style)
	w.row++
}

func (w *sheetWriter) blank() {
	w.row++
}

func (w *sheetWriter) field(label, value string) {
	w.set(1, label, w.labelStyle)
	w.set(2, value, w.valueStyle)
	w.row++
}

// list writes label next to the first item and the remaining items below.
// An empty list prints the placeholder.
func (w *sheetWriter) list(label string, items []string) {
	if len(items) == 0 {
		w.field(label, model.Placeholder)
		return
	}
	for i, item := range items {
		if i == 0 {
			w.set(1, label, w.labelStyle)
		}
		w.set(2, "• "+item, w.valueStyle)
		w.row++
	}
}
