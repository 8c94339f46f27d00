package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/korrekturpilot/internal/model"
)

const examColumns = `id, owner_id, student_name, subject, grade_level, class_name, school_year,
	horizon, pdf_key, extracted_text, raw_analysis, status, created_at, graded_at`

func scanExam(row interface{ Scan(...any) error }) (*model.Exam, error) {
	var e model.Exam
	err := row.Scan(&e.ID, &e.OwnerID, &e.StudentName,
		&e.Course.Subject, &e.Course.GradeLevel, &e.Course.ClassName, &e.Course.SchoolYear,
		&e.Horizon, &e.PDFKey, &e.ExtractedText, &e.RawAnalysis, &e.Status, &e.CreatedAt, &e.GradedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateExam stores a newly uploaded exam and returns it with ID, status
// and creation time filled in.
func (s *Store) CreateExam(e model.Exam) (*model.Exam, error) {
	e.ID = uuid.NewString()
	e.Status = model.ExamUploaded
	e.CreatedAt = time.Now()
	e.RawAnalysis = nil
	e.GradedAt = nil
	_, err := s.db.Exec(
		`INSERT INTO exams (id, owner_id, student_name, subject, grade_level, class_name, school_year,
		 horizon, pdf_key, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.OwnerID, e.StudentName, e.Course.Subject, e.Course.GradeLevel, e.Course.ClassName,
		e.Course.SchoolYear, e.Horizon, e.PDFKey, e.Status, e.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert exam: %w", err)
	}
	slog.Info("created exam", "exam_id", e.ID, "owner_id", e.OwnerID)
	return &e, nil
}

// GetExam returns an exam owned by owner. Exams of other users are
// reported as ErrNotFound.
func (s *Store) GetExam(owner int64, id string) (*model.Exam, error) {
	e, err := scanExam(s.db.QueryRow(
		`SELECT `+examColumns+` FROM exams WHERE id = ? AND owner_id = ?`, id, owner,
	))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return e, err
}

// ListExams returns the owner's exams, newest first.
func (s *Store) ListExams(owner int64) ([]model.Exam, error) {
	return s.queryExams(`SELECT `+examColumns+` FROM exams WHERE owner_id = ? ORDER BY created_at DESC, id`, owner)
}

// SetExamStatus updates the processing state of an exam.
func (s *Store) SetExamStatus(id string, status model.ExamStatus) error {
	res, err := s.db.Exec(`UPDATE exams SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// SaveExtraction stores the transcribed exam text.
func (s *Store) SaveExtraction(id, text string) error {
	res, err := s.db.Exec(`UPDATE exams SET extracted_text = ? WHERE id = ?`, text, id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// SaveAnalysis stores the raw grading payload and marks the exam graded.
func (s *Store) SaveAnalysis(id string, raw []byte) error {
	res, err := s.db.Exec(
		`UPDATE exams SET raw_analysis = ?, status = ?, graded_at = ? WHERE id = ?`,
		raw, model.ExamGraded, time.Now(), id,
	)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// DeleteExam removes an exam row owned by owner and returns it so the
// caller can drop the stored PDF as well.
func (s *Store) DeleteExam(owner int64, id string) (*model.Exam, error) {
	e, err := s.GetExam(owner, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.Exec(`DELETE FROM exams WHERE id = ? AND owner_id = ?`, id, owner); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Store) queryExams(query string, args ...any) ([]model.Exam, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var exams []model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, *e)
	}
	return exams, rows.Err()
}
