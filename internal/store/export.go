package store

import (
	"fmt"

	"github.com/pavelanni/korrekturpilot/internal/model"
)

// ExportExams returns every graded exam in upload order. An owner of 0
// selects the exams of all users.
func (s *Store) ExportExams(owner int64) ([]model.Exam, error) {
	query := `SELECT ` + examColumns + ` FROM exams WHERE status = 'graded' AND raw_analysis IS NOT NULL`
	var args []any
	if owner != 0 {
		query += ` AND owner_id = ?`
		args = append(args, owner)
	}
	query += ` ORDER BY created_at, id`
	exams, err := s.queryExams(query, args...)
	if err != nil {
		return nil, fmt.Errorf("export exams: %w", err)
	}
	return exams, nil
}
