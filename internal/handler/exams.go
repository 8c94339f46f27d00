package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/korrekturpilot/internal/analysis"
	"github.com/pavelanni/korrekturpilot/internal/export"
	appI18n "github.com/pavelanni/korrekturpilot/internal/i18n"
	"github.com/pavelanni/korrekturpilot/internal/llm"
	"github.com/pavelanni/korrekturpilot/internal/llm/prompts"
	"github.com/pavelanni/korrekturpilot/internal/model"
	"github.com/pavelanni/korrekturpilot/internal/storage"
	"github.com/pavelanni/korrekturpilot/internal/store"
	"github.com/pavelanni/korrekturpilot/internal/view"
)

var pdfMagic = []byte("%PDF-")

type uploadRequest struct {
	StudentName string `json:"student_name" validate:"required,max=120"`
	Subject     string `json:"subject" validate:"max=80"`
	GradeLevel  string `json:"grade_level" validate:"max=20"`
	ClassName   string `json:"class_name" validate:"max=40"`
	SchoolYear  string `json:"school_year" validate:"max=20"`
	Horizon     string `json:"horizon" validate:"max=50000"`
}

type examResponse struct {
	Exam *model.Exam       `json:"exam"`
	View *view.TeacherView `json:"view,omitempty"`
	// Error is the fixed message shown when the stored analysis cannot be rendered.
	Error   string `json:"error,omitempty"`
	Credits *int   `json:"credits,omitempty"`
}

func (h *Handler) loadExam(w http.ResponseWriter, r *http.Request) (*model.Exam, bool) {
	user := model.UserFromContext(r.Context())
	exam, err := h.store.GetExam(user.ID, chi.URLParam(r, "examID"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "NotFound")
		return nil, false
	}
	if err != nil {
		internalError(w, r, "failed to load exam", err)
		return nil, false
	}
	return exam, true
}

func (h *Handler) handleListExams(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	exams, err := h.store.ListExams(user.ID)
	if err != nil {
		internalError(w, r, "failed to list exams", err)
		return
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	writeJSON(w, http.StatusOK, exams)
}

func (h *Handler) handleUploadExam(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes+maxJSONBodyBytes)
	if err := r.ParseMultipartForm(h.config.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "UploadTooLarge")
			return
		}
		writeError(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}
	defer r.MultipartForm.RemoveAll()

	req := uploadRequest{
		StudentName: strings.TrimSpace(r.FormValue("student_name")),
		Subject:     strings.TrimSpace(r.FormValue("subject")),
		GradeLevel:  strings.TrimSpace(r.FormValue("grade_level")),
		ClassName:   strings.TrimSpace(r.FormValue("class_name")),
		SchoolYear:  strings.TrimSpace(r.FormValue("school_year")),
		Horizon:     r.FormValue("horizon"),
	}
	if !h.check(w, r, &req) {
		return
	}

	file, header, err := r.FormFile("pdf")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "InvalidPDF")
		return
	}
	defer file.Close()
	if header.Size > h.config.MaxUploadBytes {
		writeError(w, r, http.StatusRequestEntityTooLarge, "UploadTooLarge")
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		internalError(w, r, "failed to read upload", err)
		return
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		writeError(w, r, http.StatusBadRequest, "InvalidPDF")
		return
	}

	key, err := h.blobs.Put(storage.NewExamKey(), bytes.NewReader(data))
	if err != nil {
		internalError(w, r, "failed to store PDF", err)
		return
	}

	exam, err := h.store.CreateExam(model.Exam{
		OwnerID:     user.ID,
		StudentName: req.StudentName,
		Course: model.CourseInfo{
			Subject:    req.Subject,
			GradeLevel: req.GradeLevel,
			ClassName:  req.ClassName,
			SchoolYear: req.SchoolYear,
		},
		Horizon: req.Horizon,
		PDFKey:  key,
	})
	if err != nil {
		if delErr := h.blobs.Delete(key); delErr != nil {
			slog.Warn("failed to remove orphaned PDF", "key", key, "error", delErr)
		}
		internalError(w, r, "failed to create exam", err)
		return
	}
	slog.Info("uploaded exam", "exam_id", exam.ID, "owner_id", user.ID, "bytes", len(data))
	writeJSON(w, http.StatusCreated, examResponse{Exam: exam})
}

// render builds the teacher view of a graded exam. A malformed payload is
// reported through resp.Error with the fixed invalid-format message.
func (h *Handler) render(r *http.Request, exam *model.Exam) examResponse {
	resp := examResponse{Exam: exam}
	if exam.Status != model.ExamGraded || len(exam.RawAnalysis) == 0 {
		return resp
	}
	v, err := view.RenderRaw(h.normalizer, exam.RawAnalysis, exam.Course.GradeLevel)
	if err != nil {
		slog.Warn("stored analysis cannot be rendered", "exam_id", exam.ID, "error", err)
		resp.Error = appI18n.T(r.Context(), "InvalidAnalysisFormat")
		return resp
	}
	resp.View = &v
	return resp
}

func (h *Handler) handleGetExam(w http.ResponseWriter, r *http.Request) {
	exam, ok := h.loadExam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.render(r, exam))
}

func (h *Handler) handleDeleteExam(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	exam, err := h.store.DeleteExam(user.ID, chi.URLParam(r, "examID"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "NotFound")
		return
	}
	if err != nil {
		internalError(w, r, "failed to delete exam", err)
		return
	}
	if err := h.blobs.Delete(exam.PDFKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
		slog.Warn("failed to remove PDF", "key", exam.PDFKey, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	exam, ok := h.loadExam(w, r)
	if !ok {
		return
	}
	if exam.Status == model.ExamAnalyzing {
		writeError(w, r, http.StatusConflict, "AnalysisRunning")
		return
	}

	balance, err := h.store.ConsumeCredit(user.ID)
	if errors.Is(err, store.ErrNoCredits) {
		writeError(w, r, http.StatusPaymentRequired, "NoCredits")
		return
	}
	if err != nil {
		internalError(w, r, "failed to consume credit", err)
		return
	}
	if err := h.store.SetExamStatus(exam.ID, model.ExamAnalyzing); err != nil {
		h.refund(user.ID)
		internalError(w, r, "failed to mark exam analyzing", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.config.AnalysisTimeout)
	defer cancel()
	raw, err := h.analyze(ctx, exam)
	if err != nil {
		h.refund(user.ID)
		if statusErr := h.store.SetExamStatus(exam.ID, model.ExamFailed); statusErr != nil {
			slog.Error("failed to mark exam failed", "exam_id", exam.ID, "error", statusErr)
		}
		slog.Warn("analysis failed", "exam_id", exam.ID, "error", err)
		switch {
		case errors.Is(err, llm.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
			writeError(w, r, http.StatusGatewayTimeout, "AnalysisTimeout")
		case errors.Is(err, analysis.ErrMalformedPayload):
			writeError(w, r, http.StatusBadGateway, "InvalidAnalysisFormat")
		default:
			writeError(w, r, http.StatusBadGateway, "AnalysisFailed")
		}
		return
	}

	if err := h.store.SaveAnalysis(exam.ID, raw); err != nil {
		h.refund(user.ID)
		internalError(w, r, "failed to save analysis", err)
		return
	}
	exam, err = h.store.GetExam(user.ID, exam.ID)
	if err != nil {
		internalError(w, r, "failed to reload exam", err)
		return
	}
	slog.Info("graded exam", "exam_id", exam.ID, "owner_id", user.ID, "credits_left", balance)

	resp := h.render(r, exam)
	resp.Credits = &balance
	writeJSON(w, http.StatusOK, resp)
}

// analyze transcribes the exam if needed, grades it and checks that the
// payload can be normalized before it is stored.
func (h *Handler) analyze(ctx context.Context, exam *model.Exam) (json.RawMessage, error) {
	text := exam.ExtractedText
	if text == "" {
		pdf, err := h.readPDF(exam.PDFKey)
		if err != nil {
			return nil, err
		}
		text, err = h.extractor.Extract(ctx, pdf)
		if err != nil {
			return nil, fmt.Errorf("extract: %w", err)
		}
		if err := h.store.SaveExtraction(exam.ID, text); err != nil {
			return nil, fmt.Errorf("save extraction: %w", err)
		}
	}

	raw, err := h.grader.Grade(ctx, llm.GradeRequest{
		Course:   exam.Course,
		Horizon:  exam.Horizon,
		ExamText: text,
		Variant:  prompts.PromptVariant(h.config.PromptVariant),
	})
	if err != nil {
		return nil, fmt.Errorf("grade: %w", err)
	}
	if _, err := h.normalizer.Normalize(raw, exam.Course.GradeLevel); err != nil {
		return nil, err
	}
	return raw, nil
}

func (h *Handler) readPDF(key string) ([]byte, error) {
	rc, err := h.blobs.Get(key)
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (h *Handler) refund(userID int64) {
	if err := h.store.RefundCredit(userID); err != nil {
		slog.Error("failed to refund credit", "user_id", userID, "error", err)
	}
}

func (h *Handler) handlePDF(w http.ResponseWriter, r *http.Request) {
	exam, ok := h.loadExam(w, r)
	if !ok {
		return
	}
	rc, err := h.blobs.Get(exam.PDFKey)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "NotFound")
		return
	}
	if err != nil {
		internalError(w, r, "failed to open PDF", err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": exam.StudentName + ".pdf"}))
	w.Header().Set("Cache-Control", "private, no-store")
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("PDF download interrupted", "exam_id", exam.ID, "error", err)
	}
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	exam, ok := h.loadExam(w, r)
	if !ok {
		return
	}
	if exam.Status != model.ExamGraded || len(exam.RawAnalysis) == 0 {
		writeError(w, r, http.StatusConflict, "AnalysisPending")
		return
	}
	v, err := view.RenderRaw(h.normalizer, exam.RawAnalysis, exam.Course.GradeLevel)
	if err != nil {
		slog.Warn("stored analysis cannot be exported", "exam_id", exam.ID, "error", err)
		writeError(w, r, http.StatusUnprocessableEntity, "InvalidAnalysisFormat")
		return
	}

	meta := model.DocumentMeta{
		StudentName: exam.StudentName,
		ExamName:    r.URL.Query().Get("name"),
		Course:      exam.Course,
	}
	if exam.GradedAt != nil {
		meta.Date = exam.GradedAt.Format("02.01.2006")
	}
	file, err := export.Export(v, meta, exportLabels(r.Context()))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "DocumentFailed")
		return
	}

	w.Header().Set("Content-Type", file.MIMEType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.Filename}))
	w.Header().Set("Content-Length", fmt.Sprint(len(file.Data)))
	_, _ = w.Write(file.Data)
}

// exportLabels localizes the document headings.
func exportLabels(ctx context.Context) export.Labels {
	return export.LabelsFrom(func(id string) string { return appI18n.T(ctx, id) })
}
