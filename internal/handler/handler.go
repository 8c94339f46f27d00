// Package handler exposes the JSON API used by the KorrekturPilot front-end.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/korrekturpilot/internal/analysis"
	appI18n "github.com/pavelanni/korrekturpilot/internal/i18n"
	"github.com/pavelanni/korrekturpilot/internal/llm"
	"github.com/pavelanni/korrekturpilot/internal/model"
	"github.com/pavelanni/korrekturpilot/internal/storage"
	"github.com/pavelanni/korrekturpilot/internal/store"
)

const (
	defaultAnalysisTimeout = 3 * time.Minute
	defaultMaxUploadBytes  = 20 << 20
	maxJSONBodyBytes       = 1 << 20
)

// Grader grades transcribed exam text and returns the raw analysis payload.
type Grader interface {
	Grade(ctx context.Context, req llm.GradeRequest) (json.RawMessage, error)
}

// Extractor transcribes a scanned exam PDF.
type Extractor interface {
	Extract(ctx context.Context, pdf []byte) (string, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store      *store.Store
	blobs      storage.BlobStore
	extractor  Extractor
	grader     Grader
	normalizer *analysis.Normalizer
	validate   *validator.Validate
	config     model.ExamConfig
}

// New creates a new Handler. Zero timeouts and limits in cfg get defaults.
func New(s *store.Store, blobs storage.BlobStore, ex Extractor, gr Grader, n *analysis.Normalizer, cfg model.ExamConfig) (*Handler, error) {
	switch {
	case s == nil:
		return nil, errors.New("handler: store is nil")
	case blobs == nil:
		return nil, errors.New("handler: blob store is nil")
	case ex == nil || gr == nil:
		return nil, errors.New("handler: extractor and grader are required")
	}
	if n == nil {
		n = analysis.NewNormalizer(nil)
	}
	if cfg.AnalysisTimeout <= 0 {
		cfg.AnalysisTimeout = defaultAnalysisTimeout
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	return &Handler{
		store:      s,
		blobs:      blobs,
		extractor:  ex,
		grader:     gr,
		normalizer: n,
		validate:   newValidator(),
		config:     cfg,
	}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Use(h.csrfMiddleware)

	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Get("/api/me", h.handleMe)

		r.Route("/api/exams", func(r chi.Router) {
			r.Get("/", h.handleListExams)
			r.Post("/", h.handleUploadExam)
			r.Route("/{examID}", func(r chi.Router) {
				r.Get("/", h.handleGetExam)
				r.Delete("/", h.handleDeleteExam)
				r.Post("/analyze", h.handleAnalyze)
				r.Get("/pdf", h.handlePDF)
				r.Get("/export", h.handleExport)
			})
		})

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(requireRole(model.UserRoleAdmin))
			r.Get("/users", h.handleListUsers)
			r.Post("/users", h.handleCreateUser)
			r.Post("/users/{userID}/toggle", h.handleToggleUserActive)
			r.Post("/users/{userID}/credits", h.handleAddCredits)
		})
	})
}

// cookiePath scopes cookies to the deployment base path.
func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

type errorResponse struct {
	Error  string   `json:"error"`
	Code   string   `json:"code"`
	Fields []string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError sends a localized message. msgID doubles as the machine-readable code.
func writeError(w http.ResponseWriter, r *http.Request, status int, msgID string) {
	writeJSON(w, status, errorResponse{Error: appI18n.T(r.Context(), msgID), Code: msgID})
}

func internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	slog.Error(msg, "path", r.URL.Path, "error", err)
	writeError(w, r, http.StatusInternalServerError, "InternalError")
}

// decodeJSON reads a bounded JSON body into dst and validates it.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		slog.Debug("invalid JSON body", "path", r.URL.Path, "error", err)
		writeError(w, r, http.StatusBadRequest, "InvalidRequest")
		return false
	}
	return h.check(w, r, dst)
}

// check runs struct validation and writes a 400 listing the failed fields.
func (h *Handler) check(w http.ResponseWriter, r *http.Request, v any) bool {
	err := h.validate.Struct(v)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		internalError(w, r, "validate request", err)
		return false
	}
	resp := errorResponse{Error: appI18n.T(r.Context(), "InvalidRequest"), Code: "InvalidRequest"}
	for _, fe := range verrs {
		resp.Fields = append(resp.Fields, fe.Field())
	}
	writeJSON(w, http.StatusBadRequest, resp)
	return false
}
