package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleTeacher uploads exams and consumes credits.
	UserRoleTeacher UserRole = "teacher"
	// UserRoleAdmin manages users and credits.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	Active       bool      `json:"active"`
	Credits      int       `json:"credits"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// ExamStatus represents the processing state of an uploaded exam.
type ExamStatus string

const (
	ExamUploaded  ExamStatus = "uploaded"
	ExamAnalyzing ExamStatus = "analyzing"
	ExamGraded    ExamStatus = "graded"
	ExamFailed    ExamStatus = "failed"
)

// Exam is one scanned exam uploaded by a teacher together with its
// expectation horizon and, once graded, the raw analysis payload.
type Exam struct {
	ID            string     `json:"id"`
	OwnerID       int64      `json:"owner_id"`
	StudentName   string     `json:"student_name"`
	Course        CourseInfo `json:"course"`
	Horizon       string     `json:"horizon"`
	PDFKey        string     `json:"-"`
	ExtractedText string     `json:"extracted_text,omitempty"`
	RawAnalysis   []byte     `json:"-"`
	Status        ExamStatus `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	GradedAt      *time.Time `json:"graded_at,omitempty"`
}

// ExamConfig holds runtime parameters set via CLI flags.
type ExamConfig struct {
	BasePath        string        // URL prefix for sub-path deployments (e.g. "/app")
	SecureCookies   bool          // Set Secure flag on cookies (disable for local dev)
	PromptVariant   string        // Grading prompt variant (strict, standard, lenient)
	AnalysisTimeout time.Duration // Deadline for extraction plus grading
	MaxUploadBytes  int64
}
