package services

import (
	"context"
	"io"
	"time"

	"github.com/SAP-F-2025/english-practice-service/internal/llm"
	"github.com/SAP-F-2025/english-practice-service/internal/models"
	"github.com/SAP-F-2025/english-practice-service/internal/quiz"
	"github.com/SAP-F-2025/english-practice-service/internal/repositories"
	"github.com/SAP-F-2025/english-practice-service/internal/validator"
)

// ===== REQUEST/RESPONSE DTOs =====

type LoginRequest = validator.LoginRequest
type RegisterUserRequest = validator.RegisterUserRequest
type UpdateUserRequest = validator.UpdateUserRequest
type ChangePasswordRequest = validator.ChangePasswordRequest
type ResetPasswordRequest = validator.ResetPasswordRequest

type CreateProblemRequest = validator.ProblemCreateRequest
type UpdateProblemRequest = validator.ProblemUpdateRequest
type TextImportRequest = validator.TextImportRequest
type GenerateProblemsRequest = validator.GenerateProblemsRequest
type SaveDraftRequest = validator.SaveDraftRequest

type StartQuizRequest = validator.QuizStartRequest
type GradeRequest = validator.GradeRequest
type APIKeysRequest = validator.APIKeysRequest

type LoginResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	User      models.Profile `json:"user"`
}

// ExternalIdentity is a user asserted by an external identity provider.
type ExternalIdentity struct {
	Provider string
	Username string
	Name     string
	Email    string
	Role     models.UserRole
}

type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

type ImportResult struct {
	Created []*models.Problem `json:"created"`
	Errors  []RowError        `json:"errors,omitempty"`
}

// Draft is generated problem text awaiting review by its author.
type Draft struct {
	ID        string                `json:"id"`
	Text      string                `json:"text"`
	Provider  llm.ProviderName      `json:"provider"`
	Meta      validator.ProblemMeta `json:"meta"`
	CreatedBy string                `json:"created_by"`
	CreatedAt time.Time             `json:"created_at"`
	ExpiresAt time.Time             `json:"expires_at"`
}

// DraftResponse shows a draft with the problems it would produce.
type DraftResponse struct {
	*Draft
	Preview    []models.Problem `json:"preview"`
	ParseError string           `json:"parse_error,omitempty"`
}

// QuizProblem is a problem as shown while a quiz is running: the expected
// answer and explanation stay hidden until the results.
type QuizProblem struct {
	Index        int                 `json:"index"`
	ProblemID    string              `json:"problem_id"`
	QuestionType models.QuestionType `json:"question_type"`
	Question     string              `json:"question"`
	Context      string              `json:"context,omitempty"`
	Options      []models.Option     `json:"options,omitempty"`
	Answer       string              `json:"answer"`
}

type QuizView struct {
	Status   quiz.Status   `json:"status"`
	Problems []QuizProblem `json:"problems"`
}

type SubmitResponse struct {
	Status  quiz.Status         `json:"status"`
	Warning *quiz.SubmitWarning `json:"warning,omitempty"`
}

type FeedbackResponse struct {
	Index int `json:"index"`
	llm.FeedbackResult
}

type APIKeysView struct {
	OpenAI     string             `json:"openai_api_key"`
	Gemini     string             `json:"gemini_api_key"`
	Perplexity string             `json:"perplexity_api_key"`
	Ready      []llm.ProviderName `json:"ready"`
	Persistent bool               `json:"persistent"`
}

type BackupFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

type RestoreSummary struct {
	Users          int `json:"users"`
	Problems       int `json:"teacher_problems"`
	StudentRecords int `json:"student_records"`
}

// ===== SERVICE INTERFACES =====

type AuthService interface {
	Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error)
	// Logout discards the user's quiz session; tokens expire on their own.
	Logout(ctx context.Context, username string) error
	Me(ctx context.Context, username string) (*models.Profile, error)
	ChangePassword(ctx context.Context, username string, req *ChangePasswordRequest) error

	ParseToken(token string) (*Claims, error)
	EnsureBootstrapAdmin(ctx context.Context) error
	ProvisionExternalUser(ctx context.Context, identity ExternalIdentity) (*models.User, error)
}

type UserService interface {
	Register(ctx context.Context, req *RegisterUserRequest, actorID string) (*models.Profile, error)
	List(ctx context.Context, filters repositories.UserFilters, actorID string) ([]models.Profile, error)
	Update(ctx context.Context, username string, req *UpdateUserRequest, actorID string) (*models.Profile, error)
	ResetPassword(ctx context.Context, username string, req *ResetPasswordRequest, actorID string) error
	// Delete removes the user and what they own: a student's record or a
	// teacher's problems.
	Delete(ctx context.Context, username string, actorID string) error
}

type StudentService interface {
	ListStudents(ctx context.Context, teacherID string) ([]models.StudentSummary, error)
	DeleteStudent(ctx context.Context, username string, teacherID string) error
	GetRecord(ctx context.Context, username string, actorID string) (*models.StudentRecord, error)
	GetStats(ctx context.Context, username string, actorID string) (*models.LearningStats, error)
	ExportRecordsXLSX(ctx context.Context, actorID string) ([]byte, error)
}

type ProblemService interface {
	Create(ctx context.Context, req *CreateProblemRequest, creatorID string) (*models.Problem, error)
	GetByID(ctx context.Context, id string) (*models.Problem, error)
	List(ctx context.Context, filter models.ProblemFilter) ([]*models.Problem, error)
	Update(ctx context.Context, id string, req *UpdateProblemRequest, userID string) (*models.Problem, error)
	Delete(ctx context.Context, id string, userID string) error

	ImportText(ctx context.Context, req *TextImportRequest, creatorID string) ([]*models.Problem, error)
	ImportCSV(ctx context.Context, r io.Reader, creatorID string) (*ImportResult, error)
	CSVTemplate() ([]byte, error)
	ExportXLSX(ctx context.Context, filter models.ProblemFilter) ([]byte, error)
}

type GenerationService interface {
	Generate(ctx context.Context, req *GenerateProblemsRequest, creatorID string) (*DraftResponse, error)
	GetDraft(ctx context.Context, id string, userID string) (*DraftResponse, error)
	SaveDraft(ctx context.Context, id string, req *SaveDraftRequest, userID string) ([]*models.Problem, error)
}

type QuizService interface {
	Start(ctx context.Context, req *StartQuizRequest, username string) (*QuizView, error)
	Current(ctx context.Context, username string) (*QuizView, error)
	Get(ctx context.Context, sessionID string, username string) (*QuizView, error)
	Answer(ctx context.Context, sessionID string, index int, answer string, username string) (*quiz.Status, error)
	Navigate(ctx context.Context, sessionID string, index int, username string) (*quiz.Status, error)
	Submit(ctx context.Context, sessionID string, username string) (*SubmitResponse, error)
	Results(ctx context.Context, sessionID string, username string) (*models.QuizResults, error)
	Feedback(ctx context.Context, sessionID string, index int, username string) (*FeedbackResponse, error)
	SaveRecord(ctx context.Context, sessionID string, username string) (*models.SessionSummary, error)
	Reset(ctx context.Context, sessionID string, username string) error
	ResetForUser(ctx context.Context, username string) error
}

type DashboardService interface {
	LearningStats(ctx context.Context, username string) (*models.LearningStats, error)
	SystemInfo(ctx context.Context) (*models.SystemInfo, error)
}

type GradingService interface {
	Grade(ctx context.Context, student string, index int, req *GradeRequest, graderID string) (*models.SolvedProblemRecord, error)
}

type BackupService interface {
	// Backup renders the document as "json" or as a "zip" of CSV files.
	Backup(ctx context.Context, format string) (*BackupFile, error)
	// Restore replaces the whole document. Nothing changes unless confirm
	// is set and the backup holds users, problems and records.
	Restore(ctx context.Context, filename string, data []byte, confirm bool, actorID string) (*RestoreSummary, error)
}

type SettingsService interface {
	APIKeys(ctx context.Context) *APIKeysView
	UpdateAPIKeys(ctx context.Context, req *APIKeysRequest, actorID string) (*APIKeysView, error)
	ResetAPIKeys(ctx context.Context, actorID string) (*APIKeysView, error)
	TestConnection(ctx context.Context, provider string) (*llm.ConnectionResult, error)
}

// ===== SERVICE MANAGER =====

type ServiceManager interface {
	Auth() AuthService
	User() UserService
	Student() StudentService
	Problem() ProblemService
	Generation() GenerationService
	Quiz() QuizService
	Dashboard() DashboardService
	Grading() GradingService
	Backup() BackupService
	Settings() SettingsService

	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
