package validator

import (
	"github.com/SAP-F-2025/english-practice-service/internal/models"
)

type LoginRequest struct {
	Username string `json:"username" validate:"required,not_blank"`
	Password string `json:"password" validate:"required"`
}

// RegisterUserRequest is used by admins (any role) and teachers (students only).
type RegisterUserRequest struct {
	Username string          `json:"username" validate:"required,not_blank,max=50"`
	Password string          `json:"password" validate:"required,password_min"`
	Role     models.UserRole `json:"role" validate:"omitempty,user_role"`
	Name     string          `json:"name" validate:"required,not_blank,max=100"`
	Email    string          `json:"email" validate:"omitempty,email"`
}

type UpdateUserRequest struct {
	Name  *string `json:"name" validate:"omitempty,not_blank,max=100"`
	Email *string `json:"email" validate:"omitempty,email"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,password_min"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=NewPassword"`
}

type ResetPasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required,password_min"`
}

type ProblemCreateRequest struct {
	SchoolType   string `json:"school_type" validate:"required,not_blank"`
	Grade        string `json:"grade" validate:"required,not_blank"`
	Topic        string `json:"topic" validate:"required,not_blank"`
	Difficulty   string `json:"difficulty" validate:"required,difficulty"`
	QuestionType string `json:"question_type" validate:"required,question_type"`
	Question     string `json:"question" validate:"required,not_blank"`
	Context      string `json:"context"`
	Options      string `json:"options"`
	Answer       string `json:"answer" validate:"required,not_blank"`
	Explanation  string `json:"explanation"`
}

type ProblemUpdateRequest struct {
	SchoolType   *string `json:"school_type" validate:"omitempty,not_blank"`
	Grade        *string `json:"grade" validate:"omitempty,not_blank"`
	Topic        *string `json:"topic" validate:"omitempty,not_blank"`
	Difficulty   *string `json:"difficulty" validate:"omitempty,difficulty"`
	QuestionType *string `json:"question_type" validate:"omitempty,question_type"`
	Question     *string `json:"question" validate:"omitempty,not_blank"`
	Context      *string `json:"context"`
	Options      *string `json:"options"`
	Answer       *string `json:"answer" validate:"omitempty,not_blank"`
	Explanation  *string `json:"explanation"`
}

// ProblemMeta is shared by text import and AI generation.
type ProblemMeta struct {
	SchoolType string `json:"school_type" validate:"required,not_blank"`
	Grade      string `json:"grade" validate:"required,not_blank"`
	Topic      string `json:"topic" validate:"required,not_blank"`
	Difficulty string `json:"difficulty" validate:"required,difficulty"`
}

type TextImportRequest struct {
	ProblemMeta
	Content string `json:"content" validate:"required,not_blank"`
}

type GenerateProblemsRequest struct {
	ProblemMeta
	Count    int    `json:"count" validate:"required,min=1,max=10"`
	Provider string `json:"provider" validate:"omitempty,oneof=openai gemini perplexity"`
}

type SaveDraftRequest struct {
	// Edited text; the generated text is used when empty.
	Content string `json:"content"`
}

type QuizStartRequest struct {
	// Explicit selection; when set the filters are ignored.
	ProblemIDs []string `json:"problem_ids" validate:"omitempty,max=20,dive,required"`

	SchoolType string `json:"school_type"`
	Grade      string `json:"grade"`
	Topic      string `json:"topic"`
	Difficulty string `json:"difficulty" validate:"omitempty,difficulty"`
	Count      int    `json:"count" validate:"omitempty,quiz_count"`
	Random     bool   `json:"random"`

	// Omitted means DefaultTimeLimitMinutes; 0 ends the quiz on the first
	// status check.
	TimeLimitMinutes *int `json:"time_limit_minutes" validate:"omitempty,min=0,max=180"`
}

type AnswerRequest struct {
	Answer string `json:"answer"`
}

type NavigateRequest struct {
	Index int `json:"index" validate:"min=0"`
}

type GradeRequest struct {
	Feedback string `json:"feedback" validate:"required,not_blank"`
	Score    *int   `json:"score" validate:"omitempty,min=0,max=100"`
}

type APIKeysRequest struct {
	OpenAI     *string `json:"openai_api_key"`
	Gemini     *string `json:"gemini_api_key"`
	Perplexity *string `json:"perplexity_api_key"`

	// Write the keys back to the .env file.
	Persist bool `json:"persist"`
}
