package services

import (
	"errors"
	"fmt"

	"github.com/SAP-F-2025/english-practice-service/internal/validator"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUserAlreadyExists    = errors.New("user already exists")
	ErrInvalidCredentials   = errors.New("invalid username or password")
	ErrInvalidToken         = errors.New("invalid or expired token")
	ErrProblemNotFound      = errors.New("problem not found")
	ErrRecordNotFound       = errors.New("student record not found")
	ErrSessionNotFound      = errors.New("quiz session not found")
	ErrDraftNotFound        = errors.New("generated draft not found or expired")
	ErrNoProblemsAvailable  = errors.New("no problems match the selection")
	ErrConfirmationRequired = errors.New("restore must be confirmed")
	ErrInvalidBackup        = errors.New("invalid backup file")
	ErrInvalidCSV           = errors.New("invalid CSV file")
	ErrEnvFileNotConfigured = errors.New("no env file configured for API keys")
)

type ValidationErrors = validator.ValidationErrors

// BusinessRuleError is returned when a request is well formed but violates
// a rule of the domain.
type BusinessRuleError struct {
	Rule    string                 `json:"rule"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule violation (%s): %s", e.Rule, e.Message)
}

func NewBusinessRuleError(rule, message string, details map[string]interface{}) *BusinessRuleError {
	return &BusinessRuleError{Rule: rule, Message: message, Details: details}
}

type PermissionError struct {
	UserID     string `json:"user_id"`
	ResourceID string `json:"resource_id,omitempty"`
	Resource   string `json:"resource"`
	Action     string `json:"action"`
	Reason     string `json:"reason"`
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s cannot %s %s %s: %s", e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func NewPermissionError(userID, resourceID, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

func IsPermissionError(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}
