package validator

import (
	"strings"

	"github.com/SAP-F-2025/english-practice-service/internal/models"
)

// BusinessValidator checks rules that span several fields of a record.
type BusinessValidator struct{}

func NewBusinessValidator() *BusinessValidator {
	return &BusinessValidator{}
}

// ValidateProblem checks a problem before it enters the document.
func (bv *BusinessValidator) ValidateProblem(p *models.Problem) ValidationErrors {
	var errs ValidationErrors

	if strings.TrimSpace(p.Question) == "" {
		errs = append(errs, ValidationError{Field: "question", Message: "is required", Rule: "required"})
	}

	switch p.QuestionType {
	case models.MultipleChoice:
		if len(models.ParseOptions(p.Options)) < 2 {
			errs = append(errs, ValidationError{
				Field:   "options",
				Message: "multiple choice problems need at least two labeled options",
				Value:   p.Options,
				Rule:    "mc_options",
			})
		}
	case models.ShortAnswer, models.Essay:
	default:
		errs = append(errs, ValidationError{
			Field:   "question_type",
			Message: "must be a valid question type",
			Value:   p.QuestionType,
			Rule:    "question_type",
		})
	}

	return errs
}

// ValidateRoleAssignment checks which roles an actor may create.
func (bv *BusinessValidator) ValidateRoleAssignment(actor, target models.UserRole) ValidationErrors {
	if actor == models.RoleAdmin {
		return nil
	}
	if actor == models.RoleTeacher && target == models.RoleStudent {
		return nil
	}
	return ValidationErrors{{
		Field:   "role",
		Message: "cannot register users with this role",
		Value:   target,
		Rule:    "role_assignment",
	}}
}
