package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/SAP-F-2025/english-practice-service/internal/models"
)

const (
	MinPasswordLength       = 6
	DefaultTimeLimitMinutes = 20
)

var (
	Difficulties    = []string{"하", "중", "상"}
	QuizCounts      = []int{5, 10, 15, 20}
	TimeLimitChoice = []int{10, 20, 30, 40, 60}
)

// ValidationError describes one rejected field.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
	Rule    string      `json:"rule,omitempty"`
}

type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	if len(ve) == 1 {
		return fmt.Sprintf("validation failed: %s %s", ve[0].Field, ve[0].Message)
	}
	return fmt.Sprintf("validation failed: %d field errors", len(ve))
}

// Validator wraps go-playground/validator with the application's rules.
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	v := &Validator{validate: validate}
	v.registerRules()
	return v
}

// Struct validates s and returns ValidationErrors on failure.
func (v *Validator) Struct(s interface{}) error {
	if err := v.validate.Struct(s); err != nil {
		return ToValidationErrors(err)
	}
	return nil
}

// Var validates a single value against tag.
func (v *Validator) Var(field string, value interface{}, tag string) error {
	if err := v.validate.Var(value, tag); err != nil {
		errs := ToValidationErrors(err)
		for i := range errs {
			errs[i].Field = field
		}
		return errs
	}
	return nil
}

func (v *Validator) registerRules() {
	v.validate.RegisterValidation("user_role", func(fl validator.FieldLevel) bool {
		return models.UserRole(fl.Field().String()).IsValid()
	})

	// Accepts both canonical names and Korean labels.
	v.validate.RegisterValidation("question_type", func(fl validator.FieldLevel) bool {
		_, ok := models.ParseQuestionType(fl.Field().String())
		return ok
	})

	v.validate.RegisterValidation("password_min", func(fl validator.FieldLevel) bool {
		return utf8.RuneCountInString(fl.Field().String()) >= MinPasswordLength
	})

	v.validate.RegisterValidation("difficulty", func(fl validator.FieldLevel) bool {
		level := fl.Field().String()
		for _, d := range Difficulties {
			if d == level {
				return true
			}
		}
		return false
	})

	v.validate.RegisterValidation("quiz_count", func(fl validator.FieldLevel) bool {
		n := int(fl.Field().Int())
		for _, c := range QuizCounts {
			if c == n {
				return true
			}
		}
		return false
	})

	v.validate.RegisterValidation("not_blank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
}

// ToValidationErrors converts validator errors into ValidationErrors. Other
// errors become a single entry without a field.
func ToValidationErrors(err error) ValidationErrors {
	if err == nil {
		return nil
	}

	var existing ValidationErrors
	if errors.As(err, &existing) {
		return existing
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return ValidationErrors{{Message: err.Error()}}
	}

	out := make(ValidationErrors, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Message: errorMessage(fe),
			Value:   fe.Value(),
			Rule:    fe.Tag(),
		})
	}
	return out
}

func errorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "not_blank":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "email":
		return "must be a valid email address"
	case "eqfield":
		return fmt.Sprintf("must match %s", fe.Param())
	case "user_role":
		return "must be a valid user role"
	case "question_type":
		return "must be a valid question type"
	case "password_min":
		return fmt.Sprintf("must be at least %d characters", MinPasswordLength)
	case "difficulty":
		return "must be one of 하, 중, 상"
	case "quiz_count":
		return "must be 5, 10, 15 or 20"
	default:
		return fmt.Sprintf("validation failed for rule '%s'", fe.Tag())
	}
}
