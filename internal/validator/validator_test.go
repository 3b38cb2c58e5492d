package validator

import (
	"errors"
	"testing"

	"github.com/SAP-F-2025/english-practice-service/internal/models"
)

func TestValidator_RegisterUserRequest(t *testing.T) {
	v := New()

	tests := []struct {
		name      string
		req       RegisterUserRequest
		wantField string
	}{
		{
			name: "valid",
			req:  RegisterUserRequest{Username: "kim", Password: "secret1", Role: models.RoleStudent, Name: "Kim"},
		},
		{
			name:      "short password",
			req:       RegisterUserRequest{Username: "kim", Password: "12345", Name: "Kim"},
			wantField: "password",
		},
		{
			name:      "unknown role",
			req:       RegisterUserRequest{Username: "kim", Password: "secret1", Role: "proctor", Name: "Kim"},
			wantField: "role",
		},
		{
			name:      "blank username",
			req:       RegisterUserRequest{Username: "   ", Password: "secret1", Name: "Kim"},
			wantField: "username",
		},
		{
			name:      "bad email",
			req:       RegisterUserRequest{Username: "kim", Password: "secret1", Name: "Kim", Email: "nope"},
			wantField: "email",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(&tt.req)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Struct() unexpected error = %v", err)
				}
				return
			}

			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("Struct() error = %v, want ValidationErrors", err)
			}
			if verrs[0].Field != tt.wantField {
				t.Errorf("field = %s, want %s", verrs[0].Field, tt.wantField)
			}
		})
	}
}

func TestValidator_ChangePasswordMismatch(t *testing.T) {
	v := New()
	err := v.Struct(&ChangePasswordRequest{
		CurrentPassword: "old-pass",
		NewPassword:     "new-pass",
		ConfirmPassword: "new-pazz",
	})

	verrs := ToValidationErrors(err)
	if len(verrs) != 1 || verrs[0].Rule != "eqfield" {
		t.Fatalf("expected a single eqfield error, got %+v", verrs)
	}
}

func TestValidator_ProblemCreateAcceptsKoreanLabels(t *testing.T) {
	v := New()
	req := ProblemCreateRequest{
		SchoolType:   "중학교",
		Grade:        "1학년",
		Topic:        "일상생활",
		Difficulty:   "하",
		QuestionType: "객관식",
		Question:     "What is your name?",
		Options:      "A. Tom B. Jane",
		Answer:       "A",
	}
	if err := v.Struct(&req); err != nil {
		t.Fatalf("Struct() error = %v", err)
	}

	req.Difficulty = "easy"
	if err := v.Struct(&req); err == nil {
		t.Fatal("expected difficulty outside 하/중/상 to fail")
	}
}

func TestValidator_QuizCount(t *testing.T) {
	v := New()
	for _, n := range []int{5, 10, 15, 20} {
		if err := v.Struct(&QuizStartRequest{Count: n}); err != nil {
			t.Errorf("count %d rejected: %v", n, err)
		}
	}
	if err := v.Struct(&QuizStartRequest{Count: 7}); err == nil {
		t.Error("count 7 accepted")
	}
	negative, zero := -1, 0
	if err := v.Struct(&QuizStartRequest{TimeLimitMinutes: &negative}); err == nil {
		t.Error("negative time limit accepted")
	}
	if err := v.Struct(&QuizStartRequest{TimeLimitMinutes: &zero}); err != nil {
		t.Errorf("zero time limit rejected: %v", err)
	}
}

func TestBusinessValidator_ValidateProblem(t *testing.T) {
	bv := NewBusinessValidator()

	tests := []struct {
		name    string
		problem models.Problem
		wantErr bool
	}{
		{
			name:    "multiple choice with options",
			problem: models.Problem{QuestionType: models.MultipleChoice, Question: "Q", Options: "A. x\nB. y"},
		},
		{
			name:    "multiple choice with one option",
			problem: models.Problem{QuestionType: models.MultipleChoice, Question: "Q", Options: "A. x"},
			wantErr: true,
		},
		{
			name:    "essay without options",
			problem: models.Problem{QuestionType: models.Essay, Question: "Describe your school."},
		},
		{
			name:    "missing question",
			problem: models.Problem{QuestionType: models.ShortAnswer},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := bv.ValidateProblem(&tt.problem)
			if (len(errs) > 0) != tt.wantErr {
				t.Errorf("ValidateProblem() = %v, wantErr %v", errs, tt.wantErr)
			}
		})
	}
}

func TestBusinessValidator_ValidateRoleAssignment(t *testing.T) {
	bv := NewBusinessValidator()

	if errs := bv.ValidateRoleAssignment(models.RoleTeacher, models.RoleStudent); errs != nil {
		t.Errorf("teacher registering student: %v", errs)
	}
	if errs := bv.ValidateRoleAssignment(models.RoleTeacher, models.RoleAdmin); errs == nil {
		t.Error("teacher registering admin was allowed")
	}
	if errs := bv.ValidateRoleAssignment(models.RoleAdmin, models.RoleTeacher); errs != nil {
		t.Errorf("admin registering teacher: %v", errs)
	}
}
