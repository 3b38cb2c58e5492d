package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/SAP-F-2025/english-practice-service/internal/events"
	"github.com/SAP-F-2025/english-practice-service/internal/models"
	"github.com/SAP-F-2025/english-practice-service/internal/validator"
)

func TestProblemService_Create(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "admin", "kim", models.RoleTeacher)
	env.register(t, "kim", "minji", models.RoleStudent)

	tests := []struct {
		name    string
		actor   string
		mutate  func(*CreateProblemRequest)
		wantErr bool
	}{
		{name: "teacher creates multiple choice", actor: "kim"},
		{name: "korean type label", actor: "kim", mutate: func(r *CreateProblemRequest) { r.QuestionType = "객관식" }},
		{name: "short answer without options", actor: "kim", mutate: func(r *CreateProblemRequest) {
			r.QuestionType = "short_answer"
			r.Options = ""
			r.Answer = "went"
		}},
		{name: "student cannot create", actor: "minji", wantErr: true},
		{name: "unknown difficulty", actor: "kim", mutate: func(r *CreateProblemRequest) { r.Difficulty = "최상" }, wantErr: true},
		{name: "multiple choice without options", actor: "kim", mutate: func(r *CreateProblemRequest) { r.Options = "" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := multipleChoiceRequest("Who is your friend?")
			if tt.mutate != nil {
				tt.mutate(&req)
			}
			p, err := env.manager.Problem().Create(ctx, &req, tt.actor)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Create() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if p.ID == "" || p.CreatedBy != tt.actor {
				t.Errorf("problem = %+v", p)
			}
			if strings.Contains(p.ID, "/") {
				t.Errorf("id %q contains a slash", p.ID)
			}
		})
	}
}

func TestProblemService_IDsAreUnique(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "admin", "kim", models.RoleTeacher)

	seen := make(map[string]bool)
	for i := 0; i < 3; i++ {
		p := env.createProblem(t, "kim", multipleChoiceRequest("Same metadata"))
		if seen[p.ID] {
			t.Fatalf("duplicate id %q", p.ID)
		}
		seen[p.ID] = true
	}
}

func TestProblemService_UpdateAndDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "admin", "kim", models.RoleTeacher)
	env.register(t, "admin", "lee", models.RoleTeacher)
	p := env.createProblem(t, "kim", multipleChoiceRequest("Who is your friend?"))

	question := "Who is your best friend?"
	if _, err := env.manager.Problem().Update(ctx, p.ID, &UpdateProblemRequest{Question: &question}, "lee"); !IsPermissionError(err) {
		t.Errorf("other teacher Update() err = %v, want permission error", err)
	}

	essay := "essay"
	updated, err := env.manager.Problem().Update(ctx, p.ID, &UpdateProblemRequest{Question: &question, QuestionType: &essay}, "kim")
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Question != question || updated.QuestionType != models.Essay {
		t.Errorf("updated = %+v", updated)
	}
	if updated.Options != "" {
		t.Errorf("options kept after switching to essay: %q", updated.Options)
	}

	if err := env.manager.Problem().Delete(ctx, p.ID, "lee"); !IsPermissionError(err) {
		t.Errorf("other teacher Delete() err = %v, want permission error", err)
	}
	if err := env.manager.Problem().Delete(ctx, p.ID, "admin"); err != nil {
		t.Fatalf("admin Delete() error = %v", err)
	}
	if _, err := env.manager.Problem().GetByID(ctx, p.ID); !errors.Is(err, ErrProblemNotFound) {
		t.Errorf("GetByID() after delete err = %v", err)
	}
	if got := len(env.publisher.EventsOfType(events.ProblemDeleted)); got != 1 {
		t.Errorf("ProblemDeleted events = %d, want 1", got)
	}
}

func TestProblemService_List(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "admin", "kim", models.RoleTeacher)
	env.createProblem(t, "kim", multipleChoiceRequest("First"))
	short := multipleChoiceRequest("Second")
	short.QuestionType, short.Options, short.Difficulty = "short_answer", "", "상"
	env.createProblem(t, "kim", short)

	tests := []struct {
		name   string
		filter models.ProblemFilter
		want   int
	}{
		{name: "all", want: 2},
		{name: "by difficulty", filter: models.ProblemFilter{Difficulty: "상"}, want: 1},
		{name: "by korean type label", filter: models.ProblemFilter{QuestionType: "객관식"}, want: 1},
		{name: "by creator", filter: models.ProblemFilter{CreatedBy: "lee"}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.manager.Problem().List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("len(List()) = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestProblemService_ImportText(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "admin", "kim", models.RoleTeacher)

	text := `[문제 1]
유형: 객관식
문제: Which sentence is correct?
보기:
A. She go to school.
B. She goes to school.
정답: B

[문제 2]
유형: 주관식
문제: Write the past tense of "eat".
정답: ate
`
	created, err := env.manager.Problem().ImportText(ctx, &TextImportRequest{
		ProblemMeta: validator.ProblemMeta{SchoolType: "중학교", Grade: "2학년", Topic: "문법", Difficulty: "중"},
		Content:     text,
	}, "kim")
	if err != nil {
		t.Fatalf("ImportText() error = %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("created = %d, want 2", len(created))
	}
	for _, p := range created {
		if p.Topic != "문법" || p.CreatedBy != "kim" {
			t.Errorf("meta not applied: %+v", p)
		}
	}
	if got := len(env.publisher.EventsOfType(events.ProblemCreated)); got != 2 {
		t.Errorf("ProblemCreated events = %d, want 2", got)
	}
}

func TestProblemService_ImportCSV(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "admin", "kim", models.RoleTeacher)

	input := utf8BOM + `school_type,grade,topic,difficulty,question_type,question,context,options,answer,explanation
중학교,1학년,일상,하,객관식,Who is he?,,A. Tom B. Jane,A,
,,,,,,,,,
중학교,1학년,일상,하,주관식,What time is it?,,,It is noon.,
중학교,1학년,일상,최상,주관식,Bad difficulty,,,x,
중학교,1학년,일상,하,객관식,No options,,,A,
`
	result, err := env.manager.Problem().ImportCSV(ctx, strings.NewReader(input), "kim")
	if err != nil {
		t.Fatalf("ImportCSV() error = %v", err)
	}
	if len(result.Created) != 2 {
		t.Fatalf("created = %d, want 2 (errors: %+v)", len(result.Created), result.Errors)
	}
	if len(result.Errors) != 2 {
		t.Fatalf("errors = %+v, want 2", result.Errors)
	}
	if result.Errors[0].Row != 5 || result.Errors[1].Row != 6 {
		t.Errorf("error rows = %d, %d, want 5, 6", result.Errors[0].Row, result.Errors[1].Row)
	}

	mc := result.Created[0]
	if mc.QuestionType != models.MultipleChoice {
		t.Fatalf("first row type = %s", mc.QuestionType)
	}
	opts := mc.ParsedOptions()
	if len(opts) != 2 || opts[0].Label != "A" || opts[1].Label != "B" {
		t.Errorf("options = %+v, want A and B", opts)
	}
	if result.Created[1].QuestionType != models.ShortAnswer {
		t.Errorf("second row type = %s", result.Created[1].QuestionType)
	}
}

func TestProblemService_ImportCSVMissingColumns(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "admin", "kim", models.RoleTeacher)

	_, err := env.manager.Problem().ImportCSV(context.Background(), strings.NewReader("question,answer\nq,a\n"), "kim")
	if !errors.Is(err, ErrInvalidCSV) {
		t.Errorf("ImportCSV() err = %v, want ErrInvalidCSV", err)
	}
}

func TestProblemService_CSVTemplate(t *testing.T) {
	env := newTestEnv(t)

	data, err := env.manager.Problem().CSVTemplate()
	if err != nil {
		t.Fatalf("CSVTemplate() error = %v", err)
	}
	if !bytes.HasPrefix(data, []byte(utf8BOM)) {
		t.Error("template does not start with a BOM")
	}

	records, err := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte(utf8BOM)))).ReadAll()
	if err != nil {
		t.Fatalf("template is not valid CSV: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("rows = %d, want header plus 3 samples", len(records))
	}
	if strings.Join(records[0], ",") != strings.Join(templateColumns, ",") {
		t.Errorf("header = %v", records[0])
	}

	// The template itself must import cleanly.
	env.register(t, "admin", "kim", models.RoleTeacher)
	result, err := env.manager.Problem().ImportCSV(context.Background(), bytes.NewReader(data), "kim")
	if err != nil {
		t.Fatalf("ImportCSV(template) error = %v", err)
	}
	if len(result.Created) != 3 || len(result.Errors) != 0 {
		t.Errorf("template import created %d, errors %+v", len(result.Created), result.Errors)
	}
}

func TestProblemService_ExportXLSX(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "admin", "kim", models.RoleTeacher)
	p := env.createProblem(t, "kim", multipleChoiceRequest("Exported?"))

	data, err := env.manager.Problem().ExportXLSX(context.Background(), models.ProblemFilter{})
	if err != nil {
		t.Fatalf("ExportXLSX() error = %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("problems")
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0][0] != "id" || rows[1][0] != p.ID {
		t.Errorf("first column = %q / %q", rows[0][0], rows[1][0])
	}
}

func TestProblemService_ImportCSVQuotedRow(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "admin", "kim", models.RoleTeacher)

	input := "school_type,grade,topic,difficulty,question_type,question,context,options,answer,explanation\n" +
		`중학교,1학년,일상생활,하,객관식,"What is your name?","","A. Tom B. Jane","A",""` + "\n"
	result, err := env.manager.Problem().ImportCSV(context.Background(), strings.NewReader(input), "kim")
	if err != nil {
		t.Fatalf("ImportCSV() error = %v", err)
	}
	if len(result.Created) != 1 || len(result.Errors) != 0 {
		t.Fatalf("created = %d, errors = %+v", len(result.Created), result.Errors)
	}

	p := result.Created[0]
	if p.QuestionType != models.MultipleChoice || p.Question != "What is your name?" {
		t.Errorf("problem = %+v", p)
	}
	opts := p.ParsedOptions()
	if len(opts) != 2 || opts[0].Label != "A" || opts[0].Text != "Tom" || opts[1].Label != "B" || opts[1].Text != "Jane" {
		t.Errorf("options = %+v, want exactly A. Tom and B. Jane", opts)
	}
}
