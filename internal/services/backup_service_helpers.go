package services

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/SAP-F-2025/english-practice-service/internal/models"
)

var userColumns = []string{"username", "name", "email", "role", "password", "created_by", "created_at", "provider"}

func zipBackup(doc *models.Document) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	users := [][]string{userColumns}
	for _, name := range sortedKeys(doc.Users) {
		u := doc.Users[name]
		users = append(users, []string{
			u.Username, u.Name, u.Email, string(u.Role), u.PasswordHash,
			u.CreatedBy, formatTime(u.CreatedAt), u.Provider,
		})
	}

	problems := [][]string{problemColumns}
	for _, id := range sortedKeys(doc.TeacherProblems) {
		p := doc.TeacherProblems[id]
		problems = append(problems, []string{
			p.ID, p.SchoolType, p.Grade, p.Topic, p.Difficulty, string(p.QuestionType),
			p.Question, p.Context, p.Options, p.Answer, p.Explanation,
			p.CreatedBy, formatTime(p.CreatedAt),
		})
	}

	records := [][]string{recordColumns}
	for _, name := range sortedKeys(doc.StudentRecords) {
		rec := doc.StudentRecords[name]
		if len(rec.SolvedProblems) == 0 {
			// Keeps students without history in the restored records.
			records = append(records, []string{name, "", "", "", "", "", "", "", "", "", "", "", ""})
			continue
		}
		for i := range rec.SolvedProblems {
			records = append(records, recordFields(name, &rec.SolvedProblems[i]))
		}
	}

	for _, f := range []struct {
		name string
		rows [][]string
	}{
		{usersCSV, users},
		{problemsCSV, problems},
		{recordsCSV, records},
	} {
		w, err := zw.Create(f.name)
		if err != nil {
			return nil, fmt.Errorf("failed to add %s: %w", f.name, err)
		}
		cw := csv.NewWriter(w)
		if err := cw.WriteAll(f.rows); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", f.name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish zip: %w", err)
	}
	return buf.Bytes(), nil
}

func readZipCSV(f *zip.File, fn func(row map[string]string) error) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidBackup, f.Name, err)
	}
	defer rc.Close()

	reader := csv.NewReader(rc)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %s: %v", ErrInvalidBackup, f.Name, err)
	}
	idx := make(csvIndex, len(header))
	for i, h := range header {
		idx[h] = i
	}

	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %s line %d: %v", ErrInvalidBackup, f.Name, line, err)
		}
		if err := fn(idx.row(record)); err != nil {
			return fmt.Errorf("%w: %s line %d: %v", ErrInvalidBackup, f.Name, line, err)
		}
	}
}

func addUserRow(doc *models.Document, row map[string]string) error {
	if row["username"] == "" {
		return errors.New("username is empty")
	}
	doc.Users[row["username"]] = &models.User{
		Username:     row["username"],
		PasswordHash: row["password"],
		Role:         models.UserRole(row["role"]),
		Name:         row["name"],
		Email:        row["email"],
		CreatedBy:    row["created_by"],
		CreatedAt:    parseTime(row["created_at"]),
		Provider:     row["provider"],
	}
	return nil
}

func addProblemRow(doc *models.Document, row map[string]string) error {
	if row["id"] == "" {
		return errors.New("id is empty")
	}
	qt, ok := models.ParseQuestionType(row["question_type"])
	if !ok {
		return fmt.Errorf("unknown question type %q", row["question_type"])
	}
	doc.TeacherProblems[row["id"]] = &models.Problem{
		ID:           row["id"],
		SchoolType:   row["school_type"],
		Grade:        row["grade"],
		Topic:        row["topic"],
		Difficulty:   row["difficulty"],
		QuestionType: qt,
		Question:     row["question"],
		Context:      row["context"],
		Options:      row["options"],
		Answer:       row["answer"],
		Explanation:  row["explanation"],
		CreatedBy:    row["created_by"],
		CreatedAt:    parseTime(row["created_at"]),
	}
	return nil
}

// addRecordRow rebuilds a solved problem. The problem snapshot comes from
// problems.csv when the problem still exists there.
func addRecordRow(doc *models.Document, row map[string]string) error {
	username := row["student_id"]
	if username == "" {
		return errors.New("student_id is empty")
	}
	rec, ok := doc.StudentRecords[username]
	if !ok {
		rec = models.NewStudentRecord()
		doc.StudentRecords[username] = rec
	}
	if row["timestamp"] == "" && row["problem_id"] == "" {
		return nil
	}

	problem := models.Problem{ID: row["problem_id"], Question: row["question"], Answer: row["correct_answer"]}
	if p, ok := doc.TeacherProblems[row["problem_id"]]; ok {
		problem = *p
	}
	if qt, ok := models.ParseQuestionType(row["question_type"]); ok {
		problem.QuestionType = qt
	}

	solved := models.SolvedProblemRecord{
		Problem:         problem,
		Answer:          row["answer"],
		Feedback:        row["feedback"],
		Timestamp:       parseTime(row["timestamp"]),
		TeacherFeedback: row["teacher_feedback"],
		GradedBy:        row["graded_by"],
	}
	if v, err := strconv.ParseBool(row["is_correct"]); err == nil {
		solved.IsCorrect = &v
	}
	if v, err := strconv.Atoi(row["score"]); err == nil {
		solved.TeacherScore = &v
	}
	if row["graded_at"] != "" {
		t := parseTime(row["graded_at"])
		solved.GradedAt = &t
	}

	rec.SolvedProblems = append(rec.SolvedProblems, solved)
	rec.TotalProblems = len(rec.SolvedProblems)
	return nil
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// parseTime accepts what models.ParseTime does; anything else becomes the
// zero time.
func parseTime(s string) time.Time {
	t, err := models.ParseTime(s)
	if err != nil {
		return time.Time{}
	}
	return t
}
