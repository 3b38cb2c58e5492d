package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/SAP-F-2025/english-practice-service/internal/models"
	"github.com/SAP-F-2025/english-practice-service/internal/repositories"
)

const utf8BOM = "\ufeff"

var (
	requiredCSVColumns = []string{"school_type", "grade", "topic", "difficulty", "question_type", "question", "answer"}
	templateColumns    = []string{"school_type", "grade", "topic", "difficulty", "question_type", "question", "context", "options", "answer", "explanation"}

	problemColumns = []string{
		"id", "school_type", "grade", "topic", "difficulty", "question_type",
		"question", "context", "options", "answer", "explanation",
		"created_by", "created_at",
	}

	sampleRows = [][]string{
		{
			"중학교", "1학년", "일상생활/자기소개", "하", "객관식",
			"What is your name?",
			"Basic personal introduction",
			"A. My name is John. B. I am from Korea. C. I am 15 years old. D. I live in Seoul.",
			"A",
			"This is how to introduce your name in English.",
		},
		{
			"중학교", "2학년", "학교생활/교육", "중", "주관식",
			"What subject do you like the most?",
			"Talking about school subjects",
			"",
			"I like (subject) the most because...",
			"When talking about preferences, you can use 'like the most' to express your favorite.",
		},
		{
			"고등학교", "1학년", "환경/사회문제", "상", "서술형",
			"What can we do to protect the environment?",
			"Environmental issues",
			"",
			"There are several ways to protect the environment...",
			"This question requires using vocabulary related to environmental protection and solutions.",
		},
	}
)

// csvIndex maps column names to positions in a CSV header.
type csvIndex map[string]int

func csvColumns(header []string) (csvIndex, error) {
	idx := make(csvIndex, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, utf8BOM)))
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}

	var missing []string
	for _, col := range requiredCSVColumns {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required columns: %s", ErrInvalidCSV, strings.Join(missing, ", "))
	}
	return idx, nil
}

// row returns the trimmed values of a record by column name. Short records
// yield empty strings for the missing cells.
func (c csvIndex) row(record []string) map[string]string {
	out := make(map[string]string, len(c))
	for name, i := range c {
		if i < len(record) {
			out[name] = strings.TrimSpace(record[i])
		}
	}
	return out
}

func blankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// problemBlock lays a CSV row out the way the parser reads typed problems.
func problemBlock(row map[string]string, declared models.QuestionType) string {
	var b strings.Builder
	b.WriteString("[문제]\n")
	fmt.Fprintf(&b, "유형: %s\n", declared.Label())
	fmt.Fprintf(&b, "문제: %s\n", row["question"])
	if row["context"] != "" {
		fmt.Fprintf(&b, "맥락: %s\n", row["context"])
	}
	if declared == models.MultipleChoice && row["options"] != "" {
		fmt.Fprintf(&b, "보기:\n%s\n", row["options"])
	}
	fmt.Fprintf(&b, "정답: %s\n", row["answer"])
	if row["explanation"] != "" {
		fmt.Fprintf(&b, "해설: %s\n", row["explanation"])
	}
	return b.String()
}

func applyProblemUpdate(p *models.Problem, req *UpdateProblemRequest) {
	if v := trimmed(req.SchoolType); v != nil {
		p.SchoolType = *v
	}
	if v := trimmed(req.Grade); v != nil {
		p.Grade = *v
	}
	if v := trimmed(req.Topic); v != nil {
		p.Topic = *v
	}
	if req.Difficulty != nil {
		p.Difficulty = *req.Difficulty
	}
	if req.QuestionType != nil {
		if qt, ok := models.ParseQuestionType(*req.QuestionType); ok {
			p.QuestionType = qt
		}
	}
	if v := trimmed(req.Question); v != nil {
		p.Question = *v
	}
	if v := trimmed(req.Context); v != nil {
		p.Context = *v
	}
	if v := trimmed(req.Options); v != nil {
		p.Options = *v
	}
	if v := trimmed(req.Answer); v != nil {
		p.Answer = *v
	}
	if v := trimmed(req.Explanation); v != nil {
		p.Explanation = *v
	}
	if p.QuestionType != models.MultipleChoice {
		p.Options = ""
	}
}

// Topics such as "일상생활/자기소개" would otherwise split URL paths.
var idSanitizer = strings.NewReplacer("/", "-", " ", "", "?", "", "#", "")

func problemIDBase(p *models.Problem, now time.Time) string {
	parts := []string{p.SchoolType, p.Grade, p.Topic, p.Difficulty, now.Format("20060102150405")}
	return idSanitizer.Replace(strings.Join(parts, "_"))
}

// assignProblemIDs gives each problem an ID built from its metadata and the
// creation second, adding _2, _3, ... when the ID is already taken.
func assignProblemIDs(ctx context.Context, repo repositories.ProblemRepository, problems []*models.Problem, now time.Time) error {
	taken := make(map[string]bool, len(problems))
	for _, p := range problems {
		base := problemIDBase(p, now)
		id := base
		for n := 2; ; n++ {
			exists, err := repo.Exists(ctx, id)
			if err != nil {
				return err
			}
			if !exists && !taken[id] {
				break
			}
			id = base + "_" + strconv.Itoa(n)
		}
		taken[id] = true
		p.ID = id
	}
	return nil
}
