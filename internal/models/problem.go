package models

import (
	"regexp"
	"strings"
	"time"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	ShortAnswer    QuestionType = "short_answer"
	Essay          QuestionType = "essay"
)

// Korean labels used by teachers in CSV files and generated text.
const (
	LabelMultipleChoice = "객관식"
	LabelShortAnswer    = "주관식"
	LabelEssay          = "서술형"
)

// ParseQuestionType accepts both the canonical names and the Korean labels.
func ParseQuestionType(s string) (QuestionType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(MultipleChoice), "multiple-choice", "multiple choice", "mc", LabelMultipleChoice:
		return MultipleChoice, true
	case string(ShortAnswer), "short-answer", "short answer", LabelShortAnswer:
		return ShortAnswer, true
	case string(Essay), LabelEssay:
		return Essay, true
	}
	return "", false
}

// Label returns the Korean label shown to teachers and written to CSV.
func (t QuestionType) Label() string {
	switch t {
	case MultipleChoice:
		return LabelMultipleChoice
	case ShortAnswer:
		return LabelShortAnswer
	case Essay:
		return LabelEssay
	}
	return string(t)
}

// IsOpenEnded reports whether answers of this type need AI feedback to be judged.
func (t QuestionType) IsOpenEnded() bool {
	return t == ShortAnswer || t == Essay
}

type Problem struct {
	ID           string       `json:"id"`
	SchoolType   string       `json:"school_type"`
	Grade        string       `json:"grade"`
	Topic        string       `json:"topic"`
	Difficulty   string       `json:"difficulty"`
	QuestionType QuestionType `json:"question_type"`
	Question     string       `json:"question"`
	Context      string       `json:"context,omitempty"`

	// Raw option block, e.g. "A. Tom\nB. Jane" or "A. Tom B. Jane".
	Options     string `json:"options,omitempty"`
	Answer      string `json:"answer"`
	Explanation string `json:"explanation,omitempty"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type Option struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

var optionMarkerPattern = regexp.MustCompile(`(?:^|\s)\(?([A-Z])[.)]\s+`)

// ParseOptions splits a raw option block into labeled options. Lines that do
// not start with a marker are treated as continuations of the previous option.
func ParseOptions(raw string) []Option {
	var options []Option
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		matches := optionMarkerPattern.FindAllStringSubmatchIndex(line+" ", -1)
		if len(matches) == 0 || strings.TrimSpace(line[:matches[0][0]]) != "" {
			if n := len(options); n > 0 {
				options[n-1].Text = strings.TrimSpace(options[n-1].Text + " " + line)
			}
			continue
		}

		for i, m := range matches {
			end := len(line)
			if i+1 < len(matches) {
				end = matches[i+1][0]
			}
			start := m[1]
			if start > end {
				start = end
			}
			options = append(options, Option{
				Label: line[m[2]:m[3]],
				Text:  strings.TrimSpace(line[start:end]),
			})
		}
	}
	return options
}

// ParsedOptions returns the structured options of a multiple choice problem.
func (p *Problem) ParsedOptions() []Option {
	if p.QuestionType != MultipleChoice {
		return nil
	}
	return ParseOptions(p.Options)
}

// IsCorrectChoice compares a multiple choice answer with the stored one,
// ignoring case and surrounding whitespace.
func (p *Problem) IsCorrectChoice(answer string) bool {
	return strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(p.Answer))
}

// Category is the bucket used by dashboards.
func (p *Problem) Category() string {
	if t := strings.TrimSpace(p.Topic); t != "" {
		return t
	}
	return "기타"
}

// ProblemFilter selects problems by exact field match; empty fields match all.
type ProblemFilter struct {
	SchoolType   string       `form:"school_type" json:"school_type"`
	Grade        string       `form:"grade" json:"grade"`
	Topic        string       `form:"topic" json:"topic"`
	Difficulty   string       `form:"difficulty" json:"difficulty"`
	QuestionType QuestionType `form:"question_type" json:"question_type"`
	CreatedBy    string       `form:"created_by" json:"created_by"`
	Search       string       `form:"q" json:"q"`
}

func (f ProblemFilter) Matches(p *Problem) bool {
	if f.SchoolType != "" && p.SchoolType != f.SchoolType {
		return false
	}
	if f.Grade != "" && p.Grade != f.Grade {
		return false
	}
	if f.Topic != "" && p.Topic != f.Topic {
		return false
	}
	if f.Difficulty != "" && p.Difficulty != f.Difficulty {
		return false
	}
	if f.QuestionType != "" && p.QuestionType != f.QuestionType {
		return false
	}
	if f.CreatedBy != "" && p.CreatedBy != f.CreatedBy {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(p.Question), strings.ToLower(f.Search)) {
		return false
	}
	return true
}
