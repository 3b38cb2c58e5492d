// Package parser turns loosely formatted problem text, as produced by an LLM
// or pasted by a teacher, into structured problems.
package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/SAP-F-2025/english-practice-service/internal/models"
)

const (
	// Leading text before the first marker shorter than this is a preamble.
	preambleMinRunes = 10
	// A first line shorter than this is merged with the next one.
	shortQuestionRunes = 10
	// Short answers longer than this are treated as essays.
	essayAnswerRunes = 30
)

var ErrEmptyInput = errors.New("no problem text to parse")

// ParseError reports the segment that could not be turned into a problem.
// Segment is zero-based; -1 means the failure was not tied to a segment.
type ParseError struct {
	Segment int
	Reason  string
}

func (e *ParseError) Error() string {
	if e.Segment < 0 {
		return fmt.Sprintf("parse failed: %s", e.Reason)
	}
	return fmt.Sprintf("parse failed at problem %d: %s", e.Segment+1, e.Reason)
}

var (
	markerPattern = regexp.MustCompile(`(?m)^[ \t]*(?:\*\*)?(?:\[문제\s*\d*\]|문제\s*\d+\s*[.:)]?|(?i:question)\s+\d+\s*[.:)]?|\d+[.)](?:[ \t]+|$))(?:\*\*)?[ \t]*`)

	labelPattern = regexp.MustCompile(`^\**\s*(?i:(문제|question|유형|type|맥락|context|보기|options|choices|정답|answer|답|해설|explanation|설명))\s*\**\s*[:：]\s*\**\s*(.*)$`)

	optionLinePattern = regexp.MustCompile(`^\(?[A-Z][.)]\s+`)

	answerKeywords      = []string{"정답", "answer", "답"}
	explanationKeywords = []string{"해설", "explanation", "설명"}

	delimiterPattern = regexp.MustCompile(`(?i)(?:\bis\b|는|은)\s*(.+)$`)
)

type section int

const (
	sectionNone section = iota
	sectionQuestion
	sectionType
	sectionContext
	sectionOptions
	sectionAnswer
	sectionExplanation
)

func sectionFor(label string) section {
	switch strings.ToLower(label) {
	case "문제", "question":
		return sectionQuestion
	case "유형", "type":
		return sectionType
	case "맥락", "context":
		return sectionContext
	case "보기", "options", "choices":
		return sectionOptions
	case "정답", "answer", "답":
		return sectionAnswer
	case "해설", "explanation", "설명":
		return sectionExplanation
	}
	return sectionNone
}

// Parse splits text on problem markers and extracts one problem per segment.
// It is all-or-nothing: any failing segment fails the whole call and no
// problems are returned. Only content fields and the question type are set;
// callers fill in metadata such as school type and author.
func Parse(text string) (problems []models.Problem, err error) {
	defer func() {
		if r := recover(); r != nil {
			problems = nil
			err = &ParseError{Segment: -1, Reason: fmt.Sprintf("unexpected input: %v", r)}
		}
	}()

	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	segments := splitSegments(text)
	if len(segments) == 0 {
		return nil, ErrEmptyInput
	}

	problems = make([]models.Problem, 0, len(segments))
	for i, segment := range segments {
		problem, err := parseSegment(segment)
		if err != nil {
			return nil, &ParseError{Segment: i, Reason: err.Error()}
		}
		problems = append(problems, problem)
	}
	return problems, nil
}

// splitSegments cuts text at each marker. The text before the first marker is
// kept only when it is long enough to be a problem of its own.
func splitSegments(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	locs := markerPattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []string{text}
	}

	var segments []string
	if lead := strings.TrimSpace(text[:locs[0][0]]); utf8.RuneCountInString(lead) >= preambleMinRunes {
		segments = append(segments, lead)
	}
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		segments = append(segments, text[loc[1]:end])
	}
	return segments
}

type fields struct {
	question    []string
	typeHint    string
	context     []string
	options     []string
	answer      []string
	explanation []string
	loose       []string
}

func collectFields(segment string) fields {
	var f fields
	current := sectionNone

	for _, raw := range strings.Split(segment, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if m := labelPattern.FindStringSubmatch(line); m != nil {
			current = sectionFor(m[1])
			value := strings.TrimSpace(strings.Trim(m[2], "*"))
			switch current {
			case sectionType:
				f.typeHint = value
				// The hint is one line; what follows belongs elsewhere.
				current = sectionNone
				continue
			case sectionOptions:
				// "(객관식인 경우)" style placeholders are not options.
				if value != "" && !optionLinePattern.MatchString(value) {
					value = ""
				}
			}
			if value != "" {
				f.appendTo(current, value)
				// An answer is the labeled line only; trailing remarks stay loose.
				if current == sectionAnswer {
					current = sectionNone
				}
			}
			continue
		}

		isOption := optionLinePattern.MatchString(line)
		switch {
		case isOption && current != sectionAnswer && current != sectionExplanation:
			current = sectionOptions
		case !isOption && current == sectionOptions:
			// Free text after the options is usually an unlabeled answer line.
			if containsKeyword(line, answerKeywords) || containsKeyword(line, explanationKeywords) {
				current = sectionNone
			}
		}
		f.appendTo(current, line)
		if current == sectionAnswer {
			current = sectionNone
		}
	}
	return f
}

func (f *fields) appendTo(s section, line string) {
	switch s {
	case sectionQuestion:
		f.question = append(f.question, line)
	case sectionContext:
		f.context = append(f.context, line)
	case sectionOptions:
		f.options = append(f.options, line)
	case sectionAnswer:
		f.answer = append(f.answer, line)
	case sectionExplanation:
		f.explanation = append(f.explanation, line)
	default:
		f.loose = append(f.loose, line)
	}
}

func parseSegment(segment string) (models.Problem, error) {
	f := collectFields(segment)

	rest := f.loose
	question := strings.Join(f.question, " ")
	if question == "" && len(rest) > 0 {
		question, rest = rest[0], rest[1:]
		if utf8.RuneCountInString(question) < shortQuestionRunes && len(rest) > 0 {
			question, rest = question+" "+rest[0], rest[1:]
		}
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return models.Problem{}, errors.New("no question text found")
	}

	answer := strings.Join(f.answer, "\n")
	if answer == "" {
		answer = scanKeyword(rest, answerKeywords)
	}
	explanation := strings.Join(f.explanation, "\n")
	if explanation == "" {
		explanation = scanKeyword(rest, explanationKeywords)
	}

	problem := models.Problem{
		Question:    question,
		Context:     strings.Join(f.context, " "),
		Answer:      strings.TrimSpace(answer),
		Explanation: strings.TrimSpace(explanation),
	}

	optionBlock := strings.Join(f.options, "\n")
	hint, _ := models.ParseQuestionType(firstWord(f.typeHint))
	switch {
	case len(models.ParseOptions(optionBlock)) >= 2:
		problem.QuestionType = models.MultipleChoice
		problem.Options = optionBlock
	case hint == models.Essay:
		problem.QuestionType = models.Essay
	default:
		problem.QuestionType = models.ShortAnswer
	}
	if problem.QuestionType == models.ShortAnswer && utf8.RuneCountInString(problem.Answer) > essayAnswerRunes {
		problem.QuestionType = models.Essay
	}
	return problem, nil
}

// scanKeyword looks for a line mentioning one of the keywords and returns the
// text after its colon, or after a delimiter word such as "is" or "은".
func scanKeyword(lines []string, keywords []string) string {
	for _, line := range lines {
		if !containsKeyword(line, keywords) {
			continue
		}

		if i := strings.IndexAny(line, ":："); i >= 0 {
			_, size := utf8.DecodeRuneInString(line[i:])
			if v := strings.TrimSpace(line[i+size:]); v != "" {
				return v
			}
		}
		if m := delimiterPattern.FindStringSubmatch(line); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

func containsKeyword(line string, keywords []string) bool {
	lower := strings.ToLower(line)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// firstWord reduces hints like "[객관식/주관식/서술형]" or "서술형 (essay)" to
// a single label.
func firstWord(s string) string {
	s = strings.Trim(strings.TrimSpace(s), "[]()")
	if i := strings.IndexAny(s, " /,("); i >= 0 {
		s = s[:i]
	}
	return s
}
