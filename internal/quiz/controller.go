// Package quiz holds the state machine of a student's quiz session. The
// functions here are pure: they mutate the session they are given and take
// the current time from an injected clock.
package quiz

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SAP-F-2025/english-practice-service/internal/models"
)

var (
	ErrSessionTimedOut = errors.New("quiz session has timed out")
	ErrInvalidState    = errors.New("operation not allowed in the current session state")
	ErrIndexOutOfRange = errors.New("question index out of range")
	ErrNoProblems      = errors.New("no problems selected")
)

func stateError(op string, state models.SessionState) error {
	return fmt.Errorf("cannot %s while %s: %w", op, state, ErrInvalidState)
}

// Status is the live view of an in-progress session.
type Status struct {
	SessionID        string              `json:"session_id"`
	State            models.SessionState `json:"state"`
	CurrentIndex     int                 `json:"current_index"`
	Page             int                 `json:"page"`
	TotalPages       int                 `json:"total_pages"`
	PageStart        int                 `json:"page_start"`
	PageEnd          int                 `json:"page_end"`
	Total            int                 `json:"total"`
	Answered         int                 `json:"answered"`
	RemainingSeconds int64               `json:"remaining_seconds"`
	TimeLimitMinutes int                 `json:"time_limit_minutes"`
}

// SubmitWarning lists the questions left blank at submission. It never
// blocks the submission.
type SubmitWarning struct {
	Unanswered []int  `json:"unanswered"`
	Message    string `json:"message"`
}

type Controller struct {
	now func() time.Time
}

// NewController uses clock for every deadline computation; nil means
// time.Now.
func NewController(clock func() time.Time) *Controller {
	if clock == nil {
		clock = time.Now
	}
	return &Controller{now: clock}
}

// NewSession returns an empty session owned by username.
func NewSession(owner string) *models.QuizSession {
	return &models.QuizSession{
		ID:    uuid.NewString(),
		Owner: owner,
		State: models.SessionNotStarted,
	}
}

// Start moves not_started to in_progress with the selected problems.
func (c *Controller) Start(s *models.QuizSession, problems []models.Problem, timeLimitMinutes int) error {
	if s.State != models.SessionNotStarted {
		return stateError("start", s.State)
	}
	if len(problems) == 0 {
		return ErrNoProblems
	}
	if timeLimitMinutes < 0 {
		return fmt.Errorf("time limit must not be negative, got %d", timeLimitMinutes)
	}

	now := c.now()
	s.Problems = problems
	s.Answers = make([]string, 0, len(problems))
	s.Feedback = make([]string, len(problems))
	s.CurrentIndex = 0
	s.TimeLimitMinutes = timeLimitMinutes
	s.StartedAt = &now
	s.EndedAt = nil
	s.TimedOut = false
	s.Saved = false
	s.State = models.SessionInProgress
	return nil
}

func deadline(s *models.QuizSession) time.Time {
	return s.StartedAt.Add(time.Duration(s.TimeLimitMinutes) * time.Minute)
}

// CheckDeadline times the session out once the limit has elapsed, filling
// every unanswered slot with an empty answer. It reports whether the
// session is timed out.
func (c *Controller) CheckDeadline(s *models.QuizSession) bool {
	if s.State == models.SessionTimedOut {
		return true
	}
	if s.State != models.SessionInProgress || s.StartedAt == nil {
		return s.TimedOut
	}

	now := c.now()
	end := deadline(s)
	if now.Before(end) {
		return false
	}

	fillAnswers(s)
	s.EndedAt = &end
	s.TimedOut = true
	s.State = models.SessionTimedOut
	return true
}

// Remaining is the time left before the deadline, never negative.
func (c *Controller) Remaining(s *models.QuizSession) time.Duration {
	if s.StartedAt == nil {
		return 0
	}
	if s.State != models.SessionInProgress {
		return 0
	}
	left := deadline(s).Sub(c.now())
	if left < 0 {
		return 0
	}
	return left
}

// Answer stores text at index, extending the answer list with empty
// strings for skipped questions.
func (c *Controller) Answer(s *models.QuizSession, index int, text string) error {
	if c.CheckDeadline(s) {
		return ErrSessionTimedOut
	}
	if s.State != models.SessionInProgress {
		return stateError("answer", s.State)
	}
	if index < 0 || index >= len(s.Problems) {
		return fmt.Errorf("index %d of %d: %w", index, len(s.Problems), ErrIndexOutOfRange)
	}

	for len(s.Answers) <= index {
		s.Answers = append(s.Answers, "")
	}
	s.Answers[index] = text
	s.CurrentIndex = index
	return nil
}

// Navigate moves the current question, which also selects its page.
func (c *Controller) Navigate(s *models.QuizSession, index int) error {
	if c.CheckDeadline(s) {
		return ErrSessionTimedOut
	}
	if s.State != models.SessionInProgress {
		return stateError("navigate", s.State)
	}
	if index < 0 || index >= len(s.Problems) {
		return fmt.Errorf("index %d of %d: %w", index, len(s.Problems), ErrIndexOutOfRange)
	}
	s.CurrentIndex = index
	return nil
}

// Status runs a deadline check and reports progress and paging.
func (c *Controller) Status(s *models.QuizSession) Status {
	c.CheckDeadline(s)

	total := len(s.Problems)
	page := s.CurrentIndex / models.ProblemsPerPage
	start := page * models.ProblemsPerPage
	end := start + models.ProblemsPerPage
	if end > total {
		end = total
	}

	return Status{
		SessionID:        s.ID,
		State:            s.State,
		CurrentIndex:     s.CurrentIndex,
		Page:             page,
		TotalPages:       (total + models.ProblemsPerPage - 1) / models.ProblemsPerPage,
		PageStart:        start,
		PageEnd:          end,
		Total:            total,
		Answered:         answeredCount(s),
		RemainingSeconds: int64(c.Remaining(s).Seconds()),
		TimeLimitMinutes: s.TimeLimitMinutes,
	}
}

// Submit ends an in-progress session regardless of completeness. The
// returned warning is nil when every question has an answer.
func (c *Controller) Submit(s *models.QuizSession) (*SubmitWarning, error) {
	if c.CheckDeadline(s) {
		return nil, ErrSessionTimedOut
	}
	if s.State != models.SessionInProgress {
		return nil, stateError("submit", s.State)
	}

	missing := Unanswered(s)
	fillAnswers(s)
	now := c.now()
	s.EndedAt = &now
	s.State = models.SessionSubmitted

	if len(missing) == 0 {
		return nil, nil
	}
	return &SubmitWarning{
		Unanswered: missing,
		Message:    fmt.Sprintf("아직 %d개의 문제에 답변하지 않았습니다.", len(missing)),
	}, nil
}

// Results scores the session and moves it to results_displayed. Multiple
// choice is scored by case-insensitive exact match; open-ended questions
// stay pending until feedback is recorded.
func (c *Controller) Results(s *models.QuizSession) (*models.QuizResults, error) {
	c.CheckDeadline(s)
	switch s.State {
	case models.SessionTimedOut, models.SessionSubmitted, models.SessionResultsDisplayed:
	default:
		return nil, stateError("show results", s.State)
	}
	s.State = models.SessionResultsDisplayed

	results := &models.QuizResults{
		SessionID: s.ID,
		State:     s.State,
		TimedOut:  s.TimedOut,
		Questions: make([]models.QuestionResult, len(s.Problems)),
	}

	stats := models.TimingStats{
		TotalQuestions:   len(s.Problems),
		TimeLimitSeconds: int64(s.TimeLimitMinutes) * 60,
		ElapsedSeconds:   int64(Elapsed(s, c.now()).Seconds()),
	}

	for i := range s.Problems {
		p := &s.Problems[i]
		answer := answerAt(s, i)
		q := models.QuestionResult{
			Index:        i,
			ProblemID:    p.ID,
			QuestionType: p.QuestionType,
			Question:     p.Question,
			Answer:       answer,
			Expected:     p.Answer,
			Explanation:  p.Explanation,
			Feedback:     feedbackAt(s, i),
		}

		if strings.TrimSpace(answer) != "" {
			stats.AnsweredQuestions++
		}
		if p.QuestionType == models.MultipleChoice {
			correct := p.IsCorrectChoice(answer)
			q.IsCorrect = &correct
			stats.ChoiceQuestions++
			if correct {
				stats.CorrectChoices++
			}
		} else {
			q.Pending = q.Feedback == ""
		}
		results.Questions[i] = q
	}

	if stats.AnsweredQuestions > 0 {
		stats.AverageSecondsPerQ = float64(stats.ElapsedSeconds) / float64(stats.AnsweredQuestions)
	}
	results.Stats = stats
	return results, nil
}

// RecordFeedback stores evaluation text for one question once the quiz has
// ended.
func (c *Controller) RecordFeedback(s *models.QuizSession, index int, text string) error {
	switch s.State {
	case models.SessionTimedOut, models.SessionSubmitted, models.SessionResultsDisplayed:
	default:
		return stateError("record feedback", s.State)
	}
	if index < 0 || index >= len(s.Problems) {
		return fmt.Errorf("index %d of %d: %w", index, len(s.Problems), ErrIndexOutOfRange)
	}
	for len(s.Feedback) < len(s.Problems) {
		s.Feedback = append(s.Feedback, "")
	}
	s.Feedback[index] = text
	return nil
}

// Reset discards the session contents and returns it to not_started.
func (c *Controller) Reset(s *models.QuizSession) {
	*s = models.QuizSession{
		ID:    s.ID,
		Owner: s.Owner,
		State: models.SessionNotStarted,
	}
}

// Ended reports whether answers can no longer change.
func Ended(s *models.QuizSession) bool {
	switch s.State {
	case models.SessionTimedOut, models.SessionSubmitted, models.SessionResultsDisplayed:
		return true
	}
	return false
}

// Elapsed is the time spent so far, or the total once the session ended.
func Elapsed(s *models.QuizSession, now time.Time) time.Duration {
	if s.StartedAt == nil {
		return 0
	}
	if s.EndedAt != nil {
		return s.EndedAt.Sub(*s.StartedAt)
	}
	return now.Sub(*s.StartedAt)
}

// Unanswered lists the indices with a blank answer.
func Unanswered(s *models.QuizSession) []int {
	var out []int
	for i := range s.Problems {
		if strings.TrimSpace(answerAt(s, i)) == "" {
			out = append(out, i)
		}
	}
	return out
}

func answeredCount(s *models.QuizSession) int {
	return len(s.Problems) - len(Unanswered(s))
}

func answerAt(s *models.QuizSession, i int) string {
	if i < len(s.Answers) {
		return s.Answers[i]
	}
	return ""
}

func feedbackAt(s *models.QuizSession, i int) string {
	if i < len(s.Feedback) {
		return s.Feedback[i]
	}
	return ""
}

func fillAnswers(s *models.QuizSession) {
	for len(s.Answers) < len(s.Problems) {
		s.Answers = append(s.Answers, "")
	}
}
