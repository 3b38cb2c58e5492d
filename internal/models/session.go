package models

import (
	"time"
)

type SessionState string

const (
	SessionNotStarted       SessionState = "not_started"
	SessionInProgress       SessionState = "in_progress"
	SessionTimedOut         SessionState = "timed_out"
	SessionSubmitted        SessionState = "submitted"
	SessionResultsDisplayed SessionState = "results_displayed"
)

const ProblemsPerPage = 5

// QuizSession is the ephemeral state of one student working through a
// problem set. It lives in the session store and is never written to the
// document.
type QuizSession struct {
	ID               string       `json:"id"`
	Owner            string       `json:"owner"`
	State            SessionState `json:"state"`
	Problems         []Problem    `json:"problems"`
	Answers          []string     `json:"answers"`
	Feedback         []string     `json:"feedback"`
	CurrentIndex     int          `json:"current_index"`
	TimeLimitMinutes int          `json:"time_limit_minutes"`
	StartedAt        *time.Time   `json:"started_at,omitempty"`
	EndedAt          *time.Time   `json:"ended_at,omitempty"`
	TimedOut         bool         `json:"timed_out"`

	// Whether the session has been committed to the student's record.
	Saved bool `json:"saved"`
}

// QuestionResult is the per-question outcome shown on the results page.
type QuestionResult struct {
	Index        int          `json:"index"`
	ProblemID    string       `json:"problem_id"`
	QuestionType QuestionType `json:"question_type"`
	Question     string       `json:"question"`
	Answer       string       `json:"answer"`
	Expected     string       `json:"expected"`
	Explanation  string       `json:"explanation,omitempty"`
	IsCorrect    *bool        `json:"is_correct,omitempty"`
	Pending      bool         `json:"pending_feedback"`
	Feedback     string       `json:"feedback,omitempty"`
}

type TimingStats struct {
	ElapsedSeconds     int64   `json:"elapsed_seconds"`
	TimeLimitSeconds   int64   `json:"time_limit_seconds"`
	TotalQuestions     int     `json:"total_questions"`
	AnsweredQuestions  int     `json:"answered_questions"`
	CorrectChoices     int     `json:"correct_choices"`
	ChoiceQuestions    int     `json:"choice_questions"`
	AverageSecondsPerQ float64 `json:"average_seconds_per_question"`
}

type QuizResults struct {
	SessionID string           `json:"session_id"`
	State     SessionState     `json:"state"`
	TimedOut  bool             `json:"timed_out"`
	Questions []QuestionResult `json:"questions"`
	Stats     TimingStats      `json:"stats"`
}
