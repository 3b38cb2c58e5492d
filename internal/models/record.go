package models

import (
	"time"
)

const DefaultTeacherScore = 70

// SolvedProblemRecord is one answered problem in a student's history.
type SolvedProblemRecord struct {
	Problem   Problem   `json:"problem"`
	Answer    string    `json:"answer"`
	Feedback  string    `json:"feedback,omitempty"`
	IsCorrect *bool     `json:"is_correct,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	TeacherFeedback string     `json:"teacher_feedback,omitempty"`
	TeacherScore    *int       `json:"teacher_score,omitempty"`
	GradedBy        string     `json:"graded_by,omitempty"`
	GradedAt        *time.Time `json:"graded_at,omitempty"`
}

func (r *SolvedProblemRecord) IsGraded() bool {
	return r.TeacherScore != nil
}

type SessionProblem struct {
	ProblemID     string    `json:"problem_id"`
	Question      string    `json:"question"`
	Answer        string    `json:"answer"`
	CorrectAnswer string    `json:"correct_answer"`
	IsCorrect     *bool     `json:"is_correct,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// SessionSummary is appended to a student record each time a quiz is saved.
type SessionSummary struct {
	SessionID      string           `json:"session_id,omitempty"`
	SessionDate    time.Time        `json:"session_date"`
	ProblemsCount  int              `json:"problems_count"`
	AnsweredCount  int              `json:"answered_count"`
	ElapsedSeconds int64            `json:"elapsed_seconds"`
	TimedOut       bool             `json:"timed_out"`
	Problems       []SessionProblem `json:"problems"`
}

type StudentRecord struct {
	SolvedProblems []SolvedProblemRecord `json:"solved_problems"`
	TotalProblems  int                   `json:"total_problems"`
	Sessions       []SessionSummary      `json:"sessions"`
}

func NewStudentRecord() *StudentRecord {
	return &StudentRecord{
		SolvedProblems: []SolvedProblemRecord{},
		Sessions:       []SessionSummary{},
	}
}
