package models

import (
	"time"
)

// CategoryCount is one bar of a histogram.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// WeeklyPoint counts solved problems in the week starting at WeekStart.
type WeeklyPoint struct {
	WeekStart time.Time `json:"week_start"`
	Label     string    `json:"label"`
	Count     int       `json:"count"`
}

type LearningStats struct {
	Username       string                `json:"username"`
	TotalProblems  int                   `json:"total_problems"`
	ThisWeek       int                   `json:"this_week"`
	Today          int                   `json:"today"`
	GradedCount    int                   `json:"graded_count"`
	AverageScore   *float64              `json:"average_score,omitempty"`
	ByCategory     []CategoryCount       `json:"by_category"`
	WeeklyTrend    []WeeklyPoint         `json:"weekly_trend"`
	RecentProblems []SolvedProblemRecord `json:"recent_problems"`
	SessionsCount  int                   `json:"sessions_count"`
}

// StudentSummary is a row of the teacher's student list.
type StudentSummary struct {
	Profile
	TotalProblems int        `json:"total_problems"`
	LastActivity  *time.Time `json:"last_activity,omitempty"`
}

type SystemInfo struct {
	UsersByRole     map[UserRole]int `json:"users_by_role"`
	TotalUsers      int              `json:"total_users"`
	TotalProblems   int              `json:"total_problems"`
	ProblemsByTopic []CategoryCount  `json:"problems_by_topic"`
	ProblemsByLevel []CategoryCount  `json:"problems_by_difficulty"`
	ProblemsByType  []CategoryCount  `json:"problems_by_type"`
	StudentRecords  int              `json:"student_records"`
	SolvedProblems  int              `json:"solved_problems"`
	ProvidersReady  []string         `json:"providers_ready"`
	StorageDriver   string           `json:"storage_driver"`
	CacheAvailable  bool             `json:"cache_available"`
	GeneratedAt     time.Time        `json:"generated_at"`
}
