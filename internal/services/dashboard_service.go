package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/SAP-F-2025/english-practice-service/internal/cache"
	"github.com/SAP-F-2025/english-practice-service/internal/llm"
	"github.com/SAP-F-2025/english-practice-service/internal/models"
	"github.com/SAP-F-2025/english-practice-service/internal/repositories"
)

const (
	trendWeeks    = 4
	recentSolved  = 5
	weekLabelDate = "01/02"
)

type dashboardService struct {
	repo    repositories.Repository
	gateway *llm.Gateway
	cache   *cache.CacheManager
	driver  string
	logger  *slog.Logger
	now     func() time.Time
}

// NewDashboardService aggregates records and the document into the learning
// dashboards. Results are cached in the stats store.
func NewDashboardService(repo repositories.Repository, gateway *llm.Gateway, cm *cache.CacheManager, storageDriver string, logger *slog.Logger) DashboardService {
	return &dashboardService{
		repo:    repo,
		gateway: gateway,
		cache:   cm,
		driver:  storageDriver,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *dashboardService) LearningStats(ctx context.Context, username string) (*models.LearningStats, error) {
	var stats models.LearningStats
	err := cache.CacheOrExecute(ctx, s.cache.Stats, cache.StudentStatsKey(username), &stats, cache.StatsCacheConfig.TTL, func() (interface{}, error) {
		record, err := s.repo.Record().Get(ctx, username)
		if err != nil {
			if !repositories.IsNotFoundError(err) {
				return nil, fmt.Errorf("failed to get student record: %w", err)
			}
			record = models.NewStudentRecord()
		}
		return computeLearningStats(username, record, s.now()), nil
	})
	if err != nil {
		s.logger.Error("Failed to compute learning stats", "username", username, "error", err)
		return nil, err
	}
	return &stats, nil
}

func (s *dashboardService) SystemInfo(ctx context.Context) (*models.SystemInfo, error) {
	var info models.SystemInfo
	err := cache.CacheOrExecute(ctx, s.cache.Stats, cache.SystemInfoKey, &info, cache.StatsCacheConfig.TTL, func() (interface{}, error) {
		doc, err := s.repo.Snapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot document: %w", err)
		}
		return s.computeSystemInfo(doc), nil
	})
	if err != nil {
		s.logger.Error("Failed to compute system info", "error", err)
		return nil, err
	}

	// Provider readiness changes with the API keys, not with the document.
	info.ProvidersReady = providerNames(s.gateway.Ready())
	return &info, nil
}

func (s *dashboardService) computeSystemInfo(doc *models.Document) *models.SystemInfo {
	info := &models.SystemInfo{
		UsersByRole:    make(map[models.UserRole]int),
		TotalUsers:     len(doc.Users),
		TotalProblems:  len(doc.TeacherProblems),
		StudentRecords: len(doc.StudentRecords),
		StorageDriver:  s.driver,
		CacheAvailable: s.cache.Distributed(),
		GeneratedAt:    s.now(),
	}
	for _, u := range doc.Users {
		info.UsersByRole[u.Role]++
	}

	topics := make(map[string]int)
	levels := make(map[string]int)
	types := make(map[string]int)
	for _, p := range doc.TeacherProblems {
		topics[p.Category()]++
		levels[p.Difficulty]++
		types[p.QuestionType.Label()]++
	}
	info.ProblemsByTopic = histogram(topics)
	info.ProblemsByLevel = histogram(levels)
	info.ProblemsByType = histogram(types)

	for _, rec := range doc.StudentRecords {
		info.SolvedProblems += len(rec.SolvedProblems)
	}
	return info
}

// computeLearningStats builds the learning history view. Weeks start on
// Monday at local midnight.
func computeLearningStats(username string, record *models.StudentRecord, now time.Time) *models.LearningStats {
	stats := &models.LearningStats{
		Username:       username,
		TotalProblems:  record.TotalProblems,
		SessionsCount:  len(record.Sessions),
		ByCategory:     []models.CategoryCount{},
		RecentProblems: []models.SolvedProblemRecord{},
	}

	today := startOfDay(now)
	week := startOfWeek(now)

	weeks := make([]models.WeeklyPoint, trendWeeks)
	for i := range weeks {
		start := week.AddDate(0, 0, -7*(trendWeeks-1-i))
		end := start.AddDate(0, 0, 6)
		weeks[i] = models.WeeklyPoint{
			WeekStart: start,
			Label:     start.Format(weekLabelDate) + "~" + end.Format(weekLabelDate),
		}
	}

	categories := make(map[string]int)
	var scoreSum int
	for i := range record.SolvedProblems {
		solved := &record.SolvedProblems[i]
		ts := solved.Timestamp.In(now.Location())

		if !ts.Before(today) {
			stats.Today++
		}
		if !ts.Before(week) {
			stats.ThisWeek++
		}
		for j := range weeks {
			if !ts.Before(weeks[j].WeekStart) && ts.Before(weeks[j].WeekStart.AddDate(0, 0, 7)) {
				weeks[j].Count++
				break
			}
		}
		categories[solved.Problem.Category()]++

		if solved.IsGraded() {
			stats.GradedCount++
			scoreSum += *solved.TeacherScore
		}
	}

	stats.ByCategory = histogram(categories)
	stats.WeeklyTrend = weeks
	if stats.GradedCount > 0 {
		avg := float64(scoreSum) / float64(stats.GradedCount)
		stats.AverageScore = &avg
	}

	recent := make([]models.SolvedProblemRecord, len(record.SolvedProblems))
	copy(recent, record.SolvedProblems)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].Timestamp.After(recent[j].Timestamp)
	})
	if len(recent) > recentSolved {
		recent = recent[:recentSolved]
	}
	stats.RecentProblems = recent
	return stats
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func startOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return startOfDay(t).AddDate(0, 0, -offset)
}

// histogram orders buckets by count, then by name.
func histogram(counts map[string]int) []models.CategoryCount {
	out := make([]models.CategoryCount, 0, len(counts))
	for k, v := range counts {
		out = append(out, models.CategoryCount{Category: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	return out
}

func providerNames(names []llm.ProviderName) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = string(n)
	}
	return out
}
