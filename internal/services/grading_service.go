package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/SAP-F-2025/english-practice-service/internal/cache"
	"github.com/SAP-F-2025/english-practice-service/internal/events"
	"github.com/SAP-F-2025/english-practice-service/internal/models"
	"github.com/SAP-F-2025/english-practice-service/internal/repositories"
	"github.com/SAP-F-2025/english-practice-service/internal/validator"
)

type gradingService struct {
	repo      repositories.Repository
	cache     *cache.CacheManager
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *validator.Validator
	now       func() time.Time
}

func NewGradingService(repo repositories.Repository, cm *cache.CacheManager, publisher events.EventPublisher, logger *slog.Logger, validator *validator.Validator) GradingService {
	return &gradingService{
		repo:      repo,
		cache:     cm,
		publisher: publisher,
		logger:    logger,
		validator: validator,
		now:       time.Now,
	}
}

// Grade attaches teacher feedback and a score to one solved problem of a
// student. Regrading overwrites the previous grade.
func (s *gradingService) Grade(ctx context.Context, student string, index int, req *GradeRequest, graderID string) (*models.SolvedProblemRecord, error) {
	s.logger.Info("Grading solved problem", "student", student, "index", index, "grader_id", graderID)

	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	grader, err := loadActor(ctx, s.repo, graderID, "record", "grade", models.RoleTeacher)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.User().GetByUsername(ctx, student)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !canManageStudent(grader, user) {
		return nil, NewPermissionError(graderID, student, "record", "grade", "student was registered by another teacher")
	}

	score := models.DefaultTeacherScore
	if req.Score != nil {
		score = *req.Score
	}
	gradedAt := s.now()

	var graded models.SolvedProblemRecord
	err = s.repo.Record().UpdateSolved(ctx, student, index, func(r *models.SolvedProblemRecord) error {
		r.TeacherFeedback = strings.TrimSpace(req.Feedback)
		r.TeacherScore = &score
		r.GradedBy = grader.Username
		r.GradedAt = &gradedAt
		graded = *r
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrNotFound):
			return nil, ErrRecordNotFound
		case errors.Is(err, repositories.ErrOutOfRange):
			return nil, fmt.Errorf("solved problem %d: %w", index, ErrRecordNotFound)
		}
		return nil, fmt.Errorf("failed to grade solved problem: %w", err)
	}

	cache.InvalidateStudentStats(ctx, s.cache, student)
	publish(ctx, s.publisher, s.logger, events.NewEvent(events.RecordGraded, grader.Username, student, map[string]interface{}{
		"index": index,
		"score": score,
	}))

	s.logger.Info("Solved problem graded", "student", student, "index", index, "score", score)
	return &graded, nil
}
