package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/SAP-F-2025/english-practice-service/internal/cache"
	"github.com/SAP-F-2025/english-practice-service/internal/events"
	"github.com/SAP-F-2025/english-practice-service/internal/models"
	"github.com/SAP-F-2025/english-practice-service/internal/quiz"
	"github.com/SAP-F-2025/english-practice-service/internal/repositories"
)

var recordColumns = []string{
	"student_id", "timestamp", "problem_id", "question", "question_type",
	"correct_answer", "answer", "is_correct", "feedback",
	"teacher_feedback", "score", "graded_by", "graded_at",
}

type studentService struct {
	repo      repositories.Repository
	dashboard DashboardService
	sessions  *quiz.Store
	cache     *cache.CacheManager
	publisher events.EventPublisher
	logger    *slog.Logger
}

// NewStudentService serves the teacher's view of their students.
func NewStudentService(repo repositories.Repository, dashboard DashboardService, sessions *quiz.Store, cm *cache.CacheManager, publisher events.EventPublisher, logger *slog.Logger) StudentService {
	return &studentService{
		repo:      repo,
		dashboard: dashboard,
		sessions:  sessions,
		cache:     cm,
		publisher: publisher,
		logger:    logger,
	}
}

// ListStudents returns the students registered by the teacher, or every
// student for an admin, with their activity.
func (s *studentService) ListStudents(ctx context.Context, teacherID string) ([]models.StudentSummary, error) {
	actor, err := loadActor(ctx, s.repo, teacherID, "student", "list", models.RoleTeacher)
	if err != nil {
		return nil, err
	}

	role := models.RoleStudent
	filters := repositories.UserFilters{Role: &role}
	if actor.Role != models.RoleAdmin {
		filters.CreatedBy = actor.Username
	}
	students, err := s.repo.User().List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	records, err := s.repo.Record().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	out := make([]models.StudentSummary, len(students))
	for i, u := range students {
		out[i] = models.StudentSummary{Profile: u.Profile()}
		if rec, ok := records[u.Username]; ok {
			out[i].TotalProblems = rec.TotalProblems
			out[i].LastActivity = lastActivity(rec)
		}
	}
	return out, nil
}

func (s *studentService) DeleteStudent(ctx context.Context, username string, teacherID string) error {
	actor, student, err := s.managedStudent(ctx, username, teacherID, "delete")
	if err != nil {
		return err
	}
	return deleteUserCascade(ctx, s.repo, s.sessions, s.cache, s.publisher, s.logger, student, actor.Username)
}

// GetRecord is open to the student, their teacher and admins. A student
// without any saved session gets an empty record.
func (s *studentService) GetRecord(ctx context.Context, username string, actorID string) (*models.StudentRecord, error) {
	if err := s.authorizeView(ctx, username, actorID); err != nil {
		return nil, err
	}

	record, err := s.repo.Record().Get(ctx, username)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return models.NewStudentRecord(), nil
		}
		return nil, fmt.Errorf("failed to get student record: %w", err)
	}
	return record, nil
}

func (s *studentService) GetStats(ctx context.Context, username string, actorID string) (*models.LearningStats, error) {
	if err := s.authorizeView(ctx, username, actorID); err != nil {
		return nil, err
	}
	return s.dashboard.LearningStats(ctx, username)
}

// ExportRecordsXLSX writes one row per solved problem of every student the
// actor manages.
func (s *studentService) ExportRecordsXLSX(ctx context.Context, actorID string) ([]byte, error) {
	students, err := s.ListStudents(ctx, actorID)
	if err != nil {
		return nil, err
	}
	records, err := s.repo.Record().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	var rows [][]interface{}
	for _, st := range students {
		rec, ok := records[st.Username]
		if !ok {
			continue
		}
		for i := range rec.SolvedProblems {
			fields := recordFields(st.Username, &rec.SolvedProblems[i])
			row := make([]interface{}, len(fields))
			for j, f := range fields {
				row[j] = f
			}
			rows = append(rows, row)
		}
	}

	s.logger.Info("Exporting student records", "actor_id", actorID, "students", len(students), "rows", len(rows))
	return writeWorkbook("student_records", recordColumns, rows)
}

func (s *studentService) managedStudent(ctx context.Context, username, actorID, action string) (*models.User, *models.User, error) {
	actor, err := loadActor(ctx, s.repo, actorID, "student", action, models.RoleTeacher)
	if err != nil {
		return nil, nil, err
	}
	student, err := s.repo.User().GetByUsername(ctx, username)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, fmt.Errorf("failed to get user: %w", err)
	}
	if student.Role != models.RoleStudent {
		return nil, nil, NewBusinessRuleError("not_a_student", "user is not a student", map[string]interface{}{
			"username": username,
			"role":     student.Role,
		})
	}
	if !canManageStudent(actor, student) {
		return nil, nil, NewPermissionError(actorID, username, "student", action, "student was registered by another teacher")
	}
	return actor, student, nil
}

func (s *studentService) authorizeView(ctx context.Context, username, actorID string) error {
	if username == actorID {
		return nil
	}
	_, _, err := s.managedStudent(ctx, username, actorID, "view")
	return err
}

func lastActivity(rec *models.StudentRecord) *time.Time {
	var last time.Time
	for i := range rec.SolvedProblems {
		if ts := rec.SolvedProblems[i].Timestamp; ts.After(last) {
			last = ts
		}
	}
	if last.IsZero() {
		return nil
	}
	return &last
}

// recordFields flattens a solved problem into the columns of recordColumns.
func recordFields(username string, r *models.SolvedProblemRecord) []string {
	isCorrect := ""
	if r.IsCorrect != nil {
		isCorrect = strconv.FormatBool(*r.IsCorrect)
	}
	score := ""
	if r.TeacherScore != nil {
		score = strconv.Itoa(*r.TeacherScore)
	}
	gradedAt := ""
	if r.GradedAt != nil {
		gradedAt = r.GradedAt.Format(time.RFC3339)
	}
	return []string{
		username,
		r.Timestamp.Format(time.RFC3339),
		r.Problem.ID,
		r.Problem.Question,
		string(r.Problem.QuestionType),
		r.Problem.Answer,
		r.Answer,
		isCorrect,
		r.Feedback,
		r.TeacherFeedback,
		score,
		r.GradedBy,
		gradedAt,
	}
}
