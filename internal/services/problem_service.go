package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SAP-F-2025/english-practice-service/internal/cache"
	"github.com/SAP-F-2025/english-practice-service/internal/events"
	"github.com/SAP-F-2025/english-practice-service/internal/models"
	"github.com/SAP-F-2025/english-practice-service/internal/parser"
	"github.com/SAP-F-2025/english-practice-service/internal/repositories"
	"github.com/SAP-F-2025/english-practice-service/internal/validator"
)

type problemService struct {
	repo      repositories.Repository
	cache     *cache.CacheManager
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *validator.Validator
	business  *validator.BusinessValidator
	now       func() time.Time
}

func NewProblemService(repo repositories.Repository, cm *cache.CacheManager, publisher events.EventPublisher, logger *slog.Logger, v *validator.Validator) ProblemService {
	return newProblemService(repo, cm, publisher, logger, v)
}

func newProblemService(repo repositories.Repository, cm *cache.CacheManager, publisher events.EventPublisher, logger *slog.Logger, v *validator.Validator) *problemService {
	return &problemService{
		repo:      repo,
		cache:     cm,
		publisher: publisher,
		logger:    logger,
		validator: v,
		business:  validator.NewBusinessValidator(),
		now:       time.Now,
	}
}

func (s *problemService) Create(ctx context.Context, req *CreateProblemRequest, creatorID string) (*models.Problem, error) {
	s.logger.Info("Creating problem", "creator_id", creatorID, "topic", req.Topic)

	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	if _, err := loadActor(ctx, s.repo, creatorID, "problem", "create", models.RoleTeacher); err != nil {
		return nil, err
	}

	qt, _ := models.ParseQuestionType(req.QuestionType)
	problem := &models.Problem{
		SchoolType:   strings.TrimSpace(req.SchoolType),
		Grade:        strings.TrimSpace(req.Grade),
		Topic:        strings.TrimSpace(req.Topic),
		Difficulty:   req.Difficulty,
		QuestionType: qt,
		Question:     strings.TrimSpace(req.Question),
		Context:      strings.TrimSpace(req.Context),
		Options:      strings.TrimSpace(req.Options),
		Answer:       strings.TrimSpace(req.Answer),
		Explanation:  strings.TrimSpace(req.Explanation),
		CreatedBy:    creatorID,
		CreatedAt:    s.now(),
	}
	if errs := s.business.ValidateProblem(problem); len(errs) > 0 {
		return nil, errs
	}

	created, err := s.createBatch(ctx, []*models.Problem{problem}, false)
	if err != nil {
		return nil, err
	}
	return created[0], nil
}

func (s *problemService) GetByID(ctx context.Context, id string) (*models.Problem, error) {
	problem, err := s.repo.Problem().GetByID(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrProblemNotFound
		}
		return nil, fmt.Errorf("failed to get problem: %w", err)
	}
	return problem, nil
}

func (s *problemService) List(ctx context.Context, filter models.ProblemFilter) ([]*models.Problem, error) {
	if filter.QuestionType != "" {
		qt, ok := models.ParseQuestionType(string(filter.QuestionType))
		if !ok {
			return nil, validator.ValidationErrors{{
				Field:   "question_type",
				Message: "must be a valid question type",
				Value:   filter.QuestionType,
				Rule:    "question_type",
			}}
		}
		filter.QuestionType = qt
	}

	problems, err := s.repo.Problem().List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list problems: %w", err)
	}
	return problems, nil
}

func (s *problemService) Update(ctx context.Context, id string, req *UpdateProblemRequest, userID string) (*models.Problem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	actor, err := loadActor(ctx, s.repo, userID, "problem", "update", models.RoleTeacher)
	if err != nil {
		return nil, err
	}
	problem, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canEditProblem(actor, problem) {
		return nil, NewPermissionError(userID, id, "problem", "update", "not the author of this problem")
	}

	applyProblemUpdate(problem, req)
	if errs := s.business.ValidateProblem(problem); len(errs) > 0 {
		return nil, errs
	}

	if err := s.repo.Problem().Update(ctx, problem); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrProblemNotFound
		}
		return nil, fmt.Errorf("failed to update problem: %w", err)
	}

	cache.SafeDelete(ctx, s.cache.Stats, cache.SystemInfoKey)
	s.logger.Info("Problem updated", "problem_id", id, "user_id", userID)
	return problem, nil
}

func (s *problemService) Delete(ctx context.Context, id string, userID string) error {
	actor, err := loadActor(ctx, s.repo, userID, "problem", "delete", models.RoleTeacher)
	if err != nil {
		return err
	}
	problem, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !canEditProblem(actor, problem) {
		return NewPermissionError(userID, id, "problem", "delete", "not the author of this problem")
	}

	if err := s.repo.Problem().Delete(ctx, id); err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrProblemNotFound
		}
		return fmt.Errorf("failed to delete problem: %w", err)
	}

	cache.SafeDelete(ctx, s.cache.Stats, cache.SystemInfoKey)
	publish(ctx, s.publisher, s.logger, events.NewEvent(events.ProblemDeleted, userID, id, map[string]interface{}{
		"created_by": problem.CreatedBy,
	}))
	s.logger.Info("Problem deleted", "problem_id", id, "user_id", userID)
	return nil
}

// ImportText parses pasted or generated text and stores every problem in
// it under the given metadata. Nothing is stored if any segment fails.
func (s *problemService) ImportText(ctx context.Context, req *TextImportRequest, creatorID string) ([]*models.Problem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	if _, err := loadActor(ctx, s.repo, creatorID, "problem", "import", models.RoleTeacher); err != nil {
		return nil, err
	}

	problems, err := s.parseWithMeta(req.Content, req.ProblemMeta, creatorID)
	if err != nil {
		return nil, err
	}
	return s.createBatch(ctx, problems, false)
}

func (s *problemService) parseWithMeta(text string, meta validator.ProblemMeta, creatorID string) ([]*models.Problem, error) {
	parsed, err := parser.Parse(text)
	if err != nil {
		return nil, err
	}

	now := s.now()
	problems := make([]*models.Problem, len(parsed))
	for i := range parsed {
		p := parsed[i]
		p.SchoolType = strings.TrimSpace(meta.SchoolType)
		p.Grade = strings.TrimSpace(meta.Grade)
		p.Topic = strings.TrimSpace(meta.Topic)
		p.Difficulty = meta.Difficulty
		p.CreatedBy = creatorID
		p.CreatedAt = now
		if errs := s.business.ValidateProblem(&p); len(errs) > 0 {
			return nil, &parser.ParseError{Segment: i, Reason: errs.Error()}
		}
		problems[i] = &p
	}
	return problems, nil
}

// ImportCSV stores one problem per valid row. Invalid rows are reported and
// skipped; the valid ones are written together.
func (s *problemService) ImportCSV(ctx context.Context, r io.Reader, creatorID string) (*ImportResult, error) {
	if _, err := loadActor(ctx, s.repo, creatorID, "problem", "import", models.RoleTeacher); err != nil {
		return nil, err
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: file is empty", ErrInvalidCSV)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
	}
	columns, err := csvColumns(header)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Created: []*models.Problem{}}
	var pending []*models.Problem
	for row := 2; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			result.Errors = append(result.Errors, RowError{Row: row, Message: err.Error()})
			continue
		}
		if blankRecord(record) {
			continue
		}

		problem, err := s.problemFromRow(columns.row(record), creatorID)
		if err != nil {
			result.Errors = append(result.Errors, RowError{Row: row, Message: err.Error()})
			continue
		}
		pending = append(pending, problem)
	}

	if len(pending) > 0 {
		created, err := s.createBatch(ctx, pending, true)
		if err != nil {
			return nil, err
		}
		result.Created = created
	}

	s.logger.Info("CSV import finished",
		"creator_id", creatorID,
		"created", len(result.Created),
		"failed", len(result.Errors))
	return result, nil
}

// problemFromRow renders a CSV row in the text import layout and parses it,
// so both import paths share the parser's rules.
func (s *problemService) problemFromRow(row map[string]string, creatorID string) (*models.Problem, error) {
	for _, col := range requiredCSVColumns {
		if row[col] == "" {
			return nil, fmt.Errorf("%s is empty", col)
		}
	}
	if err := s.validator.Var("difficulty", row["difficulty"], "difficulty"); err != nil {
		return nil, err
	}
	declared, ok := models.ParseQuestionType(row["question_type"])
	if !ok {
		return nil, fmt.Errorf("unknown question type %q", row["question_type"])
	}

	problems, err := s.parseWithMeta(problemBlock(row, declared), validator.ProblemMeta{
		SchoolType: row["school_type"],
		Grade:      row["grade"],
		Topic:      row["topic"],
		Difficulty: row["difficulty"],
	}, creatorID)
	if err != nil {
		return nil, err
	}
	if len(problems) != 1 {
		return nil, fmt.Errorf("expected one problem, parsed %d", len(problems))
	}

	problem := problems[0]
	if declared == models.MultipleChoice && problem.QuestionType != models.MultipleChoice {
		return nil, errors.New("multiple choice problems need at least two labeled options")
	}
	if declared != models.MultipleChoice {
		problem.QuestionType = declared
		problem.Options = ""
	}
	problem.ID = uuid.NewString()
	return problem, nil
}

// CSVTemplate returns a sample file with one row per question type.
func (s *problemService) CSVTemplate() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(utf8BOM)

	w := csv.NewWriter(&buf)
	if err := w.Write(templateColumns); err != nil {
		return nil, err
	}
	if err := w.WriteAll(sampleRows); err != nil {
		return nil, fmt.Errorf("failed to write csv template: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *problemService) ExportXLSX(ctx context.Context, filter models.ProblemFilter) ([]byte, error) {
	problems, err := s.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	rows := make([][]interface{}, len(problems))
	for i, p := range problems {
		rows[i] = []interface{}{
			p.ID, p.SchoolType, p.Grade, p.Topic, p.Difficulty, p.QuestionType.Label(),
			p.Question, p.Context, p.Options, p.Answer, p.Explanation,
			p.CreatedBy, p.CreatedAt.Format(time.DateTime),
		}
	}
	return writeWorkbook("problems", problemColumns, rows)
}

// createBatch assigns IDs and stores problems in one write. CSV rows keep
// the UUIDs they were given.
func (s *problemService) createBatch(ctx context.Context, problems []*models.Problem, keepIDs bool) ([]*models.Problem, error) {
	err := s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		if !keepIDs {
			if err := assignProblemIDs(ctx, tx.Problem(), problems, s.now()); err != nil {
				return err
			}
		}
		return tx.Problem().CreateBatch(ctx, problems)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save problems: %w", err)
	}

	cache.SafeDelete(ctx, s.cache.Stats, cache.SystemInfoKey)
	for _, p := range problems {
		publish(ctx, s.publisher, s.logger, events.NewEvent(events.ProblemCreated, p.CreatedBy, p.ID, map[string]interface{}{
			"topic":         p.Topic,
			"question_type": string(p.QuestionType),
		}))
	}

	s.logger.Info("Problems saved", "count", len(problems))
	return problems, nil
}
