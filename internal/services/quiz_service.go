package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/SAP-F-2025/english-practice-service/internal/cache"
	"github.com/SAP-F-2025/english-practice-service/internal/events"
	"github.com/SAP-F-2025/english-practice-service/internal/llm"
	"github.com/SAP-F-2025/english-practice-service/internal/models"
	"github.com/SAP-F-2025/english-practice-service/internal/quiz"
	"github.com/SAP-F-2025/english-practice-service/internal/repositories"
	"github.com/SAP-F-2025/english-practice-service/internal/validator"
)

const maxQuizProblems = 20

type quizService struct {
	repo       repositories.Repository
	sessions   *quiz.Store
	controller *quiz.Controller
	gateway    *llm.Gateway
	cache      *cache.CacheManager
	publisher  events.EventPublisher
	logger     *slog.Logger
	validator  *validator.Validator
	now        func() time.Time
	shuffle    func(n int, swap func(i, j int))
}

func NewQuizService(repo repositories.Repository, sessions *quiz.Store, gateway *llm.Gateway, cm *cache.CacheManager, publisher events.EventPublisher, logger *slog.Logger, v *validator.Validator) QuizService {
	return newQuizService(repo, sessions, quiz.NewController(time.Now), gateway, cm, publisher, logger, v, time.Now)
}

func newQuizService(repo repositories.Repository, sessions *quiz.Store, controller *quiz.Controller, gateway *llm.Gateway, cm *cache.CacheManager, publisher events.EventPublisher, logger *slog.Logger, v *validator.Validator, now func() time.Time) *quizService {
	return &quizService{
		repo:       repo,
		sessions:   sessions,
		controller: controller,
		gateway:    gateway,
		cache:      cm,
		publisher:  publisher,
		logger:     logger,
		validator:  v,
		now:        now,
		shuffle:    rand.Shuffle,
	}
}

// Start replaces the user's current session with a new one over the
// selected problems.
func (s *quizService) Start(ctx context.Context, req *StartQuizRequest, username string) (*QuizView, error) {
	s.logger.Info("Starting quiz", "username", username, "random", req.Random, "count", req.Count)

	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	problems, err := s.selectProblems(ctx, req)
	if err != nil {
		return nil, err
	}

	limit := validator.DefaultTimeLimitMinutes
	if req.TimeLimitMinutes != nil {
		limit = *req.TimeLimitMinutes
	}

	if err := s.sessions.DeleteForUser(ctx, username); err != nil {
		return nil, fmt.Errorf("failed to reset previous session: %w", err)
	}

	session := quiz.NewSession(username)
	if err := s.controller.Start(session, problems, limit); err != nil {
		return nil, err
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Info("Quiz started",
		"username", username,
		"session_id", session.ID,
		"problems", len(problems),
		"time_limit_minutes", limit)
	return s.view(session), nil
}

// selectProblems picks an explicit list, a random sample of every problem,
// or a random sample of the filtered problems.
func (s *quizService) selectProblems(ctx context.Context, req *StartQuizRequest) ([]models.Problem, error) {
	var candidates []*models.Problem
	var err error

	switch {
	case len(req.ProblemIDs) > 0:
		candidates, err = s.repo.Problem().GetByIDs(ctx, req.ProblemIDs)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return nil, ErrProblemNotFound
			}
			return nil, fmt.Errorf("failed to load problems: %w", err)
		}
	case req.Random:
		candidates, err = s.repo.Problem().List(ctx, models.ProblemFilter{})
	default:
		candidates, err = s.repo.Problem().List(ctx, models.ProblemFilter{
			SchoolType: req.SchoolType,
			Grade:      req.Grade,
			Topic:      req.Topic,
			Difficulty: req.Difficulty,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list problems: %w", err)
	}
	if len(candidates) == 0 {
		return nil, ErrNoProblemsAvailable
	}

	if len(req.ProblemIDs) == 0 {
		count := req.Count
		if count <= 0 {
			count = validator.QuizCounts[0]
		}
		if count > maxQuizProblems {
			count = maxQuizProblems
		}
		s.shuffle(len(candidates), func(i, j int) {
			candidates[i], candidates[j] = candidates[j], candidates[i]
		})
		if len(candidates) > count {
			candidates = candidates[:count]
		}
	}

	problems := make([]models.Problem, len(candidates))
	for i, p := range candidates {
		problems[i] = *p
	}
	return problems, nil
}

func (s *quizService) Current(ctx context.Context, username string) (*QuizView, error) {
	session, err := s.sessions.Current(ctx, username)
	if err != nil {
		return nil, mapSessionError(err)
	}
	return s.Get(ctx, session.ID, username)
}

func (s *quizService) Get(ctx context.Context, sessionID string, username string) (*QuizView, error) {
	var view *QuizView
	err := s.mutate(ctx, sessionID, username, func(session *models.QuizSession) error {
		view = s.view(session)
		return nil
	})
	return view, err
}

func (s *quizService) Answer(ctx context.Context, sessionID string, index int, answer string, username string) (*quiz.Status, error) {
	var status quiz.Status
	err := s.mutate(ctx, sessionID, username, func(session *models.QuizSession) error {
		err := s.controller.Answer(session, index, answer)
		status = s.controller.Status(session)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &status, nil
}

func (s *quizService) Navigate(ctx context.Context, sessionID string, index int, username string) (*quiz.Status, error) {
	var status quiz.Status
	err := s.mutate(ctx, sessionID, username, func(session *models.QuizSession) error {
		err := s.controller.Navigate(session, index)
		status = s.controller.Status(session)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// Submit ends the session. A session that already ran out of time is
// reported as timed out rather than as an error.
func (s *quizService) Submit(ctx context.Context, sessionID string, username string) (*SubmitResponse, error) {
	resp := &SubmitResponse{}
	err := s.mutate(ctx, sessionID, username, func(session *models.QuizSession) error {
		warning, err := s.controller.Submit(session)
		if err != nil && !errors.Is(err, quiz.ErrSessionTimedOut) {
			return err
		}
		resp.Warning = warning
		resp.Status = s.controller.Status(session)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Quiz submitted",
		"username", username,
		"session_id", sessionID,
		"state", resp.Status.State,
		"answered", resp.Status.Answered)
	return resp, nil
}

func (s *quizService) Results(ctx context.Context, sessionID string, username string) (*models.QuizResults, error) {
	var results *models.QuizResults
	err := s.mutate(ctx, sessionID, username, func(session *models.QuizSession) error {
		var err error
		results, err = s.controller.Results(session)
		return err
	})
	return results, err
}

// Feedback evaluates one answer through the gateway and keeps the text on
// the session. The lock is not held during the provider call.
func (s *quizService) Feedback(ctx context.Context, sessionID string, index int, username string) (*FeedbackResponse, error) {
	session, err := s.loadOwned(ctx, sessionID, username)
	if err != nil {
		return nil, err
	}
	if !quiz.Ended(session) {
		return nil, fmt.Errorf("cannot request feedback while %s: %w", session.State, quiz.ErrInvalidState)
	}
	if index < 0 || index >= len(session.Problems) {
		return nil, fmt.Errorf("index %d of %d: %w", index, len(session.Problems), quiz.ErrIndexOutOfRange)
	}

	answer := ""
	if index < len(session.Answers) {
		answer = session.Answers[index]
	}
	result := s.gateway.Feedback(ctx, &session.Problems[index], answer)

	err = s.mutate(ctx, sessionID, username, func(session *models.QuizSession) error {
		return s.controller.RecordFeedback(session, index, result.Text)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Feedback recorded",
		"session_id", sessionID,
		"index", index,
		"provider", result.Provider,
		"heuristic", result.Heuristic)
	return &FeedbackResponse{Index: index, FeedbackResult: result}, nil
}

// SaveRecord appends the finished session to the student's record. A
// session can be saved once.
func (s *quizService) SaveRecord(ctx context.Context, sessionID string, username string) (*models.SessionSummary, error) {
	var summary *models.SessionSummary
	err := s.mutate(ctx, sessionID, username, func(session *models.QuizSession) error {
		s.controller.CheckDeadline(session)
		if !quiz.Ended(session) {
			return NewBusinessRuleError("quiz_not_finished", "submit the quiz before saving it", nil)
		}
		if session.Saved {
			return NewBusinessRuleError("already_saved", "this quiz has already been saved", map[string]interface{}{
				"session_id": session.ID,
			})
		}

		solved, built := buildRecord(session, s.now())
		if err := s.repo.Record().Append(ctx, username, solved, built); err != nil {
			return fmt.Errorf("failed to save learning record: %w", err)
		}
		session.Saved = true
		summary = built
		return nil
	})
	if err != nil {
		return nil, err
	}

	cache.InvalidateStudentStats(ctx, s.cache, username)
	publish(ctx, s.publisher, s.logger, events.NewEvent(events.RecordSaved, username, username, map[string]interface{}{
		"session_id":     sessionID,
		"problems_count": summary.ProblemsCount,
		"answered_count": summary.AnsweredCount,
	}))

	s.logger.Info("Learning record saved",
		"username", username,
		"session_id", sessionID,
		"problems", summary.ProblemsCount,
		"answered", summary.AnsweredCount)
	return summary, nil
}

func (s *quizService) Reset(ctx context.Context, sessionID string, username string) error {
	unlock := s.sessions.Lock(sessionID)
	defer unlock()

	session, err := s.loadOwned(ctx, sessionID, username)
	if err != nil {
		return err
	}
	return s.sessions.Delete(ctx, session)
}

func (s *quizService) ResetForUser(ctx context.Context, username string) error {
	return s.sessions.DeleteForUser(ctx, username)
}

// mutate loads an owned session under its lock, applies fn and saves the
// session even when fn fails, since a deadline check may have changed it.
func (s *quizService) mutate(ctx context.Context, sessionID, username string, fn func(*models.QuizSession) error) error {
	unlock := s.sessions.Lock(sessionID)
	defer unlock()

	session, err := s.loadOwned(ctx, sessionID, username)
	if err != nil {
		return err
	}

	fnErr := fn(session)
	if err := s.sessions.Save(ctx, session); err != nil {
		return err
	}
	return fnErr
}

func (s *quizService) loadOwned(ctx context.Context, sessionID, username string) (*models.QuizSession, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, mapSessionError(err)
	}
	if session.Owner != username {
		return nil, NewPermissionError(username, sessionID, "quiz_session", "access", "session belongs to another user")
	}
	return session, nil
}

func mapSessionError(err error) error {
	if errors.Is(err, quiz.ErrSessionNotFound) {
		return ErrSessionNotFound
	}
	return err
}

// view runs a status check and hides expected answers.
func (s *quizService) view(session *models.QuizSession) *QuizView {
	v := &QuizView{
		Status:   s.controller.Status(session),
		Problems: make([]QuizProblem, len(session.Problems)),
	}
	for i := range session.Problems {
		p := &session.Problems[i]
		answer := ""
		if i < len(session.Answers) {
			answer = session.Answers[i]
		}
		v.Problems[i] = QuizProblem{
			Index:        i,
			ProblemID:    p.ID,
			QuestionType: p.QuestionType,
			Question:     p.Question,
			Context:      p.Context,
			Options:      p.ParsedOptions(),
			Answer:       answer,
		}
	}
	return v
}

// buildRecord turns a finished session into solved problem records and a
// session summary. Correctness is only recorded for multiple choice.
func buildRecord(session *models.QuizSession, now time.Time) ([]models.SolvedProblemRecord, *models.SessionSummary) {
	summary := &models.SessionSummary{
		SessionID:      session.ID,
		SessionDate:    now,
		ProblemsCount:  len(session.Problems),
		ElapsedSeconds: int64(quiz.Elapsed(session, now).Seconds()),
		TimedOut:       session.TimedOut,
		Problems:       make([]models.SessionProblem, len(session.Problems)),
	}
	solved := make([]models.SolvedProblemRecord, len(session.Problems))

	for i, p := range session.Problems {
		answer := ""
		if i < len(session.Answers) {
			answer = session.Answers[i]
		}
		feedback := ""
		if i < len(session.Feedback) {
			feedback = session.Feedback[i]
		}
		if answer != "" {
			summary.AnsweredCount++
		}

		var isCorrect *bool
		if p.QuestionType == models.MultipleChoice {
			correct := p.IsCorrectChoice(answer)
			isCorrect = &correct
		}

		solved[i] = models.SolvedProblemRecord{
			Problem:   p,
			Answer:    answer,
			Feedback:  feedback,
			IsCorrect: isCorrect,
			Timestamp: now,
		}
		summary.Problems[i] = models.SessionProblem{
			ProblemID:     p.ID,
			Question:      p.Question,
			Answer:        answer,
			CorrectAnswer: p.Answer,
			IsCorrect:     isCorrect,
			Timestamp:     now,
		}
	}
	return solved, summary
}
