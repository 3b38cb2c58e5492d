package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SAP-F-2025/english-practice-service/internal/cache"
	"github.com/SAP-F-2025/english-practice-service/internal/events"
	"github.com/SAP-F-2025/english-practice-service/internal/llm"
	"github.com/SAP-F-2025/english-practice-service/internal/models"
	"github.com/SAP-F-2025/english-practice-service/internal/repositories"
	"github.com/SAP-F-2025/english-practice-service/internal/validator"
)

type generationService struct {
	repo      repositories.Repository
	problems  *problemService
	gateway   *llm.Gateway
	drafts    cache.Store
	ttl       time.Duration
	logger    *slog.Logger
	validator *validator.Validator
	now       func() time.Time
}

// NewGenerationService keeps generated text as drafts in the draft store
// until the author saves it.
func NewGenerationService(repo repositories.Repository, gateway *llm.Gateway, cm *cache.CacheManager, publisher events.EventPublisher, logger *slog.Logger, v *validator.Validator) GenerationService {
	return &generationService{
		repo:      repo,
		problems:  newProblemService(repo, cm, publisher, logger, v),
		gateway:   gateway,
		drafts:    cm.Draft,
		ttl:       cache.DraftCacheConfig.TTL,
		logger:    logger,
		validator: v,
		now:       time.Now,
	}
}

func (s *generationService) Generate(ctx context.Context, req *GenerateProblemsRequest, creatorID string) (*DraftResponse, error) {
	s.logger.Info("Generating problems",
		"creator_id", creatorID,
		"topic", req.Topic,
		"count", req.Count,
		"provider", req.Provider)

	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	if _, err := loadActor(ctx, s.repo, creatorID, "problem", "generate", models.RoleTeacher); err != nil {
		return nil, err
	}

	provider, _ := llm.ParseProviderName(req.Provider)
	generation, err := s.gateway.GenerateProblems(ctx, llm.GenerationRequest{
		SchoolType: req.SchoolType,
		Grade:      req.Grade,
		Topic:      req.Topic,
		Difficulty: req.Difficulty,
		Count:      req.Count,
		Provider:   provider,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	draft := &Draft{
		ID:        uuid.NewString(),
		Text:      generation.Text,
		Provider:  generation.Provider,
		Meta:      req.ProblemMeta,
		CreatedBy: creatorID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.drafts.Set(ctx, draft.ID, draft, s.ttl); err != nil {
		return nil, fmt.Errorf("failed to store draft: %w", err)
	}

	s.logger.Info("Draft stored", "draft_id", draft.ID, "provider", draft.Provider)
	return s.preview(draft), nil
}

func (s *generationService) GetDraft(ctx context.Context, id string, userID string) (*DraftResponse, error) {
	draft, err := s.loadDraft(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	return s.preview(draft), nil
}

// SaveDraft parses the draft, or the edited text when given, and stores the
// problems. The draft is dropped once they are saved.
func (s *generationService) SaveDraft(ctx context.Context, id string, req *SaveDraftRequest, userID string) ([]*models.Problem, error) {
	draft, err := s.loadDraft(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	text := draft.Text
	if strings.TrimSpace(req.Content) != "" {
		text = req.Content
	}

	problems, err := s.problems.parseWithMeta(text, draft.Meta, userID)
	if err != nil {
		return nil, err
	}
	created, err := s.problems.createBatch(ctx, problems, false)
	if err != nil {
		return nil, err
	}

	cache.SafeDelete(ctx, s.drafts, id)
	s.logger.Info("Draft saved", "draft_id", id, "problems", len(created))
	return created, nil
}

func (s *generationService) loadDraft(ctx context.Context, id string, userID string) (*Draft, error) {
	var draft Draft
	if err := s.drafts.Get(ctx, id, &draft); err != nil {
		if errors.Is(err, cache.ErrCacheNotFound) {
			return nil, ErrDraftNotFound
		}
		return nil, fmt.Errorf("failed to load draft: %w", err)
	}
	if draft.CreatedBy != userID {
		return nil, NewPermissionError(userID, id, "draft", "read", "draft belongs to another user")
	}
	return &draft, nil
}

// preview attaches the problems the draft would produce, or the reason it
// cannot be parsed yet.
func (s *generationService) preview(draft *Draft) *DraftResponse {
	resp := &DraftResponse{Draft: draft, Preview: []models.Problem{}}
	problems, err := s.problems.parseWithMeta(draft.Text, draft.Meta, draft.CreatedBy)
	if err != nil {
		resp.ParseError = err.Error()
		return resp
	}
	for _, p := range problems {
		resp.Preview = append(resp.Preview, *p)
	}
	return resp
}
