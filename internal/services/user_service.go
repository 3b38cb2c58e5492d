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
	"github.com/SAP-F-2025/english-practice-service/internal/quiz"
	"github.com/SAP-F-2025/english-practice-service/internal/repositories"
	"github.com/SAP-F-2025/english-practice-service/internal/utils"
	"github.com/SAP-F-2025/english-practice-service/internal/validator"
)

type userService struct {
	repo      repositories.Repository
	sessions  *quiz.Store
	cache     *cache.CacheManager
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *validator.Validator
	business  *validator.BusinessValidator
	now       func() time.Time
}

func NewUserService(repo repositories.Repository, sessions *quiz.Store, cm *cache.CacheManager, publisher events.EventPublisher, logger *slog.Logger, v *validator.Validator) UserService {
	return &userService{
		repo:      repo,
		sessions:  sessions,
		cache:     cm,
		publisher: publisher,
		logger:    logger,
		validator: v,
		business:  validator.NewBusinessValidator(),
		now:       time.Now,
	}
}

// Register creates an account. Teachers may only register students, who
// are then linked to them through created_by.
func (s *userService) Register(ctx context.Context, req *RegisterUserRequest, actorID string) (*models.Profile, error) {
	s.logger.Info("Registering user", "actor", actorID, "username", req.Username, "role", req.Role)

	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	actor, err := loadActor(ctx, s.repo, actorID, "user", "register", models.RoleTeacher)
	if err != nil {
		return nil, err
	}

	role := req.Role
	if role == "" {
		role = models.RoleStudent
	}
	if errs := s.business.ValidateRoleAssignment(actor.Role, role); len(errs) > 0 {
		return nil, NewPermissionError(actorID, req.Username, "user", "register_"+string(role), errs[0].Message)
	}

	user := &models.User{
		Username:     strings.TrimSpace(req.Username),
		PasswordHash: utils.HashPassword(req.Password),
		Role:         role,
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.TrimSpace(req.Email),
		CreatedBy:    actor.Username,
		CreatedAt:    s.now(),
	}

	err = s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		if err := tx.User().Create(ctx, user); err != nil {
			return err
		}
		if role == models.RoleStudent {
			return tx.Record().Ensure(ctx, user.Username)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repositories.ErrAlreadyExists) {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("failed to register user: %w", err)
	}

	cache.SafeDelete(ctx, s.cache.Stats, cache.SystemInfoKey)
	publish(ctx, s.publisher, s.logger, events.NewEvent(events.UserRegistered, actor.Username, user.Username, map[string]interface{}{
		"role": string(role),
	}))

	s.logger.Info("User registered", "username", user.Username, "role", role)
	profile := user.Profile()
	return &profile, nil
}

func (s *userService) List(ctx context.Context, filters repositories.UserFilters, actorID string) ([]models.Profile, error) {
	if _, err := loadActor(ctx, s.repo, actorID, "user", "list"); err != nil {
		return nil, err
	}

	users, err := s.repo.User().List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	profiles := make([]models.Profile, len(users))
	for i, u := range users {
		profiles[i] = u.Profile()
	}
	return profiles, nil
}

func (s *userService) Update(ctx context.Context, username string, req *UpdateUserRequest, actorID string) (*models.Profile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	if _, err := loadActor(ctx, s.repo, actorID, "user", "update"); err != nil {
		return nil, err
	}

	user, err := s.getUser(ctx, username)
	if err != nil {
		return nil, err
	}
	if name := trimmed(req.Name); name != nil {
		user.Name = *name
	}
	if email := trimmed(req.Email); email != nil {
		user.Email = *email
	}

	if err := s.repo.User().Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	s.logger.Info("User updated", "username", username, "actor", actorID)
	profile := user.Profile()
	return &profile, nil
}

func (s *userService) ResetPassword(ctx context.Context, username string, req *ResetPasswordRequest, actorID string) error {
	if err := s.validator.Struct(req); err != nil {
		return err
	}
	if _, err := loadActor(ctx, s.repo, actorID, "user", "reset_password"); err != nil {
		return err
	}

	user, err := s.getUser(ctx, username)
	if err != nil {
		return err
	}
	user.PasswordHash = utils.HashPassword(req.NewPassword)
	if err := s.repo.User().Update(ctx, user); err != nil {
		return fmt.Errorf("failed to reset password: %w", err)
	}

	s.logger.Info("Password reset", "username", username, "actor", actorID)
	return nil
}

func (s *userService) Delete(ctx context.Context, username string, actorID string) error {
	if username == actorID {
		return NewBusinessRuleError("self_delete", "you cannot delete your own account", nil)
	}
	if _, err := loadActor(ctx, s.repo, actorID, "user", "delete"); err != nil {
		return err
	}

	user, err := s.getUser(ctx, username)
	if err != nil {
		return err
	}
	return deleteUserCascade(ctx, s.repo, s.sessions, s.cache, s.publisher, s.logger, user, actorID)
}

func (s *userService) getUser(ctx context.Context, username string) (*models.User, error) {
	user, err := s.repo.User().GetByUsername(ctx, username)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// deleteUserCascade removes a user together with their record and, for
// teachers, the problems they authored, in one document write.
func deleteUserCascade(ctx context.Context, repo repositories.Repository, sessions *quiz.Store, cm *cache.CacheManager, publisher events.EventPublisher, logger *slog.Logger, user *models.User, actorID string) error {
	var removedProblems int
	err := repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		if err := tx.User().Delete(ctx, user.Username); err != nil {
			return err
		}
		if err := tx.Record().Delete(ctx, user.Username); err != nil {
			return err
		}
		if user.Role == models.RoleTeacher {
			n, err := tx.Problem().DeleteByCreator(ctx, user.Username)
			if err != nil {
				return err
			}
			removedProblems = n
		}
		return nil
	})
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}

	if err := sessions.DeleteForUser(ctx, user.Username); err != nil {
		logger.Warn("Failed to drop quiz session of deleted user", "username", user.Username, "error", err)
	}
	cache.InvalidateAllStats(ctx, cm)
	publish(ctx, publisher, logger, events.NewEvent(events.UserDeleted, actorID, user.Username, map[string]interface{}{
		"role":             string(user.Role),
		"removed_problems": removedProblems,
	}))

	logger.Info("User deleted",
		"username", user.Username,
		"role", user.Role,
		"actor", actorID,
		"removed_problems", removedProblems)
	return nil
}
