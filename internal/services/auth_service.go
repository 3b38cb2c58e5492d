package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/SAP-F-2025/english-practice-service/internal/config"
	"github.com/SAP-F-2025/english-practice-service/internal/events"
	"github.com/SAP-F-2025/english-practice-service/internal/models"
	"github.com/SAP-F-2025/english-practice-service/internal/quiz"
	"github.com/SAP-F-2025/english-practice-service/internal/repositories"
	"github.com/SAP-F-2025/english-practice-service/internal/utils"
	"github.com/SAP-F-2025/english-practice-service/internal/validator"
)

const tokenIssuer = "english-practice-service"

// Claims carried by session tokens. The subject is the username.
type Claims struct {
	Role models.UserRole `json:"role"`
	jwt.RegisteredClaims
}

type authService struct {
	repo      repositories.Repository
	sessions  *quiz.Store
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *validator.Validator
	cfg       config.AuthConfig
	secret    []byte
	now       func() time.Time
}

func NewAuthService(repo repositories.Repository, sessions *quiz.Store, publisher events.EventPublisher, logger *slog.Logger, validator *validator.Validator, cfg config.AuthConfig) AuthService {
	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		// Tokens will not survive a restart.
		secret = []byte(uuid.NewString() + uuid.NewString())
		logger.Warn("JWT_SECRET not set, using a random signing key")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 12 * time.Hour
	}
	return &authService{
		repo:      repo,
		sessions:  sessions,
		publisher: publisher,
		logger:    logger,
		validator: validator,
		cfg:       cfg,
		secret:    secret,
		now:       time.Now,
	}
}

func (s *authService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	username := strings.TrimSpace(req.Username)
	user, err := s.repo.User().GetByUsername(ctx, username)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			s.logger.Info("Login failed", "username", username, "reason", "unknown user")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		s.logger.Info("Login failed", "username", username, "reason", "wrong password")
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.issueToken(user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("User logged in", "username", user.Username, "role", user.Role)
	return &LoginResponse{Token: token, ExpiresAt: expiresAt, User: user.Profile()}, nil
}

func (s *authService) issueToken(user *models.User) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.TokenTTL)
	claims := &Claims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			Issuer:    tokenIssuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (s *authService) ParseToken(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("token expired: %w", ErrInvalidToken)
		}
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidToken)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *authService) Logout(ctx context.Context, username string) error {
	if err := s.sessions.DeleteForUser(ctx, username); err != nil {
		return fmt.Errorf("failed to reset quiz session: %w", err)
	}
	s.logger.Info("User logged out", "username", username)
	return nil
}

func (s *authService) Me(ctx context.Context, username string) (*models.Profile, error) {
	user, err := s.getUser(ctx, username)
	if err != nil {
		return nil, err
	}
	profile := user.Profile()
	return &profile, nil
}

func (s *authService) ChangePassword(ctx context.Context, username string, req *ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return err
	}

	user, err := s.getUser(ctx, username)
	if err != nil {
		return err
	}
	if !utils.CheckPassword(req.CurrentPassword, user.PasswordHash) {
		return ErrInvalidCredentials
	}

	user.PasswordHash = utils.HashPassword(req.NewPassword)
	if err := s.repo.User().Update(ctx, user); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.logger.Info("Password changed", "username", username)
	return nil
}

// EnsureBootstrapAdmin creates the configured admin account when the
// document has no admin at all.
func (s *authService) EnsureBootstrapAdmin(ctx context.Context) error {
	counts, err := s.repo.User().CountByRole(ctx)
	if err != nil {
		return fmt.Errorf("failed to count users: %w", err)
	}
	if counts[models.RoleAdmin] > 0 {
		return nil
	}

	admin := &models.User{
		Username:     s.cfg.AdminUsername,
		PasswordHash: utils.HashPassword(s.cfg.AdminPassword),
		Role:         models.RoleAdmin,
		Name:         "관리자",
		CreatedAt:    s.now(),
	}
	if err := s.repo.User().Create(ctx, admin); err != nil {
		if errors.Is(err, repositories.ErrAlreadyExists) {
			return fmt.Errorf("bootstrap admin %q exists with another role", admin.Username)
		}
		return fmt.Errorf("failed to create bootstrap admin: %w", err)
	}

	s.logger.Warn("Bootstrap admin created, change its password", "username", admin.Username)
	return nil
}

// ProvisionExternalUser returns the local account of an SSO user, creating
// it on first sight. Provisioned accounts cannot log in with a password.
func (s *authService) ProvisionExternalUser(ctx context.Context, identity ExternalIdentity) (*models.User, error) {
	if strings.TrimSpace(identity.Username) == "" {
		return nil, ErrInvalidToken
	}

	user, err := s.repo.User().GetByUsername(ctx, identity.Username)
	if err == nil {
		return s.sameProvider(user, identity)
	}
	if !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	role := identity.Role
	if !role.IsValid() {
		role = models.RoleStudent
	}
	user = &models.User{
		Username:  identity.Username,
		Role:      role,
		Name:      identity.Name,
		Email:     identity.Email,
		CreatedAt: s.now(),
		Provider:  identity.Provider,
	}
	if err := s.repo.User().Create(ctx, user); err != nil {
		if !errors.Is(err, repositories.ErrAlreadyExists) {
			return nil, fmt.Errorf("failed to provision user: %w", err)
		}
		// Created concurrently; take the stored account through the same check.
		existing, getErr := s.repo.User().GetByUsername(ctx, identity.Username)
		if getErr != nil {
			return nil, fmt.Errorf("failed to get user: %w", getErr)
		}
		return s.sameProvider(existing, identity)
	}

	s.logger.Info("External user provisioned", "username", user.Username, "provider", identity.Provider, "role", role)
	publish(ctx, s.publisher, s.logger, events.NewEvent(events.UserRegistered, identity.Provider, user.Username, map[string]interface{}{
		"role":     string(role),
		"provider": identity.Provider,
	}))
	return user, nil
}

// sameProvider refuses to map an external identity onto an account owned by
// another provider, including local password accounts.
func (s *authService) sameProvider(user *models.User, identity ExternalIdentity) (*models.User, error) {
	if user.Provider != identity.Provider {
		s.logger.Warn("External identity collides with an existing account",
			"username", user.Username, "provider", identity.Provider, "account_provider", user.Provider)
		return nil, ErrInvalidToken
	}
	return user, nil
}

func (s *authService) getUser(ctx context.Context, username string) (*models.User, error) {
	user, err := s.repo.User().GetByUsername(ctx, username)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// publish sends an event and only logs failures.
func publish(ctx context.Context, publisher events.EventPublisher, logger *slog.Logger, event events.Event) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, event); err != nil {
		logger.Warn("Failed to publish event", "type", event.Type, "subject", event.Subject, "error", err)
	}
}
