package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/SAP-F-2025/english-practice-service/internal/cache"
	"github.com/SAP-F-2025/english-practice-service/internal/config"
	"github.com/SAP-F-2025/english-practice-service/internal/events"
	"github.com/SAP-F-2025/english-practice-service/internal/llm"
	"github.com/SAP-F-2025/english-practice-service/internal/quiz"
	"github.com/SAP-F-2025/english-practice-service/internal/repositories"
	"github.com/SAP-F-2025/english-practice-service/internal/validator"
)

// ServiceManagerConfig holds what the services need besides the repository.
type ServiceManagerConfig struct {
	Auth          config.AuthConfig
	StorageDriver string

	// Nil keeps API key changes in memory only.
	EnvFile *config.EnvFile

	// Skips creating the bootstrap admin on an empty document.
	SkipBootstrap bool
}

// serviceManager implements ServiceManager interface
type serviceManager struct {
	// Dependencies
	repoManager repositories.RepositoryManager
	cache       *cache.CacheManager
	sessions    *quiz.Store
	gateway     *llm.Gateway
	publisher   events.EventPublisher
	logger      *slog.Logger
	validator   *validator.Validator
	config      ServiceManagerConfig

	// Service instances
	authService       AuthService
	userService       UserService
	studentService    StudentService
	problemService    ProblemService
	generationService GenerationService
	quizService       QuizService
	dashboardService  DashboardService
	gradingService    GradingService
	backupService     BackupService
	settingsService   SettingsService

	// Lifecycle management
	initialized bool
	shutdown    bool
	mu          sync.RWMutex
}

// NewServiceManager creates a new service manager with all dependencies
func NewServiceManager(
	repoManager repositories.RepositoryManager,
	cm *cache.CacheManager,
	sessions *quiz.Store,
	gateway *llm.Gateway,
	publisher events.EventPublisher,
	logger *slog.Logger,
	validator *validator.Validator,
	config ServiceManagerConfig,
) ServiceManager {
	return &serviceManager{
		repoManager: repoManager,
		cache:       cm,
		sessions:    sessions,
		gateway:     gateway,
		publisher:   publisher,
		logger:      logger,
		validator:   validator,
		config:      config,
	}
}

// Initialize loads the document, builds every service and makes sure an
// admin account exists.
func (sm *serviceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}

	sm.logger.Info("Initializing service manager")

	if err := sm.repoManager.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}

	sm.initializeServices()

	if !sm.config.SkipBootstrap {
		if err := sm.authService.EnsureBootstrapAdmin(ctx); err != nil {
			return fmt.Errorf("failed to bootstrap admin: %w", err)
		}
	}

	sm.initialized = true
	sm.logger.Info("Service manager initialized successfully",
		"storage", sm.config.StorageDriver,
		"distributed_cache", sm.cache.Distributed(),
		"providers_ready", sm.gateway.Ready())

	return nil
}

func (sm *serviceManager) initializeServices() {
	repo := sm.repoManager.GetRepository()

	sm.authService = NewAuthService(repo, sm.sessions, sm.publisher, sm.logger, sm.validator, sm.config.Auth)
	sm.userService = NewUserService(repo, sm.sessions, sm.cache, sm.publisher, sm.logger, sm.validator)
	sm.logger.Info("Auth and user services initialized")

	// Student stats are served by the dashboard.
	sm.dashboardService = NewDashboardService(repo, sm.gateway, sm.cache, sm.config.StorageDriver, sm.logger)
	sm.studentService = NewStudentService(repo, sm.dashboardService, sm.sessions, sm.cache, sm.publisher, sm.logger)
	sm.logger.Info("Dashboard and student services initialized")

	sm.problemService = NewProblemService(repo, sm.cache, sm.publisher, sm.logger, sm.validator)
	sm.generationService = NewGenerationService(repo, sm.gateway, sm.cache, sm.publisher, sm.logger, sm.validator)
	sm.logger.Info("Problem and generation services initialized")

	sm.quizService = NewQuizService(repo, sm.sessions, sm.gateway, sm.cache, sm.publisher, sm.logger, sm.validator)
	sm.gradingService = NewGradingService(repo, sm.cache, sm.publisher, sm.logger, sm.validator)
	sm.logger.Info("Quiz and grading services initialized")

	sm.backupService = NewBackupService(repo, sm.cache, sm.publisher, sm.logger)
	sm.settingsService = NewSettingsService(sm.gateway, sm.config.EnvFile, sm.logger)
	sm.logger.Info("Backup and settings services initialized")
}

func (sm *serviceManager) mustBeInitialized() {
	if !sm.initialized {
		panic("service manager not initialized")
	}
}

// Service getters
func (sm *serviceManager) Auth() AuthService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.authService
}

func (sm *serviceManager) User() UserService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.userService
}

func (sm *serviceManager) Student() StudentService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.studentService
}

func (sm *serviceManager) Problem() ProblemService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.problemService
}

func (sm *serviceManager) Generation() GenerationService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.generationService
}

func (sm *serviceManager) Quiz() QuizService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.quizService
}

func (sm *serviceManager) Dashboard() DashboardService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.dashboardService
}

func (sm *serviceManager) Grading() GradingService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.gradingService
}

func (sm *serviceManager) Backup() BackupService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.backupService
}

func (sm *serviceManager) Settings() SettingsService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.settingsService
}

// Health and lifecycle
func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}

	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}

	if err := sm.repoManager.HealthCheck(ctx); err != nil {
		return fmt.Errorf("repository health check failed: %w", err)
	}

	if err := sm.cache.HealthCheck(ctx); err != nil {
		return err
	}

	return nil
}

func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return nil
	}

	sm.logger.Info("Shutting down service manager")

	var errs []error
	if err := sm.publisher.Close(); err != nil {
		sm.logger.Error("Failed to close event publisher", "error", err)
		errs = append(errs, err)
	}
	if err := sm.repoManager.Shutdown(ctx); err != nil {
		sm.logger.Error("Failed to shutdown repository manager", "error", err)
		errs = append(errs, err)
	}
	if err := sm.cache.Close(); err != nil {
		sm.logger.Error("Failed to close cache", "error", err)
		errs = append(errs, err)
	}

	sm.shutdown = true
	sm.logger.Info("Service manager shut down completed")

	return errors.Join(errs...)
}
