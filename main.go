package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/SAP-F-2025/english-practice-service/internal/cache"
	"github.com/SAP-F-2025/english-practice-service/internal/config"
	"github.com/SAP-F-2025/english-practice-service/internal/events"
	"github.com/SAP-F-2025/english-practice-service/internal/handlers"
	"github.com/SAP-F-2025/english-practice-service/internal/llm"
	"github.com/SAP-F-2025/english-practice-service/internal/quiz"
	"github.com/SAP-F-2025/english-practice-service/internal/repositories"
	"github.com/SAP-F-2025/english-practice-service/internal/repositories/document"
	"github.com/SAP-F-2025/english-practice-service/internal/repositories/jsonfile"
	"github.com/SAP-F-2025/english-practice-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/english-practice-service/internal/services"
	"github.com/SAP-F-2025/english-practice-service/internal/utils"
	"github.com/SAP-F-2025/english-practice-service/internal/validator"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	slogLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	logger := utils.NewSlogLogger(slogLogger)

	// Initialize document store
	store, err := newDocumentStore(cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	repoManager := document.NewManager(store, slogLogger)

	// Initialize Redis (if configured)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = newRedisClient(cfg.RedisURL)
		if err != nil {
			logger.Warn("Failed to initialize Redis, using in-process cache", "error", err)
			redisClient = nil
		}
	}
	cacheManager := cache.NewCacheManager(redisClient)

	publisher, err := events.NewPublisher(cfg.Kafka, slogLogger)
	if err != nil {
		log.Fatalf("Failed to initialize event publisher: %v", err)
	}

	gateway, err := llm.NewGateway(llm.Options{
		OpenAIModel:       cfg.LLM.OpenAIModel,
		GeminiModel:       cfg.LLM.GeminiModel,
		PerplexityModel:   cfg.LLM.PerplexityModel,
		PerplexityBaseURL: cfg.LLM.PerplexityBaseURL,
		Order:             providerOrder(cfg.LLM.ProviderOrder, logger),
		Timeout:           cfg.LLM.Timeout,
	}, llm.Keys{
		OpenAI:     cfg.LLM.OpenAIKey,
		Gemini:     cfg.LLM.GeminiKey,
		Perplexity: cfg.LLM.PerplexityKey,
	}, slogLogger)
	if err != nil {
		log.Fatalf("Failed to initialize LLM gateway: %v", err)
	}

	// Initialize services
	serviceManager := services.NewServiceManager(
		repoManager,
		cacheManager,
		quiz.NewStore(cacheManager.Session, 0),
		gateway,
		publisher,
		slogLogger,
		validator.New(),
		services.ServiceManagerConfig{
			Auth:          cfg.Auth,
			StorageDriver: store.Driver(),
			EnvFile:       config.NewEnvFile(cfg.LLM.EnvFile),
		},
	)
	if err := serviceManager.Initialize(context.Background()); err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}

	// Initialize handlers
	handlerManager := handlers.NewHandlerManager(serviceManager, logger, cfg.Casdoor)

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handlers.SetupMiddleware(router, logger)
	handlerManager.SetupRoutes(router)

	// Create HTTP server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Starting server",
			"port", cfg.Port,
			"environment", cfg.Environment,
			"storage", store.Driver(),
			"casdoor", cfg.Casdoor.Enabled())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// Closes the publisher, the store and the cache, including Redis
	if err := serviceManager.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown services", "error", err)
	}

	logger.Info("Server exited")
}

func newDocumentStore(cfg config.StorageConfig) (repositories.DocumentStore, error) {
	switch cfg.Driver {
	case "postgres":
		db, err := postgres.InitDatabase(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return postgres.NewSnapshotStore(db), nil
	case "", "file":
		return jsonfile.NewStore(cfg.DataFile), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func newRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func providerOrder(names []string, logger utils.Logger) []llm.ProviderName {
	order := make([]llm.ProviderName, 0, len(names))
	for _, name := range names {
		p, ok := llm.ParseProviderName(name)
		if !ok {
			logger.Warn("Ignoring unknown LLM provider", "provider", name)
			continue
		}
		order = append(order, p)
	}
	return order
}
