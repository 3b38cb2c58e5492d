package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/SAP-F-2025/english-practice-service/internal/config"
	"github.com/SAP-F-2025/english-practice-service/internal/llm"
	"github.com/SAP-F-2025/english-practice-service/internal/utils"
)

type settingsService struct {
	gateway *llm.Gateway
	envFile *config.EnvFile
	logger  *slog.Logger
}

// NewSettingsService manages the LLM API keys. Without an env file, key
// changes only live until the process exits.
func NewSettingsService(gateway *llm.Gateway, envFile *config.EnvFile, logger *slog.Logger) SettingsService {
	return &settingsService{gateway: gateway, envFile: envFile, logger: logger}
}

func (s *settingsService) APIKeys(ctx context.Context) *APIKeysView {
	keys := s.gateway.Keys()
	return &APIKeysView{
		OpenAI:     utils.MaskSecret(keys.OpenAI),
		Gemini:     utils.MaskSecret(keys.Gemini),
		Perplexity: utils.MaskSecret(keys.Perplexity),
		Ready:      s.gateway.Ready(),
		Persistent: s.envFile != nil,
	}
}

// UpdateAPIKeys replaces the given keys and leaves the others untouched.
func (s *settingsService) UpdateAPIKeys(ctx context.Context, req *APIKeysRequest, actorID string) (*APIKeysView, error) {
	openAI, gemini, perplexity := trimmed(req.OpenAI), trimmed(req.Gemini), trimmed(req.Perplexity)

	if req.Persist {
		if s.envFile == nil {
			return nil, ErrEnvFileNotConfigured
		}
		if err := s.envFile.Update(config.APIKeyUpdates(openAI, gemini, perplexity)); err != nil {
			return nil, fmt.Errorf("failed to persist API keys: %w", err)
		}
	}

	keys := s.gateway.Keys()
	if openAI != nil {
		keys.OpenAI = *openAI
	}
	if gemini != nil {
		keys.Gemini = *gemini
	}
	if perplexity != nil {
		keys.Perplexity = *perplexity
	}
	s.gateway.Configure(keys)

	s.logger.Info("API keys updated",
		"actor", actorID,
		"persisted", req.Persist,
		"ready", s.gateway.Ready())
	return s.APIKeys(ctx), nil
}

// ResetAPIKeys clears every key, in the env file too when one is set.
func (s *settingsService) ResetAPIKeys(ctx context.Context, actorID string) (*APIKeysView, error) {
	empty := ""
	if s.envFile != nil {
		if err := s.envFile.Update(config.APIKeyUpdates(&empty, &empty, &empty)); err != nil {
			return nil, fmt.Errorf("failed to reset API keys: %w", err)
		}
	}
	s.gateway.Configure(llm.Keys{})

	s.logger.Warn("API keys reset", "actor", actorID)
	return s.APIKeys(ctx), nil
}

func (s *settingsService) TestConnection(ctx context.Context, provider string) (*llm.ConnectionResult, error) {
	name, ok := llm.ParseProviderName(strings.ToLower(strings.TrimSpace(provider)))
	if !ok {
		return nil, fmt.Errorf("%q: %w", provider, llm.ErrUnknownProvider)
	}

	result, err := s.gateway.TestConnection(ctx, name)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Provider connection tested", "provider", name, "ok", result.OK)
	return result, nil
}
