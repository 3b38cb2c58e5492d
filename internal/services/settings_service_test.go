package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/SAP-F-2025/english-practice-service/internal/config"
	"github.com/SAP-F-2025/english-practice-service/internal/llm"
)

func ptr(s string) *string { return &s }

// isolateEnv restores the API key variables the env file writes through.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{config.EnvOpenAIKey, config.EnvGeminiKey, config.EnvGoogleKey, config.EnvPerplexityKey} {
		t.Setenv(k, "")
	}
}

func TestSettingsService_UpdateAPIKeys(t *testing.T) {
	isolateEnv(t)
	env := newTestEnv(t,
		&MockProvider{name: llm.ProviderOpenAI, reply: "ok"},
		&MockProvider{name: llm.ProviderGemini, reply: "ok"},
	)
	ctx := context.Background()
	svc := env.manager.Settings()

	view, err := svc.UpdateAPIKeys(ctx, &APIKeysRequest{
		OpenAI:  ptr("  sk-1234567890abcdef "),
		Gemini:  ptr("short"),
		Persist: true,
	}, "admin")
	if err != nil {
		t.Fatalf("UpdateAPIKeys() error = %v", err)
	}
	if view.OpenAI != "sk-1****cdef" {
		t.Errorf("masked openai = %q", view.OpenAI)
	}
	if view.Gemini != "****" || view.Perplexity != "" {
		t.Errorf("masked gemini = %q, perplexity = %q", view.Gemini, view.Perplexity)
	}
	if len(view.Ready) != 2 || !view.Persistent {
		t.Errorf("ready = %v, persistent = %v", view.Ready, view.Persistent)
	}

	values, err := config.NewEnvFile(filepath.Join(env.dataDir, ".env")).Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if values[config.EnvOpenAIKey] != "sk-1234567890abcdef" || values[config.EnvGoogleKey] != "short" {
		t.Errorf("env file = %v", values)
	}

	// Keys not in the request stay.
	view, err = svc.UpdateAPIKeys(ctx, &APIKeysRequest{Perplexity: ptr("pplx-key-123456")}, "admin")
	if err != nil {
		t.Fatalf("UpdateAPIKeys() error = %v", err)
	}
	if env.gateway.Keys().OpenAI != "sk-1234567890abcdef" || view.Perplexity == "" {
		t.Errorf("keys = %+v", env.gateway.Keys())
	}

	view, err = svc.ResetAPIKeys(ctx, "admin")
	if err != nil {
		t.Fatalf("ResetAPIKeys() error = %v", err)
	}
	if len(view.Ready) != 0 || view.OpenAI != "" {
		t.Errorf("after reset = %+v", view)
	}
	values, _ = config.NewEnvFile(filepath.Join(env.dataDir, ".env")).Read()
	if values[config.EnvOpenAIKey] != "" {
		t.Errorf("env file keeps openai key %q", values[config.EnvOpenAIKey])
	}
}

func TestSettingsService_PersistWithoutEnvFile(t *testing.T) {
	gateway, err := llm.NewGateway(llm.Options{}, llm.Keys{}, testLogger())
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}
	svc := NewSettingsService(gateway, nil, testLogger())

	_, err = svc.UpdateAPIKeys(context.Background(), &APIKeysRequest{OpenAI: ptr("sk-x"), Persist: true}, "admin")
	if !errors.Is(err, ErrEnvFileNotConfigured) {
		t.Fatalf("UpdateAPIKeys() err = %v, want ErrEnvFileNotConfigured", err)
	}
	if gateway.Keys().OpenAI != "" {
		t.Error("key applied although persisting failed")
	}

	view, err := svc.UpdateAPIKeys(context.Background(), &APIKeysRequest{OpenAI: ptr("sk-x")}, "admin")
	if err != nil {
		t.Fatalf("UpdateAPIKeys() in memory error = %v", err)
	}
	if view.Persistent {
		t.Error("view reports persistent storage without an env file")
	}
}

func TestSettingsService_TestConnection(t *testing.T) {
	env := newTestEnv(t,
		&MockProvider{name: llm.ProviderOpenAI, reply: "Yes, I can hear you clearly."},
		&MockProvider{name: llm.ProviderGemini, err: errors.New("quota exceeded")},
	)
	env.gateway.Configure(llm.Keys{OpenAI: "sk-openai", Gemini: "gm-key"})
	ctx := context.Background()

	tests := []struct {
		name     string
		provider string
		wantOK   bool
		wantErr  bool
	}{
		{name: "healthy provider", provider: "OpenAI", wantOK: true},
		{name: "failing provider", provider: "gemini"},
		{name: "missing key", provider: "perplexity"},
		{name: "unknown provider", provider: "claude", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := env.manager.Settings().TestConnection(ctx, tt.provider)
			if tt.wantErr {
				if !errors.Is(err, llm.ErrUnknownProvider) {
					t.Fatalf("TestConnection() err = %v, want ErrUnknownProvider", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("TestConnection() error = %v", err)
			}
			if result.OK != tt.wantOK || result.Message == "" {
				t.Errorf("result = %+v", result)
			}
		})
	}
}
