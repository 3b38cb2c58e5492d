package config

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/joho/godotenv"
)

const (
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvGeminiKey     = "GEMINI_API_KEY"
	EnvGoogleKey     = "GOOGLE_API_KEY"
	EnvPerplexityKey = "PERPLEXITY_API_KEY"
)

// EnvFile reads and rewrites KEY=VALUE pairs in a dotenv file. Unrelated
// entries are preserved; comments are not.
type EnvFile struct {
	path string
	mu   sync.Mutex
}

func NewEnvFile(path string) *EnvFile {
	return &EnvFile{path: path}
}

func (e *EnvFile) Path() string {
	return e.path
}

// Read returns the current entries; a missing file is empty.
func (e *EnvFile) Read() (map[string]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.read()
}

func (e *EnvFile) read() (map[string]string, error) {
	values, err := godotenv.Read(e.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", e.path, err)
	}
	return values, nil
}

// Update merges updates into the file and the process environment.
func (e *EnvFile) Update(updates map[string]string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	values, err := e.read()
	if err != nil {
		return err
	}
	for k, v := range updates {
		values[k] = v
	}

	if err := godotenv.Write(values, e.path); err != nil {
		return fmt.Errorf("failed to write %s: %w", e.path, err)
	}

	for k, v := range updates {
		if err := os.Setenv(k, v); err != nil {
			return fmt.Errorf("failed to set %s: %w", k, err)
		}
	}
	return nil
}

// APIKeyUpdates maps provider keys onto their environment variable names.
// The Gemini key is written under both names that are read at startup.
func APIKeyUpdates(openAI, gemini, perplexity *string) map[string]string {
	updates := map[string]string{}
	if openAI != nil {
		updates[EnvOpenAIKey] = *openAI
	}
	if gemini != nil {
		updates[EnvGeminiKey] = *gemini
		updates[EnvGoogleKey] = *gemini
	}
	if perplexity != nil {
		updates[EnvPerplexityKey] = *perplexity
	}
	return updates
}
