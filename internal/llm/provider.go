// Package llm talks to the text generation backends used for answer
// feedback and problem generation.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type ProviderName string

const (
	ProviderOpenAI     ProviderName = "openai"
	ProviderGemini     ProviderName = "gemini"
	ProviderPerplexity ProviderName = "perplexity"
)

var AllProviders = []ProviderName{ProviderOpenAI, ProviderGemini, ProviderPerplexity}

// ParseProviderName accepts the canonical names case-insensitively.
func ParseProviderName(s string) (ProviderName, bool) {
	name := ProviderName(strings.ToLower(strings.TrimSpace(s)))
	for _, p := range AllProviders {
		if p == name {
			return p, true
		}
	}
	return "", false
}

// DisplayName is used in user-facing messages.
func (p ProviderName) DisplayName() string {
	switch p {
	case ProviderOpenAI:
		return "OpenAI"
	case ProviderGemini:
		return "Gemini"
	case ProviderPerplexity:
		return "Perplexity"
	}
	return string(p)
}

// Request is a single prompt sent to a provider. Zero Temperature or
// MaxTokens leaves the provider default in place.
type Request struct {
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int
}

// Provider generates text for one backend. Implementations make exactly one
// call per Generate and never retry.
type Provider interface {
	Name() ProviderName
	Generate(ctx context.Context, req Request) (string, error)
}

// ProviderError wraps a failure from a single backend.
type ProviderError struct {
	Provider ProviderName
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s API 연결 오류: %v", e.Provider.DisplayName(), e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

var (
	ErrNoProvider      = errors.New("no LLM provider is configured")
	ErrUnknownProvider = errors.New("unknown LLM provider")
	ErrEmptyResponse   = errors.New("provider returned an empty response")
)

// Keys holds the API key of each provider. An empty key disables it.
type Keys struct {
	OpenAI     string
	Gemini     string
	Perplexity string
}

func (k Keys) For(name ProviderName) string {
	switch name {
	case ProviderOpenAI:
		return k.OpenAI
	case ProviderGemini:
		return k.Gemini
	case ProviderPerplexity:
		return k.Perplexity
	}
	return ""
}
