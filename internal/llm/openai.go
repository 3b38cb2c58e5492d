package llm

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultOpenAIModel       = "gpt-3.5-turbo"
	DefaultPerplexityModel   = "sonar"
	DefaultPerplexityBaseURL = "https://api.perplexity.ai"
)

// ChatProvider speaks the chat completions protocol. Perplexity exposes the
// same protocol under its own base URL, so both backends share this type.
type ChatProvider struct {
	name   ProviderName
	model  string
	client *openai.Client
}

func NewOpenAIProvider(apiKey, model string) *ChatProvider {
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &ChatProvider{
		name:   ProviderOpenAI,
		model:  model,
		client: openai.NewClient(apiKey),
	}
}

func NewPerplexityProvider(apiKey, model, baseURL string) *ChatProvider {
	if model == "" {
		model = DefaultPerplexityModel
	}
	if baseURL == "" {
		baseURL = DefaultPerplexityBaseURL
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	return &ChatProvider{
		name:   ProviderPerplexity,
		model:  model,
		client: openai.NewClientWithConfig(cfg),
	}
}

func (p *ChatProvider) Name() ProviderName {
	return p.name
}

func (p *ChatProvider) Generate(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", &ProviderError{Provider: p.name, Err: err}
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", &ProviderError{Provider: p.name, Err: ErrEmptyResponse}
	}
	return resp.Choices[0].Message.Content, nil
}
