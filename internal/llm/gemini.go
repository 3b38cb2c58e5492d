package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const DefaultGeminiModel = "gemini-1.5-flash"

// Sampling settings applied to every Gemini call.
const (
	geminiTemperature     = 0.7
	geminiTopP            = 0.95
	geminiTopK            = 40
	geminiMaxOutputTokens = 1024
)

// GeminiProvider calls the Google Generative AI API with a fixed model name.
type GeminiProvider struct {
	apiKey string
	model  string
}

func NewGeminiProvider(apiKey, model string) *GeminiProvider {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiProvider{apiKey: apiKey, model: model}
}

func (p *GeminiProvider) Name() ProviderName {
	return ProviderGemini
}

func (p *GeminiProvider) Generate(ctx context.Context, req Request) (string, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(p.apiKey))
	if err != nil {
		return "", &ProviderError{Provider: ProviderGemini, Err: fmt.Errorf("failed to create client: %w", err)}
	}
	defer client.Close()

	model := client.GenerativeModel(p.model)
	temperature := float32(geminiTemperature)
	if req.Temperature > 0 {
		temperature = req.Temperature
	}
	maxTokens := int32(geminiMaxOutputTokens)
	if req.MaxTokens > 0 {
		maxTokens = int32(req.MaxTokens)
	}
	model.SetTemperature(temperature)
	model.SetTopP(geminiTopP)
	model.SetTopK(geminiTopK)
	model.SetMaxOutputTokens(maxTokens)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", &ProviderError{Provider: ProviderGemini, Err: err}
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		if sb.Len() > 0 {
			break
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", &ProviderError{Provider: ProviderGemini, Err: ErrEmptyResponse}
	}
	return sb.String(), nil
}
