package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/SAP-F-2025/english-practice-service/internal/models"
)

const (
	DefaultTimeout = 60 * time.Second

	generationTemperature = 0.7
	generationMaxTokens   = 3000
	probeMaxTokens        = 20
)

// User-facing judgments.
const (
	MsgCorrect         = "정답입니다!"
	MsgIncorrect       = "오답입니다."
	MsgSimilar         = "정답과 유사합니다."
	MsgDifferent       = "정답과 차이가 있습니다."
	MsgNoKey           = "API 키가 설정되지 않아 상세 분석은 불가능합니다."
	msgNoKeySimilar    = "학생의 답변이 정답과 유사합니다. 좋은 답변입니다!"
	msgNoKeyDifferent  = "학생의 답변이 정답과 차이가 있습니다. 정답을 참고하세요."
	msgHeuristicPrefix = "간단한 평가: "
	msgProbeUnexpected = "API가 응답했지만 예상과 다릅니다: "
	msgProbeSuccess    = " API 연결 테스트 성공!"
	msgProbeFailed     = " API 연결 테스트 실패: "
	msgProbeKeyMissing = " API 키가 설정되지 않았습니다."
)

// ProviderFactory builds a provider for an API key.
type ProviderFactory func(name ProviderName, apiKey string) Provider

type Options struct {
	OpenAIModel       string
	GeminiModel       string
	PerplexityModel   string
	PerplexityBaseURL string

	// Providers are tried in this order; names not listed are never chained
	// but can still be tested.
	Order   []ProviderName
	Timeout time.Duration

	// Factory overrides how providers are built. Nil uses the SDK clients.
	Factory ProviderFactory
}

// FeedbackResult is the evaluation of one answer. IsCorrect is only set for
// multiple choice. Heuristic is true when no provider produced the text.
type FeedbackResult struct {
	Text      string       `json:"text"`
	Provider  ProviderName `json:"provider,omitempty"`
	IsCorrect *bool        `json:"is_correct,omitempty"`
	Heuristic bool         `json:"heuristic"`
	Errors    []string     `json:"errors,omitempty"`
}

type Generation struct {
	Text     string       `json:"text"`
	Provider ProviderName `json:"provider"`
}

type ConnectionResult struct {
	Provider ProviderName `json:"provider"`
	OK       bool         `json:"ok"`
	Message  string       `json:"message"`
	Response string       `json:"response,omitempty"`
}

// Gateway routes prompts to the configured providers in priority order.
// It is safe for concurrent use; Configure swaps providers atomically.
type Gateway struct {
	opts    Options
	catalog *Catalog
	logger  *slog.Logger

	mu     sync.RWMutex
	keys   Keys
	byName map[ProviderName]Provider
	chain  []Provider
}

func NewGateway(opts Options, keys Keys, logger *slog.Logger) (*Gateway, error) {
	catalog, err := LoadCatalog()
	if err != nil {
		return nil, err
	}
	if len(opts.Order) == 0 {
		opts.Order = AllProviders
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	g := &Gateway{opts: opts, catalog: catalog, logger: logger}
	if g.opts.Factory == nil {
		g.opts.Factory = g.sdkProvider
	}
	g.Configure(keys)
	return g, nil
}

func (g *Gateway) sdkProvider(name ProviderName, apiKey string) Provider {
	switch name {
	case ProviderOpenAI:
		return NewOpenAIProvider(apiKey, g.opts.OpenAIModel)
	case ProviderGemini:
		return NewGeminiProvider(apiKey, g.opts.GeminiModel)
	case ProviderPerplexity:
		return NewPerplexityProvider(apiKey, g.opts.PerplexityModel, g.opts.PerplexityBaseURL)
	}
	return nil
}

// Configure rebuilds the providers from keys. Providers with an empty key
// are dropped.
func (g *Gateway) Configure(keys Keys) {
	byName := make(map[ProviderName]Provider)
	for _, name := range AllProviders {
		key := strings.TrimSpace(keys.For(name))
		if key == "" {
			continue
		}
		if p := g.opts.Factory(name, key); p != nil {
			byName[name] = p
		}
	}

	chain := make([]Provider, 0, len(byName))
	for _, name := range g.opts.Order {
		if p, ok := byName[name]; ok {
			chain = append(chain, p)
		}
	}

	g.mu.Lock()
	g.keys = keys
	g.byName = byName
	g.chain = chain
	g.mu.Unlock()

	g.logger.Info("LLM providers configured", "ready", names(chain))
}

func (g *Gateway) Keys() Keys {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.keys
}

// Ready lists the chained providers in the order they are tried.
func (g *Gateway) Ready() []ProviderName {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return names(g.chain)
}

func (g *Gateway) Catalog() *Catalog {
	return g.catalog
}

func (g *Gateway) providers(preferred ProviderName) []Provider {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Provider, 0, len(g.chain)+1)
	if p, ok := g.byName[preferred]; ok {
		out = append(out, p)
	}
	for _, p := range g.chain {
		if p.Name() != preferred {
			out = append(out, p)
		}
	}
	return out
}

func (g *Gateway) call(ctx context.Context, p Provider, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	start := time.Now()
	text, err := p.Generate(ctx, req)
	if err != nil {
		var perr *ProviderError
		if !errors.As(err, &perr) {
			err = &ProviderError{Provider: p.Name(), Err: err}
		}
		g.logger.WarnContext(ctx, "LLM provider call failed",
			"provider", p.Name(),
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err)
		return "", err
	}
	g.logger.DebugContext(ctx, "LLM provider call succeeded",
		"provider", p.Name(),
		"duration_ms", time.Since(start).Milliseconds())
	return text, nil
}

// Feedback evaluates a student's answer. Multiple choice is judged locally;
// open-ended answers go through the provider chain and fall back to a
// containment check when no provider answers.
func (g *Gateway) Feedback(ctx context.Context, p *models.Problem, answer string) FeedbackResult {
	if p.QuestionType == models.MultipleChoice {
		correct := p.IsCorrectChoice(answer)
		text := MsgIncorrect
		if correct {
			text = MsgCorrect
		}
		if p.Explanation != "" {
			text += "\n\n" + p.Explanation
		}
		return FeedbackResult{Text: text, IsCorrect: &correct}
	}

	similar := IsSimilar(answer, p.Answer)
	chain := g.providers("")
	if len(chain) == 0 {
		text := MsgNoKey + " " + msgNoKeyDifferent
		if similar {
			text = MsgNoKey + " " + msgNoKeySimilar
		}
		return FeedbackResult{Text: text, Heuristic: true}
	}

	req := Request{
		System: g.catalog.FeedbackSystem,
		Prompt: g.catalog.FeedbackPrompt(p, answer),
	}

	var diagnostics []string
	for _, provider := range chain {
		text, err := g.call(ctx, provider, req)
		if err == nil {
			return FeedbackResult{Text: text, Provider: provider.Name()}
		}
		diagnostics = append(diagnostics, err.Error())
	}

	judgment := MsgDifferent
	if similar {
		judgment = MsgSimilar
	}
	text := strings.Join(diagnostics, "\n") + "\n\n" + msgHeuristicPrefix + judgment
	return FeedbackResult{Text: text, Heuristic: true, Errors: diagnostics}
}

// IsSimilar reports whether either answer contains the other, ignoring case.
// An empty answer is contained in anything and counts as similar.
func IsSimilar(answer, expected string) bool {
	a := strings.ToLower(answer)
	e := strings.ToLower(expected)
	return strings.Contains(e, a) || strings.Contains(a, e)
}

// GenerateProblems asks the providers for problem text in the layout the
// parser understands. There is no local fallback.
func (g *Gateway) GenerateProblems(ctx context.Context, req GenerationRequest) (*Generation, error) {
	chain := g.providers(req.Provider)
	if len(chain) == 0 {
		return nil, ErrNoProvider
	}

	prompt := Request{
		Prompt:      g.catalog.GenerationPrompt(req),
		Temperature: generationTemperature,
		MaxTokens:   generationMaxTokens,
	}

	var errs []error
	for _, provider := range chain {
		text, err := g.call(ctx, provider, prompt)
		if err == nil {
			g.logger.InfoContext(ctx, "Problems generated",
				"provider", provider.Name(),
				"school_type", req.SchoolType,
				"difficulty", req.Difficulty,
				"count", req.Count)
			return &Generation{Text: text, Provider: provider.Name()}, nil
		}
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("all providers failed: %w", errors.Join(errs...))
}

// TestConnection sends a fixed probe to a single provider.
func (g *Gateway) TestConnection(ctx context.Context, name ProviderName) (*ConnectionResult, error) {
	if _, ok := ParseProviderName(string(name)); !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownProvider)
	}

	g.mu.RLock()
	provider, ok := g.byName[name]
	g.mu.RUnlock()

	result := &ConnectionResult{Provider: name}
	if !ok {
		result.Message = name.DisplayName() + msgProbeKeyMissing
		return result, nil
	}

	text, err := g.call(ctx, provider, Request{
		System:    g.catalog.ProbeSystem,
		Prompt:    g.catalog.ProbePrompt,
		MaxTokens: probeMaxTokens,
	})
	if err != nil {
		var perr *ProviderError
		if errors.As(err, &perr) {
			err = perr.Err
		}
		result.Message = name.DisplayName() + msgProbeFailed + err.Error()
		return result, nil
	}

	result.Response = text
	if strings.Contains(text, g.catalog.ProbeExpect) {
		result.OK = true
		result.Message = name.DisplayName() + msgProbeSuccess
	} else {
		result.Message = msgProbeUnexpected + text
	}
	return result, nil
}

func names(providers []Provider) []ProviderName {
	out := make([]ProviderName, len(providers))
	for i, p := range providers {
		out[i] = p.Name()
	}
	return out
}
