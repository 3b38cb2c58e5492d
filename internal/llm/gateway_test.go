package llm

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SAP-F-2025/english-practice-service/internal/models"
)

// MockProvider returns a canned reply or error and records the requests.
type MockProvider struct {
	name  ProviderName
	reply string
	err   error
	delay time.Duration

	mu       sync.Mutex
	requests []Request
}

func (m *MockProvider) Name() ProviderName { return m.name }

func (m *MockProvider) Generate(ctx context.Context, req Request) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

func (m *MockProvider) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestGateway(t *testing.T, mocks map[ProviderName]*MockProvider, keys Keys, order ...ProviderName) *Gateway {
	t.Helper()
	g, err := NewGateway(Options{
		Order:   order,
		Timeout: time.Second,
		Factory: func(name ProviderName, apiKey string) Provider {
			if m, ok := mocks[name]; ok {
				return m
			}
			return nil
		},
	}, keys, testLogger())
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}
	return g
}

var openEnded = &models.Problem{
	QuestionType: models.ShortAnswer,
	Question:     "What is the past tense of go?",
	Answer:       "went",
}

func TestGateway_FeedbackMultipleChoiceIsLocal(t *testing.T) {
	openai := &MockProvider{name: ProviderOpenAI, reply: "should not be called"}
	g := newTestGateway(t, map[ProviderName]*MockProvider{ProviderOpenAI: openai}, Keys{OpenAI: "k"})

	problem := &models.Problem{QuestionType: models.MultipleChoice, Answer: "B", Explanation: "B is the verb."}

	tests := []struct {
		answer  string
		correct bool
		prefix  string
	}{
		{"b", true, MsgCorrect},
		{" B ", true, MsgCorrect},
		{"A", false, MsgIncorrect},
	}
	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			res := g.Feedback(context.Background(), problem, tt.answer)
			if res.IsCorrect == nil || *res.IsCorrect != tt.correct {
				t.Errorf("IsCorrect = %v, want %v", res.IsCorrect, tt.correct)
			}
			if !strings.HasPrefix(res.Text, tt.prefix) || !strings.HasSuffix(res.Text, "B is the verb.") {
				t.Errorf("Text = %q", res.Text)
			}
		})
	}
	if openai.calls() != 0 {
		t.Error("multiple choice must not call a provider")
	}
}

func TestGateway_FeedbackWithoutProviders(t *testing.T) {
	g := newTestGateway(t, nil, Keys{})

	res := g.Feedback(context.Background(), openEnded, "Went")
	if !res.Heuristic {
		t.Error("expected heuristic result")
	}
	if !strings.HasPrefix(res.Text, MsgNoKey) || !strings.Contains(res.Text, "유사") {
		t.Errorf("Text = %q", res.Text)
	}

	res = g.Feedback(context.Background(), openEnded, "goed")
	if !strings.Contains(res.Text, "차이") {
		t.Errorf("Text = %q, want a difference judgment", res.Text)
	}
}

func TestGateway_FeedbackChainsOnFailure(t *testing.T) {
	openai := &MockProvider{name: ProviderOpenAI, err: errors.New("invalid api key")}
	gemini := &MockProvider{name: ProviderGemini, reply: "점수: 90/100"}
	g := newTestGateway(t, map[ProviderName]*MockProvider{
		ProviderOpenAI: openai,
		ProviderGemini: gemini,
	}, Keys{OpenAI: "bad", Gemini: "good"})

	res := g.Feedback(context.Background(), openEnded, "went")
	if res.Provider != ProviderGemini || res.Text != "점수: 90/100" || res.Heuristic {
		t.Errorf("result = %+v", res)
	}
	if openai.calls() != 1 || gemini.calls() != 1 {
		t.Errorf("calls openai=%d gemini=%d", openai.calls(), gemini.calls())
	}

	req := gemini.requests[0]
	if req.System != "너는 영어 교사이자 평가자야." {
		t.Errorf("System = %q", req.System)
	}
	for _, want := range []string{"문제: What is the past tense of go?", "정답: went", "학생 답변: went", "100점 만점"} {
		if !strings.Contains(req.Prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestGateway_FeedbackAllFail(t *testing.T) {
	g := newTestGateway(t, map[ProviderName]*MockProvider{
		ProviderOpenAI:     {name: ProviderOpenAI, err: errors.New("quota exceeded")},
		ProviderPerplexity: {name: ProviderPerplexity, err: errors.New("timeout")},
	}, Keys{OpenAI: "a", Perplexity: "b"})

	res := g.Feedback(context.Background(), openEnded, "I went")
	if !res.Heuristic || len(res.Errors) != 2 {
		t.Fatalf("result = %+v", res)
	}
	for _, want := range []string{"OpenAI API 연결 오류: quota exceeded", "Perplexity API 연결 오류: timeout", "간단한 평가: " + MsgSimilar} {
		if !strings.Contains(res.Text, want) {
			t.Errorf("Text missing %q:\n%s", want, res.Text)
		}
	}
}

func TestGateway_ProviderOrder(t *testing.T) {
	mocks := map[ProviderName]*MockProvider{
		ProviderOpenAI:     {name: ProviderOpenAI, reply: "openai"},
		ProviderGemini:     {name: ProviderGemini, reply: "gemini"},
		ProviderPerplexity: {name: ProviderPerplexity, reply: "perplexity"},
	}
	keys := Keys{OpenAI: "a", Gemini: "b", Perplexity: "c"}

	g := newTestGateway(t, mocks, keys, ProviderPerplexity, ProviderOpenAI)
	ready := g.Ready()
	if len(ready) != 2 || ready[0] != ProviderPerplexity || ready[1] != ProviderOpenAI {
		t.Errorf("Ready() = %v", ready)
	}

	gen, err := g.GenerateProblems(context.Background(), GenerationRequest{SchoolType: "중학교", Difficulty: "하", Count: 3})
	if err != nil {
		t.Fatal(err)
	}
	if gen.Provider != ProviderPerplexity {
		t.Errorf("Provider = %s, want perplexity first", gen.Provider)
	}

	gen, err = g.GenerateProblems(context.Background(), GenerationRequest{Count: 1, Provider: ProviderGemini})
	if err != nil {
		t.Fatal(err)
	}
	if gen.Provider != ProviderGemini {
		t.Errorf("Provider = %s, want explicitly requested gemini", gen.Provider)
	}
}

func TestGateway_GenerateProblems(t *testing.T) {
	t.Run("no provider", func(t *testing.T) {
		g := newTestGateway(t, nil, Keys{})
		if _, err := g.GenerateProblems(context.Background(), GenerationRequest{Count: 5}); !errors.Is(err, ErrNoProvider) {
			t.Errorf("error = %v, want ErrNoProvider", err)
		}
	})

	t.Run("prompt and sampling", func(t *testing.T) {
		openai := &MockProvider{name: ProviderOpenAI, reply: "[문제 1]\n문제: Hi"}
		g := newTestGateway(t, map[ProviderName]*MockProvider{ProviderOpenAI: openai}, Keys{OpenAI: "k"})

		_, err := g.GenerateProblems(context.Background(), GenerationRequest{
			SchoolType: "고등학교", Grade: "2학년", Topic: "과학/기술", Difficulty: "상", Count: 4,
		})
		if err != nil {
			t.Fatal(err)
		}
		req := openai.requests[0]
		if req.Temperature != 0.7 || req.MaxTokens != 3000 {
			t.Errorf("sampling = %v/%d", req.Temperature, req.MaxTokens)
		}
		for _, want := range []string{
			"- 학교급: 고등학교",
			"- 문제 수: 4개",
			"고교 심화 수준의 영어 문법과 어휘, 학술적/전문적 주제의 의사소통",
			"1. 고등학교 2학년 수준에 맞는 어휘와 문법 사용",
		} {
			if !strings.Contains(req.Prompt, want) {
				t.Errorf("prompt missing %q", want)
			}
		}
	})

	t.Run("all fail", func(t *testing.T) {
		boom := errors.New("boom")
		g := newTestGateway(t, map[ProviderName]*MockProvider{
			ProviderGemini: {name: ProviderGemini, err: boom},
		}, Keys{Gemini: "k"})
		_, err := g.GenerateProblems(context.Background(), GenerationRequest{Count: 1})
		if !errors.Is(err, boom) {
			t.Errorf("error = %v, want wrapped provider error", err)
		}
		var perr *ProviderError
		if !errors.As(err, &perr) || perr.Provider != ProviderGemini {
			t.Errorf("error = %v, want *ProviderError for gemini", err)
		}
	})
}

func TestGateway_CallTimeout(t *testing.T) {
	slow := &MockProvider{name: ProviderOpenAI, reply: "late", delay: time.Minute}
	g, err := NewGateway(Options{
		Timeout: 20 * time.Millisecond,
		Factory: func(ProviderName, string) Provider { return slow },
	}, Keys{OpenAI: "k"}, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	res := g.Feedback(context.Background(), openEnded, "went")
	if !res.Heuristic {
		t.Errorf("expected heuristic fallback after timeout, got %+v", res)
	}
}

func TestGateway_ConfigureAtRuntime(t *testing.T) {
	mocks := map[ProviderName]*MockProvider{ProviderGemini: {name: ProviderGemini, reply: "ok"}}
	g := newTestGateway(t, mocks, Keys{})
	if len(g.Ready()) != 0 {
		t.Fatalf("Ready() = %v, want none", g.Ready())
	}

	g.Configure(Keys{Gemini: "new-key"})
	if ready := g.Ready(); len(ready) != 1 || ready[0] != ProviderGemini {
		t.Errorf("Ready() = %v", ready)
	}
	if g.Keys().Gemini != "new-key" {
		t.Error("keys not stored")
	}

	g.Configure(Keys{Gemini: "   "})
	if len(g.Ready()) != 0 {
		t.Error("blank key should disable the provider")
	}
}

func TestGateway_TestConnection(t *testing.T) {
	mocks := map[ProviderName]*MockProvider{
		ProviderOpenAI:     {name: ProviderOpenAI, reply: "Yes, I can hear you clearly."},
		ProviderGemini:     {name: ProviderGemini, reply: "Hello!"},
		ProviderPerplexity: {name: ProviderPerplexity, err: errors.New("401 unauthorized")},
	}
	g := newTestGateway(t, mocks, Keys{OpenAI: "a", Gemini: "b", Perplexity: "c"})

	tests := []struct {
		name    ProviderName
		wantOK  bool
		message string
	}{
		{ProviderOpenAI, true, "OpenAI API 연결 테스트 성공!"},
		{ProviderGemini, false, "API가 응답했지만 예상과 다릅니다: Hello!"},
		{ProviderPerplexity, false, "Perplexity API 연결 테스트 실패: 401 unauthorized"},
	}
	for _, tt := range tests {
		t.Run(string(tt.name), func(t *testing.T) {
			res, err := g.TestConnection(context.Background(), tt.name)
			if err != nil {
				t.Fatal(err)
			}
			if res.OK != tt.wantOK || res.Message != tt.message {
				t.Errorf("result = %+v", res)
			}
		})
	}

	if _, err := g.TestConnection(context.Background(), "claude"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("error = %v, want ErrUnknownProvider", err)
	}

	empty := newTestGateway(t, nil, Keys{})
	res, err := empty.TestConnection(context.Background(), ProviderOpenAI)
	if err != nil || res.OK || res.Message != "OpenAI API 키가 설정되지 않았습니다." {
		t.Errorf("result = %+v, err = %v", res, err)
	}
}

func TestIsSimilar(t *testing.T) {
	tests := []struct {
		answer, expected string
		want             bool
	}{
		{"went", "went", true},
		{"I WENT there", "went", true},
		{"go", "I go to school", true},
		{"goed", "went", false},
		// Substring match both ways: a blank answer is similar to any expected one.
		{"", "went", true},
		{"", "", true},
	}
	for _, tt := range tests {
		if got := IsSimilar(tt.answer, tt.expected); got != tt.want {
			t.Errorf("IsSimilar(%q, %q) = %v, want %v", tt.answer, tt.expected, got, tt.want)
		}
	}
}
