package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"articleforge/internal/prompt"

	"google.golang.org/genai"
)

// MockProvider replays scripted replies in order; the last one repeats.
type MockProvider struct {
	replies   []mockReply
	callCount int
	prompts   []string
}

type mockReply struct {
	resp *Response
	err  error
}

func (m *MockProvider) Generate(ctx context.Context, text string, cfg prompt.GenerationConfig) (*Response, error) {
	m.callCount++
	m.prompts = append(m.prompts, text)
	r := m.replies[len(m.replies)-1]
	if m.callCount <= len(m.replies) {
		r = m.replies[m.callCount-1]
	}
	return r.resp, r.err
}

func (m *MockProvider) Model() string { return "mock-model" }

type recordingSleeper struct {
	delays []time.Duration
	err    error
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return s.err
}

func newTestClient(p Provider, s *recordingSleeper) *Client {
	opts := DefaultClientOptions()
	opts.Sleep = s.Sleep
	return NewClient(p, opts)
}

func ok(text string) mockReply {
	return mockReply{resp: &Response{Text: text, FinishReason: "STOP"}}
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Base: 5 * time.Second, Max: 40 * time.Second}
	want := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second, 40 * time.Second}
	for i, w := range want {
		if got := b.Delay(i + 1); got != w {
			t.Errorf("Delay(%d) = %v, want %v", i+1, got, w)
		}
	}
	if got := b.Delay(0); got != 5*time.Second {
		t.Errorf("Delay(0) = %v, want base", got)
	}
	uncapped := Backoff{Base: time.Second}
	if got := uncapped.Delay(4); got != 8*time.Second {
		t.Errorf("uncapped Delay(4) = %v, want 8s", got)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		status  int
		message string
		want    Kind
	}{
		{429, "", KindRateLimited},
		{0, "RESOURCE_EXHAUSTED: quota exceeded", KindRateLimited},
		{500, "Resource exhausted, try later", KindRateLimited},
		{401, "", KindAuth},
		{403, "", KindAuth},
		{0, "API key not valid. Please pass a valid API key.", KindAuth},
		{0, "authentication failed", KindAuth},
		{400, "", KindInvalidRequest},
		{0, "INVALID_ARGUMENT: bad field", KindInvalidRequest},
		{0, "upstream returned 400", KindInvalidRequest},
		{500, "internal error", KindNetwork},
		{503, "UNAVAILABLE: overloaded", KindNetwork},
		{0, "connection reset by peer", KindNetwork},
	}
	for _, tt := range tests {
		if got := Classify(tt.status, tt.message); got != tt.want {
			t.Errorf("Classify(%d, %q) = %s, want %s", tt.status, tt.message, got, tt.want)
		}
	}
}

func TestKindRetryable(t *testing.T) {
	retryable := []Kind{KindNetwork, KindRateLimited, KindEmptyResponse}
	final := []Kind{KindAuth, KindInvalidRequest, KindSafetyBlocked, KindExhausted}
	for _, k := range retryable {
		if !k.Retryable() {
			t.Errorf("%s should be retryable", k)
		}
	}
	for _, k := range final {
		if k.Retryable() {
			t.Errorf("%s should not be retryable", k)
		}
	}
}

func TestInvokeRetryBound(t *testing.T) {
	p := &MockProvider{replies: []mockReply{{err: &ProviderError{StatusCode: 429, Message: "RESOURCE_EXHAUSTED"}}}}
	s := &recordingSleeper{}
	c := newTestClient(p, s)

	_, err := c.Invoke(context.Background(), "prompt", prompt.GenerationConfig{})
	if p.callCount != 3 {
		t.Errorf("Expected exactly 3 provider calls, got %d", p.callCount)
	}
	if KindOf(err) != KindExhausted {
		t.Fatalf("Expected exhausted error, got %v", err)
	}
	var e *Error
	if !errors.As(err, &e) || e.Attempts != 3 || e.StatusCode != 429 {
		t.Errorf("Unexpected exhausted error: %+v", e)
	}
	if !errors.Is(err, &Error{Kind: KindRateLimited}) {
		t.Errorf("Expected exhausted error to wrap the rate limit, got %v", err)
	}
	want := []time.Duration{5 * time.Second, 10 * time.Second}
	if fmt.Sprint(s.delays) != fmt.Sprint(want) {
		t.Errorf("Expected delays %v, got %v", want, s.delays)
	}
}

func TestInvokeSafetyBlockStopsImmediately(t *testing.T) {
	p := &MockProvider{replies: []mockReply{{resp: &Response{Text: "partial", FinishReason: "SAFETY"}}}}
	s := &recordingSleeper{}
	c := newTestClient(p, s)

	_, err := c.Invoke(context.Background(), "prompt", prompt.GenerationConfig{})
	if KindOf(err) != KindSafetyBlocked {
		t.Fatalf("Expected safety block, got %v", err)
	}
	if p.callCount != 1 || len(s.delays) != 0 {
		t.Errorf("Expected one call and no sleep, got %d calls and %v", p.callCount, s.delays)
	}
}

func TestInvokePromptBlock(t *testing.T) {
	p := &MockProvider{replies: []mockReply{{resp: &Response{BlockReason: "SAFETY"}}}}
	_, err := newTestClient(p, &recordingSleeper{}).Invoke(context.Background(), "prompt", prompt.GenerationConfig{})
	if KindOf(err) != KindSafetyBlocked {
		t.Errorf("Expected safety block for blocked prompt, got %v", err)
	}
}

func TestInvokeNonRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"auth status", &ProviderError{StatusCode: 401, Message: "unauthenticated"}, KindAuth},
		{"api key message", &ProviderError{StatusCode: 0, Message: "API key expired"}, KindAuth},
		{"invalid request", &ProviderError{StatusCode: 400, Message: "INVALID_ARGUMENT"}, KindInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &MockProvider{replies: []mockReply{{err: tt.err}}}
			s := &recordingSleeper{}
			_, err := newTestClient(p, s).Invoke(context.Background(), "prompt", prompt.GenerationConfig{})
			if KindOf(err) != tt.want {
				t.Errorf("Expected %s, got %v", tt.want, err)
			}
			if p.callCount != 1 || len(s.delays) != 0 {
				t.Errorf("Expected a single call without sleep, got %d calls", p.callCount)
			}
		})
	}
}

func TestInvokeRecoversAfterRetryableFailures(t *testing.T) {
	p := &MockProvider{replies: []mockReply{
		{resp: &Response{Text: "   ", FinishReason: "STOP"}},
		{err: errors.New("connection reset by peer")},
		ok(`{"content":"<h1>x</h1>"}`),
	}}
	s := &recordingSleeper{}
	var observed []Kind
	opts := DefaultClientOptions()
	opts.Sleep = s.Sleep
	opts.OnAttempt = func(attempt int, err *Error) {
		if err == nil {
			observed = append(observed, "")
			return
		}
		observed = append(observed, err.Kind)
	}

	res, err := NewClient(p, opts).Invoke(context.Background(), "prompt", prompt.GenerationConfig{})
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if res.Attempts != 3 || res.Text != `{"content":"<h1>x</h1>"}` {
		t.Errorf("Unexpected result: %+v", res)
	}
	want := []Kind{KindEmptyResponse, KindNetwork, ""}
	if fmt.Sprint(observed) != fmt.Sprint(want) {
		t.Errorf("Observed %v, want %v", observed, want)
	}
}

func TestInvokeStopsWhenSleepCancelled(t *testing.T) {
	p := &MockProvider{replies: []mockReply{{err: &ProviderError{StatusCode: 503, Message: "unavailable"}}}}
	s := &recordingSleeper{err: context.Canceled}

	_, err := newTestClient(p, s).Invoke(context.Background(), "prompt", prompt.GenerationConfig{})
	if KindOf(err) != KindNetwork {
		t.Errorf("Expected the last classified error, got %v", err)
	}
	if p.callCount != 1 {
		t.Errorf("Expected 1 call before cancellation, got %d", p.callCount)
	}
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(&MockProvider{replies: []mockReply{ok("x")}}, ClientOptions{})
	if c.options.MaxAttempts != 3 || c.options.Backoff.Base != 5*time.Second || c.options.Sleep == nil {
		t.Errorf("Defaults not applied: %+v", c.options)
	}
	if c.Model() != "mock-model" {
		t.Errorf("Model() = %s", c.Model())
	}
}

func TestToGenaiConfig(t *testing.T) {
	cfg := prompt.Build("body", nil, prompt.Options{}).Config
	out := toGenaiConfig(cfg)

	if out.Temperature == nil || *out.Temperature != prompt.DefaultTemperature {
		t.Errorf("Temperature not mapped: %v", out.Temperature)
	}
	if out.TopK == nil || *out.TopK != prompt.DefaultTopK || out.TopP == nil || *out.TopP != prompt.DefaultTopP {
		t.Error("TopK/TopP not mapped")
	}
	if out.MaxOutputTokens != prompt.DefaultMaxOutputTokens || out.ResponseMIMEType != "application/json" {
		t.Errorf("Unexpected limits: %d %s", out.MaxOutputTokens, out.ResponseMIMEType)
	}
	if len(out.SafetySettings) != 4 || out.SafetySettings[0].Category != genai.HarmCategoryHarassment {
		t.Errorf("Unexpected safety settings: %+v", out.SafetySettings)
	}
	zero := float32(0)
	greedy := toGenaiConfig(prompt.Build("body", nil, prompt.Options{Temperature: &zero}).Config)
	if greedy.Temperature == nil || *greedy.Temperature != 0 {
		t.Errorf("Expected explicit zero temperature to be sent, got %v", greedy.Temperature)
	}
}

func TestFromGenaiResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Parts: []*genai.Part{{Text: "hello"}}, Role: "model"},
			FinishReason: genai.FinishReasonSafety,
			SafetyRatings: []*genai.SafetyRating{{
				Category:    genai.HarmCategoryHateSpeech,
				Probability: genai.HarmProbabilityHigh,
				Blocked:     true,
			}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     10,
			CandidatesTokenCount: 5,
			TotalTokenCount:      15,
		},
	}

	out := fromGenaiResponse(resp)
	if out.Text != "hello" || out.FinishReason != "SAFETY" {
		t.Errorf("Unexpected response: %+v", out)
	}
	if len(out.SafetyRatings) != 1 || !out.SafetyRatings[0].Blocked {
		t.Errorf("Safety ratings not mapped: %+v", out.SafetyRatings)
	}
	if out.Usage.TotalTokens != 15 {
		t.Errorf("Usage not mapped: %+v", out.Usage)
	}
	if evaluate(out, nil).Kind != KindSafetyBlocked {
		t.Error("Expected safety finish reason to classify as blocked")
	}
}

func TestToProviderError(t *testing.T) {
	err := toProviderError(genai.APIError{Code: 429, Message: "quota exceeded", Status: "RESOURCE_EXHAUSTED"})
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected ProviderError, got %T", err)
	}
	if pe.StatusCode != 429 || pe.Message != "RESOURCE_EXHAUSTED: quota exceeded" {
		t.Errorf("Unexpected provider error: %+v", pe)
	}

	plain := errors.New("dial tcp: timeout")
	if got := toProviderError(plain); got != plain {
		t.Errorf("Expected transport error to pass through, got %v", got)
	}
}
