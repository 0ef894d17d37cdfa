package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"articleforge/internal/prompt"

	"google.golang.org/genai"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

// GeminiProvider implements Provider on the Gemini API.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a Gemini-backed provider. httpClient may be nil.
func NewGeminiProvider(ctx context.Context, apiKey, model string, httpClient *http.Client) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required. Set GEMINI_API_KEY environment variable or ai.gemini.api_key in config file")
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{client: client, model: model}, nil
}

// Model returns the configured model name.
func (g *GeminiProvider) Model() string {
	return g.model
}

// Generate sends one prompt to the model.
func (g *GeminiProvider) Generate(ctx context.Context, text string, cfg prompt.GenerationConfig) (*Response, error) {
	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: text}},
		Role:  "user",
	}}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, toGenaiConfig(cfg))
	if err != nil {
		return nil, toProviderError(err)
	}
	return fromGenaiResponse(resp), nil
}

func toGenaiConfig(cfg prompt.GenerationConfig) *genai.GenerateContentConfig {
	out := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(cfg.Temperature),
		MaxOutputTokens:  cfg.MaxOutputTokens,
		ResponseMIMEType: cfg.ResponseMIMEType,
	}
	if cfg.TopK > 0 {
		out.TopK = genai.Ptr(cfg.TopK)
	}
	if cfg.TopP > 0 {
		out.TopP = genai.Ptr(cfg.TopP)
	}
	for _, s := range cfg.SafetySettings {
		out.SafetySettings = append(out.SafetySettings, &genai.SafetySetting{
			Category:  genai.HarmCategory(s.Category),
			Threshold: genai.HarmBlockThreshold(s.Threshold),
		})
	}
	return out
}

func fromGenaiResponse(resp *genai.GenerateContentResponse) *Response {
	out := &Response{}
	if resp == nil {
		return out
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		out.BlockReason = string(resp.PromptFeedback.BlockReason)
	}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			PromptTokens:    resp.UsageMetadata.PromptTokenCount,
			CandidateTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:     resp.UsageMetadata.TotalTokenCount,
		}
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
		cand := resp.Candidates[0]
		out.FinishReason = string(cand.FinishReason)
		for _, r := range cand.SafetyRatings {
			if r == nil {
				continue
			}
			out.SafetyRatings = append(out.SafetyRatings, SafetyRating{
				Category:    string(r.Category),
				Probability: string(r.Probability),
				Blocked:     r.Blocked,
			})
		}
		out.Text = resp.Text()
	}
	return out
}

// toProviderError keeps the API status so Classify can see it.
func toProviderError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{StatusCode: apiErr.Code, Message: apiMessage(apiErr)}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &ProviderError{StatusCode: apiErrPtr.Code, Message: apiMessage(*apiErrPtr)}
	}
	return err
}

func apiMessage(e genai.APIError) string {
	if e.Status == "" {
		return e.Message
	}
	return e.Status + ": " + e.Message
}
