// Package llm invokes the text generation provider with classification,
// bounded retries and exponential backoff.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"articleforge/internal/logger"
	"articleforge/internal/prompt"
)

// Response is a successful provider reply.
type Response struct {
	Text          string
	FinishReason  string
	BlockReason   string
	SafetyRatings []SafetyRating
	Usage         Usage
}

// SafetyRating is one per-category safety assessment.
type SafetyRating struct {
	Category    string
	Probability string
	Blocked     bool
}

// Usage is token accounting reported by the provider.
type Usage struct {
	PromptTokens    int32
	CandidateTokens int32
	TotalTokens     int32
}

// Provider is the generation transport. A non-success reply is returned as
// *ProviderError; any other error is treated as a transport failure.
type Provider interface {
	Generate(ctx context.Context, text string, cfg prompt.GenerationConfig) (*Response, error)
	Model() string
}

// RawResult is the outcome of a successful Invoke.
type RawResult struct {
	Response
	Attempts int
}

// finish reasons that mean the output was withheld for policy reasons
var safetyFinishReasons = map[string]bool{
	"SAFETY":             true,
	"PROHIBITED_CONTENT": true,
	"BLOCKLIST":          true,
	"SPII":               true,
	"IMAGE_SAFETY":       true,
}

// Backoff computes the wait before a retry: Base doubled per attempt, capped at Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait after the given failed attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the real Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ClientOptions configures the retry loop.
type ClientOptions struct {
	MaxAttempts int
	Backoff     Backoff
	CallTimeout time.Duration // per attempt; 0 disables
	Sleep       Sleeper
	// OnAttempt is called after every attempt; err is nil on success.
	OnAttempt func(attempt int, err *Error)
}

// DefaultClientOptions returns the production retry policy.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		MaxAttempts: 3,
		Backoff:     Backoff{Base: 5 * time.Second, Max: 40 * time.Second},
		CallTimeout: 90 * time.Second,
		Sleep:       SleepContext,
	}
}

// Client wraps a Provider with the retry state machine.
type Client struct {
	provider Provider
	options  ClientOptions
}

// NewClient creates a Client. Zero option fields take their defaults.
func NewClient(provider Provider, options ClientOptions) *Client {
	defaults := DefaultClientOptions()
	if options.MaxAttempts <= 0 {
		options.MaxAttempts = defaults.MaxAttempts
	}
	if options.Backoff.Base <= 0 {
		options.Backoff = defaults.Backoff
	}
	if options.Sleep == nil {
		options.Sleep = defaults.Sleep
	}
	return &Client{provider: provider, options: options}
}

// Model returns the provider's model identifier.
func (c *Client) Model() string {
	return c.provider.Model()
}

// Invoke runs up to MaxAttempts provider calls. Safety blocks and
// non-retryable classifications return at once; retryable failures wait
// Backoff.Delay(attempt) first. When every attempt fails the returned
// *Error has KindExhausted and wraps the last failure.
func (c *Client) Invoke(ctx context.Context, text string, cfg prompt.GenerationConfig) (*RawResult, error) {
	maxAttempts := c.options.MaxAttempts
	var last *Error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := c.call(ctx, text, cfg)
		failure := evaluate(resp, err)

		if c.options.OnAttempt != nil {
			c.options.OnAttempt(attempt, failure)
		}

		if failure == nil {
			logger.Debug("Generation succeeded",
				"model", c.provider.Model(),
				"attempt", attempt,
				"finish_reason", resp.FinishReason,
				"total_tokens", resp.Usage.TotalTokens)
			return &RawResult{Response: *resp, Attempts: attempt}, nil
		}

		failure.Attempts = attempt
		last = failure

		if !failure.Kind.Retryable() {
			logger.Warn("Generation failed without retry",
				"model", c.provider.Model(),
				"attempt", attempt,
				"kind", string(failure.Kind),
				"status", failure.StatusCode,
				"message", failure.Message)
			return nil, failure
		}
		if attempt == maxAttempts {
			break
		}

		delay := c.options.Backoff.Delay(attempt)
		logger.Warn("Generation attempt failed, retrying",
			"model", c.provider.Model(),
			"attempt", attempt,
			"kind", string(failure.Kind),
			"delay", delay.String())

		if err := c.options.Sleep(ctx, delay); err != nil {
			return nil, last
		}
	}

	return nil, &Error{
		Kind:       KindExhausted,
		Message:    fmt.Sprintf("gave up after %d attempts, last error: %s", maxAttempts, last.Error()),
		StatusCode: last.StatusCode,
		Attempts:   maxAttempts,
		Err:        last,
	}
}

func (c *Client) call(ctx context.Context, text string, cfg prompt.GenerationConfig) (*Response, error) {
	if c.options.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.options.CallTimeout)
		defer cancel()
	}
	return c.provider.Generate(ctx, text, cfg)
}

// evaluate returns nil for a usable response.
func evaluate(resp *Response, err error) *Error {
	if err != nil {
		return classifyError(err)
	}
	if resp == nil {
		return &Error{Kind: KindEmptyResponse, Message: "provider returned no response"}
	}
	if resp.BlockReason != "" {
		return &Error{Kind: KindSafetyBlocked, Message: "prompt blocked: " + resp.BlockReason}
	}
	if safetyFinishReasons[strings.ToUpper(resp.FinishReason)] {
		return &Error{Kind: KindSafetyBlocked, Message: "generation stopped: " + resp.FinishReason}
	}
	if strings.TrimSpace(resp.Text) == "" {
		return &Error{Kind: KindEmptyResponse, Message: "provider returned empty text"}
	}
	return nil
}
