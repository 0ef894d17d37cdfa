package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Kind classifies a generation failure.
type Kind string

const (
	KindNetwork        Kind = "network_error"
	KindRateLimited    Kind = "rate_limited"
	KindAuth           Kind = "auth_error"
	KindInvalidRequest Kind = "invalid_request"
	KindSafetyBlocked  Kind = "safety_blocked"
	KindEmptyResponse  Kind = "empty_response"
	KindExhausted      Kind = "all_attempts_exhausted"
)

// Retryable reports whether another attempt may succeed.
func (k Kind) Retryable() bool {
	switch k {
	case KindNetwork, KindRateLimited, KindEmptyResponse:
		return true
	}
	return false
}

// Error is the classified error returned by Client.Invoke.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Kind, so errors.Is(err, &Error{Kind: KindAuth}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ProviderError is a non-success response reported by a Provider.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Message)
}

// Classify maps a provider status code and message to a Kind. Rate limits
// are checked first because quota messages often mention the API key.
func Classify(statusCode int, message string) Kind {
	msg := strings.ToLower(message)

	switch {
	case statusCode == http.StatusTooManyRequests,
		strings.Contains(msg, "resource exhausted"),
		strings.Contains(msg, "resource_exhausted"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "quota"):
		return KindRateLimited
	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden,
		strings.Contains(msg, "api key"),
		strings.Contains(msg, "api_key"),
		strings.Contains(msg, "auth"),
		strings.Contains(msg, "permission denied"):
		return KindAuth
	case statusCode == http.StatusBadRequest,
		strings.Contains(msg, "invalid"),
		strings.Contains(msg, "400"):
		return KindInvalidRequest
	}
	return KindNetwork
}

// classifyError turns any provider call error into an *Error.
func classifyError(err error) *Error {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return &Error{
			Kind:       Classify(pe.StatusCode, pe.Message),
			Message:    pe.Message,
			StatusCode: pe.StatusCode,
			Err:        err,
		}
	}
	var netErr net.Error
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return &Error{Kind: KindNetwork, Message: err.Error(), Err: err}
	}
	return &Error{Kind: Classify(0, err.Error()), Message: err.Error(), Err: err}
}
