package search

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"articleforge/internal/logger"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Factory and transport errors. Collectors treat all of them as "no results".
var (
	ErrMissingAPIKey       = errors.New("API key is required")
	ErrMissingSearchID     = errors.New("search ID is required")
	ErrUnsupportedProvider = errors.New("unsupported search provider")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrProviderUnavailable = errors.New("search provider unavailable")
)

// Provider defines the unified interface for search providers
type Provider interface {
	// Search performs a search with configuration
	Search(ctx context.Context, query string, config Config) ([]Result, error)

	// GetName returns the name of the search provider
	GetName() string
}

// Config holds configuration for search requests
type Config struct {
	MaxResults int    // Maximum number of results to return
	Language   string // Language preference (e.g., "en", "es")
}

// Result represents a unified search result
type Result struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Domain  string `json:"domain"`
	Source  string `json:"source"` // Provider-specific source identifier
	Rank    int    `json:"rank"`   // Position in search results
}

// ProviderType represents the type of search provider
type ProviderType string

const (
	ProviderTypeGoogle  ProviderType = "google"
	ProviderTypeSerpAPI ProviderType = "serpapi"
	ProviderTypeMock    ProviderType = "mock"
)

// ProviderFactory creates search providers based on type and configuration
type ProviderFactory struct {
	Timeout time.Duration
}

// NewProviderFactory creates a new provider factory
func NewProviderFactory() *ProviderFactory {
	return &ProviderFactory{Timeout: 30 * time.Second}
}

// CreateProvider creates a search provider of the specified type
func (f *ProviderFactory) CreateProvider(providerType ProviderType, config map[string]string) (Provider, error) {
	switch providerType {
	case ProviderTypeGoogle:
		if config["api_key"] == "" {
			return nil, ErrMissingAPIKey
		}
		if config["search_id"] == "" {
			return nil, ErrMissingSearchID
		}
		p := NewGoogleProvider(config["api_key"], config["search_id"])
		p.client = newHTTPClient(f.Timeout)
		return p, nil
	case ProviderTypeSerpAPI:
		if config["api_key"] == "" {
			return nil, ErrMissingAPIKey
		}
		p := NewSerpAPIProvider(config["api_key"])
		p.client = newHTTPClient(f.Timeout)
		return p, nil
	case ProviderTypeMock:
		return NewMockProvider(), nil
	default:
		return nil, ErrUnsupportedProvider
	}
}

// CreateOrMock creates the requested provider, substituting the mock
// generator when credentials are missing or the type is unknown.
func (f *ProviderFactory) CreateOrMock(providerType ProviderType, config map[string]string) Provider {
	provider, err := f.CreateProvider(providerType, config)
	if err != nil {
		logger.Warn("Search provider unavailable, using mock results",
			"provider", string(providerType), "reason", err.Error())
		return NewMockProvider()
	}
	return provider
}

// GetAvailableProviders returns a list of available provider types
func (f *ProviderFactory) GetAvailableProviders() []ProviderType {
	return []ProviderType{
		ProviderTypeGoogle,
		ProviderTypeSerpAPI,
		ProviderTypeMock,
	}
}

// ExtractDomain returns the host of urlStr without a leading "www.".
func ExtractDomain(urlStr string) string {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}
