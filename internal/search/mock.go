package search

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"articleforge/internal/keywords"
)

// mockKeywords is how many query keywords seed the generated results.
const mockKeywords = 3

// mockSources are the reference sites the generator points at, in rank order.
var mockSources = []struct {
	domain string
	name   string
	path   func(term string) string
}{
	{"en.wikipedia.org", "Wikipedia", func(term string) string { return "/wiki/" + url.PathEscape(titleCase(term)) }},
	{"simple.wikipedia.org", "Simple English Wikipedia", func(term string) string { return "/wiki/" + url.PathEscape(titleCase(term)) }},
	{"www.britannica.com", "Britannica", func(term string) string { return "/topic/" + url.PathEscape(term) }},
}

// MockProvider generates deterministic results from the query's keywords so
// reference collection works without credentials or network search.
type MockProvider struct {
	name    string
	results []Result
}

// NewMockProvider creates a new mock search provider
func NewMockProvider() *MockProvider {
	return &MockProvider{name: "Mock"}
}

// GetName returns the name of this provider
func (m *MockProvider) GetName() string {
	return m.name
}

// Search returns canned results when set, otherwise results derived from
// the query. It ignores cancellation because it does no I/O.
func (m *MockProvider) Search(ctx context.Context, query string, config Config) ([]Result, error) {
	results := m.results
	if results == nil {
		results = Generate(query)
	}

	maxResults := config.MaxResults
	if maxResults <= 0 || maxResults > len(results) {
		maxResults = len(results)
	}

	out := make([]Result, maxResults)
	copy(out, results[:maxResults])
	return out, nil
}

// SetResults allows customization of mock results for testing
func (m *MockProvider) SetResults(results []Result) {
	m.results = results
}

// SetName allows customization of provider name for testing
func (m *MockProvider) SetName(name string) {
	m.name = name
}

// Generate builds ranked results for query. The same query always yields
// the same results: each source in turn, for each of the top keywords.
func Generate(query string) []Result {
	terms := keywords.Extract(query, mockKeywords)
	if len(terms) == 0 {
		for _, tok := range keywords.Tokenize(query) {
			terms = append(terms, tok)
			if len(terms) == mockKeywords {
				break
			}
		}
	}

	var results []Result
	for _, src := range mockSources {
		for _, term := range terms {
			link := "https://" + src.domain + src.path(term)
			results = append(results, Result{
				URL:     link,
				Title:   fmt.Sprintf("%s - %s", titleCase(term), src.name),
				Snippet: fmt.Sprintf("Background reading on %s from %s.", term, src.name),
				Domain:  ExtractDomain(link),
				Source:  "Mock",
				Rank:    len(results) + 1,
			})
		}
	}
	return results
}

func titleCase(term string) string {
	r, size := utf8.DecodeRuneInString(term)
	if r == utf8.RuneError {
		return term
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(term[size:])
}
