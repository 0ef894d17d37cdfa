package references

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"articleforge/internal/search"
)

type fakeScraper struct {
	mu     sync.Mutex
	fail   map[string]bool
	called []string
}

func (f *fakeScraper) Scrape(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	f.called = append(f.called, url)
	f.mu.Unlock()
	if f.fail[url] {
		return "", errors.New("boom")
	}
	return "<p>content of " + url + "</p>", nil
}

func (f *fakeScraper) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.called)
}

type errorProvider struct{}

func (e *errorProvider) Search(ctx context.Context, query string, config search.Config) ([]search.Result, error) {
	return nil, search.ErrProviderUnavailable
}

func (e *errorProvider) GetName() string { return "Error" }

func fixedProvider(urls ...string) *search.MockProvider {
	p := search.NewMockProvider()
	var results []search.Result
	for i, u := range urls {
		results = append(results, search.Result{URL: u, Title: fmt.Sprintf("Result %d", i+1), Rank: i + 1})
	}
	p.SetResults(results)
	return p
}

func TestCollectPreservesRankAndLimit(t *testing.T) {
	provider := fixedProvider(
		"https://a.example/1",
		"https://b.example/2",
		"https://c.example/3",
		"https://d.example/4",
		"https://e.example/5",
	)
	scraper := &fakeScraper{fail: map[string]bool{"https://b.example/2": true}}
	collector := NewCollector(provider, scraper, Options{Concurrency: 2})

	refs := collector.Collect(context.Background(), "caching", 3)
	if len(refs) != 3 {
		t.Fatalf("Expected 3 references, got %d", len(refs))
	}

	want := []string{"https://a.example/1", "https://c.example/3", "https://d.example/4"}
	for i, ref := range refs {
		if ref.URL != want[i] {
			t.Errorf("Reference %d: expected %s, got %s", i, want[i], ref.URL)
		}
		if !strings.Contains(ref.Content, ref.URL) {
			t.Errorf("Reference %d has wrong content: %q", i, ref.Content)
		}
	}

	if scraper.calls() != 4 {
		t.Errorf("Expected 4 scrape calls (3 + 1 retry window), got %d", scraper.calls())
	}
}

func TestCollectExcludesOriginDomain(t *testing.T) {
	provider := fixedProvider(
		"https://www.myblog.com/post",
		"https://cdn.myblog.com/asset",
		"https://notmyblog.com/x",
		"https://other.org/y",
		"https://other.org/y",
		"https://spam.example/z",
	)
	scraper := &fakeScraper{}
	collector := NewCollector(provider, scraper, DefaultOptions())

	exclude := OriginDomains("https://myblog.com/articles/1", []string{"https://www.spam.example"})
	refs := collector.Collect(context.Background(), "query", 5, exclude...)

	if len(refs) != 2 {
		t.Fatalf("Expected 2 references, got %d: %+v", len(refs), refs)
	}
	if refs[0].URL != "https://notmyblog.com/x" || refs[1].URL != "https://other.org/y" {
		t.Errorf("Unexpected references: %+v", refs)
	}
}

func TestCollectFallsBackToGeneratedResults(t *testing.T) {
	scraper := &fakeScraper{}

	for name, provider := range map[string]search.Provider{
		"provider error": &errorProvider{},
		"no provider":    nil,
	} {
		t.Run(name, func(t *testing.T) {
			refs := NewCollector(provider, scraper, DefaultOptions()).Collect(context.Background(), "distributed caching strategies", 2)
			if len(refs) != 2 {
				t.Fatalf("Expected 2 references, got %d", len(refs))
			}
			generated := search.Generate("distributed caching strategies")
			if refs[0].URL != generated[0].URL || refs[1].URL != generated[1].URL {
				t.Errorf("Expected generated results in order, got %+v", refs)
			}
		})
	}
}

func TestCollectAllScrapesFail(t *testing.T) {
	provider := fixedProvider("https://a.example/1", "https://b.example/2")
	scraper := &fakeScraper{fail: map[string]bool{"https://a.example/1": true, "https://b.example/2": true}}

	refs := NewCollector(provider, scraper, DefaultOptions()).Collect(context.Background(), "q", 3)
	if len(refs) != 0 {
		t.Errorf("Expected no references, got %+v", refs)
	}
}

func TestCollectTitleFallsBackToHost(t *testing.T) {
	provider := search.NewMockProvider()
	provider.SetResults([]search.Result{{URL: "https://www.untitled.example/page"}})

	refs := NewCollector(provider, &fakeScraper{}, DefaultOptions()).Collect(context.Background(), "q", 1)
	if len(refs) != 1 || refs[0].Title != "untitled.example" {
		t.Errorf("Expected host title, got %+v", refs)
	}
}

func TestCollectZeroLimit(t *testing.T) {
	scraper := &fakeScraper{}
	refs := NewCollector(fixedProvider("https://a.example/1"), scraper, DefaultOptions()).Collect(context.Background(), "q", 0)
	if refs != nil || scraper.calls() != 0 {
		t.Errorf("Expected no work for zero limit, got %v", refs)
	}
}

func TestCollectStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	scraper := &fakeScraper{}
	refs := NewCollector(fixedProvider("https://a.example/1"), scraper, DefaultOptions()).Collect(ctx, "q", 1)
	if len(refs) != 0 || scraper.calls() != 0 {
		t.Errorf("Expected no scraping after cancellation, got %d calls", scraper.calls())
	}
}
