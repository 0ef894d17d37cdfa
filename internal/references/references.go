// Package references discovers and scrapes the external pages an article
// rewrite is grounded on.
package references

import (
	"context"
	"strings"

	"articleforge/internal/core"
	"articleforge/internal/logger"
	"articleforge/internal/search"

	"golang.org/x/sync/errgroup"
)

// Scraper is the page fetcher used by the collector; fetch.Client implements it.
type Scraper interface {
	Scrape(ctx context.Context, url string) (string, error)
}

// Options configures reference collection.
type Options struct {
	MaxResults  int    // candidates requested from the search provider
	Concurrency int    // parallel scrapes per window
	Language    string // search language hint
}

// DefaultOptions returns the default collection options.
func DefaultOptions() Options {
	return Options{
		MaxResults:  10,
		Concurrency: 3,
		Language:    "en",
	}
}

// Collector turns a query into a bounded, rank-ordered list of references.
type Collector struct {
	provider search.Provider
	fallback search.Provider
	scraper  Scraper
	options  Options
}

// NewCollector creates a Collector. A nil provider means every search uses
// the deterministic mock generator.
func NewCollector(provider search.Provider, scraper Scraper, options Options) *Collector {
	defaults := DefaultOptions()
	if options.MaxResults <= 0 {
		options.MaxResults = defaults.MaxResults
	}
	if options.Concurrency <= 0 {
		options.Concurrency = defaults.Concurrency
	}
	return &Collector{
		provider: provider,
		fallback: search.NewMockProvider(),
		scraper:  scraper,
		options:  options,
	}
}

// Collect searches for query and scrapes candidates in provider rank order
// until limit references are gathered. Results on excluded domains (and
// their subdomains) are skipped. Search and scrape failures are logged and
// never returned; the result may be empty.
func (c *Collector) Collect(ctx context.Context, query string, limit int, exclude ...string) []core.Reference {
	if limit <= 0 || strings.TrimSpace(query) == "" {
		return nil
	}

	results := c.search(ctx, query)
	candidates := filterCandidates(results, normalizeDomains(exclude))

	refs := make([]core.Reference, 0, limit)
	for next := 0; next < len(candidates) && len(refs) < limit; {
		if ctx.Err() != nil {
			break
		}

		window := candidates[next:min(next+limit-len(refs), len(candidates))]
		next += len(window)

		for _, ref := range c.scrapeWindow(ctx, window) {
			if ref == nil {
				continue
			}
			refs = append(refs, *ref)
			if len(refs) == limit {
				break
			}
		}
	}

	logger.Info("References collected",
		"query", query,
		"candidates", len(candidates),
		"collected", len(refs),
		"limit", limit)
	return refs
}

func (c *Collector) search(ctx context.Context, query string) []search.Result {
	config := search.Config{MaxResults: c.options.MaxResults, Language: c.options.Language}

	if c.provider != nil {
		results, err := c.provider.Search(ctx, query, config)
		if err == nil {
			return results
		}
		logger.Warn("Search provider failed, falling back to generated references",
			"provider", c.provider.GetName(),
			"error", err.Error())
	}

	results, _ := c.fallback.Search(ctx, query, config)
	return results
}

// scrapeWindow scrapes every candidate in parallel; the returned slice is
// index-aligned with window and holds nil for failures.
func (c *Collector) scrapeWindow(ctx context.Context, window []search.Result) []*core.Reference {
	out := make([]*core.Reference, len(window))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.options.Concurrency)

	for idx, result := range window {
		g.Go(func() error {
			content, err := c.scraper.Scrape(gCtx, result.URL)
			if err != nil {
				logger.Warn("Reference scrape failed, skipping",
					"url", result.URL,
					"error", err.Error())
				return nil // one failed page never cancels its siblings
			}
			if strings.TrimSpace(content) == "" {
				return nil
			}

			title := strings.TrimSpace(result.Title)
			if title == "" {
				title = search.ExtractDomain(result.URL)
			}
			out[idx] = &core.Reference{Title: title, URL: result.URL, Content: content}
			return nil
		})
	}

	_ = g.Wait()
	return out
}

// OriginDomains returns the domains an article's own references must not
// come from: the article URL's host plus any configured exclusions.
func OriginDomains(articleURL string, configured []string) []string {
	var domains []string
	if articleURL != "" {
		if d := search.ExtractDomain(articleURL); d != "" {
			domains = append(domains, d)
		}
	}
	return append(domains, configured...)
}

func filterCandidates(results []search.Result, exclude []string) []search.Result {
	seen := make(map[string]bool, len(results))
	out := make([]search.Result, 0, len(results))

	for _, r := range results {
		link := strings.TrimSpace(r.URL)
		if link == "" || seen[link] {
			continue
		}
		seen[link] = true

		domain := search.ExtractDomain(link)
		if domain == "" || isExcluded(domain, exclude) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func normalizeDomains(domains []string) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.TrimSpace(strings.ToLower(d))
		if strings.Contains(d, "://") {
			d = search.ExtractDomain(d)
		}
		d = strings.TrimPrefix(d, "www.")
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

func isExcluded(domain string, exclude []string) bool {
	for _, d := range exclude {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}
