package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"articleforge/internal/cache"
	"articleforge/internal/core"
	"articleforge/internal/llm"
	"articleforge/internal/prompt"
	"articleforge/internal/store"
)

const enhancedEnvelope = `{"content":"<h1>Solar Panels</h1><h2>How they work</h2><p>Photovoltaic cells turn light into current. See <a href=\"https://en.wikipedia.org/wiki/Solar_panel\">Wikipedia</a>.</p>","summary":"An overview of solar panels."}`

// fakeCollector returns fixed references and records the queries it saw.
type fakeCollector struct {
	mu      sync.Mutex
	refs    []core.Reference
	queries []string
	exclude [][]string
}

func (f *fakeCollector) Collect(ctx context.Context, query string, limit int, exclude ...string) []core.Reference {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	f.exclude = append(f.exclude, exclude)
	if limit < len(f.refs) {
		return f.refs[:limit]
	}
	return f.refs
}

// scriptedProvider replays replies in order; the last one repeats.
type scriptedProvider struct {
	mu      sync.Mutex
	replies []reply
	calls   int
}

type reply struct {
	resp *llm.Response
	err  error
}

func (s *scriptedProvider) Generate(ctx context.Context, text string, cfg prompt.GenerationConfig) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	s.calls++
	return s.replies[i].resp, s.replies[i].err
}

func (s *scriptedProvider) Model() string { return "test-model" }

func (s *scriptedProvider) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func ok(text string) reply {
	return reply{resp: &llm.Response{Text: text, FinishReason: "STOP"}}
}

func rateLimited() reply {
	return reply{err: &llm.ProviderError{StatusCode: 429, Message: "Resource exhausted"}}
}

func newClient(p llm.Provider) *llm.Client {
	return llm.NewClient(p, llm.ClientOptions{
		MaxAttempts: 3,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	})
}

func sampleRefs() []core.Reference {
	return []core.Reference{
		{Title: "Solar panel", URL: "https://en.wikipedia.org/wiki/Solar_panel", Content: "A solar panel converts sunlight into electricity using photovoltaic cells."},
		{Title: "Photovoltaics", URL: "https://www.britannica.com/topic/photovoltaics", Content: "Photovoltaic systems generate power from light."},
	}
}

func sampleArticle(id string) core.Article {
	return core.Article{
		ID:      id,
		Title:   "Solar Panels",
		Content: "<p>Solar panels make electricity from sunlight.</p>",
		URL:     "https://blog.example.com/solar",
	}
}

func buildPipeline(t *testing.T, collector ReferenceCollector, gen Generator, c cache.Cache, s store.ArticleStore) *Pipeline {
	t.Helper()
	p, err := NewBuilder().
		WithCollector(collector).
		WithGenerator(gen).
		WithCache(c).
		WithStore(s).
		WithClock(func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return p
}

func TestProcessFreshEnhancement(t *testing.T) {
	provider := &scriptedProvider{replies: []reply{ok(enhancedEnvelope)}}
	collector := &fakeCollector{refs: sampleRefs()}
	p := buildPipeline(t, collector, newClient(provider), cache.NewMemory(), nil)

	res := p.Process(context.Background(), sampleArticle("a1"))

	if res.State != StateDone {
		t.Fatalf("Expected done, got %s", res.State)
	}
	want := []State{StateCollecting, StatePreprocessing, StatePrompting, StateGenerating, StateProcessing, StateScoring, StateFresh, StateDone}
	if len(res.Path) != len(want) {
		t.Fatalf("Expected path %v, got %v", want, res.Path)
	}
	for i := range want {
		if res.Path[i] != want[i] {
			t.Errorf("Path[%d]: expected %s, got %s", i, want[i], res.Path[i])
		}
	}

	rec := res.Record
	if rec.IsFallback || rec.Error != "" {
		t.Errorf("Expected a fresh record, got %+v", rec)
	}
	if !strings.Contains(rec.Content, "<h2>How they work</h2>") || rec.Summary != "An overview of solar panels." {
		t.Errorf("Unexpected record content: %+v", rec)
	}
	if rec.SeoAnalysis == nil || len(rec.SeoAnalysis.Checklist) == 0 {
		t.Error("Expected an SEO analysis")
	}
	if rec.Model != "test-model" || rec.PromptVersion != prompt.Version {
		t.Errorf("Unexpected model/version: %s %s", rec.Model, rec.PromptVersion)
	}
	if len(rec.References) != 2 {
		t.Errorf("Expected 2 references, got %d", len(rec.References))
	}
	if !rec.GeneratedAt.Equal(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected timestamp %v", rec.GeneratedAt)
	}

	if collector.queries[0] != "Solar Panels" {
		t.Errorf("Expected title as query, got %q", collector.queries[0])
	}
	if len(collector.exclude[0]) == 0 || collector.exclude[0][0] != "blog.example.com" {
		t.Errorf("Expected origin domain excluded, got %v", collector.exclude[0])
	}
}

func TestProcessSkipsWithoutReferences(t *testing.T) {
	provider := &scriptedProvider{replies: []reply{ok(enhancedEnvelope)}}
	p := buildPipeline(t, &fakeCollector{}, newClient(provider), cache.NewMemory(), nil)

	res := p.Process(context.Background(), sampleArticle("a1"))

	if res.State != StateSkipped {
		t.Fatalf("Expected skipped, got %s", res.State)
	}
	if !errors.Is(res.Err, ErrNoReferences) {
		t.Errorf("Expected ErrNoReferences, got %v", res.Err)
	}
	if res.Record != nil {
		t.Error("Skipped article must not produce a record")
	}
	if provider.callCount() != 0 {
		t.Errorf("Expected no model calls, got %d", provider.callCount())
	}
}

func TestProcessFallsBackAfterRetries(t *testing.T) {
	provider := &scriptedProvider{replies: []reply{rateLimited()}}
	c := cache.NewMemory()
	p := buildPipeline(t, &fakeCollector{refs: sampleRefs()}, newClient(provider), c, nil)
	article := sampleArticle("a1")

	res := p.Process(context.Background(), article)

	if provider.callCount() != 3 {
		t.Errorf("Expected exactly 3 attempts, got %d", provider.callCount())
	}
	if !res.Fallback() {
		t.Fatalf("Expected fallback record, got %+v", res.Record)
	}
	if res.Record.Content != article.Content {
		t.Error("Fallback must carry the original content")
	}
	if res.Record.Error == "" || res.Record.SeoAnalysis != nil {
		t.Errorf("Unexpected fallback record: %+v", res.Record)
	}
	if llm.KindOf(res.Err) != llm.KindExhausted {
		t.Errorf("Expected exhausted error, got %v", res.Err)
	}
	if res.Path[len(res.Path)-2] != StateFallback || res.State != StateDone {
		t.Errorf("Unexpected path %v", res.Path)
	}
	if c.Len() != 0 {
		t.Error("Fallback records must never be cached")
	}
}

func TestProcessSafetyBlockFallsBackWithoutRetry(t *testing.T) {
	provider := &scriptedProvider{replies: []reply{{resp: &llm.Response{FinishReason: "SAFETY"}}}}
	p := buildPipeline(t, &fakeCollector{refs: sampleRefs()}, newClient(provider), cache.NewMemory(), nil)

	res := p.Process(context.Background(), sampleArticle("a1"))

	if provider.callCount() != 1 {
		t.Errorf("Expected a single attempt, got %d", provider.callCount())
	}
	if !res.Fallback() || llm.KindOf(res.Err) != llm.KindSafetyBlocked {
		t.Errorf("Expected safety fallback, got %v", res.Err)
	}
}

func TestProcessServesCacheHit(t *testing.T) {
	provider := &scriptedProvider{replies: []reply{ok(enhancedEnvelope)}}
	p := buildPipeline(t, &fakeCollector{refs: sampleRefs()}, newClient(provider), cache.NewMemory(), nil)
	article := sampleArticle("a1")

	first := p.Process(context.Background(), article)
	second := p.Process(context.Background(), article)

	if provider.callCount() != 1 {
		t.Errorf("Expected one model call for identical input, got %d", provider.callCount())
	}
	if !second.Cached || second.Path[len(second.Path)-2] != StateCached {
		t.Errorf("Expected cached result, got path %v", second.Path)
	}
	if second.Record.Content != first.Record.Content || !second.Record.GeneratedAt.Equal(first.Record.GeneratedAt) {
		t.Error("Cached record must equal the stored record")
	}
}

func TestProcessRetriesAfterFallback(t *testing.T) {
	provider := &scriptedProvider{replies: []reply{rateLimited(), rateLimited(), rateLimited(), ok(enhancedEnvelope)}}
	p := buildPipeline(t, &fakeCollector{refs: sampleRefs()}, newClient(provider), cache.NewMemory(), nil)
	article := sampleArticle("a1")

	if res := p.Process(context.Background(), article); !res.Fallback() {
		t.Fatal("Expected first run to fall back")
	}
	res := p.Process(context.Background(), article)
	if res.Cached || res.Fallback() {
		t.Errorf("Expected a fresh generation after fallback, got cached=%v fallback=%v", res.Cached, res.Fallback())
	}
	if provider.callCount() != 4 {
		t.Errorf("Expected 4 calls, got %d", provider.callCount())
	}
}

func TestCachedRecordUnaffectedByCallerChanges(t *testing.T) {
	provider := &scriptedProvider{replies: []reply{ok(enhancedEnvelope)}}
	p := buildPipeline(t, &fakeCollector{refs: sampleRefs()}, newClient(provider), cache.NewMemory(), nil)

	first := p.Process(context.Background(), sampleArticle("a1"))
	score := first.Record.SeoAnalysis.Score
	first.Record.SeoAnalysis.Score = -1
	first.Record.References[0].Title = "changed"

	second := p.Process(context.Background(), sampleArticle("a1"))
	if !second.Cached {
		t.Fatal("Expected a cache hit")
	}
	if second.Record.SeoAnalysis.Score != score || second.Record.References[0].Title != "Solar panel" {
		t.Errorf("Cached record changed: score=%d ref=%q", second.Record.SeoAnalysis.Score, second.Record.References[0].Title)
	}
}

func TestCacheKeyIncludesTitle(t *testing.T) {
	provider := &scriptedProvider{replies: []reply{ok(enhancedEnvelope)}}
	p := buildPipeline(t, &fakeCollector{refs: sampleRefs()}, newClient(provider), cache.NewMemory(), nil)

	solar := sampleArticle("a1")
	retitled := sampleArticle("a2")
	retitled.Title = "Rooftop Photovoltaics"

	p.Process(context.Background(), solar)
	res := p.Process(context.Background(), retitled)

	if res.Cached || provider.callCount() != 2 {
		t.Errorf("Expected a fresh generation for a different title, cached=%v calls=%d", res.Cached, provider.callCount())
	}
}

func TestProcessUsesKeywordsWithoutTitle(t *testing.T) {
	collector := &fakeCollector{}
	provider := &scriptedProvider{replies: []reply{ok(enhancedEnvelope)}}
	p := buildPipeline(t, collector, newClient(provider), nil, nil)

	p.Process(context.Background(), core.Article{ID: "x", Content: "<p>Battery storage batteries storage grid</p>"})

	if collector.queries[0] == "" {
		t.Error("Expected a keyword query for untitled article")
	}
}

func TestRunBatchContinuesAfterFailure(t *testing.T) {
	provider := &scriptedProvider{replies: []reply{
		{err: &llm.ProviderError{StatusCode: 401, Message: "API key not valid"}},
		ok(enhancedEnvelope),
	}}
	articles := []core.Article{sampleArticle("a1"), sampleArticle("a2")}
	articles[1].Content = "<p>Different content about solar farms.</p>"
	s := store.NewMemory(articles...)
	p := buildPipeline(t, &fakeCollector{refs: sampleRefs()}, newClient(provider), cache.NewMemory(), s)

	stats, err := p.RunBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if stats.Listed != 2 || stats.Fallback != 1 || stats.Fresh != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if stats.RunID == "" {
		t.Error("Expected a run id")
	}

	a1, _ := s.Get("a1")
	a2, _ := s.Get("a2")
	if a1.Enhancement == nil || !a1.Enhancement.IsFallback {
		t.Errorf("Expected fallback written for a1, got %+v", a1.Enhancement)
	}
	if a2.Enhancement == nil || a2.Enhancement.IsFallback {
		t.Errorf("Expected fresh record written for a2, got %+v", a2.Enhancement)
	}

	pending, _ := s.ListPending(context.Background(), 10)
	if len(pending) != 1 || pending[0].ID != "a1" {
		t.Fatalf("Expected only the fallback article pending, got %+v", pending)
	}

	// The next batch retries the fallback article and replaces its record.
	stats, err = p.RunBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("second RunBatch failed: %v", err)
	}
	if stats.Listed != 1 || stats.Fresh != 1 {
		t.Errorf("Unexpected retry stats: %+v", stats)
	}
	a1, _ = s.Get("a1")
	if a1.Enhancement == nil || a1.Enhancement.IsFallback {
		t.Errorf("Expected fresh record for a1 after retry, got %+v", a1.Enhancement)
	}
}

func TestRunBatchLeavesSkippedArticlesPending(t *testing.T) {
	s := store.NewMemory(sampleArticle("a1"))
	p := buildPipeline(t, &fakeCollector{}, newClient(&scriptedProvider{replies: []reply{ok(enhancedEnvelope)}}), nil, s)

	stats, err := p.RunBatch(context.Background(), 0)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if stats.Skipped != 1 {
		t.Errorf("Expected 1 skipped, got %+v", stats)
	}
	pending, _ := s.ListPending(context.Background(), 10)
	if len(pending) != 1 {
		t.Error("Skipped article must stay pending")
	}
}

// titleCollector returns references only for the listed titles.
type titleCollector struct {
	titles map[string]bool
}

func (c titleCollector) Collect(ctx context.Context, query string, limit int, exclude ...string) []core.Reference {
	if c.titles[query] {
		return sampleRefs()
	}
	return nil
}

func TestRunBatchDoesNotStallOnSkippedArticles(t *testing.T) {
	var articles []core.Article
	for _, id := range []string{"s1", "s2", "s3", "s4", "s5"} {
		a := sampleArticle(id)
		a.Title = "Obscure " + id
		articles = append(articles, a)
	}
	articles = append(articles, sampleArticle("live"))
	s := store.NewMemory(articles...)

	provider := &scriptedProvider{replies: []reply{ok(enhancedEnvelope)}}
	collector := titleCollector{titles: map[string]bool{"Solar Panels": true}}
	p := buildPipeline(t, collector, newClient(provider), cache.NewMemory(), s)

	for run := 0; run < 2; run++ {
		if _, err := p.RunBatch(context.Background(), 5); err != nil {
			t.Fatalf("run %d failed: %v", run, err)
		}
	}

	live, _ := s.Get("live")
	if live.Enhancement == nil || live.Enhancement.IsFallback {
		t.Errorf("Expected live article enhanced behind skipped ones, got %+v", live.Enhancement)
	}
	if provider.callCount() != 1 {
		t.Errorf("Expected 1 provider call, got %d", provider.callCount())
	}
	pending, _ := s.ListPending(context.Background(), 10)
	if len(pending) != 5 {
		t.Errorf("Expected the 5 skipped articles still pending, got %d", len(pending))
	}
}

func TestRunBatchStopsWhenCancelled(t *testing.T) {
	s := store.NewMemory(sampleArticle("a1"), sampleArticle("a2"))
	provider := &scriptedProvider{replies: []reply{ok(enhancedEnvelope)}}
	p := buildPipeline(t, &fakeCollector{refs: sampleRefs()}, newClient(provider), nil, s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := p.RunBatch(ctx, 10)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if stats.Processed() != 0 || provider.callCount() != 0 {
		t.Errorf("Expected nothing processed after cancel, got %+v", stats)
	}
}

type failingStore struct{ store.ArticleStore }

func (failingStore) ListPending(context.Context, int) ([]core.Article, error) {
	return nil, errors.New("connection refused")
}

func TestRunBatchListError(t *testing.T) {
	p := buildPipeline(t, &fakeCollector{}, newClient(&scriptedProvider{replies: []reply{ok("x")}}), nil, failingStore{})
	if _, err := p.RunBatch(context.Background(), 1); err == nil {
		t.Error("Expected list error")
	}
}

func TestBuildRequiresComponents(t *testing.T) {
	if _, err := NewBuilder().Build(); err == nil {
		t.Error("Expected error without collector")
	}
	if _, err := NewBuilder().WithCollector(&fakeCollector{}).Build(); err == nil {
		t.Error("Expected error without generator")
	}
}
