// Package pipeline runs the per-article enhancement state machine and the
// batch loop around it.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"articleforge/internal/archive"
	"articleforge/internal/cache"
	"articleforge/internal/core"
	"articleforge/internal/keywords"
	"articleforge/internal/llm"
	"articleforge/internal/logger"
	"articleforge/internal/metrics"
	"articleforge/internal/preprocess"
	"articleforge/internal/prompt"
	"articleforge/internal/references"
	"articleforge/internal/response"
	"articleforge/internal/seo"
	"articleforge/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// State is a step of the per-article state machine.
type State string

const (
	StateCollecting    State = "collecting_references"
	StateSkipped       State = "skipped"
	StatePreprocessing State = "preprocessing"
	StatePrompting     State = "prompting"
	StateGenerating    State = "generating"
	StateProcessing    State = "processing"
	StateScoring       State = "scoring"
	StateCached        State = "cached"
	StateFresh         State = "fresh"
	StateFallback      State = "fallback"
	StateDone          State = "done"
)

// ErrNoReferences marks an article skipped because no reference could be scraped.
var ErrNoReferences = errors.New("no references could be collected")

// FallbackSummary is the summary stored on fallback records.
const FallbackSummary = "Enhancement unavailable; the original article content is preserved."

// queryKeywords is how many content keywords form the search query when an
// article has no title.
const queryKeywords = 5

// Config holds pipeline configuration
type Config struct {
	// Reference settings
	ReferenceLimit int
	ExcludeDomains []string

	// Prompt input limits
	MaxContentChars   int
	MaxReferenceChars int

	// Generation overrides; Title is set per article
	Prompt prompt.Options

	// Cache settings
	CacheTTL time.Duration

	// Batch settings
	BatchSize int
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		ReferenceLimit:    3,
		MaxContentChars:   preprocess.DefaultMaxContentChars,
		MaxReferenceChars: preprocess.DefaultMaxReferenceChars,
		CacheTTL:          7 * 24 * time.Hour, // 7 days
		BatchSize:         5,
	}
}

// Pipeline orchestrates reference collection, generation and scoring for
// one article at a time.
type Pipeline struct {
	collector    ReferenceCollector
	generator    Generator
	cache        cache.Cache
	store        store.ArticleStore
	archiver     archive.Archiver
	metrics      *metrics.Metrics
	preprocessor *preprocess.Preprocessor
	tracer       trace.Tracer
	config       *Config
	now          func() time.Time
}

// Result is the outcome of Process. State is StateSkipped or StateDone.
type Result struct {
	ArticleID     string
	State         State
	Path          []State // states visited, in order
	Record        *core.EnhancementRecord
	Cached        bool
	Err           error    // cause of a skip or fallback
	Warnings      []string // structural warnings about generated content
	BaselineScore int      // quality score of the original content
}

// Fallback reports whether the record is a fallback.
func (r *Result) Fallback() bool {
	return r.Record != nil && r.Record.IsFallback
}

func (r *Result) enter(s State) {
	r.Path = append(r.Path, s)
	r.State = s
}

// Process runs one article through the state machine. It never returns an
// error: failures surface as a skipped result or a fallback record.
func (p *Pipeline) Process(ctx context.Context, article core.Article) *Result {
	ctx, span := p.tracer.Start(ctx, "pipeline.process",
		trace.WithAttributes(attribute.String("article.id", article.ID)))
	defer span.End()

	res := &Result{ArticleID: article.ID}

	// Collecting references
	res.enter(StateCollecting)
	start := time.Now()
	query := referenceQuery(article)
	exclude := references.OriginDomains(article.URL, p.config.ExcludeDomains)
	refs := p.collector.Collect(ctx, query, p.config.ReferenceLimit, exclude...)
	p.metrics.ObserveStage(string(StateCollecting), time.Since(start))
	p.metrics.ReferencesCollected(len(refs))
	span.SetAttributes(attribute.Int("references.count", len(refs)))

	if len(refs) == 0 {
		res.enter(StateSkipped)
		res.Err = ErrNoReferences
		p.metrics.ArticleProcessed(metrics.OutcomeSkipped)
		span.SetStatus(codes.Ok, "skipped")
		logger.Warn("Skipping article without references", "article_id", article.ID, "query", query)
		return res
	}

	// Preprocessing
	res.enter(StatePreprocessing)
	input := p.preprocessor.Prepare(article.Content, refs)

	// Prompting
	res.enter(StatePrompting)
	opts := p.config.Prompt
	opts.Title = article.Title
	built := prompt.Build(input.Content, input.References, opts)

	key := cache.Fingerprint(p.generator.Model(),
		cache.HashArticle(article.Title, input.Content),
		cache.HashReferences(input.References),
		prompt.Version)

	if record, ok := p.cache.Get(ctx, key); ok {
		p.metrics.CacheLookup(p.cache.Name(), true)
		res.enter(StateCached)
		res.enter(StateDone)
		res.Record = record
		res.Cached = true
		p.metrics.ArticleProcessed(metrics.OutcomeCached)
		span.SetAttributes(attribute.Bool("cache.hit", true))
		logger.Info("Enhancement served from cache", "article_id", article.ID, "cache", p.cache.Name())
		return res
	}
	p.metrics.CacheLookup(p.cache.Name(), false)

	// Generating
	res.enter(StateGenerating)
	start = time.Now()
	raw, err := p.generator.Invoke(ctx, built.Text, built.Config)
	p.metrics.ObserveStage(string(StateGenerating), time.Since(start))
	if err != nil {
		res.enter(StateFallback)
		res.enter(StateDone)
		res.Err = err
		res.Record = p.fallbackRecord(article, input.References, err)
		p.metrics.ArticleProcessed(metrics.OutcomeFallback)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(llm.KindOf(err)))
		logger.Error("Generation failed, storing fallback", err,
			"article_id", article.ID,
			"kind", string(llm.KindOf(err)))
		return res
	}

	// Processing
	res.enter(StateProcessing)
	parsed := response.Parse(raw.Text)
	if parsed.ParseErr != nil {
		logger.Warn("Model output was not a JSON envelope, using raw text",
			"article_id", article.ID, "error", parsed.ParseErr.Error())
	}
	res.Warnings = response.Validate(parsed.Content)
	for _, w := range res.Warnings {
		logger.Warn("Generated content structure", "article_id", article.ID, "warning", w)
	}

	// Scoring
	res.enter(StateScoring)
	analysis := seo.Analyze(parsed.Content, article.Title, input.References)
	res.BaselineScore = seo.Analyze(article.Content, article.Title, input.References).Score
	p.metrics.SeoScore(analysis.Score)

	record := &core.EnhancementRecord{
		Content:       parsed.Content,
		Summary:       parsed.Summary,
		References:    input.References,
		SeoAnalysis:   &analysis,
		GeneratedAt:   p.now().UTC(),
		Model:         p.generator.Model(),
		PromptVersion: prompt.Version,
	}

	p.cache.Put(ctx, key, record, p.config.CacheTTL)
	res.enter(StateFresh)
	res.enter(StateDone)
	res.Record = record
	p.metrics.ArticleProcessed(metrics.OutcomeFresh)
	span.SetAttributes(attribute.Int("seo.score", analysis.Score), attribute.Int("llm.attempts", raw.Attempts))

	logger.Info("Article enhanced",
		"article_id", article.ID,
		"attempts", raw.Attempts,
		"references", len(input.References),
		"score", analysis.Score,
		"baseline_score", res.BaselineScore,
		"total_tokens", raw.Usage.TotalTokens)
	return res
}

func (p *Pipeline) fallbackRecord(article core.Article, refs []core.Reference, err error) *core.EnhancementRecord {
	return &core.EnhancementRecord{
		Content:       article.Content,
		Summary:       FallbackSummary,
		References:    refs,
		GeneratedAt:   p.now().UTC(),
		Model:         p.generator.Model(),
		PromptVersion: prompt.Version,
		IsFallback:    true,
		Error:         err.Error(),
	}
}

// referenceQuery is the article title, or its top content keywords when
// the title is blank.
func referenceQuery(article core.Article) string {
	if title := strings.TrimSpace(article.Title); title != "" {
		return title
	}
	return strings.Join(keywords.Extract(preprocess.PlainText(article.Content), queryKeywords), " ")
}

func defaultTracer() trace.Tracer {
	return otel.Tracer("articleforge/pipeline")
}
