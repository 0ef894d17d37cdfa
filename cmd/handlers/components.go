package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"articleforge/internal/archive"
	"articleforge/internal/cache"
	"articleforge/internal/config"
	"articleforge/internal/fetch"
	"articleforge/internal/llm"
	"articleforge/internal/logger"
	"articleforge/internal/metrics"
	"articleforge/internal/pipeline"
	"articleforge/internal/prompt"
	"articleforge/internal/references"
	"articleforge/internal/search"
	"articleforge/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// components is everything a pipeline run needs, plus the resources to release.
type components struct {
	pipeline *pipeline.Pipeline
	cache    cache.Cache
	registry *prometheus.Registry
	closers  []func() error
}

// Close releases cache connections.
func (c *components) Close() {
	for _, closeFn := range c.closers {
		if err := closeFn(); err != nil {
			logger.Error("Failed to close resource", err)
		}
	}
}

// buildComponents wires the pipeline from configuration. articles may be nil
// for commands that never call RunBatch.
func buildComponents(ctx context.Context, cfg *config.Config, articles store.ArticleStore) (*components, error) {
	if !cfg.HasValidGemini() {
		return nil, fmt.Errorf("a Gemini API key is required (set GEMINI_API_KEY or ai.gemini.api_key)")
	}

	c := &components{registry: prometheus.NewRegistry()}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(c.registry)

	// Reference collection
	scraper := fetch.NewClient(fetch.Options{
		Timeout:      config.Duration(cfg.Scrape.Timeout, 15*time.Second),
		UserAgent:    cfg.Scrape.UserAgent,
		MaxBodyBytes: cfg.Scrape.MaxBodyBytes,
	})

	factory := search.NewProviderFactory()
	factory.Timeout = config.Duration(cfg.Search.Timeout, 15*time.Second)
	provider := factory.CreateOrMock(search.ProviderType(cfg.Search.Provider), cfg.SearchProviderConfig())

	collector := references.NewCollector(provider, scraper, references.Options{
		MaxResults:  cfg.Search.MaxResults,
		Concurrency: cfg.Scrape.Concurrency,
		Language:    cfg.Search.Language,
	})

	// Generation
	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	gemini, err := llm.NewGeminiProvider(ctx, cfg.AI.Gemini.APIKey, cfg.AI.Gemini.Model, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	generator := llm.NewClient(gemini, llm.ClientOptions{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Backoff: llm.Backoff{
			Base: config.Duration(cfg.Retry.BaseDelay, 5*time.Second),
			Max:  config.Duration(cfg.Retry.MaxDelay, 40*time.Second),
		},
		CallTimeout: config.Duration(cfg.AI.Gemini.Timeout, 90*time.Second),
		OnAttempt: func(attempt int, err *llm.Error) {
			if err == nil {
				m.LLMAttempt("success")
				return
			}
			m.LLMAttempt(string(err.Kind))
		},
	})

	// Cache is optional: a broken backend degrades to no caching
	enhancementCache, closeCache, err := cache.New(ctx, cache.Options{
		Backend:   cfg.Cache.Backend,
		Directory: cfg.Cache.Directory,
		RedisURL:  cfg.Cache.RedisURL,
	})
	if err != nil {
		logger.Warn("Failed to initialize cache, continuing without cache",
			"backend", cfg.Cache.Backend, "error", err.Error())
		enhancementCache = cache.Null{}
	} else {
		c.closers = append(c.closers, closeCache)
	}
	c.cache = enhancementCache

	builder := pipeline.NewBuilder().
		WithConfig(&pipeline.Config{
			ReferenceLimit:    cfg.References.Limit,
			ExcludeDomains:    cfg.References.ExcludeDomains,
			MaxContentChars:   cfg.Content.MaxContentChars,
			MaxReferenceChars: cfg.Content.MaxReferenceChars,
			Prompt: prompt.Options{
				Temperature:     &cfg.AI.Gemini.Temperature,
				TopK:            &cfg.AI.Gemini.TopK,
				TopP:            &cfg.AI.Gemini.TopP,
				MaxOutputTokens: cfg.AI.Gemini.MaxTokens,
				Safety:          cfg.AI.Gemini.Safety,
			},
			CacheTTL:  config.Duration(cfg.Cache.TTL, 7*24*time.Hour),
			BatchSize: cfg.Pipeline.BatchSize,
		}).
		WithCollector(collector).
		WithGenerator(generator).
		WithCache(enhancementCache).
		WithStore(articles).
		WithMetrics(m)

	if cfg.Archive.S3.Bucket != "" {
		s3cfg := cfg.Archive.S3
		archiver, err := archive.NewS3Archive(ctx, archive.S3Config{
			Endpoint:        s3cfg.Endpoint,
			Region:          s3cfg.Region,
			Bucket:          s3cfg.Bucket,
			AccessKeyID:     s3cfg.AccessKeyID,
			SecretAccessKey: s3cfg.SecretAccessKey,
			UsePathStyle:    s3cfg.UsePathStyle,
			Prefix:          s3cfg.Prefix,
		})
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to create archive: %w", err)
		}
		builder = builder.WithArchiver(archiver)
	}

	p, err := builder.Build()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	c.pipeline = p

	logger.Info("Pipeline ready",
		"model", generator.Model(),
		"search_provider", provider.GetName(),
		"cache", enhancementCache.Name(),
		"archive", cfg.Archive.S3.Bucket != "")
	return c, nil
}

// openPostgres opens the article table and creates it when missing.
func openPostgres(ctx context.Context, cfg *config.Config) (*store.Postgres, error) {
	if cfg.Store.PostgresDSN == "" {
		return nil, fmt.Errorf("store.postgres_dsn (or DATABASE_URL) is required")
	}
	pg, err := store.NewPostgres(cfg.Store.PostgresDSN, cfg.Store.Table)
	if err != nil {
		return nil, err
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, fmt.Errorf("failed to prepare article table: %w", err)
	}
	return pg, nil
}
