package pipeline

import (
	"fmt"
	"time"

	"articleforge/internal/archive"
	"articleforge/internal/cache"
	"articleforge/internal/metrics"
	"articleforge/internal/preprocess"
	"articleforge/internal/store"
)

// Builder helps construct a fully configured Pipeline
type Builder struct {
	collector ReferenceCollector
	generator Generator
	cache     cache.Cache
	store     store.ArticleStore
	archiver  archive.Archiver
	metrics   *metrics.Metrics
	config    *Config
	now       func() time.Time
}

// NewBuilder creates a new pipeline builder with default settings
func NewBuilder() *Builder {
	return &Builder{
		config: DefaultConfig(),
		now:    time.Now,
	}
}

// WithConfig sets the pipeline configuration
func (b *Builder) WithConfig(config *Config) *Builder {
	b.config = config
	return b
}

// WithCollector sets the reference collector
func (b *Builder) WithCollector(collector ReferenceCollector) *Builder {
	b.collector = collector
	return b
}

// WithGenerator sets the language model client
func (b *Builder) WithGenerator(generator Generator) *Builder {
	b.generator = generator
	return b
}

// WithCache sets the enhancement cache
func (b *Builder) WithCache(c cache.Cache) *Builder {
	b.cache = c
	return b
}

// WithStore sets the article store used by RunBatch
func (b *Builder) WithStore(s store.ArticleStore) *Builder {
	b.store = s
	return b
}

// WithArchiver enables archiving of every written record
func (b *Builder) WithArchiver(a archive.Archiver) *Builder {
	b.archiver = a
	return b
}

// WithMetrics sets the metrics sink
func (b *Builder) WithMetrics(m *metrics.Metrics) *Builder {
	b.metrics = m
	return b
}

// WithClock overrides the clock used for record timestamps
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build constructs a fully configured Pipeline
func (b *Builder) Build() (*Pipeline, error) {
	// Validate required components
	if b.collector == nil {
		return nil, fmt.Errorf("reference collector is required")
	}
	if b.generator == nil {
		return nil, fmt.Errorf("generator is required")
	}

	config := b.config
	if config == nil {
		config = DefaultConfig()
	}
	if config.ReferenceLimit <= 0 {
		config.ReferenceLimit = DefaultConfig().ReferenceLimit
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}

	// Caching is optional
	c := b.cache
	if c == nil {
		c = cache.Null{}
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	return &Pipeline{
		collector:    b.collector,
		generator:    b.generator,
		cache:        c,
		store:        b.store,
		archiver:     b.archiver,
		metrics:      b.metrics,
		preprocessor: preprocess.New(config.MaxContentChars, config.MaxReferenceChars),
		tracer:       defaultTracer(),
		config:       config,
		now:          now,
	}, nil
}
