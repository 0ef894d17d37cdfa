package pipeline

import (
	"context"
	"fmt"
	"time"

	"articleforge/internal/logger"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// BatchStats summarizes one RunBatch call.
type BatchStats struct {
	RunID       string
	Listed      int
	Fresh       int
	Cached      int
	Fallback    int
	Skipped     int
	WriteErrors int
	Archived    int
	Duration    time.Duration
}

// Processed is the number of articles that reached a terminal state.
func (s BatchStats) Processed() int {
	return s.Fresh + s.Cached + s.Fallback + s.Skipped
}

// RunBatch processes up to limit pending articles one at a time and writes
// each finished record back to the store. Skipped articles are marked so the
// next batch starts with articles that have waited longest. Failures of one article never
// stop the batch; only a failure to list pending articles is returned.
// When ctx is cancelled the batch stops before the next article.
func (p *Pipeline) RunBatch(ctx context.Context, limit int) (BatchStats, error) {
	stats := BatchStats{RunID: uuid.NewString()}
	if p.store == nil {
		return stats, fmt.Errorf("article store is not configured")
	}
	if limit <= 0 {
		limit = p.config.BatchSize
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.batch",
		trace.WithAttributes(attribute.String("run.id", stats.RunID)))
	defer span.End()

	start := time.Now()
	p.metrics.BatchStarted()

	articles, err := p.store.ListPending(ctx, limit)
	if err != nil {
		span.RecordError(err)
		return stats, fmt.Errorf("failed to list pending articles: %w", err)
	}
	stats.Listed = len(articles)
	logger.Info("Batch started", "run_id", stats.RunID, "articles", len(articles))

	// Cancellation is checked between articles; an article already started
	// runs to completion on its own timeouts.
	work := context.WithoutCancel(ctx)

	for _, article := range articles {
		if ctx.Err() != nil {
			logger.Warn("Batch cancelled", "run_id", stats.RunID, "processed", stats.Processed())
			break
		}

		res := p.Process(work, article)
		switch {
		case res.State == StateSkipped:
			stats.Skipped++
			if err := p.store.MarkSkipped(work, article.ID); err != nil {
				stats.WriteErrors++
				logger.Error("Failed to mark article skipped", err, "run_id", stats.RunID, "article_id", article.ID)
			}
			continue
		case res.Cached:
			stats.Cached++
		case res.Fallback():
			stats.Fallback++
		default:
			stats.Fresh++
		}

		if err := p.store.Update(work, article.ID, res.Record); err != nil {
			stats.WriteErrors++
			logger.Error("Failed to write enhancement", err, "run_id", stats.RunID, "article_id", article.ID)
			continue
		}

		if p.archiver != nil {
			key, err := p.archiver.Archive(work, article.ID, res.Record)
			if err != nil {
				logger.Error("Failed to archive enhancement", err, "article_id", article.ID)
				continue
			}
			stats.Archived++
			logger.Debug("Enhancement archived", "article_id", article.ID, "key", key)
		}
	}

	stats.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int("articles.listed", stats.Listed),
		attribute.Int("articles.fallback", stats.Fallback),
	)
	logger.Info("Batch finished",
		"run_id", stats.RunID,
		"fresh", stats.Fresh,
		"cached", stats.Cached,
		"fallback", stats.Fallback,
		"skipped", stats.Skipped,
		"write_errors", stats.WriteErrors,
		"duration", stats.Duration.String())
	return stats, nil
}
