// Package metrics exposes pipeline counters and histograms to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "articleforge"

// Outcomes recorded by ArticleProcessed.
const (
	OutcomeFresh    = "fresh"
	OutcomeCached   = "cached"
	OutcomeFallback = "fallback"
	OutcomeSkipped  = "skipped"
)

// Metrics holds the pipeline collectors. A nil *Metrics records nothing.
type Metrics struct {
	articles      *prometheus.CounterVec
	llmAttempts   *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	references    prometheus.Histogram
	seoScore      prometheus.Histogram
	batches       prometheus.Counter
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		articles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_processed_total",
			Help:      "Articles processed, by outcome.",
		}, []string{"outcome"}),
		llmAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_attempts_total",
			Help:      "Generation attempts, by result kind.",
		}, []string{"result"}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups, by result.",
		}, []string{"backend", "result"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		references: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "references_collected",
			Help:      "References collected per article.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8},
		}),
		seoScore: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "seo_score",
			Help:      "Quality score of generated articles.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		batches: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Batch runs started.",
		}),
	}
}

func (m *Metrics) ArticleProcessed(outcome string) {
	if m == nil {
		return
	}
	m.articles.WithLabelValues(outcome).Inc()
}

// LLMAttempt records one provider call; result is "success" or an error kind.
func (m *Metrics) LLMAttempt(result string) {
	if m == nil {
		return
	}
	m.llmAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) CacheLookup(backend string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(backend, result).Inc()
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) ReferencesCollected(n int) {
	if m == nil {
		return
	}
	m.references.Observe(float64(n))
}

func (m *Metrics) SeoScore(score int) {
	if m == nil {
		return
	}
	m.seoScore.Observe(float64(score))
}

func (m *Metrics) BatchStarted() {
	if m == nil {
		return
	}
	m.batches.Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
