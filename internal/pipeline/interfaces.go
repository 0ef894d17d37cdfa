package pipeline

import (
	"context"

	"articleforge/internal/core"
	"articleforge/internal/llm"
	"articleforge/internal/prompt"
)

// ReferenceCollector finds grounding material for an article
type ReferenceCollector interface {
	// Collect returns up to limit references for query in provider rank
	// order, skipping the excluded domains. It never fails; it may return none.
	Collect(ctx context.Context, query string, limit int, exclude ...string) []core.Reference
}

// Generator invokes the language model with retries
type Generator interface {
	// Invoke returns the raw model output, or a classified *llm.Error
	Invoke(ctx context.Context, text string, cfg prompt.GenerationConfig) (*llm.RawResult, error)

	// Model identifies the model, used in cache keys and records
	Model() string
}
