// Package store provides the article stores the pipeline reads pending
// articles from and writes finished records back to.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"articleforge/internal/core"
)

// ErrNotFound is returned when an article id does not exist.
var ErrNotFound = errors.New("article not found")

// ArticleStore is the pipeline's view of article persistence.
type ArticleStore interface {
	// ListPending returns up to limit articles that have no enhancement or
	// only a fallback record, least recently attempted first.
	ListPending(ctx context.Context, limit int) ([]core.Article, error)
	// Update writes the finished record for article id.
	Update(ctx context.Context, id string, record *core.EnhancementRecord) error
	// MarkSkipped records an attempt that produced no record, moving the
	// article behind the rest of the queue.
	MarkSkipped(ctx context.Context, id string) error
}

// pending reports whether an article still needs an enhancement.
func pending(a core.Article) bool {
	return a.Enhancement == nil || a.Enhancement.IsFallback
}

// Memory is an in-process ArticleStore used by single-file runs and tests.
type Memory struct {
	mu       sync.Mutex
	order    []string
	articles map[string]core.Article
}

// NewMemory creates a store holding articles in insertion order.
func NewMemory(articles ...core.Article) *Memory {
	m := &Memory{articles: make(map[string]core.Article)}
	for _, a := range articles {
		m.Save(a)
	}
	return m
}

// Save inserts or replaces an article.
func (m *Memory) Save(article core.Article) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.articles[article.ID]; !exists {
		m.order = append(m.order, article.ID)
	}
	if article.UpdatedAt.IsZero() {
		article.UpdatedAt = time.Now().UTC()
	}
	m.articles[article.ID] = article
}

// Get returns the article with id.
func (m *Memory) Get(id string) (core.Article, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.articles[id]
	return a, ok
}

func (m *Memory) ListPending(ctx context.Context, limit int) ([]core.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []core.Article
	for _, id := range m.order {
		if limit > 0 && len(out) == limit {
			break
		}
		if a := m.articles[id]; pending(a) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Memory) Update(ctx context.Context, id string, record *core.EnhancementRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.articles[id]
	if !ok {
		return ErrNotFound
	}
	a.Enhancement = record
	a.UpdatedAt = time.Now().UTC()
	m.articles[id] = a
	m.moveToBack(id)
	return nil
}

func (m *Memory) MarkSkipped(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.articles[id]
	if !ok {
		return ErrNotFound
	}
	a.UpdatedAt = time.Now().UTC()
	m.articles[id] = a
	m.moveToBack(id)
	return nil
}

// moveToBack keeps order sorted by last attempt. Callers hold mu.
func (m *Memory) moveToBack(id string) {
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.order = append(m.order, id)
}
