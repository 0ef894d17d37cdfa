// Package cache stores finished enhancement records keyed by a fingerprint
// of everything that determines the model output.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"articleforge/internal/core"
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

// Cache is a content-addressed record store. Backend failures are logged
// and behave as a miss (Get) or a no-op (Put). Fallback records are never
// stored.
type Cache interface {
	Get(ctx context.Context, key string) (*core.EnhancementRecord, bool)
	Put(ctx context.Context, key string, record *core.EnhancementRecord, ttl time.Duration)
	Name() string
}

// Options selects and configures a backend.
type Options struct {
	Backend   string
	Directory string // sqlite
	RedisURL  string // redis
}

// New opens the configured backend. The returned closer releases backend
// resources and is never nil.
func New(ctx context.Context, opts Options) (Cache, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(opts.Backend) {
	case BackendMemory:
		return NewMemory(), noop, nil
	case BackendSQLite, "":
		c, err := NewSQLite(opts.Directory)
		if err != nil {
			return nil, noop, err
		}
		return c, c.Close, nil
	case BackendRedis:
		c, err := NewRedis(ctx, opts.RedisURL)
		if err != nil {
			return nil, noop, err
		}
		return c, c.Close, nil
	case BackendNone:
		return Null{}, noop, nil
	default:
		return nil, noop, fmt.Errorf("unsupported cache backend: %s", opts.Backend)
	}
}

// Fingerprint derives the cache key from the model, the prepared content,
// the prepared references and the prompt version.
func Fingerprint(model, contentHash, referencesHash, promptVersion string) string {
	h := sha256.New()
	for _, part := range []string{model, contentHash, referencesHash, promptVersion} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// HashContent hashes normalized article content.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// HashArticle hashes the title together with the content. The title feeds
// the prompt and the title checks, so it belongs to the content identity.
func HashArticle(title, content string) string {
	h := sha256.New()
	h.Write([]byte(title))
	h.Write([]byte{0})
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}

// HashReferences hashes references in order; reordering changes the hash.
func HashReferences(refs []core.Reference) string {
	h := sha256.New()
	for _, ref := range refs {
		h.Write([]byte(ref.URL))
		h.Write([]byte{0})
		h.Write([]byte(ref.Title))
		h.Write([]byte{0})
		h.Write([]byte(ref.Content))
		h.Write([]byte{1})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func cacheable(record *core.EnhancementRecord) bool {
	return record != nil && !record.IsFallback
}

// Null caches nothing.
type Null struct{}

func (Null) Get(context.Context, string) (*core.EnhancementRecord, bool) { return nil, false }

func (Null) Put(context.Context, string, *core.EnhancementRecord, time.Duration) {}

func (Null) Name() string { return BackendNone }
