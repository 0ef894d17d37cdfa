package core

import (
	"slices"
	"time"
)

// Check statuses used by ChecklistItem.
const (
	StatusPass = "pass"
	StatusWarn = "warn"
	StatusFail = "fail"
)

// Impact tiers used to order suggestions.
const (
	ImpactHigh   = "high"
	ImpactMedium = "medium"
	ImpactLow    = "low"
)

// Article represents a stored article awaiting enhancement.
type Article struct {
	ID          string             `json:"id"`                    // Unique identifier for the article
	Title       string             `json:"title"`                 // Title of the article
	Content     string             `json:"content"`               // Plain text or HTML body
	URL         string             `json:"url,omitempty"`         // Canonical URL, used to exclude the origin domain from references
	Enhancement *EnhancementRecord `json:"enhancement,omitempty"` // Prior enhancement, if any
	UpdatedAt   time.Time          `json:"updated_at"`            // Last time the store touched the row
}

// Reference is scraped external text used as grounding for a rewrite.
type Reference struct {
	Title   string `json:"title"`   // Title reported by the search provider
	URL     string `json:"url"`     // Source URL
	Content string `json:"content"` // Extracted text, length-capped
}

// EnhancementRecord is the persisted result of one pipeline run for an article.
// When IsFallback is set, Content equals the original article content.
type EnhancementRecord struct {
	Content       string       `json:"content"`
	Summary       string       `json:"summary"`
	References    []Reference  `json:"references"`
	SeoAnalysis   *SeoAnalysis `json:"seoAnalysis,omitempty"`
	GeneratedAt   time.Time    `json:"generatedAt"`
	Model         string       `json:"model"`
	PromptVersion string       `json:"promptVersion"`
	IsFallback    bool         `json:"isFallback"`
	Error         string       `json:"error,omitempty"`
}

// SeoAnalysis is the output of the rule-based quality scorer.
type SeoAnalysis struct {
	Score       int             `json:"score"`       // 0-100
	Checklist   []ChecklistItem `json:"checklist"`   // One item per rule, in evaluation order
	KeywordGaps []string        `json:"keywordGaps"` // Reference terms missing from the content
}

// ChecklistItem is one rule evaluation.
type ChecklistItem struct {
	Label      string `json:"label"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
	Impact     string `json:"impact"`
}

// Clone returns a deep copy that shares no slices or pointers with r.
func (r *EnhancementRecord) Clone() *EnhancementRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.References = slices.Clone(r.References)
	if r.SeoAnalysis != nil {
		analysis := *r.SeoAnalysis
		analysis.Checklist = slices.Clone(r.SeoAnalysis.Checklist)
		analysis.KeywordGaps = slices.Clone(r.SeoAnalysis.KeywordGaps)
		out.SeoAnalysis = &analysis
	}
	return &out
}

// Failing returns the checklist items that did not pass.
func (s *SeoAnalysis) Failing() []ChecklistItem {
	if s == nil {
		return nil
	}
	var out []ChecklistItem
	for _, item := range s.Checklist {
		if item.Status != StatusPass {
			out = append(out, item)
		}
	}
	return out
}

// CacheStats represents statistics about the enhancement cache.
type CacheStats struct {
	Backend      string    `json:"backend"`       // Backend name
	EntryCount   int       `json:"entry_count"`   // Number of stored entries
	ExpiredCount int       `json:"expired_count"` // Entries past their expiry still on disk
	CacheSize    int64     `json:"cache_size"`    // Total cache size in bytes, when known
	LastUpdated  time.Time `json:"last_updated"`  // Last cache update time
}
