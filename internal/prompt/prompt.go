// Package prompt builds the rewrite instruction and generation parameters
// for one article. Build is pure: identical inputs give byte-identical output,
// which the cache fingerprint depends on.
package prompt

import (
	"fmt"
	"math"
	"strings"

	"articleforge/internal/core"
	"articleforge/internal/preprocess"
)

// Version tags the instruction template. Bump it whenever the wording or the
// output schema changes so cached records from older templates stop matching.
const Version = "enhance-v3"

const (
	DefaultTemperature     float32 = 0.7
	DefaultTopK            float32 = 40
	DefaultTopP            float32 = 0.95
	DefaultMaxOutputTokens int32   = 8192
	DefaultSafetyThreshold         = "BLOCK_MEDIUM_AND_ABOVE"

	minWordsFloor = 300
	maxWordsFloor = 500
)

// Harm categories in the order they are sent to the model.
const (
	CategoryHarassment       = "HARM_CATEGORY_HARASSMENT"
	CategoryHateSpeech       = "HARM_CATEGORY_HATE_SPEECH"
	CategorySexuallyExplicit = "HARM_CATEGORY_SEXUALLY_EXPLICIT"
	CategoryDangerousContent = "HARM_CATEGORY_DANGEROUS_CONTENT"
)

var categoryOrder = []string{
	CategoryHarassment,
	CategoryHateSpeech,
	CategorySexuallyExplicit,
	CategoryDangerousContent,
}

// short config names for each category
var categoryAliases = map[string]string{
	"harassment":        CategoryHarassment,
	"hate_speech":       CategoryHateSpeech,
	"sexually_explicit": CategorySexuallyExplicit,
	"dangerous_content": CategoryDangerousContent,
}

// SafetySetting is one category threshold.
type SafetySetting struct {
	Category  string
	Threshold string
}

// GenerationConfig carries sampling parameters and safety thresholds.
type GenerationConfig struct {
	Temperature      float32
	TopK             float32
	TopP             float32
	MaxOutputTokens  int32
	ResponseMIMEType string
	SafetySettings   []SafetySetting
}

// Options overrides defaults. Nil sampling parameters and a non-positive
// MaxOutputTokens keep the default; an explicit zero temperature is honored.
type Options struct {
	Title           string
	Temperature     *float32
	TopK            *float32
	TopP            *float32
	MaxOutputTokens int32
	// Safety maps a category (full name or short alias such as "harassment")
	// to a threshold.
	Safety map[string]string
}

// Prompt is the builder output.
type Prompt struct {
	Text     string
	Config   GenerationConfig
	MinWords int
	MaxWords int
}

// WordBand returns the target length range for a rewrite of an article with
// the given word count.
func WordBand(originalWords int) (int, int) {
	min := int(math.Round(0.8 * float64(originalWords)))
	if min < minWordsFloor {
		min = minWordsFloor
	}
	max := int(math.Round(1.5 * float64(originalWords)))
	if max < maxWordsFloor {
		max = maxWordsFloor
	}
	return min, max
}

// Build turns normalized content and references into a prompt.
func Build(content string, refs []core.Reference, opts Options) Prompt {
	minWords, maxWords := WordBand(preprocess.WordCount(content))

	var b strings.Builder
	b.WriteString("You are an expert content editor and SEO writer. Rewrite the article below into a more complete, better structured and search-optimized version, using the reference material for additional facts and depth.\n\n")

	if title := strings.TrimSpace(opts.Title); title != "" {
		fmt.Fprintf(&b, "ARTICLE TITLE: %s\n\n", title)
	}

	b.WriteString("ORIGINAL ARTICLE:\n---\n")
	b.WriteString(content)
	b.WriteString("\n---\n\n")

	b.WriteString("REFERENCE MATERIAL:\n")
	for i, ref := range refs {
		fmt.Fprintf(&b, "[%d] %s\nURL: %s\n%s\n\n", i+1, ref.Title, ref.URL, ref.Content)
	}

	b.WriteString("REQUIREMENTS:\n")
	fmt.Fprintf(&b, "- Length: between %d and %d words.\n", minWords, maxWords)
	b.WriteString("- Start with exactly one <h1> containing the title.\n")
	b.WriteString("- Organize the body with <h2> sections and <h3> subsections where useful; use at least three <h2> sections.\n")
	b.WriteString("- Wrap key terms in <strong> tags.\n")
	b.WriteString("- Use <ul> or <ol> lists for steps, options and comparisons.\n")
	b.WriteString("- Keep paragraphs short, at most 80 words each, and sentences under 25 words on average.\n")
	b.WriteString("- Preserve the facts of the original article; add only facts supported by the reference material.\n")
	b.WriteString("- End with an <h2>Sources</h2> section containing a <ul> with one <a href=\"...\"> link per reference listed above.\n")
	b.WriteString("- The content must be HTML only: no markdown syntax, no code fences, no <html>, <head> or <body> wrappers.\n\n")

	b.WriteString("OUTPUT FORMAT:\n")
	b.WriteString("Respond with a single JSON object and nothing else:\n")
	b.WriteString(`{"content": "<h1>...</h1>...", "summary": "two or three sentence summary of the rewrite", "seoAnalysis": {"score": 0, "checklist": [], "keywordGaps": []}}`)
	b.WriteString("\n")

	return Prompt{
		Text:     b.String(),
		Config:   generationConfig(opts),
		MinWords: minWords,
		MaxWords: maxWords,
	}
}

func generationConfig(opts Options) GenerationConfig {
	cfg := GenerationConfig{
		Temperature:      DefaultTemperature,
		TopK:             DefaultTopK,
		TopP:             DefaultTopP,
		MaxOutputTokens:  DefaultMaxOutputTokens,
		ResponseMIMEType: "application/json",
	}
	if opts.Temperature != nil {
		cfg.Temperature = *opts.Temperature
	}
	if opts.TopK != nil {
		cfg.TopK = *opts.TopK
	}
	if opts.TopP != nil {
		cfg.TopP = *opts.TopP
	}
	if opts.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = opts.MaxOutputTokens
	}

	overrides := make(map[string]string, len(opts.Safety))
	for k, v := range opts.Safety {
		key := strings.ToLower(strings.TrimSpace(k))
		if full, ok := categoryAliases[key]; ok {
			overrides[full] = v
		} else {
			overrides[strings.ToUpper(key)] = v
		}
	}

	for _, category := range categoryOrder {
		threshold := DefaultSafetyThreshold
		if v := strings.TrimSpace(overrides[category]); v != "" {
			threshold = strings.ToUpper(v)
		}
		cfg.SafetySettings = append(cfg.SafetySettings, SafetySetting{Category: category, Threshold: threshold})
	}
	return cfg
}
