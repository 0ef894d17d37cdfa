// Package response turns raw model output into article HTML. Each transform
// is a separate pure function so they can be tested and composed on their own.
package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// FallbackSummary is used when the model output is not a JSON envelope.
const FallbackSummary = "Enhanced version of the original article with additional context from reference sources."

// ErrParse marks output that could not be decoded as the JSON envelope.
var ErrParse = errors.New("response is not a valid JSON envelope")

var (
	fenceLine       = regexp.MustCompile("(?m)^[ \t]*```[a-zA-Z0-9_-]*[ \t]*$\n?")
	doctypeTag      = regexp.MustCompile(`(?i)<!doctype[^>]*>`)
	wrapperTag      = regexp.MustCompile(`(?i)</?(?:html|body)(?:\s[^>]*)?>`)
	headBlock       = regexp.MustCompile(`(?is)<head(?:\s[^>]*)?>.*?</head>`)
	markdownHeading = regexp.MustCompile(`(?m)^[ \t]*(#{1,6})[ \t]+(.+?)[ \t]*#*[ \t]*$`)
)

// Envelope is the JSON object the model is asked to return.
type Envelope struct {
	Content     string          `json:"content"`
	Summary     string          `json:"summary"`
	SeoAnalysis json.RawMessage `json:"seoAnalysis,omitempty"`
}

// Parsed is the outcome of Parse. ParseErr is set when the envelope could not
// be decoded; Content then holds the cleaned raw text.
type Parsed struct {
	Content  string
	Summary  string
	ParseErr error
}

// StripCodeFences removes markdown code fence lines such as ```json and ```.
func StripCodeFences(s string) string {
	return strings.TrimSpace(fenceLine.ReplaceAllString(s, ""))
}

// StripDoctype removes a doctype declaration, the head block and html/body
// wrapper tags, keeping the inner markup.
func StripDoctype(s string) string {
	s = doctypeTag.ReplaceAllString(s, "")
	s = headBlock.ReplaceAllString(s, "")
	s = wrapperTag.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// MarkdownHeadingsToHTML converts leaked "## Heading" lines into heading tags.
func MarkdownHeadingsToHTML(s string) string {
	return markdownHeading.ReplaceAllStringFunc(s, func(line string) string {
		m := markdownHeading.FindStringSubmatch(line)
		level := len(m[1])
		return fmt.Sprintf("<h%d>%s</h%d>", level, m[2], level)
	})
}

// Clean applies all text transforms. Clean(Clean(s)) == Clean(s).
func Clean(s string) string {
	s = StripCodeFences(s)
	s = StripDoctype(s)
	s = MarkdownHeadingsToHTML(s)
	return strings.TrimSpace(s)
}

// Parse decodes the model output. It never fails: undecodable output is
// returned as content with FallbackSummary and ParseErr set.
func Parse(raw string) Parsed {
	text := StripCodeFences(raw)

	env, err := decodeEnvelope(text)
	if err != nil {
		return Parsed{
			Content:  Clean(text),
			Summary:  FallbackSummary,
			ParseErr: fmt.Errorf("%w: %v", ErrParse, err),
		}
	}

	summary := strings.TrimSpace(env.Summary)
	if summary == "" {
		summary = FallbackSummary
	}
	return Parsed{Content: Clean(env.Content), Summary: summary}
}

func decodeEnvelope(text string) (*Envelope, error) {
	var env Envelope
	err := json.Unmarshal([]byte(text), &env)
	if err != nil {
		// models sometimes wrap the object in prose
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start < 0 || end <= start {
			return nil, err
		}
		env = Envelope{}
		if err2 := json.Unmarshal([]byte(text[start:end+1]), &env); err2 != nil {
			return nil, err2
		}
	}
	if strings.TrimSpace(env.Content) == "" {
		return nil, errors.New("envelope has empty content")
	}
	return &env, nil
}
