// Package preprocess normalizes article and reference text before it is
// embedded in a prompt.
package preprocess

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"articleforge/internal/core"

	"github.com/PuerkitoBio/goquery"
	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"golang.org/x/net/html"
)

const (
	DefaultMaxContentChars   = 12000
	DefaultMaxReferenceChars = 2000

	// TruncationMarker is appended to text cut by Truncate.
	TruncationMarker = "..."
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// blockElements get a separator around their text so words from adjacent
// blocks are not glued together.
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "ul": true, "ol": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "pre": true, "section": true, "article": true,
	"tr": true, "td": true, "th": true, "table": true, "figure": true, "figcaption": true,
}

// IsBlockElement reports whether tag starts a new block of text.
func IsBlockElement(tag string) bool {
	return blockElements[tag]
}

// Preprocessor applies length limits to prompt inputs.
type Preprocessor struct {
	MaxContentChars   int
	MaxReferenceChars int
}

// Input is the normalized material handed to the prompt builder.
type Input struct {
	Content    string
	References []core.Reference
}

// New returns a Preprocessor, substituting defaults for non-positive limits.
func New(maxContent, maxReference int) *Preprocessor {
	if maxContent <= 0 {
		maxContent = DefaultMaxContentChars
	}
	if maxReference <= 0 {
		maxReference = DefaultMaxReferenceChars
	}
	return &Preprocessor{MaxContentChars: maxContent, MaxReferenceChars: maxReference}
}

// Prepare collapses and truncates the original content, and reduces every
// reference to capped plain text. Markup in content is kept; reference
// markup is stripped.
func (p *Preprocessor) Prepare(content string, refs []core.Reference) Input {
	in := Input{
		Content:    Truncate(CollapseWhitespace(content), p.MaxContentChars),
		References: make([]core.Reference, 0, len(refs)),
	}
	for _, ref := range refs {
		in.References = append(in.References, core.Reference{
			Title:   CollapseWhitespace(ref.Title),
			URL:     strings.TrimSpace(ref.URL),
			Content: Truncate(PlainText(ref.Content), p.MaxReferenceChars),
		})
	}
	return in
}

// CollapseWhitespace replaces whitespace runs with a single space and trims.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// Truncate cuts s to at most max runes and appends TruncationMarker when it
// cut anything. It never splits a multi-byte character.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimRight(string(runes[:max]), " ") + TruncationMarker
}

// PlainText strips markup and returns whitespace-collapsed text. Input
// without tags is returned collapsed.
func PlainText(s string) string {
	if !strings.Contains(s, "<") {
		return CollapseWhitespace(html.UnescapeString(s))
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return CollapseWhitespace(s)
	}
	doc.Find("script, style, noscript, template").Remove()

	var b strings.Builder
	for _, n := range doc.Nodes {
		writeText(&b, n)
	}
	return CollapseWhitespace(b.String())
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if blockElements[n.Data] {
			b.WriteByte(' ')
			defer b.WriteByte(' ')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
}

// WordCount counts whitespace-separated words in the plain text of s.
func WordCount(s string) int {
	return len(strings.Fields(PlainText(s)))
}

// RenderMarkdown converts markdown to HTML.
func RenderMarkdown(md string) string {
	if strings.TrimSpace(md) == "" {
		return ""
	}
	mdParser := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.HrefTargetBlank,
	})
	return strings.TrimSpace(string(markdown.ToHTML([]byte(md), mdParser, renderer)))
}
