// Package seo scores article HTML with fixed rules. The same content, title
// and references always produce the same analysis.
package seo

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"articleforge/internal/core"
	"articleforge/internal/keywords"
	"articleforge/internal/preprocess"

	"github.com/PuerkitoBio/goquery"
)

// Checklist labels, in evaluation order.
const (
	LabelTitleLength     = "title_length"
	LabelWordCount       = "word_count"
	LabelStructureH2     = "structure_h2"
	LabelLinks           = "links"
	LabelImages          = "images"
	LabelReadability     = "readability"
	LabelParagraphLength = "paragraph_length"
	LabelTitleKeyword    = "title_keyword"
)

const (
	maxKeywordGaps      = 8
	minGapTokenLength   = 5
	maxAvgSentenceWords = 25
	maxParagraphWords   = 80
	minTitleChars       = 30
	maxTitleChars       = 60
)

var sentenceEnd = regexp.MustCompile(`[.!?]+`)

// Stats are the structural counts the rules are evaluated on.
type Stats struct {
	TitleChars      int
	Words           int
	H2              int
	Links           int
	Images          int
	Sentences       int
	LongParagraphs  int
	TitleKeywords   []string
	MissingKeywords bool
	Text            string // lower-cased plain text
}

// Measure extracts Stats from HTML content and a title.
func Measure(htmlContent, title string) Stats {
	text := preprocess.PlainText(htmlContent)
	lower := strings.ToLower(text)

	s := Stats{
		TitleChars: utf8.RuneCountInString(strings.TrimSpace(title)),
		Words:      len(strings.Fields(text)),
		Text:       lower,
	}

	for _, part := range sentenceEnd.Split(text, -1) {
		if strings.TrimSpace(part) != "" {
			s.Sentences++
		}
	}

	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent)); err == nil {
		s.H2 = doc.Find("h2").Length()
		s.Links = doc.Find("a[href]").Length()
		s.Images = doc.Find("img").Length()
		doc.Find("p").Each(func(_ int, p *goquery.Selection) {
			if len(strings.Fields(p.Text())) > maxParagraphWords {
				s.LongParagraphs++
			}
		})
	}

	s.TitleKeywords = keywords.Extract(title, 0)
	if len(s.TitleKeywords) > 0 {
		words := tokenSet(lower)
		s.MissingKeywords = true
		for _, kw := range s.TitleKeywords {
			if words[kw] {
				s.MissingKeywords = false
				break
			}
		}
	}
	return s
}

// AvgSentenceWords returns the mean sentence length, 0 for empty text.
func (s Stats) AvgSentenceWords() float64 {
	if s.Sentences == 0 {
		return 0
	}
	return float64(s.Words) / float64(s.Sentences)
}

// Analyze scores htmlContent. Score starts at 100, each failed rule
// subtracts a fixed penalty, and the result is clamped to [0, 100].
func Analyze(htmlContent, title string, refs []core.Reference) core.SeoAnalysis {
	st := Measure(htmlContent, title)

	score := 100
	var checklist []core.ChecklistItem
	add := func(penalty int, item core.ChecklistItem) {
		score -= penalty
		checklist = append(checklist, item)
	}

	add(titleCheck(st))
	add(wordCountCheck(st))
	add(h2Check(st))
	add(linksCheck(st))
	add(imagesCheck(st))
	add(readabilityCheck(st))
	add(paragraphCheck(st))
	add(titleKeywordCheck(st))

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return core.SeoAnalysis{
		Score:       score,
		Checklist:   checklist,
		KeywordGaps: KeywordGaps(st.Text, refs),
	}
}

func titleCheck(st Stats) (int, core.ChecklistItem) {
	item := core.ChecklistItem{Label: LabelTitleLength, Impact: core.ImpactMedium}
	switch {
	case st.TitleChars < minTitleChars:
		item.Status = core.StatusWarn
		item.Message = fmt.Sprintf("Title is %d characters, shorter than %d", st.TitleChars, minTitleChars)
		item.Suggestion = "Expand the title with a descriptive phrase that includes the main keyword."
		return 10, item
	case st.TitleChars > maxTitleChars:
		item.Status = core.StatusWarn
		item.Message = fmt.Sprintf("Title is %d characters, longer than %d", st.TitleChars, maxTitleChars)
		item.Suggestion = "Shorten the title so it is not truncated in search results."
		return 5, item
	}
	item.Status = core.StatusPass
	item.Message = fmt.Sprintf("Title length of %d characters is within range", st.TitleChars)
	return 0, item
}

func wordCountCheck(st Stats) (int, core.ChecklistItem) {
	item := core.ChecklistItem{Label: LabelWordCount, Impact: core.ImpactHigh}
	switch {
	case st.Words < 300:
		item.Status = core.StatusFail
		item.Message = fmt.Sprintf("Content has %d words, fewer than 300", st.Words)
		item.Suggestion = "Add substantially more depth: examples, explanations and context from sources."
		return 25, item
	case st.Words < 600:
		item.Status = core.StatusWarn
		item.Message = fmt.Sprintf("Content has %d words, fewer than 600", st.Words)
		item.Suggestion = "Expand key sections with more detail to reach at least 600 words."
		return 15, item
	case st.Words < 1000:
		item.Status = core.StatusWarn
		item.Message = fmt.Sprintf("Content has %d words, fewer than 1000", st.Words)
		item.Suggestion = "Consider covering related subtopics to pass 1000 words."
		return 5, item
	}
	item.Status = core.StatusPass
	item.Message = fmt.Sprintf("Content has %d words", st.Words)
	return 0, item
}

func h2Check(st Stats) (int, core.ChecklistItem) {
	item := core.ChecklistItem{Label: LabelStructureH2, Impact: core.ImpactHigh}
	switch {
	case st.H2 < 2:
		item.Status = core.StatusFail
		item.Message = fmt.Sprintf("Found %d <h2> sections, fewer than 2", st.H2)
		item.Suggestion = "Break the content into sections with descriptive <h2> headings."
		return 15, item
	case st.H2 < 4:
		item.Status = core.StatusWarn
		item.Message = fmt.Sprintf("Found %d <h2> sections", st.H2)
		item.Suggestion = "Add more <h2> sections to improve scannability."
		return 5, item
	}
	item.Status = core.StatusPass
	item.Message = fmt.Sprintf("Found %d <h2> sections", st.H2)
	return 0, item
}

func linksCheck(st Stats) (int, core.ChecklistItem) {
	item := core.ChecklistItem{Label: LabelLinks, Impact: core.ImpactMedium}
	switch {
	case st.Links == 0:
		item.Status = core.StatusFail
		item.Message = "No links found"
		item.Suggestion = "Link to authoritative sources and related articles."
		return 10, item
	case st.Links < 3:
		item.Status = core.StatusWarn
		item.Message = fmt.Sprintf("Only %d links found", st.Links)
		item.Suggestion = "Add at least three links to supporting sources."
		return 5, item
	}
	item.Status = core.StatusPass
	item.Message = fmt.Sprintf("Found %d links", st.Links)
	return 0, item
}

func imagesCheck(st Stats) (int, core.ChecklistItem) {
	item := core.ChecklistItem{Label: LabelImages, Impact: core.ImpactLow}
	if st.Images == 0 {
		item.Status = core.StatusWarn
		item.Message = "No images found"
		item.Suggestion = "Add at least one relevant image with descriptive alt text."
		return 8, item
	}
	item.Status = core.StatusPass
	item.Message = fmt.Sprintf("Found %d images", st.Images)
	return 0, item
}

func readabilityCheck(st Stats) (int, core.ChecklistItem) {
	item := core.ChecklistItem{Label: LabelReadability, Impact: core.ImpactMedium}
	avg := st.AvgSentenceWords()
	if avg > maxAvgSentenceWords {
		item.Status = core.StatusWarn
		item.Message = fmt.Sprintf("Average sentence length is %.1f words", avg)
		item.Suggestion = "Split long sentences; aim for under 25 words on average."
		return 8, item
	}
	item.Status = core.StatusPass
	item.Message = fmt.Sprintf("Average sentence length is %.1f words", avg)
	return 0, item
}

func paragraphCheck(st Stats) (int, core.ChecklistItem) {
	item := core.ChecklistItem{Label: LabelParagraphLength, Impact: core.ImpactLow}
	if st.LongParagraphs > 0 {
		item.Status = core.StatusWarn
		item.Message = fmt.Sprintf("%d paragraphs exceed %d words", st.LongParagraphs, maxParagraphWords)
		item.Suggestion = "Break long paragraphs into shorter ones."
		return 5, item
	}
	item.Status = core.StatusPass
	item.Message = "Paragraph lengths are reasonable"
	return 0, item
}

func titleKeywordCheck(st Stats) (int, core.ChecklistItem) {
	item := core.ChecklistItem{Label: LabelTitleKeyword, Impact: core.ImpactMedium}
	if st.MissingKeywords {
		item.Status = core.StatusWarn
		item.Message = "None of the title keywords appear in the content"
		item.Suggestion = fmt.Sprintf("Use the title keywords (%s) in the body text.", strings.Join(st.TitleKeywords, ", "))
		return 5, item
	}
	item.Status = core.StatusPass
	item.Message = "Title keywords appear in the content"
	return 0, item
}

// tokenSet returns the distinct word tokens of text. Keyword checks match
// whole tokens so "art" is not found inside "start".
func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range keywords.Tokenize(text) {
		set[tok] = true
	}
	return set
}

// KeywordGaps returns reference-title terms missing from lowerText as whole
// words. Stop words and tokens of four characters or fewer are ignored, and
// the result is deduplicated and capped at eight.
func KeywordGaps(lowerText string, refs []core.Reference) []string {
	gaps := []string{}
	seen := make(map[string]bool)
	words := tokenSet(lowerText)
	for _, ref := range refs {
		for _, tok := range keywords.Tokenize(ref.Title) {
			if seen[tok] || utf8.RuneCountInString(tok) < minGapTokenLength || keywords.IsStopword(tok) {
				continue
			}
			seen[tok] = true
			if words[tok] {
				continue
			}
			gaps = append(gaps, tok)
			if len(gaps) == maxKeywordGaps {
				return gaps
			}
		}
	}
	return gaps
}

var impactRank = map[string]int{
	core.ImpactHigh:   0,
	core.ImpactMedium: 1,
	core.ImpactLow:    2,
}

// Suggestions returns the non-passing checklist items, highest impact first.
func Suggestions(analysis core.SeoAnalysis) []core.ChecklistItem {
	items := analysis.Failing()
	sort.SliceStable(items, func(i, j int) bool {
		return impactRank[items[i].Impact] < impactRank[items[j].Impact]
	})
	return items
}
