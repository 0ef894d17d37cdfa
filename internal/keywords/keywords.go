// Package keywords provides the stopword-filtered tokenization shared by the
// mock search generator and the quality scorer.
package keywords

import (
	"regexp"
	"sort"
	"strings"
)

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}]+`)

var stopWords = func() map[string]bool {
	words := []string{
		"a", "about", "after", "all", "also", "an", "and", "any", "are", "as", "at",
		"be", "been", "before", "being", "best", "between", "both", "but", "by",
		"can", "could", "did", "do", "does", "doing", "down", "during",
		"each", "even", "every", "few", "for", "from", "further",
		"get", "gets", "guide", "had", "has", "have", "having", "he", "her", "here", "him", "his", "how",
		"i", "if", "in", "into", "is", "it", "its", "just",
		"like", "make", "many", "may", "might", "more", "most", "much", "must", "my",
		"new", "no", "nor", "not", "now", "of", "off", "on", "once", "only", "or", "other", "our", "out", "over", "own",
		"said", "same", "she", "should", "so", "some", "such",
		"than", "that", "the", "their", "them", "then", "there", "these", "they", "this", "those", "through", "time", "to", "too", "two",
		"under", "until", "up", "us", "use", "used", "using", "very",
		"was", "way", "ways", "we", "were", "what", "when", "where", "which", "while", "who", "why", "will", "with", "would",
		"you", "your", "yours",
	}
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}()

// IsStopword reports whether the lower-cased word is a stop word.
func IsStopword(word string) bool {
	return stopWords[strings.ToLower(word)]
}

// Tokenize lower-cases text and splits it on anything that is not a letter or digit.
func Tokenize(text string) []string {
	return strings.Fields(nonWord.ReplaceAllString(strings.ToLower(text), " "))
}

// Extract returns up to max keywords from text ordered by frequency, ties
// broken by first appearance. Tokens shorter than three characters and stop
// words are dropped. max <= 0 returns all keywords.
func Extract(text string, max int) []string {
	counts := make(map[string]int)
	var order []string
	for _, tok := range Tokenize(text) {
		if len([]rune(tok)) < 3 || stopWords[tok] {
			continue
		}
		if counts[tok] == 0 {
			order = append(order, tok)
		}
		counts[tok]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	if max > 0 && len(order) > max {
		order = order[:max]
	}
	return order
}
