package response

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	openTag  = regexp.MustCompile(`<([a-zA-Z][a-zA-Z0-9]*)\b[^>]*?(/?)>`)
	closeTag = regexp.MustCompile(`</([a-zA-Z][a-zA-Z0-9]*)\s*>`)
)

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true,
	"img": true, "input": true, "link": true, "meta": true, "source": true,
	"track": true, "wbr": true,
}

// Validate returns structural warnings for generated HTML: a missing or
// repeated <h1>, and tags whose open and close counts differ. The result
// is advisory and is only logged.
func Validate(html string) []string {
	var warnings []string

	opens := make(map[string]int)
	for _, m := range openTag.FindAllStringSubmatch(html, -1) {
		name := strings.ToLower(m[1])
		if voidElements[name] || m[2] == "/" {
			continue
		}
		opens[name]++
	}
	closes := make(map[string]int)
	for _, m := range closeTag.FindAllStringSubmatch(html, -1) {
		closes[strings.ToLower(m[1])]++
	}

	switch h1 := opens["h1"]; {
	case h1 == 0:
		warnings = append(warnings, "no <h1> heading found")
	case h1 > 1:
		warnings = append(warnings, fmt.Sprintf("found %d <h1> headings, expected 1", h1))
	}

	names := make(map[string]bool)
	for n := range opens {
		names[n] = true
	}
	for n := range closes {
		names[n] = true
	}
	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	for _, n := range sorted {
		if opens[n] != closes[n] {
			warnings = append(warnings, fmt.Sprintf("tag <%s> opened %d times but closed %d times", n, opens[n], closes[n]))
		}
	}
	return warnings
}
