package fetch

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"strings"

	"articleforge/internal/logger"

	"github.com/ledongthuc/pdf"
)

// minPDFLine drops extraction noise such as page numbers.
const minPDFLine = 3

// isPDF reports whether a Content-Type header names a PDF document.
func isPDF(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "application/pdf")
}

// extractPDF reads a PDF body and returns its text as paragraphs.
func extractPDF(r io.Reader, source string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read PDF data from %s: %w", source, err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to create PDF reader for %s: %w", source, err)
	}

	var text strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			logger.Debug("Skipping unreadable PDF page", "url", source, "page", i, "error", err.Error())
			continue
		}
		text.WriteString(pageText)
		text.WriteString("\n\n")
	}

	return pdfParagraphs(text.String()), nil
}

// pdfParagraphs turns extracted text into <p> blocks. Blank lines separate
// paragraphs; wrapped lines inside one paragraph are joined.
func pdfParagraphs(raw string) string {
	var out bytes.Buffer
	var para []string

	flush := func() {
		if len(para) == 0 {
			return
		}
		out.WriteString("<p>")
		out.WriteString(html.EscapeString(strings.Join(para, " ")))
		out.WriteString("</p>\n")
		para = para[:0]
	}

	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			continue
		}
		if len(trimmed) < minPDFLine {
			continue
		}
		para = append(para, collapse(trimmed))
	}
	flush()

	return strings.TrimSpace(out.String())
}
