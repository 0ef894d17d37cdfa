// Package fetch downloads reference pages and reduces them to clean
// semantic markup.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"articleforge/internal/logger"
	"articleforge/internal/preprocess"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

var (
	ErrNotHTML    = errors.New("response is neither an HTML nor a PDF document")
	ErrNoContent  = errors.New("no readable content found")
	ErrHTTPStatus = errors.New("unexpected HTTP status")
	ErrInvalidURL = errors.New("URL must be absolute http or https")
)

const DefaultUserAgent = "Mozilla/5.0 (compatible; articleforge/1.0; +https://github.com/articleforge)"

// denylist removes structural chrome before extraction.
const denylist = "script, style, noscript, iframe, svg, canvas, template, nav, header, footer, aside, form, button, " +
	"[role=navigation], [role=banner], [role=contentinfo], [role=complementary], " +
	".share, .sharing, .social-share, .share-buttons, .sharedaddy, .addtoany_share_save_container, " +
	".comments, #comments, .comment-respond, #respond, .related, .related-posts, .yarpp-related, .jp-relatedposts, " +
	".advertisement, .ad, .ads, .adsbygoogle, .sidebar, #sidebar, .widget, .newsletter, .subscribe, .cookie-banner, .breadcrumbs"

// contentRoots are tried in order; the first with text wins.
var contentRoots = []string{
	"article",
	"main",
	"[role=main]",
	".entry-content",
	".post-content",
	".article-body",
	".post-body",
	"#content",
	".content",
}

// boilerplatePhrases end extraction at the first block that contains one.
var boilerplatePhrases = []string{
	"leave a reply",
	"leave a comment",
	"related posts",
	"related articles",
	"you may also like",
	"you might also like",
	"share this:",
	"subscribe to our newsletter",
	"sign up for our newsletter",
	"about the author",
	"all rights reserved",
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Options configures the scraping client.
type Options struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Timeout:      15 * time.Second,
		UserAgent:    DefaultUserAgent,
		MaxBodyBytes: 5 << 20,
	}
}

// Client fetches pages and extracts readable content.
type Client struct {
	httpClient *http.Client
	options    Options
}

// NewClient creates a Client whose transport propagates trace context.
func NewClient(options Options) *Client {
	defaults := DefaultOptions()
	if options.Timeout <= 0 {
		options.Timeout = defaults.Timeout
	}
	if options.UserAgent == "" {
		options.UserAgent = defaults.UserAgent
	}
	if options.MaxBodyBytes <= 0 {
		options.MaxBodyBytes = defaults.MaxBodyBytes
	}
	return &Client{
		httpClient: &http.Client{
			Timeout:   options.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		options: options,
	}
}

// Scrape loads rawURL and returns its main content as semantic HTML. Any
// failure is returned as an error; callers treat it as "no reference".
func (c *Client) Scrape(ctx context.Context, rawURL string) (string, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil || (pageURL.Scheme != "http" && pageURL.Scheme != "https") || pageURL.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	ctx, cancel := context.WithTimeout(ctx, c.options.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.options.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,application/pdf;q=0.8,*/*;q=0.5")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %d for %s", ErrHTTPStatus, resp.StatusCode, rawURL)
	}

	contentType := resp.Header.Get("Content-Type")
	if isPDF(contentType) {
		content, err := extractPDF(io.LimitReader(resp.Body, c.options.MaxBodyBytes), rawURL)
		if err != nil {
			return "", err
		}
		if content == "" {
			return "", ErrNoContent
		}
		logger.Debug("Scraped PDF reference", "url", rawURL, "chars", len(content))
		return content, nil
	}
	if contentType != "" && !strings.Contains(strings.ToLower(contentType), "html") {
		return "", fmt.Errorf("%w: %s", ErrNotHTML, contentType)
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, c.options.MaxBodyBytes), contentType)
	if err != nil {
		return "", fmt.Errorf("failed to decode body of %s: %w", rawURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML from %s: %w", rawURL, err)
	}

	content := Extract(doc, pageURL)
	if content == "" {
		return "", ErrNoContent
	}

	logger.Debug("Scraped reference", "url", rawURL, "chars", len(content))
	return content, nil
}

// Extract strips chrome from doc and serializes its block elements in
// document order. Image sources are resolved against base.
func Extract(doc *goquery.Document, base *url.URL) string {
	doc.Find(denylist).Remove()

	root := doc.Find("body")
	for _, sel := range contentRoots {
		candidate := doc.Find(sel).First()
		if candidate.Length() > 0 && strings.TrimSpace(candidate.Text()) != "" {
			root = candidate
			break
		}
	}
	if root.Length() == 0 {
		root = doc.Selection
	}

	e := &extractor{base: base}
	for _, n := range root.Nodes {
		e.walk(n)
	}
	return strings.TrimSpace(e.buf.String())
}

type extractor struct {
	buf     bytes.Buffer
	base    *url.URL
	stopped bool
}

func (e *extractor) walk(n *html.Node) {
	if e.stopped {
		return
	}
	if n.Type != html.ElementNode && n.Type != html.DocumentNode {
		return
	}

	switch n.Data {
	case "h1", "h2", "h3", "h4", "h5", "h6", "p", "blockquote", "li":
		e.block(n)
		return
	case "ul", "ol":
		mark := e.buf.Len()
		e.buf.WriteString("<" + n.Data + ">")
		inner := e.buf.Len()
		e.children(n)
		if e.buf.Len() == inner {
			e.buf.Truncate(mark)
			return
		}
		e.buf.WriteString("</" + n.Data + ">\n")
		return
	case "img":
		e.image(n)
		return
	}
	e.children(n)
}

func (e *extractor) children(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		e.walk(c)
	}
}

func (e *extractor) block(n *html.Node) {
	text := collapse(textOf(n))
	if text != "" {
		if isBoilerplate(text) {
			e.stopped = true
			return
		}
		fmt.Fprintf(&e.buf, "<%s>%s</%s>", n.Data, html.EscapeString(text), n.Data)
		if n.Data != "li" {
			e.buf.WriteByte('\n')
		}
	}
	for _, img := range findImages(n) {
		e.image(img)
	}
}

func (e *extractor) image(n *html.Node) {
	src := strings.TrimSpace(attr(n, "src"))
	if src == "" {
		src = strings.TrimSpace(attr(n, "data-src"))
	}
	if src == "" || strings.HasPrefix(strings.ToLower(src), "data:") {
		return
	}
	if e.base != nil {
		if ref, err := url.Parse(src); err == nil {
			src = e.base.ResolveReference(ref).String()
		}
	}
	fmt.Fprintf(&e.buf, "<img src=\"%s\" alt=\"%s\">\n", html.EscapeString(src), html.EscapeString(collapse(attr(n, "alt"))))
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if preprocess.IsBlockElement(n.Data) {
				b.WriteByte(' ')
				defer b.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return b.String()
}

func findImages(n *html.Node) []*html.Node {
	var imgs []*html.Node
	var f func(*html.Node)
	f = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == "img" {
				imgs = append(imgs, c)
				continue
			}
			f(c)
		}
	}
	f(n)
	return imgs
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func collapse(s string) string {
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func isBoilerplate(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range boilerplatePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
