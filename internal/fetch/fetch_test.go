package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const samplePage = `<!DOCTYPE html>
<html><head><title>Sample</title><style>p{color:red}</style></head>
<body>
<header><nav><a href="/">Home</a><a href="/about">About</a></nav></header>
<aside class="sidebar"><p>Sidebar promo text</p></aside>
<article>
  <h1>Understanding   Caches</h1>
  <p>Caches keep <strong>hot</strong> data close to the consumer.</p>
  <div class="share"><p>Share on social</p></div>
  <script>console.log("tracking")</script>
  <h2>Eviction</h2>
  <ul><li>LRU</li><li>LFU</li></ul>
  <blockquote>There are only two hard things.</blockquote>
  <figure><img src="/img/diagram.png" alt="diagram"></figure>
  <p><img src="data:image/png;base64,AAAA" alt="inline"></p>
  <h3>Leave a Reply</h3>
  <p>This comment section must not be extracted.</p>
</article>
<footer><p>Copyright footer</p></footer>
</body></html>`

func TestScrapeExtractsMainContent(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(samplePage))
	}))
	defer server.Close()

	client := NewClient(Options{UserAgent: "test-agent"})
	content, err := client.Scrape(context.Background(), server.URL+"/posts/caches")
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}

	if gotUA != "test-agent" {
		t.Errorf("Expected User-Agent test-agent, got %q", gotUA)
	}

	for _, want := range []string{
		"<h1>Understanding Caches</h1>",
		"<p>Caches keep hot data close to the consumer.</p>",
		"<h2>Eviction</h2>",
		"<ul><li>LRU</li><li>LFU</li></ul>",
		"<blockquote>There are only two hard things.</blockquote>",
		`<img src="` + server.URL + `/img/diagram.png" alt="diagram">`,
	} {
		if !strings.Contains(content, want) {
			t.Errorf("Expected content to contain %q, got:\n%s", want, content)
		}
	}

	for _, unwanted := range []string{"Home", "Sidebar", "Share on social", "tracking", "data:image", "Leave a Reply", "comment section", "Copyright"} {
		if strings.Contains(content, unwanted) {
			t.Errorf("Content should not contain %q, got:\n%s", unwanted, content)
		}
	}

	if strings.Index(content, "<h1>") > strings.Index(content, "<h2>") {
		t.Error("Document order not preserved")
	}
}

func TestScrapeDecodesCharset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		w.Write([]byte("<html><body><main><p>Caf\xe9 culture</p></main></body></html>"))
	}))
	defer server.Close()

	content, err := NewClient(DefaultOptions()).Scrape(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}
	if content != "<p>Café culture</p>" {
		t.Errorf("Expected decoded text, got %q", content)
	}
}

func TestScrapeErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body><nav>only navigation</nav></body></html>"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(DefaultOptions())
	tests := []struct {
		name string
		url  string
		want error
	}{
		{"not found", server.URL + "/missing", ErrHTTPStatus},
		{"not html", server.URL + "/json", ErrNotHTML},
		{"no content", server.URL + "/empty", ErrNoContent},
		{"bad scheme", "ftp://example.com/file", ErrInvalidURL},
		{"relative", "/just/a/path", ErrInvalidURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content, err := client.Scrape(context.Background(), tt.url)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
			if content != "" {
				t.Errorf("Expected empty content on error, got %q", content)
			}
		})
	}
}

func TestScrapeTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	client := NewClient(Options{Timeout: 50 * time.Millisecond})
	start := time.Now()
	if _, err := client.Scrape(context.Background(), server.URL); err == nil {
		t.Fatal("Expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Error("Scrape did not honour its timeout")
	}
}

func TestExtractFallsBackToBody(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<html><body><div><p>First</p><p>Related posts</p><p>After</p></div></body></html>`))
	if err != nil {
		t.Fatal(err)
	}
	got := Extract(doc, nil)
	if got != "<p>First</p>" {
		t.Errorf("Expected extraction to stop at boilerplate, got %q", got)
	}
}

func TestExtractDropsEmptyLists(t *testing.T) {
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(
		`<article><ul><li>  </li></ul><p>Body text</p></article>`))
	base, _ := url.Parse("https://example.com/a/")
	if got := Extract(doc, base); got != "<p>Body text</p>" {
		t.Errorf("Expected empty list to be dropped, got %q", got)
	}
}

func TestExtractKeepsWordsAcrossInlineTags(t *testing.T) {
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(
		`<article><p>We re<b>write</b> the <a href="/x">cache</a>, then flush.</p><li>one<br>two</li></article>`))
	got := Extract(doc, nil)
	if !strings.Contains(got, "<p>We rewrite the cache, then flush.</p>") {
		t.Errorf("Inline tags split words: %q", got)
	}
	if !strings.Contains(got, "one two") {
		t.Errorf("Block boundary lost its separator: %q", got)
	}
}

func TestHTTPClientUsesOtelTransport(t *testing.T) {
	client := NewClient(DefaultOptions())
	if _, ok := client.httpClient.Transport.(*otelhttp.Transport); !ok {
		t.Error("Scraper HTTP client does not use otelhttp.Transport")
	}
}

func TestPDFParagraphs(t *testing.T) {
	raw := "Solar Energy Report\n\nPanels convert\nsunlight into power.\n\n7\n\nCosts & benefits\n"
	got := pdfParagraphs(raw)
	want := "<p>Solar Energy Report</p>\n<p>Panels convert sunlight into power.</p>\n<p>Costs &amp; benefits</p>"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestScrapeRejectsCorruptPDF(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("not really a pdf"))
	}))
	defer server.Close()

	if _, err := NewClient(DefaultOptions()).Scrape(context.Background(), server.URL+"/report.pdf"); err == nil {
		t.Error("Expected error for corrupt PDF")
	}
}
