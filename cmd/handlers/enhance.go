package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"articleforge/internal/config"
	"articleforge/internal/core"
	"articleforge/internal/logger"
	"articleforge/internal/pipeline"
	"articleforge/internal/preprocess"
	"articleforge/internal/store"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewEnhanceCmd creates the batch enhance command
func NewEnhanceCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "enhance",
		Short: "Enhance one batch of pending articles from PostgreSQL",
		Long: `Enhance one batch of pending articles.

Articles without an enhancement are read oldest first from the configured
PostgreSQL table. Each one gets references, an enhanced rewrite and an SEO
analysis, and the record is written back. Articles for which no reference
could be collected are left pending.

Examples:
  # Process the configured batch size
  articleforge enhance

  # Process up to 20 articles
  articleforge enhance --limit 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnhance(cmd.Context(), limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum articles to process (0 = pipeline.batch_size)")
	return cmd
}

func runEnhance(ctx context.Context, limit int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := config.Get()

	articles, err := openPostgres(ctx, cfg)
	if err != nil {
		return err
	}
	defer articles.Close()

	c, err := buildComponents(ctx, cfg, articles)
	if err != nil {
		return err
	}
	defer c.Close()

	fmt.Println("🚀 Enhancing pending articles...")
	stats, err := c.pipeline.RunBatch(ctx, limit)
	if err != nil {
		return fmt.Errorf("batch failed: %w", err)
	}

	printBatchStats(stats)
	return nil
}

func printBatchStats(stats pipeline.BatchStats) {
	fmt.Printf("\n📊 Batch %s finished in %s\n", stats.RunID, stats.Duration.Round(time.Millisecond))
	fmt.Printf("   ✨ Fresh:    %d\n", stats.Fresh)
	fmt.Printf("   💾 Cached:   %d\n", stats.Cached)
	fmt.Printf("   ⚠️  Fallback: %d\n", stats.Fallback)
	fmt.Printf("   ⏭️  Skipped:  %d\n", stats.Skipped)
	if stats.WriteErrors > 0 {
		fmt.Printf("   ❌ Write errors: %d\n", stats.WriteErrors)
	}
	if stats.Archived > 0 {
		fmt.Printf("   🗄️  Archived: %d\n", stats.Archived)
	}
}

// NewEnhanceFileCmd creates the single-file enhance command
func NewEnhanceFileCmd() *cobra.Command {
	var (
		title   string
		url     string
		format  string
		outFile string
	)

	cmd := &cobra.Command{
		Use:   "enhance-file <article.html|article.md>",
		Short: "Enhance a single article from a local file",
		Long: `Enhance a single article read from an HTML or markdown file.

Markdown is rendered to HTML first. The resulting record is printed as JSON
or YAML. Nothing is written to the database.

Examples:
  articleforge enhance-file drafts/solar.md --title "How Solar Panels Work"
  articleforge enhance-file post.html --url https://blog.example.com/post --output yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnhanceFile(cmd.Context(), args[0], title, url, format, outFile)
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Article title (default: file name)")
	cmd.Flags().StringVar(&url, "url", "", "Canonical article URL, excluded from references")
	cmd.Flags().StringVarP(&format, "output", "o", "json", "Output format: json or yaml")
	cmd.Flags().StringVar(&outFile, "out", "", "Write the record to this file instead of stdout")
	return cmd
}

func runEnhanceFile(ctx context.Context, path, title, url, format, outFile string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if format != "json" && format != "yaml" {
		return fmt.Errorf("unsupported output format: %s (use json or yaml)", format)
	}

	article, err := loadArticle(path, title, url)
	if err != nil {
		return err
	}

	articles := store.NewMemory(article)
	c, err := buildComponents(ctx, config.Get(), articles)
	if err != nil {
		return err
	}
	defer c.Close()

	stats, err := c.pipeline.RunBatch(ctx, 1)
	if err != nil {
		return err
	}
	if stats.Skipped > 0 {
		return fmt.Errorf("article skipped: %w", pipeline.ErrNoReferences)
	}

	done, _ := articles.Get(article.ID)
	if done.Enhancement == nil {
		return fmt.Errorf("no enhancement was produced for %s", path)
	}
	if done.Enhancement.IsFallback {
		logger.Warn("Enhancement fell back to the original content", "error", done.Enhancement.Error)
	}

	var w io.Writer = os.Stdout
	if outFile != "" {
		f, err := os.Create(outFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return writeRecord(w, done.Enhancement, format)
}

// loadArticle reads an HTML or markdown file into an Article.
func loadArticle(path, title, url string) (core.Article, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return core.Article{}, fmt.Errorf("failed to read article: %w", err)
	}

	content := string(raw)
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".md" || ext == ".markdown" {
		content = preprocess.RenderMarkdown(content)
	}
	if strings.TrimSpace(content) == "" {
		return core.Article{}, fmt.Errorf("article file is empty: %s", path)
	}

	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if title == "" {
		title = strings.ReplaceAll(id, "-", " ")
	}
	return core.Article{ID: id, Title: title, Content: content, URL: url}, nil
}

// writeRecord encodes the record as indented JSON, or as YAML with the same
// field names as the JSON form.
func writeRecord(w io.Writer, record *core.EnhancementRecord, format string) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if format == "json" {
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	var generic map[string]interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return fmt.Errorf("failed to encode record as YAML: %w", err)
	}
	return enc.Close()
}
