package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"articleforge/internal/core"
	"articleforge/internal/seo"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	passStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	scoreBoxBase = lipgloss.NewStyle().Bold(true).Padding(0, 2).Border(lipgloss.RoundedBorder())
)

// NewScoreCmd creates the quality scoring command
func NewScoreCmd() *cobra.Command {
	var (
		title   string
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "score <article.html|article.md>",
		Short: "Score an article with the SEO checklist",
		Long: `Run the deterministic SEO checklist on a local HTML or markdown file.

No model or network calls are made.

Examples:
  articleforge score post.html --title "How Solar Panels Work"
  articleforge score drafts/solar.md --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			article, err := loadArticle(args[0], title, "")
			if err != nil {
				return err
			}
			analysis := seo.Analyze(article.Content, article.Title, nil)
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(analysis)
			}
			renderAnalysis(os.Stdout, article.Title, analysis)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Article title (default: file name)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the analysis as JSON")
	return cmd
}

// renderAnalysis prints a styled checklist followed by prioritized suggestions.
func renderAnalysis(w io.Writer, title string, analysis core.SeoAnalysis) {
	fmt.Fprintln(w, titleStyle.Render("SEO analysis: "+title))
	fmt.Fprintln(w, scoreStyle(analysis.Score).Render(fmt.Sprintf("%d / 100", analysis.Score)))

	for _, item := range analysis.Checklist {
		fmt.Fprintf(w, "%s %-18s %s\n", statusMark(item.Status), item.Label, mutedStyle.Render(item.Message))
	}

	suggestions := seo.Suggestions(analysis)
	if len(suggestions) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, titleStyle.Render("Suggestions"))
		for _, item := range suggestions {
			fmt.Fprintf(w, "  [%s] %s\n", strings.ToUpper(item.Impact), item.Suggestion)
		}
	}

	if len(analysis.KeywordGaps) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s %s\n", titleStyle.Render("Keyword gaps:"), strings.Join(analysis.KeywordGaps, ", "))
	}
}

func scoreStyle(score int) lipgloss.Style {
	switch {
	case score >= 80:
		return scoreBoxBase.BorderForeground(lipgloss.Color("10"))
	case score >= 50:
		return scoreBoxBase.BorderForeground(lipgloss.Color("11"))
	default:
		return scoreBoxBase.BorderForeground(lipgloss.Color("9"))
	}
}

func statusMark(status string) string {
	switch status {
	case core.StatusPass:
		return passStyle.Render("✓")
	case core.StatusWarn:
		return warnStyle.Render("!")
	default:
		return failStyle.Render("✗")
	}
}
