package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/matheuskafuri/cryptonews/internal/briefing"
	"github.com/matheuskafuri/cryptonews/internal/classify"
	"github.com/matheuskafuri/cryptonews/internal/config"
	"github.com/spf13/cobra"
)

var (
	flagBriefSince    string
	flagBriefSize     int
	flagBriefCategory string
)

var (
	rankStyle   = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	metaStyle   = lipgloss.NewStyle().Foreground(colorDim)
	storyIndent = lipgloss.NewStyle().PaddingLeft(4)
)

var briefCmd = &cobra.Command{
	Use:   "brief",
	Short: "Print the top stories from the local cache",
	Long: `Print the highest-signal stories published within --since, together with
trending terms and the most active sources. Reads the cache only; run
"cryptonews refresh" first for fresh data.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		window, err := config.ParseDays(flagBriefSince)
		if err != nil || window <= 0 {
			return fmt.Errorf("invalid --since value %q", flagBriefSince)
		}

		var category string
		if flagBriefCategory != "" {
			cat, err := classify.ResolveAlias(flagBriefCategory)
			if err != nil {
				return err
			}
			category = string(cat)
		}

		db, _, err := openCache()
		if err != nil {
			return err
		}
		defer db.Close()

		b, err := briefing.Generate(db, briefing.Options{
			Since:    time.Now().Add(-window),
			Size:     flagBriefSize,
			Category: category,
		})
		if err != nil {
			return err
		}
		printBriefing(cmd.OutOrStdout(), b, window)
		return nil
	},
}

func init() {
	briefCmd.Flags().StringVar(&flagBriefSince, "since", "24h", "window to brief on (e.g., 24h, 7d)")
	briefCmd.Flags().IntVarP(&flagBriefSize, "size", "n", 5, "number of stories")
	briefCmd.Flags().StringVarP(&flagBriefCategory, "category", "c", "", "limit to a category (btc, eth, defi, reg, markets, security, nft, alts)")
}

func printBriefing(w io.Writer, b *briefing.Briefing, window time.Duration) {
	header := fmt.Sprintf("Crypto briefing, last %s", formatDuration(window))
	if b.Category != "" {
		header += " (" + b.Category + ")"
	}
	fmt.Fprintln(w, titleStyle.Render(header))

	if len(b.Stories) == 0 {
		fmt.Fprintln(w, "No stories in this window.")
		return
	}

	fmt.Fprintln(w, metaStyle.Render(fmt.Sprintf("%d of %d articles", len(b.Stories), b.Scanned)))
	if len(b.Themes) > 0 {
		fmt.Fprintln(w, statRow("Trending", strings.Join(b.Themes, ", ")))
	}
	if len(b.ActiveSources) > 0 {
		parts := make([]string, 0, len(b.ActiveSources))
		for _, sc := range b.ActiveSources {
			parts = append(parts, fmt.Sprintf("%s (%d)", sc.Name, sc.Count))
		}
		fmt.Fprintln(w, statRow("Most active", strings.Join(parts, ", ")))
	}

	for _, s := range b.Stories {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s %s\n", rankStyle.Render(fmt.Sprintf("%2d.", s.Rank)), s.Article.Title)
		meta := fmt.Sprintf("%s · %s · signal %.1f · %d min", s.Article.Source, s.Article.Category, s.Article.SignalScore, s.ReadingTime)
		fmt.Fprintln(w, storyIndent.Render(metaStyle.Render(meta)))
		if s.Excerpt != "" {
			fmt.Fprintln(w, storyIndent.Render(s.Excerpt))
		}
		fmt.Fprintln(w, storyIndent.Render(s.Article.Link))
	}
}
