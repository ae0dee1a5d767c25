package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/matheuskafuri/cryptonews/internal/cache"
	"github.com/matheuskafuri/cryptonews/internal/config"
	"github.com/spf13/cobra"
)

var (
	colorAccent = lipgloss.AdaptiveColor{Light: "#C77400", Dark: "#F7931A"}
	colorDim    = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#626262"}

	titleStyle = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(colorDim).Width(14)
)

var flagPruneOlderThan string

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove old articles from the local cache",
	Long: `Delete cached articles older than the retention period and reclaim disk space.

Uses the retention value from config (default: 30d) unless overridden with --older-than.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		db, _, err := openCache()
		if err != nil {
			return err
		}
		defer db.Close()

		retention := cfg.RetentionDuration()
		if flagPruneOlderThan != "" {
			d, err := config.ParseDays(flagPruneOlderThan)
			if err != nil || d <= 0 {
				return fmt.Errorf("invalid --older-than value %q", flagPruneOlderThan)
			}
			retention = d
		}

		deleted, err := db.Prune(retention)
		if err != nil {
			return fmt.Errorf("pruning: %w", err)
		}

		out := cmd.OutOrStdout()
		if deleted == 0 {
			fmt.Fprintln(out, "Nothing to prune.")
		} else {
			fmt.Fprintf(out, "Pruned %d article(s) older than %s.\n", deleted, formatDuration(retention))
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, path, err := openCache()
		if err != nil {
			return err
		}
		defer db.Close()

		count, size, err := db.Stats(path)
		if err != nil {
			return fmt.Errorf("reading stats: %w", err)
		}

		last := "never"
		switch t, err := db.LastRefresh(); {
		case err == nil:
			last = fmt.Sprintf("%s (%s ago)", t.Local().Format(time.DateTime), formatDuration(time.Since(t)))
		case !errors.Is(err, cache.ErrNoRefresh):
			return fmt.Errorf("reading last refresh: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, titleStyle.Render("cryptonews cache"))
		fmt.Fprintln(out, statRow("Path", path))
		fmt.Fprintln(out, statRow("Articles", fmt.Sprint(count)))
		fmt.Fprintln(out, statRow("Size", formatBytes(size)))
		fmt.Fprintln(out, statRow("Last refresh", last))
		return nil
	},
}

func init() {
	pruneCmd.Flags().StringVar(&flagPruneOlderThan, "older-than", "", "override retention period (e.g., 30d, 720h)")
}

func statRow(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
}

func formatDuration(d time.Duration) string {
	if days := int(d.Hours() / 24); days > 0 {
		return fmt.Sprintf("%dd", days)
	}
	if h := int(d.Hours()); h > 0 {
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dm", int(d.Minutes()))
}

func formatBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
