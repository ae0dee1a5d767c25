package cmd

import (
	"fmt"
	"time"

	"github.com/matheuskafuri/cryptonews/internal/aggregator"
	"github.com/matheuskafuri/cryptonews/internal/feed"
	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch all enabled feeds once and exit",
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

		r := aggregator.New(db, feed.NewRSSFetcherFromConfig(cfg), cfg, logger, nil)
		report, err := r.RefreshOnce(cmd.Context())

		out := cmd.OutOrStdout()
		for _, e := range report.Errors {
			fmt.Fprintf(out, "  [warn] %v\n", e)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Fetched %d article(s) in %s", report.Fetched, report.Duration.Round(time.Millisecond))
		if report.Pruned > 0 {
			fmt.Fprintf(out, ", pruned %d", report.Pruned)
		}
		fmt.Fprintln(out, ".")
		return nil
	},
}
