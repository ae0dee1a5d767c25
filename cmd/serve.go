package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matheuskafuri/cryptonews/internal/aggregator"
	"github.com/matheuskafuri/cryptonews/internal/browser"
	"github.com/matheuskafuri/cryptonews/internal/feed"
	"github.com/matheuskafuri/cryptonews/internal/metrics"
	"github.com/matheuskafuri/cryptonews/internal/web"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var (
	flagRefresh bool
	flagOpen    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the news page and keep the feeds fresh",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&flagRefresh, "refresh", false, "force a feed refresh on startup")
	serveCmd.Flags().BoolVar(&flagOpen, "open", false, "open the page in a browser once serving")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, path, err := openCache()
	if err != nil {
		return err
	}
	defer db.Close()

	m := metrics.New()
	if n, err := db.Count(); err == nil {
		m.CachedArticles.Set(float64(n))
	}

	refresher := aggregator.New(db, feed.NewRSSFetcherFromConfig(cfg), cfg, logger, m)
	srv, err := web.New(db, web.OptionsFromConfig(cfg, logger, m))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting",
		zap.String("version", version),
		zap.String("listen", cfg.ListenAddr()),
		zap.String("cache", path),
		zap.Int("sources", len(cfg.EnabledSources())),
		zap.Duration("refresh_interval", refresher.Interval()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return refresher.Run(gctx, flagRefresh)
	})
	g.Go(srv.Start)
	if flagOpen {
		if err := browser.Open(browser.PageURL(cfg.ListenAddr())); err != nil {
			logger.Warn("opening browser", zap.Error(err))
		}
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}
		return nil
	})
	return g.Wait()
}
