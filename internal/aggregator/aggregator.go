// Package aggregator runs the fetch, score and store cycle that keeps the
// article cache fresh.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matheuskafuri/cryptonews/internal/cache"
	"github.com/matheuskafuri/cryptonews/internal/classify"
	"github.com/matheuskafuri/cryptonews/internal/config"
	"github.com/matheuskafuri/cryptonews/internal/feed"
	"github.com/matheuskafuri/cryptonews/internal/metrics"
	"github.com/matheuskafuri/cryptonews/internal/signal"
	"go.uber.org/zap"
)

// Store is the part of the cache the refresher writes to.
type Store interface {
	UpsertArticles(articles []cache.Article) error
	SetLastRefresh() error
	NeedsRefresh(interval time.Duration) bool
	Prune(retention time.Duration) (int64, error)
	Count() (int, error)
}

// Report summarizes one refresh cycle.
type Report struct {
	Fetched  int
	Errors   []error
	Pruned   int64
	Duration time.Duration
}

type Refresher struct {
	store       Store
	fetcher     feed.Fetcher
	sources     []config.Source
	weights     signal.SourceWeights
	interval    time.Duration
	retention   time.Duration
	timeout     time.Duration
	concurrency int
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

func New(store Store, fetcher feed.Fetcher, cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Refresher{
		store:       store,
		fetcher:     fetcher,
		sources:     cfg.EnabledSources(),
		weights:     cfg.SourceWeights(),
		interval:    cfg.RefreshDuration(),
		retention:   cfg.RetentionDuration(),
		timeout:     cfg.FetchTimeoutDuration(),
		concurrency: cfg.GetFetchConcurrency(),
		logger:      logger.Named("refresher"),
		metrics:     m,
	}
}

// RefreshOnce fetches every enabled source, scores and classifies the
// articles, stores them and prunes expired ones. The last-refresh mark is
// only moved when at least one source succeeded.
func (r *Refresher) RefreshOnce(ctx context.Context) (report Report, err error) {
	start := time.Now()
	r.logger.Info("refreshing feeds", zap.Int("sources", len(r.sources)))

	fctx, cancel := context.WithTimeout(ctx, r.timeout)
	res := feed.FetchAll(fctx, r.fetcher, r.sources, r.concurrency)
	cancel()

	report = Report{Fetched: len(res.Articles), Errors: res.Errors}
	defer func() {
		report.Duration = time.Since(start)
		r.metrics.RefreshDuration.Observe(report.Duration.Seconds())
	}()

	for _, fetchErr := range res.Errors {
		source := "unknown"
		var srcErr *feed.SourceError
		if errors.As(fetchErr, &srcErr) {
			source = srcErr.Source
		}
		r.metrics.FeedErrors.WithLabelValues(source).Inc()
		r.logger.Warn("feed fetch failed", zap.String("source", source), zap.Error(fetchErr))
	}

	if len(r.sources) > 0 && len(res.Errors) == len(r.sources) {
		r.metrics.RefreshTotal.WithLabelValues("failed").Inc()
		return report, fmt.Errorf("all %d sources failed: %w", len(r.sources), errors.Join(res.Errors...))
	}

	for i := range res.Articles {
		a := &res.Articles[i]
		a.Category = string(classify.Classify(a.Title, a.Description))
		a.SignalScore = signal.Score(signal.Input{
			Title:       a.Title,
			Description: a.Description,
			Source:      a.Source,
			Published:   a.Published,
		}, r.weights)
		r.metrics.FeedArticles.WithLabelValues(a.Source).Inc()
	}

	if err = r.store.UpsertArticles(res.Articles); err != nil {
		r.metrics.RefreshTotal.WithLabelValues("failed").Inc()
		return report, fmt.Errorf("caching articles: %w", err)
	}
	if err = r.store.SetLastRefresh(); err != nil {
		r.metrics.RefreshTotal.WithLabelValues("failed").Inc()
		return report, fmt.Errorf("recording refresh time: %w", err)
	}

	pruned, pruneErr := r.store.Prune(r.retention)
	if pruneErr != nil {
		r.logger.Warn("pruning failed", zap.Error(pruneErr))
	}
	report.Pruned = pruned

	if n, countErr := r.store.Count(); countErr == nil {
		r.metrics.CachedArticles.Set(float64(n))
	}

	result := "ok"
	if len(res.Errors) > 0 {
		result = "partial"
	}
	r.metrics.RefreshTotal.WithLabelValues(result).Inc()
	r.logger.Info("refresh complete",
		zap.String("result", result),
		zap.Int("articles", report.Fetched),
		zap.Int("errors", len(res.Errors)),
		zap.Int64("pruned", pruned),
		zap.Duration("took", time.Since(start)),
	)
	return report, nil
}

// Run refreshes immediately when the cache is stale or force is set, then on
// every interval tick until ctx is cancelled.
func (r *Refresher) Run(ctx context.Context, force bool) error {
	if force || r.store.NeedsRefresh(r.interval) {
		r.refresh(ctx)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("refresher stopped")
			return nil
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

func (r *Refresher) refresh(ctx context.Context) {
	if _, err := r.RefreshOnce(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error("refresh failed", zap.Error(err))
	}
}

// Interval reports how often Run refreshes.
func (r *Refresher) Interval() time.Duration {
	return r.interval
}
