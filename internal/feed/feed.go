package feed

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/matheuskafuri/cryptonews/internal/cache"
	"github.com/matheuskafuri/cryptonews/internal/config"
	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

const userAgent = "cryptonews/1.0 (+https://github.com/matheuskafuri/cryptonews)"

type Fetcher interface {
	Fetch(ctx context.Context, source config.Source) ([]cache.Article, error)
}

// Options tune an RSSFetcher. Zero values fall back to defaults.
type Options struct {
	Timeout          time.Duration
	MaxAge           time.Duration
	DescriptionLimit int
}

type RSSFetcher struct {
	parser    *gofeed.Parser
	maxAge    time.Duration
	descLimit int
	now       func() time.Time
}

func NewRSSFetcher(opts Options) *RSSFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.DescriptionLimit <= 0 {
		opts.DescriptionLimit = 200
	}
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	parser.Client = &http.Client{Timeout: opts.Timeout}
	return &RSSFetcher{
		parser:    parser,
		maxAge:    opts.MaxAge,
		descLimit: opts.DescriptionLimit,
		now:       time.Now,
	}
}

// NewRSSFetcherFromConfig builds a fetcher from the service configuration.
func NewRSSFetcherFromConfig(cfg *config.Config) *RSSFetcher {
	return NewRSSFetcher(Options{
		Timeout:          cfg.FetchTimeoutDuration(),
		MaxAge:           cfg.MaxAgeDuration(),
		DescriptionLimit: cfg.GetDescriptionLimit(),
	})
}

func (f *RSSFetcher) Fetch(ctx context.Context, source config.Source) ([]cache.Article, error) {
	feed, err := f.parser.ParseURLWithContext(source.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", source.Name, err)
	}

	now := f.now()
	articles := make([]cache.Article, 0, len(feed.Items))
	for _, item := range feed.Items {
		title := strings.TrimSpace(item.Title)
		link := strings.TrimSpace(item.Link)
		if title == "" || link == "" {
			continue
		}

		pub := now
		if item.PublishedParsed != nil {
			pub = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			pub = *item.UpdatedParsed
		}

		if f.maxAge > 0 && pub.Before(now.Add(-f.maxAge)) {
			continue
		}

		desc := item.Description
		if strings.TrimSpace(desc) == "" {
			desc = item.Content
		}
		desc = truncate(stripHTML(desc), f.descLimit)

		articles = append(articles, cache.Article{
			ID:          articleID(link),
			Source:      source.Name,
			Title:       title,
			Link:        link,
			Description: desc,
			Published:   pub,
			FetchedAt:   now,
		})
	}
	return articles, nil
}

func articleID(link string) string {
	h := sha256.Sum256([]byte(link))
	return fmt.Sprintf("%x", h[:16])
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}

// blockTags break words apart when stripped.
var blockTags = map[string]bool{
	"p": true, "br": true, "div": true, "li": true, "ul": true, "ol": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"tr": true, "td": true, "th": true, "blockquote": true, "figure": true, "img": true,
}

// stripHTML returns the visible text of s with entities decoded and
// whitespace collapsed. Script and style bodies are dropped.
func stripHTML(s string) string {
	var (
		b       strings.Builder
		skipped int
	)
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			if skipped == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch tag := string(name); {
			case tag == "script" || tag == "style":
				skipped++
			case blockTags[tag]:
				b.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch tag := string(name); {
			case (tag == "script" || tag == "style") && skipped > 0:
				skipped--
			case blockTags[tag]:
				b.WriteByte(' ')
			}
		}
	}
}

// SourceError ties a fetch failure to the source that produced it.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string { return e.Err.Error() }

func (e *SourceError) Unwrap() error { return e.Err }

type FetchResult struct {
	Articles []cache.Article
	Errors   []error
}

// FetchAll fetches every source with at most concurrency requests in flight.
// A failing source is reported in Errors and never stops the others.
// Articles come back in source order; when two sources carry the same link
// the earlier source wins.
func FetchAll(ctx context.Context, fetcher Fetcher, sources []config.Source, concurrency int) FetchResult {
	if concurrency <= 0 {
		concurrency = 4
	}

	type outcome struct {
		articles []cache.Article
		err      error
	}
	outcomes := make([]outcome, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, src := range sources {
		g.Go(func() error {
			articles, err := fetcher.Fetch(gctx, src)
			outcomes[i] = outcome{articles: articles, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var result FetchResult
	seen := make(map[string]bool)
	for i, o := range outcomes {
		if o.err != nil {
			result.Errors = append(result.Errors, &SourceError{Source: sources[i].Name, Err: o.err})
			continue
		}
		for _, a := range o.articles {
			if seen[a.ID] {
				continue
			}
			seen[a.ID] = true
			result.Articles = append(result.Articles, a)
		}
	}
	return result
}
