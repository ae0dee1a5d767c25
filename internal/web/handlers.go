package web

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/matheuskafuri/cryptonews/internal/briefing"
	"github.com/matheuskafuri/cryptonews/internal/cache"
	"go.uber.org/zap"
)

const (
	defaultBriefHours = 24
	maxBriefSize      = 50
)

// apiArticle is the JSON shape of one article on /api/news.
type apiArticle struct {
	Title       string  `json:"title"`
	Link        string  `json:"link"`
	Description string  `json:"description"`
	Source      string  `json:"source"`
	PubDate     string  `json:"pub_date"`
	Timestamp   int64   `json:"timestamp"`
	Category    string  `json:"category"`
	Signal      float64 `json:"signal"`
}

func (s *Server) handleIndex(c echo.Context) error {
	q := parseQuery(c)
	articles, err := s.query(q)
	if err != nil {
		return err
	}
	view := newIndexView(q, articles, s.lastUpdated(), s.sources)
	return c.Render(http.StatusOK, indexTemplate, view)
}

func (s *Server) handleNews(c echo.Context) error {
	articles, err := s.query(parseQuery(c))
	if err != nil {
		return err
	}
	out := make([]apiArticle, 0, len(articles))
	for _, a := range articles {
		out = append(out, apiArticle{
			Title:       a.Title,
			Link:        a.Link,
			Description: a.Description,
			Source:      a.Source,
			PubDate:     a.Published.UTC().Format(dateLayout),
			Timestamp:   a.Published.Unix(),
			Category:    a.Category,
			Signal:      a.SignalScore,
		})
	}
	return c.JSON(http.StatusOK, out)
}

type apiStory struct {
	Rank        int     `json:"rank"`
	Title       string  `json:"title"`
	Link        string  `json:"link"`
	Source      string  `json:"source"`
	Category    string  `json:"category"`
	Signal      float64 `json:"signal"`
	PubDate     string  `json:"pub_date"`
	Excerpt     string  `json:"excerpt"`
	ReadingTime int     `json:"reading_time"`
}

type apiSourceCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type apiBriefing struct {
	Since         string           `json:"since"`
	Category      string           `json:"category,omitempty"`
	Scanned       int              `json:"scanned"`
	Themes        []string         `json:"themes"`
	ActiveSources []apiSourceCount `json:"active_sources"`
	Stories       []apiStory       `json:"stories"`
}

func (s *Server) handleBriefing(c echo.Context) error {
	hours, err := intParam(c, "hours", defaultBriefHours)
	if err != nil || hours <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "hours must be a positive integer")
	}
	size, err := intParam(c, "size", 0)
	if err != nil || size < 0 || size > maxBriefSize {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("size must be between 0 and %d", maxBriefSize))
	}

	q := parseQuery(c)
	b, err := briefing.Generate(s.store, briefing.Options{
		Since:    time.Now().Add(-time.Duration(hours) * time.Hour),
		Size:     size,
		Category: q.category(),
	})
	if err != nil {
		return fmt.Errorf("building briefing: %w", err)
	}

	out := apiBriefing{
		Since:         b.Since.UTC().Format(dateLayout),
		Category:      b.Category,
		Scanned:       b.Scanned,
		Themes:        append([]string{}, b.Themes...),
		ActiveSources: make([]apiSourceCount, 0, len(b.ActiveSources)),
		Stories:       make([]apiStory, 0, len(b.Stories)),
	}
	for _, sc := range b.ActiveSources {
		out.ActiveSources = append(out.ActiveSources, apiSourceCount{Name: sc.Name, Count: sc.Count})
	}
	for _, st := range b.Stories {
		out.Stories = append(out.Stories, apiStory{
			Rank:        st.Rank,
			Title:       st.Article.Title,
			Link:        st.Article.Link,
			Source:      st.Article.Source,
			Category:    st.Article.Category,
			Signal:      st.Article.SignalScore,
			PubDate:     st.Article.Published.UTC().Format(dateLayout),
			Excerpt:     st.Excerpt,
			ReadingTime: st.ReadingTime,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func intParam(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func (s *Server) query(q query) ([]cache.Article, error) {
	if q.Term != "" {
		s.metrics.Searches.Inc()
	}
	articles, err := s.store.GetArticles(q.opts(s.pageSize))
	if err != nil {
		return nil, fmt.Errorf("loading articles: %w", err)
	}
	return articles, nil
}

func (s *Server) lastUpdated() string {
	t, err := s.store.LastRefresh()
	if err != nil {
		if !errors.Is(err, cache.ErrNoRefresh) {
			s.logger.Warn("reading last refresh", zap.Error(err))
		}
		return formatLastUpdated(time.Time{})
	}
	return formatLastUpdated(t)
}
