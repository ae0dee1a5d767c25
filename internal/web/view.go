package web

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/matheuskafuri/cryptonews/internal/cache"
	"github.com/matheuskafuri/cryptonews/internal/classify"
)

// dateLayout is used for article dates and the last-updated footer.
const dateLayout = time.RFC1123

// neverRefreshed is shown in the footer before the first successful refresh.
const neverRefreshed = "never"

// IndexView is the data the index template renders.
type IndexView struct {
	SearchTerm   string
	HasSearch    bool
	ArticleCount int
	Articles     []ArticleView
	LastUpdated  string

	Category   string
	Categories []CategoryLink
	Sources    []string
}

type ArticleView struct {
	Source      string
	Title       string
	PubDate     string
	Description string
	Link        string
	Category    string
}

type CategoryLink struct {
	Name   string
	Alias  string
	Active bool
}

// query holds the filters a request asked for.
type query struct {
	Term     string
	Category string
	Source   string
	Sort     string
}

func parseQuery(c echo.Context) query {
	return query{
		Term:     strings.TrimSpace(c.QueryParam("q")),
		Category: strings.TrimSpace(c.QueryParam("category")),
		Source:   strings.TrimSpace(c.QueryParam("source")),
		Sort:     strings.ToLower(strings.TrimSpace(c.QueryParam("sort"))),
	}
}

// category resolves the requested category. Unknown names are passed through
// unchanged so they match nothing.
func (q query) category() string {
	if q.Category == "" {
		return ""
	}
	cat, err := classify.ResolveAlias(q.Category)
	if err != nil {
		return q.Category
	}
	return string(cat)
}

func (q query) opts(limit int) cache.QueryOpts {
	opts := cache.QueryOpts{
		Search:   q.Term,
		Category: q.category(),
		OrderBy:  cache.OrderPublished,
		Limit:    limit,
	}
	if q.Source != "" {
		opts.Sources = []string{q.Source}
	}
	if q.Sort == cache.OrderSignal {
		opts.OrderBy = cache.OrderSignal
	}
	return opts
}

func newIndexView(q query, articles []cache.Article, lastUpdated string, sources []string) IndexView {
	view := IndexView{
		SearchTerm:   q.Term,
		HasSearch:    q.Term != "",
		ArticleCount: len(articles),
		Articles:     make([]ArticleView, 0, len(articles)),
		LastUpdated:  lastUpdated,
		Category:     q.Category,
		Categories:   categoryLinks(q.category()),
		Sources:      sources,
	}
	for _, a := range articles {
		view.Articles = append(view.Articles, ArticleView{
			Source:      a.Source,
			Title:       a.Title,
			PubDate:     a.Published.UTC().Format(dateLayout),
			Description: a.Description,
			Link:        a.Link,
			Category:    a.Category,
		})
	}
	return view
}

func categoryLinks(active string) []CategoryLink {
	aliases := make(map[classify.Category]string, len(classify.FocusAliases))
	for alias, cat := range classify.FocusAliases {
		aliases[cat] = alias
	}
	cats := classify.AllCategories()
	links := make([]CategoryLink, 0, len(cats))
	for _, cat := range cats {
		links = append(links, CategoryLink{
			Name:   string(cat),
			Alias:  aliases[cat],
			Active: string(cat) == active,
		})
	}
	return links
}

func formatLastUpdated(t time.Time) string {
	if t.IsZero() {
		return neverRefreshed
	}
	return t.UTC().Format(dateLayout)
}
