// Package briefing condenses a window of cached articles into a short digest:
// the highest-signal stories, trending title terms and the busiest sources.
package briefing

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/matheuskafuri/cryptonews/internal/cache"
)

const (
	defaultSize  = 5
	maxThemes    = 3
	maxSources   = 3
	excerptRunes = 150
)

type Reader interface {
	GetArticles(opts cache.QueryOpts) ([]cache.Article, error)
}

type Briefing struct {
	Since         time.Time
	Category      string
	Scanned       int
	Themes        []string
	ActiveSources []SourceCount
	Stories       []Story
}

type Story struct {
	Rank        int
	Article     cache.Article
	Excerpt     string
	ReadingTime int
}

type SourceCount struct {
	Name  string
	Count int
}

type Options struct {
	Since    time.Time
	Size     int
	Category string
}

// Generate picks the top stories published since opts.Since by signal score.
// Trending themes weigh the window's title terms against the whole cache.
func Generate(r Reader, opts Options) (*Briefing, error) {
	if opts.Size <= 0 {
		opts.Size = defaultSize
	}

	recent, err := r.GetArticles(cache.QueryOpts{
		Since:    opts.Since,
		Category: opts.Category,
		OrderBy:  cache.OrderSignal,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching recent articles: %w", err)
	}

	b := &Briefing{
		Since:    opts.Since,
		Category: opts.Category,
		Scanned:  len(recent),
		Stories:  []Story{},
	}
	if len(recent) == 0 {
		return b, nil
	}

	all, err := r.GetArticles(cache.QueryOpts{})
	if err != nil {
		return nil, fmt.Errorf("fetching cached articles: %w", err)
	}
	b.Themes = trending(recent, all)
	b.ActiveSources = activeSources(recent)

	top := recent
	if len(top) > opts.Size {
		top = top[:opts.Size]
	}
	for i, a := range top {
		b.Stories = append(b.Stories, Story{
			Rank:        i + 1,
			Article:     a,
			Excerpt:     Excerpt(a.Description),
			ReadingTime: estimateReadTime(a.Description),
		})
	}
	return b, nil
}

// Excerpt returns the first sentence of a description, or its first
// excerptRunes runes when no sentence ends early enough.
func Excerpt(desc string) string {
	if desc == "" {
		return ""
	}
	for i, c := range desc {
		if c == '.' && i > 20 {
			return desc[:i+1]
		}
	}
	runes := []rune(desc)
	if len(runes) > excerptRunes {
		return string(runes[:excerptRunes]) + "..."
	}
	return desc
}

// estimateReadTime guesses minutes for the full story from its blurb,
// assuming the story is three times the blurb and 200 words per minute.
func estimateReadTime(desc string) int {
	minutes := len(strings.Fields(desc)) * 3 / 200
	return max(minutes, 1)
}

func activeSources(articles []cache.Article) []SourceCount {
	counts := map[string]int{}
	for _, a := range articles {
		counts[a.Source]++
	}

	sorted := make([]SourceCount, 0, len(counts))
	for name, count := range counts {
		sorted = append(sorted, SourceCount{Name: name, Count: count})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Count != sorted[j].Count {
			return sorted[i].Count > sorted[j].Count
		}
		return sorted[i].Name < sorted[j].Name
	})

	if len(sorted) > maxSources {
		sorted = sorted[:maxSources]
	}
	return sorted
}

// trending ranks title terms of recent by TF-IDF against all. Terms seen
// fewer than twice in recent are ignored.
func trending(recent, all []cache.Article) []string {
	df := map[string]int{}
	for _, a := range all {
		seen := map[string]bool{}
		for _, w := range tokenize(a.Title) {
			if !seen[w] {
				df[w]++
				seen[w] = true
			}
		}
	}

	tf := map[string]int{}
	for _, a := range recent {
		for _, w := range tokenize(a.Title) {
			tf[w]++
		}
	}

	totalDocs := max(len(all), 1)

	type scored struct {
		term  string
		score float64
	}
	var terms []scored
	for term, freq := range tf {
		if freq < 2 {
			continue
		}
		docFreq := max(df[term], 1)
		// +1 keeps terms present in every cached title from scoring zero.
		idf := math.Log(float64(totalDocs)/float64(docFreq)) + 1
		terms = append(terms, scored{term, float64(freq) * idf})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].score != terms[j].score {
			return terms[i].score > terms[j].score
		}
		return terms[i].term < terms[j].term
	})

	if len(terms) > maxThemes {
		terms = terms[:maxThemes]
	}
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		out = append(out, t.term)
	}
	return out
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "is": true, "it": true, "its": true,
	"this": true, "that": true, "are": true, "was": true, "were": true, "be": true,
	"been": true, "being": true, "have": true, "has": true, "had": true, "do": true,
	"does": true, "did": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "can": true, "not": true, "no": true, "nor": true,
	"how": true, "what": true, "when": true, "where": true, "who": true, "which": true,
	"why": true, "all": true, "each": true, "every": true, "both": true, "few": true,
	"more": true, "most": true, "other": true, "some": true, "such": true, "than": true,
	"too": true, "very": true, "just": true, "about": true, "into": true, "over": true,
	"after": true, "before": true, "between": true, "under": true, "above": true,
	"out": true, "up": true, "down": true, "off": true, "our": true, "your": true,
	"we": true, "you": true, "they": true, "them": true, "their": true, "new": true,
	"says": true, "said": true, "amid": true, "price": true, "crypto": true, "week": true,
}

// tokenize lowercases s and keeps words of four or more letters or digits
// that are not stop words.
func tokenize(s string) []string {
	var tokens []string
	for _, word := range strings.Fields(strings.ToLower(s)) {
		word = strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len([]rune(word)) < 4 || stopWords[word] {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}
