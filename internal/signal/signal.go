// Package signal ranks crypto headlines by how much they are likely to matter.
package signal

import (
	"math"
	"regexp"
	"time"

	"github.com/matheuskafuri/cryptonews/internal/classify"
)

// SourceWeights maps source names to their weight (0.0–1.0).
type SourceWeights map[string]float64

// Input holds the data needed to score an article.
type Input struct {
	Title       string
	Description string
	Source      string
	Published   time.Time
}

// breakdown holds each component in 0.0–1.0 and the final 0.0–10.0 score.
type breakdown struct {
	recency    float64
	source     float64
	impact     float64
	topicality float64
	figures    float64
	final      float64
}

const (
	weightRecency    = 0.30
	weightSource     = 0.20
	weightImpact     = 0.25
	weightTopicality = 0.15
	weightFigures    = 0.10

	halfLife      = 24 * time.Hour
	defaultSource = 0.5

	// descriptionFactor discounts matches found only in the description.
	descriptionFactor = 0.6
	// relevanceSaturation is the classifier hit count that maxes topicality.
	relevanceSaturation = 6
)

// Score computes a signal score (0.0–10.0) for an article.
func Score(input Input, weights SourceWeights) float64 {
	return score(input, weights).final
}

func score(input Input, weights SourceWeights) breakdown {
	title, desc := classify.NewText(input.Title), classify.NewText(input.Description)
	b := breakdown{
		recency:    recencyScore(input.Published, time.Now()),
		source:     sourceScore(input.Source, weights),
		impact:     impactScore(title, desc),
		topicality: topicalityScore(input.Title, input.Description),
		figures:    figuresScore(input.Title, input.Description),
	}
	raw := b.recency*weightRecency +
		b.source*weightSource +
		b.impact*weightImpact +
		b.topicality*weightTopicality +
		b.figures*weightFigures
	b.final = math.Round(raw*100) / 10
	return b
}

// recencyScore halves every halfLife. Future timestamps count as fresh.
func recencyScore(published, now time.Time) float64 {
	if published.IsZero() {
		return 0
	}
	age := now.Sub(published)
	if age < 0 {
		age = 0
	}
	return math.Exp(-math.Ln2 * age.Hours() / halfLife.Hours())
}

func sourceScore(source string, weights SourceWeights) float64 {
	if w, ok := weights[source]; ok {
		return w
	}
	return defaultSource
}

// impactTerms are events that move crypto markets, weighted by how hard.
var impactTerms = map[string]float64{
	"hack": 1, "hacked": 1, "exploit": 1, "exploited": 1, "drained": 1,
	"stolen": 0.9, "bankruptcy": 1, "insolvent": 1, "insolvency": 1,
	"depeg": 1, "depegs": 1, "collapse": 0.9, "collapses": 0.9,
	"halts withdrawals": 1, "pauses withdrawals": 1, "outage": 0.8,
	"etf approval": 1, "approves": 0.7, "approved": 0.7, "rejects": 0.7,
	"lawsuit": 0.8, "sues": 0.8, "charges": 0.7, "indicted": 0.8,
	"ban": 0.8, "bans": 0.8, "delist": 0.7, "delisting": 0.7,
	"crash": 0.8, "crashes": 0.8, "plunge": 0.7, "plunges": 0.7,
	"surge": 0.6, "surges": 0.6, "all-time high": 0.8, "record": 0.5,
	"liquidation": 0.7, "liquidations": 0.7, "inflows": 0.5, "outflows": 0.5,
	"halving": 0.7, "hard fork": 0.7, "mainnet": 0.5, "upgrade": 0.5,
	"acquires": 0.6, "acquisition": 0.6, "layoffs": 0.6,
}

// impactScore takes the strongest event term, discounted when it appears only
// in the description, plus 0.1 for every further term matched.
func impactScore(title, desc classify.Text) float64 {
	best, matched := 0.0, 0
	for term, w := range impactTerms {
		switch {
		case title.Has(term):
		case desc.Has(term):
			w *= descriptionFactor
		default:
			continue
		}
		matched++
		best = math.Max(best, w)
	}
	if matched == 0 {
		return 0
	}
	return math.Min(1, best+0.1*float64(matched-1))
}

func topicalityScore(title, description string) float64 {
	hits := classify.Relevance(title, description)
	return math.Min(1, float64(hits)/relevanceSaturation)
}

// figurePattern matches dollar amounts, percentages, large counts and coin
// amounts such as "$200M", "12%", "1.5 billion" or "5,000 BTC".
var figurePattern = regexp.MustCompile(`(?i)(\$\s?\d[\d,.]*|\d[\d,.]*\s?(%|percent\b|million\b|billion\b|trillion\b|btc\b|eth\b|sol\b|xrp\b|usdt\b|usdc\b))`)

// figuresScore rewards reporting with hard numbers, most of all in the title.
func figuresScore(title, description string) float64 {
	switch {
	case figurePattern.MatchString(title):
		return 1
	case figurePattern.MatchString(description):
		return descriptionFactor
	default:
		return 0
	}
}
