package cache

import "time"

type Article struct {
	ID          string
	Source      string
	Title       string
	Link        string
	Description string
	Published   time.Time
	FetchedAt   time.Time
	Category    string
	SignalScore float64
}

// Order values accepted by QueryOpts.OrderBy.
const (
	OrderPublished = "published"
	OrderSignal    = "signal"
)

type QueryOpts struct {
	Since    time.Time
	Sources  []string
	Search   string
	Category string
	OrderBy  string
	Limit    int
}
