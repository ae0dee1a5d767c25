package cache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testDB(t *testing.T) *Cache {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleArticles() []Article {
	now := time.Now()
	return []Article{
		{ID: "aaa", Source: "CoinDesk", Title: "Bitcoin ETF inflows surge", Link: "https://a.com", Description: "Spot ETF demand", Published: now.Add(-1 * time.Hour), FetchedAt: now},
		{ID: "bbb", Source: "Cointelegraph", Title: "Ethereum upgrade ships", Link: "https://b.com", Description: "Validators update clients", Published: now.Add(-2 * time.Hour), FetchedAt: now},
		{ID: "ccc", Source: "CoinDesk", Title: "Regulators weigh stablecoins", Link: "https://c.com", Description: "The SEC hearing on stablecoin rules", Published: now.Add(-48 * time.Hour), FetchedAt: now},
	}
}

func TestUpsertAndGet(t *testing.T) {
	db := testDB(t)
	articles := sampleArticles()

	if err := db.UpsertArticles(articles); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := db.GetArticles(QueryOpts{})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 articles, got %d", len(got))
	}
	// Newest first
	if got[0].ID != "aaa" || got[1].ID != "bbb" || got[2].ID != "ccc" {
		t.Errorf("unexpected order: %s %s %s", got[0].ID, got[1].ID, got[2].ID)
	}
	if got[0].Published.Unix() != articles[0].Published.Unix() {
		t.Errorf("published round-trip mismatch: %v vs %v", got[0].Published, articles[0].Published)
	}
}

func TestUpsertUpdatesExisting(t *testing.T) {
	db := testDB(t)
	articles := sampleArticles()

	if err := db.UpsertArticles(articles); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	articles[0].Title = "Updated Bitcoin headline"
	articles[0].Category = "Bitcoin"
	if err := db.UpsertArticles(articles[:1]); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := db.GetArticles(QueryOpts{})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 articles after upsert, got %d", len(got))
	}
	if got[0].Title != "Updated Bitcoin headline" {
		t.Errorf("expected updated title, got %q", got[0].Title)
	}
	if got[0].Category != "Bitcoin" {
		t.Errorf("expected updated category, got %q", got[0].Category)
	}

	// The old title must no longer be searchable.
	old, err := db.GetArticles(QueryOpts{Search: "inflows"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(old) != 0 {
		t.Errorf("expected stale search text to be replaced, got %d matches", len(old))
	}
}

func TestQuerySince(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertArticles(sampleArticles()); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := db.GetArticles(QueryOpts{Since: time.Now().Add(-3 * time.Hour)})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 articles within 3h, got %d", len(got))
	}
}

func TestQuerySources(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertArticles(sampleArticles()); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := db.GetArticles(QueryOpts{Sources: []string{"CoinDesk"}})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 CoinDesk articles, got %d", len(got))
	}
	for _, a := range got {
		if a.Source != "CoinDesk" {
			t.Errorf("expected source CoinDesk, got %s", a.Source)
		}
	}
}

func TestQuerySearch(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertArticles(sampleArticles()); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	tests := []struct {
		term string
		want []string
	}{
		{"stablecoin", []string{"ccc"}},         // title and description
		{"VALIDATORS", []string{"bbb"}},         // case-insensitive, description only
		{"cointelegraph", []string{"bbb"}},      // source name
		{"coin", []string{"aaa", "bbb", "ccc"}}, // substring of source and words
		{"%", nil},                              // no wildcard meaning
		{"_", nil},
		{"dogecoin", nil},
	}
	for _, tt := range tests {
		got, err := db.GetArticles(QueryOpts{Search: tt.term})
		if err != nil {
			t.Fatalf("get %q: %v", tt.term, err)
		}
		if len(got) != len(tt.want) {
			t.Errorf("search %q: expected %d matches, got %d", tt.term, len(tt.want), len(got))
			continue
		}
		for i := range tt.want {
			if got[i].ID != tt.want[i] {
				t.Errorf("search %q: match %d = %s, want %s", tt.term, i, got[i].ID, tt.want[i])
			}
		}
	}
}

func TestQuerySearchUnicodeCase(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	err := db.UpsertArticles([]Article{
		{ID: "ddd", Source: "Décrypt", Title: "ÉTATS-UNIS et la crypto", Link: "https://d.com", Published: now, FetchedAt: now},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := db.GetArticles(QueryOpts{Search: "états"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected unicode case-insensitive match, got %d", len(got))
	}
}

func TestQuerySearchStaysWithinField(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	err := db.UpsertArticles([]Article{
		{ID: "eee", Source: "CryptoSlate", Title: "Mining pool", Description: "Wallet drained",
			Link: "https://cs.example/pool", Published: now, FetchedAt: now},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	for _, term := range []string{"pool\nwallet", "pool\x00wallet", "drained\x00crypto", "pool wallet"} {
		got, err := db.GetArticles(QueryOpts{Search: term})
		if err != nil {
			t.Fatalf("get %q: %v", term, err)
		}
		if len(got) != 0 {
			t.Errorf("search %q matched across fields: %v", term, got)
		}
	}

	got, err := db.GetArticles(QueryOpts{Search: "mining pool"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected in-field match, got %d", len(got))
	}
}

func TestQueryCategory(t *testing.T) {
	db := testDB(t)
	articles := sampleArticles()
	articles[0].Category = "Bitcoin"
	articles[1].Category = "Ethereum"
	articles[2].Category = "Regulation"
	if err := db.UpsertArticles(articles); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := db.GetArticles(QueryOpts{Category: "Ethereum"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 1 || got[0].ID != "bbb" {
		t.Errorf("expected only bbb for Ethereum, got %v", got)
	}
}

func TestQueryCombinedFilters(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertArticles(sampleArticles()); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := db.GetArticles(QueryOpts{
		Sources: []string{"CoinDesk"},
		Since:   time.Now().Add(-3 * time.Hour),
	})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected 1 article, got %d", len(got))
	}
}

func TestSignalOrdering(t *testing.T) {
	db := testDB(t)
	articles := sampleArticles()
	articles[0].SignalScore = 5.0
	articles[1].SignalScore = 9.0
	articles[2].SignalScore = 7.0
	if err := db.UpsertArticles(articles); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := db.GetArticles(QueryOpts{OrderBy: OrderSignal})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 articles, got %d", len(got))
	}
	if got[0].ID != "bbb" || got[1].ID != "ccc" || got[2].ID != "aaa" {
		t.Errorf("expected signal order bbb ccc aaa, got %s %s %s", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestQueryLimit(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertArticles(sampleArticles()); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := db.GetArticles(QueryOpts{Limit: 1})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected 1 article with limit, got %d", len(got))
	}
}

func TestNeedsRefresh(t *testing.T) {
	db := testDB(t)

	if !db.NeedsRefresh(1 * time.Hour) {
		t.Error("expected NeedsRefresh=true when no last_refresh set")
	}

	if err := db.SetLastRefresh(); err != nil {
		t.Fatalf("SetLastRefresh: %v", err)
	}

	if db.NeedsRefresh(1 * time.Hour) {
		t.Error("expected NeedsRefresh=false right after SetLastRefresh")
	}
}

func TestLastRefresh(t *testing.T) {
	db := testDB(t)

	if _, err := db.LastRefresh(); !errors.Is(err, ErrNoRefresh) {
		t.Errorf("expected ErrNoRefresh, got %v", err)
	}

	if err := db.SetLastRefresh(); err != nil {
		t.Fatalf("SetLastRefresh: %v", err)
	}
	got, err := db.LastRefresh()
	if err != nil {
		t.Fatalf("LastRefresh: %v", err)
	}
	if time.Since(got) > 2*time.Second {
		t.Errorf("last refresh too old: %v", got)
	}
}

func TestEmptyDB(t *testing.T) {
	db := testDB(t)

	got, err := db.GetArticles(QueryOpts{})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected 0 articles in empty db, got %d", len(got))
	}
}

func TestPruneDeletesOldArticles(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertArticles(sampleArticles()); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// ccc is 48h old.
	deleted, err := db.Prune(24 * time.Hour)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 pruned, got %d", deleted)
	}

	n, err := db.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 remaining articles, got %d", n)
	}
}

func TestPruneNothingToDelete(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertArticles(sampleArticles()); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	deleted, err := db.Prune(365 * 24 * time.Hour)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if deleted != 0 {
		t.Errorf("expected 0 pruned, got %d", deleted)
	}
}

func TestStats(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if err := db.UpsertArticles(sampleArticles()); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	count, size, err := db.Stats(dbPath)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if count != 3 {
		t.Errorf("expected count 3, got %d", count)
	}
	if size == 0 {
		t.Error("expected non-zero db size")
	}
}

func TestOpenCreatesDir(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sub", "deep", "test.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("opening db in nested dir: %v", err)
	}
	db.Close()

	if _, err := os.Stat(filepath.Dir(dbPath)); os.IsNotExist(err) {
		t.Error("expected directory to be created")
	}
}
