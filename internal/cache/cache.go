package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const defaultLimit = 500

const busyTimeout = "_pragma=busy_timeout(5000)"

// ErrNoRefresh is returned by LastRefresh before the first successful refresh.
var ErrNoRefresh = errors.New("cache has never been refreshed")

type Cache struct {
	readDB  *sql.DB
	writeDB *sql.DB
}

func Open(dbPath string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	writeDB, err := sql.Open("sqlite", dbPath+"?"+busyTimeout)
	if err != nil {
		return nil, fmt.Errorf("opening write db: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	c := &Cache{writeDB: writeDB}
	// The schema must exist before a read-only handle can see it.
	if err := c.init(); err != nil {
		c.Close()
		return nil, err
	}

	readDB, err := sql.Open("sqlite", dbPath+"?mode=ro&"+busyTimeout)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("opening read db: %w", err)
	}
	c.readDB = readDB
	return c, nil
}

func (c *Cache) init() error {
	_, err := c.writeDB.Exec(`
		CREATE TABLE IF NOT EXISTS articles (
			id           TEXT PRIMARY KEY,
			source       TEXT NOT NULL,
			title        TEXT NOT NULL,
			link         TEXT NOT NULL,
			description  TEXT NOT NULL DEFAULT '',
			search_text  TEXT NOT NULL DEFAULT '',
			published    DATETIME NOT NULL,
			published_ts INTEGER NOT NULL,
			fetched_at   DATETIME NOT NULL,
			category     TEXT NOT NULL DEFAULT '',
			signal_score REAL NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_articles_published ON articles(published_ts DESC);
		CREATE INDEX IF NOT EXISTS idx_articles_source ON articles(source);
		CREATE INDEX IF NOT EXISTS idx_articles_category ON articles(category);

		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

func (c *Cache) Close() error {
	var errs []error
	if c.readDB != nil {
		errs = append(errs, c.readDB.Close())
	}
	if c.writeDB != nil {
		errs = append(errs, c.writeDB.Close())
	}
	return errors.Join(errs...)
}

// fieldSep separates the fields of searchText. Search terms containing it
// never match, so a match cannot span two fields.
const fieldSep = "\x00"

// searchText is the lower-cased haystack matched by QueryOpts.Search.
func searchText(a Article) string {
	fields := []string{a.Title, a.Description, a.Source}
	for i, f := range fields {
		fields[i] = strings.ReplaceAll(f, fieldSep, "")
	}
	return strings.ToLower(strings.Join(fields, fieldSep))
}

// UpsertArticles inserts articles, updating rows that share an ID.
// The source, link and published time of an existing row are kept.
func (c *Cache) UpsertArticles(articles []Article) error {
	tx, err := c.writeDB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO articles (id, source, title, link, description, search_text, published, published_ts, fetched_at, category, signal_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			search_text = excluded.search_text,
			fetched_at = excluded.fetched_at,
			category = excluded.category,
			signal_score = excluded.signal_score
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range articles {
		pub := a.Published.UTC()
		_, err := stmt.Exec(a.ID, a.Source, a.Title, a.Link, a.Description, searchText(a),
			pub, pub.Unix(), a.FetchedAt.UTC(), a.Category, a.SignalScore)
		if err != nil {
			return fmt.Errorf("upserting article %s: %w", a.ID, err)
		}
	}

	return tx.Commit()
}

func (c *Cache) GetArticles(opts QueryOpts) ([]Article, error) {
	var (
		where []string
		args  []interface{}
	)

	if !opts.Since.IsZero() {
		where = append(where, "published_ts >= ?")
		args = append(args, opts.Since.Unix())
	}

	if len(opts.Sources) > 0 {
		placeholders := make([]string, len(opts.Sources))
		for i, s := range opts.Sources {
			placeholders[i] = "?"
			args = append(args, s)
		}
		where = append(where, "source IN ("+strings.Join(placeholders, ",")+")") //nolint:gosec
	}

	if opts.Search != "" {
		if strings.Contains(opts.Search, fieldSep) {
			return nil, nil
		}
		where = append(where, "instr(search_text, ?) > 0")
		args = append(args, strings.ToLower(opts.Search))
	}

	if opts.Category != "" {
		where = append(where, "category = ?")
		args = append(args, opts.Category)
	}

	query := "SELECT id, source, title, link, description, published, fetched_at, category, signal_score FROM articles"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	switch opts.OrderBy {
	case OrderSignal:
		query += " ORDER BY signal_score DESC, published_ts DESC, id"
	default:
		query += " ORDER BY published_ts DESC, id"
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	query += fmt.Sprintf(" LIMIT %d", limit)

	rows, err := c.readDB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying articles: %w", err)
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		var a Article
		if err := rows.Scan(&a.ID, &a.Source, &a.Title, &a.Link, &a.Description, &a.Published, &a.FetchedAt, &a.Category, &a.SignalScore); err != nil {
			return nil, fmt.Errorf("scanning article: %w", err)
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// Count returns the number of cached articles.
func (c *Cache) Count() (int, error) {
	var n int
	if err := c.readDB.QueryRow("SELECT COUNT(*) FROM articles").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting articles: %w", err)
	}
	return n, nil
}

// Prune deletes articles published before now minus retention.
func (c *Cache) Prune(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).Unix()
	res, err := c.writeDB.Exec("DELETE FROM articles WHERE published_ts < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting old articles: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if _, err := c.writeDB.Exec("VACUUM"); err != nil {
			return n, fmt.Errorf("vacuuming: %w", err)
		}
	}
	return n, nil
}

// Stats returns the article count and the on-disk size of dbPath.
func (c *Cache) Stats(dbPath string) (int, int64, error) {
	count, err := c.Count()
	if err != nil {
		return 0, 0, err
	}
	info, err := os.Stat(dbPath)
	if err != nil {
		return count, 0, fmt.Errorf("stat %s: %w", dbPath, err)
	}
	return count, info.Size(), nil
}

func (c *Cache) NeedsRefresh(interval time.Duration) bool {
	t, err := c.LastRefresh()
	if err != nil {
		return true
	}
	return time.Since(t) > interval
}

// LastRefresh returns the time of the last successful refresh, or ErrNoRefresh.
func (c *Cache) LastRefresh() (time.Time, error) {
	value, err := c.getMeta("last_refresh")
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNoRefresh
	}
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing last_refresh %q: %w", value, err)
	}
	return t, nil
}

func (c *Cache) SetLastRefresh() error {
	return c.setMeta("last_refresh", time.Now().UTC().Format(time.RFC3339))
}

func (c *Cache) getMeta(key string) (string, error) {
	var value string
	err := c.readDB.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	return value, err
}

func (c *Cache) setMeta(key, value string) error {
	_, err := c.writeDB.Exec(`
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}
