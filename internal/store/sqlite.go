package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/i474232898/forecast-aggregation/internal/weather"
)

// sqliteTimeLayout is fixed width so cached_at compares correctly as text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS forecast_cache (
  country   TEXT NOT NULL,
  city      TEXT NOT NULL,
  series    TEXT NOT NULL,
  cached_at TEXT NOT NULL,
  PRIMARY KEY (country, city)
);
`

// SQLiteCache keeps merged forecasts in a sqlite table so they survive restarts
// until the next scheduled clear.
type SQLiteCache struct {
	db  *sql.DB
	now func() time.Time
}

// Ensure SQLiteCache implements weather.Cache
var _ weather.Cache = (*SQLiteCache)(nil)

// OpenSQLite opens (and creates, if needed) the sqlite database at path.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn, err := sqliteDSN(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	// One writer at a time; WAL keeps readers unblocked.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return db, nil
}

func sqliteDSN(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("%w: sqlite path is empty", ErrInvalidConfig)
	}

	params := []string{
		"_busy_timeout=5000",
		"_journal_mode=WAL",
	}

	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + strings.Join(params, "&"), nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("sqlite: mkdir %s: %w", dir, err)
		}
	}
	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&")), nil
}

// NewSQLiteCache creates the cache table if missing, drops rows cached before the
// last UTC midnight and returns the cache.
func NewSQLiteCache(ctx context.Context, db *sql.DB) (*SQLiteCache, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	c := &SQLiteCache{db: db, now: time.Now}
	if _, err := c.purgeStale(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// purgeStale deletes rows that outlived the midnight they should have been cleared at.
func (c *SQLiteCache) purgeStale(ctx context.Context) (int, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM forecast_cache WHERE cached_at < ?`,
		sqliteTime(validSince(c.now())),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: purge stale: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: purge stale: %w", err)
	}
	return int(n), nil
}

func sqliteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

// Get returns the series cached for q. Rows cached before the last UTC midnight are misses.
func (c *SQLiteCache) Get(ctx context.Context, q weather.Query) (weather.ForecastSeries, bool, error) {
	var raw string
	err := c.db.QueryRowContext(ctx,
		`SELECT series FROM forecast_cache WHERE country = ? AND city = ? AND cached_at >= ?`,
		q.Country, q.City, sqliteTime(validSince(c.now())),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: get %s: %w", q.Key(), err)
	}

	series, err := decodeSeries([]byte(raw))
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: get %s: %w", q.Key(), err)
	}
	return series, true, nil
}

// Put upserts the series for q.
func (c *SQLiteCache) Put(ctx context.Context, q weather.Query, series weather.ForecastSeries) error {
	data, err := encodeSeries(series)
	if err != nil {
		return err
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO forecast_cache (country, city, series, cached_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (country, city) DO UPDATE SET
			series = excluded.series,
			cached_at = excluded.cached_at
	`, q.Country, q.City, string(data), sqliteTime(c.now()))
	if err != nil {
		return fmt.Errorf("sqlite: put %s: %w", q.Key(), err)
	}
	return nil
}

// Clear deletes every row in a single statement.
func (c *SQLiteCache) Clear(ctx context.Context) (int, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM forecast_cache`)
	if err != nil {
		return 0, fmt.Errorf("sqlite: clear: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: clear: %w", err)
	}
	return int(n), nil
}
