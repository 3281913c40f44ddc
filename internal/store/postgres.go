package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/i474232898/forecast-aggregation/internal/weather"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS forecast_cache (
	country   TEXT        NOT NULL,
	city      TEXT        NOT NULL,
	series    JSONB       NOT NULL,
	cached_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (country, city)
)
`

// PostgresCache keeps merged forecasts in a shared PostgreSQL table.
type PostgresCache struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// Ensure PostgresCache implements weather.Cache
var _ weather.Cache = (*PostgresCache)(nil)

// OpenPostgres connects to databaseURL and verifies the connection.
func OpenPostgres(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("%w: postgres url is empty", ErrInvalidConfig)
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: failed to ping: %w", err)
	}
	return pool, nil
}

// NewPostgresCache creates the cache table if missing, drops rows cached before the
// last UTC midnight and returns the cache.
func NewPostgresCache(ctx context.Context, pool *pgxpool.Pool) (*PostgresCache, error) {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("postgres: failed to migrate: %w", err)
	}
	c := &PostgresCache{pool: pool, now: time.Now}
	if _, err := c.purgeStale(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// purgeStale deletes rows that outlived the midnight they should have been cleared at.
func (c *PostgresCache) purgeStale(ctx context.Context) (int, error) {
	tag, err := c.pool.Exec(ctx, `DELETE FROM forecast_cache WHERE cached_at < $1`, validSince(c.now()))
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to purge stale rows: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Get returns the series cached for q. Rows cached before the last UTC midnight are misses.
func (c *PostgresCache) Get(ctx context.Context, q weather.Query) (weather.ForecastSeries, bool, error) {
	var raw []byte
	err := c.pool.QueryRow(ctx,
		`SELECT series FROM forecast_cache WHERE country = $1 AND city = $2 AND cached_at >= $3`,
		q.Country, q.City, validSince(c.now()),
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("postgres: failed to get %s: %w", q.Key(), err)
	}

	series, err := decodeSeries(raw)
	if err != nil {
		return nil, false, fmt.Errorf("postgres: failed to get %s: %w", q.Key(), err)
	}
	return series, true, nil
}

// Put upserts the series for q.
func (c *PostgresCache) Put(ctx context.Context, q weather.Query, series weather.ForecastSeries) error {
	data, err := encodeSeries(series)
	if err != nil {
		return err
	}

	_, err = c.pool.Exec(ctx, `
		INSERT INTO forecast_cache (country, city, series, cached_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (country, city) DO UPDATE SET
			series = EXCLUDED.series,
			cached_at = EXCLUDED.cached_at
	`, q.Country, q.City, string(data), c.now().UTC())
	if err != nil {
		return fmt.Errorf("postgres: failed to put %s: %w", q.Key(), err)
	}
	return nil
}

// Clear deletes every row in a single statement.
func (c *PostgresCache) Clear(ctx context.Context) (int, error) {
	tag, err := c.pool.Exec(ctx, `DELETE FROM forecast_cache`)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to clear: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
