package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/i474232898/forecast-aggregation/internal/weather"
)

func setupSQLiteCache(t *testing.T) *SQLiteCache {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if closeErr := db.Close(); closeErr != nil {
			t.Fatalf("close db: %v", closeErr)
		}
	})

	cache, err := NewSQLiteCache(context.Background(), db)
	if err != nil {
		t.Fatalf("new sqlite cache: %v", err)
	}
	return cache
}

func TestSQLiteCache(t *testing.T) {
	exerciseCache(t, setupSQLiteCache(t))
}

func TestSQLiteCacheMidnightExpiry(t *testing.T) {
	cache := setupSQLiteCache(t)
	exerciseMidnightExpiry(t, cache, func(now time.Time) {
		cache.now = func() time.Time { return now }
	})
}

func TestSQLiteCacheDropsRowsOlderThanMidnightOnReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")
	paris := weather.Query{Country: "FR", City: "Paris"}

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	cache, err := NewSQLiteCache(ctx, db)
	if err != nil {
		t.Fatalf("NewSQLiteCache: %v", err)
	}
	// Cached two days ago; the process was down across both midnights since.
	cache.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	if err := cache.Put(ctx, paris, weather.ForecastSeries{{Date: testDay(1), Temperature: 12}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close db: %v", err)
	}

	db, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = db.Close() }()

	cache, err = NewSQLiteCache(ctx, db)
	if err != nil {
		t.Fatalf("NewSQLiteCache after reopen: %v", err)
	}
	if _, ok, err := cache.Get(ctx, paris); err != nil || ok {
		t.Fatalf("expected stale entry to be gone after reopen, got ok=%v err=%v", ok, err)
	}

	var rows int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM forecast_cache`).Scan(&rows); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 0 {
		t.Fatalf("expected stale rows to be purged on open, found %d", rows)
	}
}

func TestOpenSQLiteCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache.db")

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			t.Fatalf("close db: %v", closeErr)
		}
	}()

	if _, err := NewSQLiteCache(context.Background(), db); err != nil {
		t.Fatalf("NewSQLiteCache: %v", err)
	}
}

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "file prefix", in: "file:cache.db", want: "file:cache.db?_busy_timeout=5000&_journal_mode=WAL"},
		{name: "file prefix with params", in: "file:cache.db?mode=rwc", want: "file:cache.db?mode=rwc&_busy_timeout=5000&_journal_mode=WAL"},
		{name: "plain path", in: "cache.db", want: "file:cache.db?_busy_timeout=5000&_journal_mode=WAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sqliteDSN(tt.in)
			if err != nil {
				t.Fatalf("sqliteDSN(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("sqliteDSN(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	if _, err := sqliteDSN("  "); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for empty path, got %v", err)
	}
}
