package store

import (
	"context"
	"testing"
	"time"

	"github.com/i474232898/forecast-aggregation/internal/weather"
)

func testDay(n int) time.Time {
	return time.Date(2024, time.June, n, 0, 0, 0, 0, time.UTC)
}

// exerciseCache runs the behaviour every weather.Cache backend must share.
func exerciseCache(t *testing.T, cache weather.Cache) {
	t.Helper()
	ctx := context.Background()

	paris := weather.Query{Country: "FR", City: "Paris"}
	lowerParis := weather.Query{Country: "fr", City: "paris"}
	berlin := weather.Query{Country: "DE", City: "Berlin"}

	if _, ok, err := cache.Get(ctx, paris); err != nil || ok {
		t.Fatalf("expected miss on empty cache, got ok=%v err=%v", ok, err)
	}

	series := weather.ForecastSeries{
		{Date: testDay(1), Temperature: 12.5},
		{Date: testDay(2), Temperature: 20},
	}
	if err := cache.Put(ctx, paris, series); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := cache.Put(ctx, berlin, weather.ForecastSeries{}); err != nil {
		t.Fatalf("put empty: %v", err)
	}

	got, ok, err := cache.Get(ctx, paris)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if len(got) != 2 || !got[0].Date.Equal(testDay(1)) || got[0].Temperature != 12.5 ||
		!got[1].Date.Equal(testDay(2)) || got[1].Temperature != 20 {
		t.Fatalf("unexpected series: %v", got)
	}

	// Keys are used verbatim.
	if _, ok, _ := cache.Get(ctx, lowerParis); ok {
		t.Fatalf("expected %v to miss; keys must not be normalized", lowerParis)
	}

	// Empty series are cached values too.
	empty, ok, err := cache.Get(ctx, berlin)
	if err != nil || !ok || len(empty) != 0 {
		t.Fatalf("expected cached empty series, got %v ok=%v err=%v", empty, ok, err)
	}

	// Overwrite.
	if err := cache.Put(ctx, paris, series[:1]); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _, _ = cache.Get(ctx, paris)
	if len(got) != 1 {
		t.Fatalf("expected overwritten series of 1 day, got %v", got)
	}

	removed, err := cache.Clear(ctx)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed entries, got %d", removed)
	}
	if _, ok, _ := cache.Get(ctx, paris); ok {
		t.Fatalf("expected miss after clear")
	}
	if _, ok, _ := cache.Get(ctx, berlin); ok {
		t.Fatalf("expected miss after clear")
	}
}

// exerciseMidnightExpiry checks that a persistent backend stops serving rows
// cached before the last UTC midnight, even when no clear ran in between.
func exerciseMidnightExpiry(t *testing.T, cache weather.Cache, setNow func(time.Time)) {
	t.Helper()
	ctx := context.Background()
	lyon := weather.Query{Country: "FR", City: "Lyon"}
	series := weather.ForecastSeries{{Date: testDay(1), Temperature: 9}}

	setNow(time.Date(2024, time.June, 1, 23, 30, 0, 0, time.UTC))
	if err := cache.Put(ctx, lyon, series); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, ok, err := cache.Get(ctx, lyon); err != nil || !ok {
		t.Fatalf("expected hit before midnight, got ok=%v err=%v", ok, err)
	}

	setNow(time.Date(2024, time.June, 2, 0, 30, 0, 0, time.UTC))
	if _, ok, err := cache.Get(ctx, lyon); err != nil || ok {
		t.Fatalf("expected entry from before midnight to miss, got ok=%v err=%v", ok, err)
	}

	if err := cache.Put(ctx, lyon, series); err != nil {
		t.Fatalf("put after midnight: %v", err)
	}
	if _, ok, err := cache.Get(ctx, lyon); err != nil || !ok {
		t.Fatalf("expected fresh entry to hit, got ok=%v err=%v", ok, err)
	}
}
