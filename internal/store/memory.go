package store

import (
	"context"
	"slices"
	"sync"

	"github.com/i474232898/forecast-aggregation/internal/weather"
)

// MemoryCache is a concurrency-safe in-memory forecast cache.
type MemoryCache struct {
	mu sync.RWMutex

	// key: query, value: merged series
	data map[weather.Query]weather.ForecastSeries
}

// Ensure MemoryCache implements weather.Cache
var _ weather.Cache = (*MemoryCache)(nil)

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		data: make(map[weather.Query]weather.ForecastSeries),
	}
}

// Get returns a copy of the series cached for q.
func (c *MemoryCache) Get(_ context.Context, q weather.Query) (weather.ForecastSeries, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	series, ok := c.data[q]
	if !ok {
		return nil, false, nil
	}
	return cloneSeries(series), true, nil
}

// Put stores a copy of series under q, replacing any previous value.
func (c *MemoryCache) Put(_ context.Context, q weather.Query, series weather.ForecastSeries) error {
	cp := cloneSeries(series)

	c.mu.Lock()
	c.data[q] = cp
	c.mu.Unlock()
	return nil
}

// Clear swaps in an empty map and reports how many entries were dropped.
func (c *MemoryCache) Clear(_ context.Context) (int, error) {
	c.mu.Lock()
	n := len(c.data)
	c.data = make(map[weather.Query]weather.ForecastSeries)
	c.mu.Unlock()
	return n, nil
}

// Len returns the number of cached queries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

func cloneSeries(s weather.ForecastSeries) weather.ForecastSeries {
	if s == nil {
		return weather.ForecastSeries{}
	}
	return slices.Clone(s)
}
