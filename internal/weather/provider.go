package weather

import (
	"context"
)

// Provider abstracts an upstream forecast vendor (e.g. OpenWeatherMap, WeatherAPI, Weatherbit).
// Implementations bound their own latency; any error means "this provider produced nothing".
type Provider interface {
	Name() string
	Fetch(ctx context.Context, q Query) ([]RawPoint, error)
}

// Cache is the contract the in-memory cache (and the persistent backends) must satisfy.
type Cache interface {
	Get(ctx context.Context, q Query) (ForecastSeries, bool, error)
	Put(ctx context.Context, q Query, series ForecastSeries) error
	// Clear atomically drops every entry and reports how many were removed.
	Clear(ctx context.Context) (int, error)
}

// Invalidation drives the periodic full cache clear of a Service.
type Invalidation interface {
	Start(clear func()) error
	Stop()
}

// Publisher receives every freshly merged series.
type Publisher interface {
	Publish(ctx context.Context, q Query, series ForecastSeries) error
}
