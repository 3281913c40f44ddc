package providers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/forecast-aggregation/internal/weather"
)

var errNoGeocoderKey = errors.New("geocoder api key is not configured")

// Coordinates is a latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Lat float64
	Lon float64
}

// Geocoder resolves a query to coordinates for coordinate-only providers.
type Geocoder interface {
	Geocode(ctx context.Context, q weather.Query) (Coordinates, error)
}

// GoogleGeocoder resolves places through the Google geocoding API.
// Results are memoized for the life of the process.
type GoogleGeocoder struct {
	lookup func(geocoder.Address) (geocoder.Location, error)
	known  sync.Map // weather.Query -> Coordinates
}

// Ensure GoogleGeocoder implements Geocoder
var _ Geocoder = (*GoogleGeocoder)(nil)

// NewGoogleGeocoder configures the process-wide geocoder key and returns a Geocoder.
func NewGoogleGeocoder(apiKey string) (*GoogleGeocoder, error) {
	if apiKey == "" {
		return nil, errNoGeocoderKey
	}
	geocoder.ApiKey = apiKey
	return &GoogleGeocoder{lookup: geocoder.Geocoding}, nil
}

func (g *GoogleGeocoder) Geocode(ctx context.Context, q weather.Query) (Coordinates, error) {
	if c, ok := g.known.Load(q); ok {
		return c.(Coordinates), nil
	}

	type result struct {
		loc geocoder.Location
		err error
	}
	// The geocoder client has no context support; stop waiting when ctx ends.
	done := make(chan result, 1)
	go func() {
		loc, err := g.lookup(geocoder.Address{City: q.City, Country: q.Country})
		done <- result{loc: loc, err: err}
	}()

	select {
	case <-ctx.Done():
		return Coordinates{}, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return Coordinates{}, fmt.Errorf("geocode %s: %w", q.Key(), r.err)
		}
		c := Coordinates{Lat: r.loc.Latitude, Lon: r.loc.Longitude}
		g.known.Store(q, c)
		return c, nil
	}
}
