package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/i474232898/forecast-aggregation/internal/weather"
)

// OpenMeteoProvider implements the weather.Provider interface for Open-Meteo.
// Open-Meteo is keyless but only accepts coordinates, so places go through a Geocoder first.
type OpenMeteoProvider struct {
	name     string
	baseURL  string
	geocoder Geocoder
	http     *transport
}

// Ensure OpenMeteoProvider implements weather.Provider
var _ weather.Provider = (*OpenMeteoProvider)(nil)

func NewOpenMeteoProvider(cfg HTTPClientConfig, geo Geocoder) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		name:     "openmeteo",
		baseURL:  "https://api.open-meteo.com/v1/forecast",
		geocoder: geo,
		http:     newTransport("openmeteo", cfg),
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

type openMeteoForecast struct {
	Hourly struct {
		Time          []int64    `json:"time"`
		Temperature2m []*float64 `json:"temperature_2m"`
	} `json:"hourly"`
}

func (p *OpenMeteoProvider) Fetch(ctx context.Context, q weather.Query) ([]weather.RawPoint, error) {
	if p.geocoder == nil {
		return nil, fmt.Errorf("openmeteo: %w", errNoGeocoderKey)
	}

	ctx, cancel := p.http.withDeadline(ctx)
	defer cancel()

	coords, err := p.geocoder.Geocode(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("openmeteo: %w", err)
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", strconv.FormatFloat(coords.Lat, 'f', 4, 64))
		values.Set("longitude", strconv.FormatFloat(coords.Lon, 'f', 4, 64))
		values.Set("hourly", "temperature_2m")
		values.Set("timeformat", "unixtime")
		values.Set("timezone", "UTC")

		return http.NewRequest(http.MethodGet, p.baseURL+"?"+values.Encode(), nil)
	}

	var payload openMeteoForecast
	if _, err := p.http.getJSON(ctx, buildRequest, &payload); err != nil {
		return nil, err
	}

	times, temps := payload.Hourly.Time, payload.Hourly.Temperature2m
	if len(times) != len(temps) {
		return nil, fmt.Errorf("openmeteo: mismatched hourly arrays (%d times, %d temperatures)", len(times), len(temps))
	}

	points := make([]weather.RawPoint, 0, len(times))
	for i, ts := range times {
		// Hours past the model horizon come back as null.
		if temps[i] == nil {
			continue
		}
		points = append(points, weather.RawPoint{
			Timestamp:   time.Unix(ts, 0).UTC(),
			Temperature: *temps[i],
		})
	}
	return points, nil
}
