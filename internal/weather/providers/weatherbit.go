package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/i474232898/forecast-aggregation/internal/weather"
)

// WeatherbitProvider implements the weather.Provider interface for the
// Weatherbit 16 day daily forecast.
type WeatherbitProvider struct {
	name    string
	apiKey  string
	baseURL string
	http    *transport
}

// Ensure WeatherbitProvider implements weather.Provider
var _ weather.Provider = (*WeatherbitProvider)(nil)

func NewWeatherbitProvider(cfg HTTPClientConfig, apiKey string) *WeatherbitProvider {
	return &WeatherbitProvider{
		name:    "weatherbit",
		apiKey:  apiKey,
		baseURL: "https://api.weatherbit.io/v2.0/forecast/daily",
		http:    newTransport("weatherbit", cfg),
	}
}

func (p *WeatherbitProvider) Name() string {
	return p.name
}

type weatherbitForecast struct {
	Data []struct {
		Ts   int64   `json:"ts"`
		Temp float64 `json:"temp"`
	} `json:"data"`
}

func (p *WeatherbitProvider) Fetch(ctx context.Context, q weather.Query) ([]weather.RawPoint, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("weatherbit: %w", errNotConfigured)
	}

	ctx, cancel := p.http.withDeadline(ctx)
	defer cancel()

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("key", p.apiKey)
		values.Set("city", q.City)
		if q.Country != "" {
			values.Set("country", q.Country)
		}

		return http.NewRequest(http.MethodGet, p.baseURL+"?"+values.Encode(), nil)
	}

	var payload weatherbitForecast
	noContent, err := p.http.getJSON(ctx, buildRequest, &payload)
	if err != nil {
		return nil, err
	}
	// Weatherbit answers 204 for places it does not know.
	if noContent {
		return nil, nil
	}

	points := make([]weather.RawPoint, 0, len(payload.Data))
	for _, d := range payload.Data {
		points = append(points, weather.RawPoint{
			Timestamp:   time.Unix(d.Ts, 0).UTC(),
			Temperature: d.Temp,
		})
	}
	return points, nil
}
