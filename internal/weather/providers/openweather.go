package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/i474232898/forecast-aggregation/internal/weather"
)

// OpenWeatherProvider implements the weather.Provider interface for the
// OpenWeatherMap 5 day / 3 hour forecast.
type OpenWeatherProvider struct {
	name    string
	apiKey  string
	baseURL string
	http    *transport
}

// Ensure OpenWeatherProvider implements weather.Provider
var _ weather.Provider = (*OpenWeatherProvider)(nil)

func NewOpenWeatherProvider(cfg HTTPClientConfig, apiKey string) *OpenWeatherProvider {
	return &OpenWeatherProvider{
		name:    "openweathermap",
		apiKey:  apiKey,
		baseURL: "https://api.openweathermap.org/data/2.5/forecast",
		http:    newTransport("openweathermap", cfg),
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

type openWeatherForecast struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp float64 `json:"temp"`
		} `json:"main"`
	} `json:"list"`
}

func (p *OpenWeatherProvider) Fetch(ctx context.Context, q weather.Query) ([]weather.RawPoint, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("openweathermap: %w", errNotConfigured)
	}

	ctx, cancel := p.http.withDeadline(ctx)
	defer cancel()

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("appid", p.apiKey)
		values.Set("units", "metric")
		values.Set("q", cityCountry(q))

		return http.NewRequest(http.MethodGet, p.baseURL+"?"+values.Encode(), nil)
	}

	var payload openWeatherForecast
	if _, err := p.http.getJSON(ctx, buildRequest, &payload); err != nil {
		return nil, err
	}

	points := make([]weather.RawPoint, 0, len(payload.List))
	for _, item := range payload.List {
		points = append(points, weather.RawPoint{
			Timestamp:   time.Unix(item.Dt, 0).UTC(),
			Temperature: item.Main.Temp,
		})
	}
	return points, nil
}

// cityCountry renders the "city,country" form most vendors accept for q.
func cityCountry(q weather.Query) string {
	if q.Country == "" {
		return q.City
	}
	return q.City + "," + q.Country
}
