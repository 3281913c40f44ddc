package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/i474232898/forecast-aggregation/internal/weather"
)

// weatherAPIDays is the longest forecast the endpoint is asked for.
const weatherAPIDays = "7"

// WeatherAPIProvider implements the weather.Provider interface for WeatherAPI.com
// (formerly Apixu), using its daily average temperature.
type WeatherAPIProvider struct {
	name    string
	apiKey  string
	baseURL string
	http    *transport
}

// Ensure WeatherAPIProvider implements weather.Provider
var _ weather.Provider = (*WeatherAPIProvider)(nil)

func NewWeatherAPIProvider(cfg HTTPClientConfig, apiKey string) *WeatherAPIProvider {
	return &WeatherAPIProvider{
		name:    "weatherapi",
		apiKey:  apiKey,
		baseURL: "https://api.weatherapi.com/v1/forecast.json",
		http:    newTransport("weatherapi", cfg),
	}
}

func (p *WeatherAPIProvider) Name() string {
	return p.name
}

type weatherAPIForecast struct {
	Forecast struct {
		ForecastDay []struct {
			DateEpoch int64 `json:"date_epoch"`
			Day       struct {
				AvgTempC float64 `json:"avgtemp_c"`
			} `json:"day"`
		} `json:"forecastday"`
	} `json:"forecast"`
}

func (p *WeatherAPIProvider) Fetch(ctx context.Context, q weather.Query) ([]weather.RawPoint, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("weatherapi: %w", errNotConfigured)
	}

	ctx, cancel := p.http.withDeadline(ctx)
	defer cancel()

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("key", p.apiKey)
		// WeatherAPI uses "q" for location; it accepts "city,country".
		values.Set("q", cityCountry(q))
		values.Set("days", weatherAPIDays)
		values.Set("aqi", "no")
		values.Set("alerts", "no")

		return http.NewRequest(http.MethodGet, p.baseURL+"?"+values.Encode(), nil)
	}

	var payload weatherAPIForecast
	if _, err := p.http.getJSON(ctx, buildRequest, &payload); err != nil {
		return nil, err
	}

	days := payload.Forecast.ForecastDay
	points := make([]weather.RawPoint, 0, len(days))
	for _, d := range days {
		points = append(points, weather.RawPoint{
			Timestamp:   time.Unix(d.DateEpoch, 0).UTC(),
			Temperature: d.Day.AvgTempC,
		})
	}
	return points, nil
}
