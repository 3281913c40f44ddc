package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/i474232898/forecast-aggregation/internal/weather"
)

var errAerisUnsuccessful = errors.New("aerisweather: request unsuccessful")

// AerisWeatherProvider implements the weather.Provider interface for the
// AerisWeather forecasts endpoint.
type AerisWeatherProvider struct {
	name         string
	clientID     string
	clientSecret string
	baseURL      string
	http         *transport
}

// Ensure AerisWeatherProvider implements weather.Provider
var _ weather.Provider = (*AerisWeatherProvider)(nil)

func NewAerisWeatherProvider(cfg HTTPClientConfig, clientID, clientSecret string) *AerisWeatherProvider {
	return &AerisWeatherProvider{
		name:         "aerisweather",
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      "https://api.aerisapi.com/forecasts",
		http:         newTransport("aerisweather", cfg),
	}
}

func (p *AerisWeatherProvider) Name() string {
	return p.name
}

type aerisForecast struct {
	Success bool `json:"success"`
	Error   *struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
	Response []struct {
		Periods []struct {
			Timestamp int64   `json:"timestamp"`
			AvgTempC  float64 `json:"avgTempC"`
		} `json:"periods"`
	} `json:"response"`
}

func (p *AerisWeatherProvider) Fetch(ctx context.Context, q weather.Query) ([]weather.RawPoint, error) {
	if p.clientID == "" || p.clientSecret == "" {
		return nil, fmt.Errorf("aerisweather: %w", errNotConfigured)
	}

	ctx, cancel := p.http.withDeadline(ctx)
	defer cancel()

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("limit", "5")
		values.Set("filter", "precise")
		values.Set("client_id", p.clientID)
		values.Set("client_secret", p.clientSecret)

		place := url.PathEscape(q.City + "," + q.Country)
		return http.NewRequest(http.MethodGet, p.baseURL+"/"+place+"?"+values.Encode(), nil)
	}

	var payload aerisForecast
	if _, err := p.http.getJSON(ctx, buildRequest, &payload); err != nil {
		return nil, err
	}

	if !payload.Success {
		if payload.Error != nil {
			return nil, fmt.Errorf("%w: %s: %s", errAerisUnsuccessful, payload.Error.Code, payload.Error.Description)
		}
		return nil, errAerisUnsuccessful
	}

	var points []weather.RawPoint
	for _, forecast := range payload.Response {
		for _, period := range forecast.Periods {
			points = append(points, weather.RawPoint{
				Timestamp:   time.Unix(period.Timestamp, 0).UTC(),
				Temperature: period.AvgTempC,
			})
		}
	}
	return points, nil
}
