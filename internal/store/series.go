package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/i474232898/forecast-aggregation/internal/weather"
)

// ErrInvalidConfig is returned when a backend is opened without its location.
var ErrInvalidConfig = errors.New("invalid cache backend configuration")

// Series are persisted as a JSON array of {"date","temperature"} objects.
func encodeSeries(s weather.ForecastSeries) ([]byte, error) {
	if s == nil {
		s = weather.ForecastSeries{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode series: %w", err)
	}
	return data, nil
}

func decodeSeries(data []byte) (weather.ForecastSeries, error) {
	series := weather.ForecastSeries{}
	if err := json.Unmarshal(data, &series); err != nil {
		return nil, fmt.Errorf("decode series: %w", err)
	}
	return series, nil
}

// validSince is the oldest cached_at still served at now: the last UTC midnight.
// Rows older than that missed a scheduled clear, e.g. while the process was down.
func validSince(now time.Time) time.Time {
	return weather.CalendarDay(now)
}
