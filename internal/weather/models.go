package weather

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the wire format of a forecast day.
const DateLayout = "2006-01-02"

// Query identifies the place a forecast is requested for.
// Both fields are used verbatim; no case or whitespace normalization happens.
type Query struct {
	Country string `json:"country"`
	City    string `json:"city"`
}

// Key renders the query as country/city for logs. It is not unique when a name
// contains '/', so nothing uses it as a lookup key.
func (q Query) Key() string {
	return q.Country + "/" + q.City
}

// RawPoint is a single temperature reading reported by one provider.
// Timestamps carry no alignment guarantee.
type RawPoint struct {
	Timestamp   time.Time
	Temperature float64
}

// DailyForecast is the averaged temperature of one calendar day.
// Date is always midnight UTC.
type DailyForecast struct {
	Date        time.Time
	Temperature float64
}

type dailyForecastJSON struct {
	Date        string  `json:"date"`
	Temperature float64 `json:"temperature"`
}

// MarshalJSON renders the day as {"date":"YYYY-MM-DD","temperature":N}.
func (d DailyForecast) MarshalJSON() ([]byte, error) {
	return json.Marshal(dailyForecastJSON{
		Date:        d.Date.Format(DateLayout),
		Temperature: d.Temperature,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (d *DailyForecast) UnmarshalJSON(data []byte) error {
	var raw dailyForecastJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	date, err := time.Parse(DateLayout, raw.Date)
	if err != nil {
		return fmt.Errorf("invalid forecast date %q: %w", raw.Date, err)
	}
	d.Date = date
	d.Temperature = raw.Temperature
	return nil
}

// ForecastSeries is ordered ascending by Date with at most one entry per day.
type ForecastSeries []DailyForecast

// Day returns the entry for the calendar day of date, if present.
func (s ForecastSeries) Day(date time.Time) (DailyForecast, bool) {
	day := CalendarDay(date)
	for _, f := range s {
		if f.Date.Equal(day) {
			return f, true
		}
	}
	return DailyForecast{}, false
}

// Window returns exactly n slots holding the first n days of the series.
// Slots past the end of the series are nil.
func (s ForecastSeries) Window(n int) []*DailyForecast {
	if n <= 0 {
		return []*DailyForecast{}
	}
	out := make([]*DailyForecast, n)
	for i := 0; i < n && i < len(s); i++ {
		f := s[i]
		out[i] = &f
	}
	return out
}

// CalendarDay truncates t to midnight of its UTC calendar day.
func CalendarDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
