package weather

import (
	"sort"
	"time"
)

// MergeDaily combines raw points from any number of providers into one averaged
// entry per UTC calendar day, sorted ascending by date.
//
// Temperatures within a day are summed in sorted order, so the result is
// bit-for-bit identical for any arrival order of the same points.
func MergeDaily(points []RawPoint) ForecastSeries {
	byDay := make(map[int64][]float64)
	for _, p := range points {
		k := CalendarDay(p.Timestamp).Unix()
		byDay[k] = append(byDay[k], p.Temperature)
	}

	days := make([]int64, 0, len(byDay))
	for k := range byDay {
		days = append(days, k)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

	series := make(ForecastSeries, 0, len(days))
	for _, k := range days {
		temps := byDay[k]
		sort.Float64s(temps)

		var sum float64
		for _, t := range temps {
			sum += t
		}

		series = append(series, DailyForecast{
			Date:        time.Unix(k, 0).UTC(),
			Temperature: sum / float64(len(temps)),
		})
	}
	return series
}
