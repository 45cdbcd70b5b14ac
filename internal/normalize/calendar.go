package normalize

import (
	"math"

	"github.com/couchcryptid/metdata-etl/internal/domain"
)

// Calendar feature columns.
const (
	ColHour    = "hour"
	ColWeekday = "weekday"
	ColMonth   = "month"
	ColDOY     = "doy"
	ColHourSin = "hour_sin"
	ColHourCos = "hour_cos"
	ColDOYSin  = "doy_sin"
	ColDOYCos  = "doy_cos"
)

const daysPerYear = 365.25

type calendarColumn struct {
	name   string
	values []float64
}

// CalendarFeatures adds hour, weekday (Monday = 0), month and day-of-year
// columns taken from the UTC index. With cyclical set it also adds sine and
// cosine encodings of hour (period 24) and day of year (period 365.25).
func CalendarFeatures(f *domain.Frame, cyclical bool) ([]string, error) {
	n := f.Len()
	hour := make([]float64, n)
	weekday := make([]float64, n)
	month := make([]float64, n)
	doy := make([]float64, n)
	for i := range n {
		t := f.Time(i).UTC()
		hour[i] = float64(t.Hour())
		weekday[i] = float64((t.Weekday() + 6) % 7)
		month[i] = float64(t.Month())
		doy[i] = float64(t.YearDay())
	}

	cols := []calendarColumn{
		{ColHour, hour},
		{ColWeekday, weekday},
		{ColMonth, month},
		{ColDOY, doy},
	}
	if cyclical {
		cols = append(cols,
			calendarColumn{ColHourSin, cyclic(hour, 24, math.Sin)},
			calendarColumn{ColHourCos, cyclic(hour, 24, math.Cos)},
			calendarColumn{ColDOYSin, cyclic(doy, daysPerYear, math.Sin)},
			calendarColumn{ColDOYCos, cyclic(doy, daysPerYear, math.Cos)},
		)
	}

	written := make([]string, 0, len(cols))
	for _, c := range cols {
		if err := f.SetFloat(c.name, c.values); err != nil {
			return written, err
		}
		written = append(written, c.name)
	}
	return written, nil
}

func cyclic(x []float64, period float64, fn func(float64) float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = fn(2 * math.Pi * v / period)
	}
	return out
}
