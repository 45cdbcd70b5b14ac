package normalize

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/metdata-etl/internal/domain"
	"github.com/couchcryptid/metdata-etl/internal/stats"
)

// Resample aggregates f into buckets of width freq aligned with
// time.Truncate. Every bucket from the first to the last observation is
// emitted. Numeric columns use the registry's per-variable policy unless
// overridden; flag columns are OR-ed. A bucket with no observations yields
// missing values, including for sums. The gap marker is true for buckets
// holding no non-gap rows.
func Resample(f *domain.Frame, freq time.Duration, reg *domain.Registry, overrides map[string]domain.Agg) (*domain.Frame, error) {
	const op = "resample"
	if freq <= 0 {
		return nil, domain.ConfigError(op, fmt.Errorf("frequency must be positive, got %s", freq))
	}
	for col, agg := range overrides {
		if !agg.Valid() || agg == domain.AggAny {
			return nil, domain.ConfigError(op, fmt.Errorf("%s: unsupported aggregation %q", col, agg))
		}
	}
	if f.Len() == 0 {
		return f.Clone(), nil
	}

	index := f.Index()
	start := index[0].Truncate(freq)
	n, err := gridSlots(op, index[len(index)-1].Truncate(freq).Sub(start), freq)
	if err != nil {
		return nil, err
	}
	buckets := make([][]int, n)
	for i, t := range index {
		b := int(t.Truncate(freq).Sub(start) / freq)
		if b < 0 || b >= n {
			return nil, domain.DataError(op, "", fmt.Errorf("index is not sorted at row %d", i))
		}
		buckets[b] = append(buckets[b], i)
	}

	grid := make([]time.Time, n)
	for i := range grid {
		grid[i] = start.Add(time.Duration(i) * freq)
	}
	out := domain.NewFrame(grid)
	gapIn, hasGap := f.Flag(domain.ColGap)

	for _, col := range f.Columns() {
		if x, ok := f.Float(col); ok {
			agg, ok := overrides[col]
			if !ok {
				agg = reg.AggFor(col)
			}
			fn, err := aggregator(agg)
			if err != nil {
				return nil, domain.ConfigError(op, fmt.Errorf("%s: %w", col, err))
			}
			values := make([]float64, n)
			buf := make([]float64, 0, 8)
			for b, rows := range buckets {
				buf = buf[:0]
				for _, r := range rows {
					if !math.IsNaN(x[r]) {
						buf = append(buf, x[r])
					}
				}
				if len(buf) == 0 {
					values[b] = math.NaN()
					continue
				}
				values[b] = fn(buf)
			}
			if err := out.SetFloat(col, values); err != nil {
				return nil, err
			}
			continue
		}

		if col == domain.ColGap {
			continue
		}
		x, _ := f.Flag(col)
		values := make([]bool, n)
		for b, rows := range buckets {
			for _, r := range rows {
				if x[r] {
					values[b] = true
					break
				}
			}
		}
		if err := out.SetFlag(col, values); err != nil {
			return nil, err
		}
	}

	gap := make([]bool, n)
	for b, rows := range buckets {
		gap[b] = true
		for _, r := range rows {
			if !hasGap || !gapIn[r] {
				gap[b] = false
				break
			}
		}
	}
	if err := out.SetFlag(domain.ColGap, gap); err != nil {
		return nil, err
	}
	return out, nil
}

// aggregator returns the reducer for a policy. Reducers receive at least one
// finite value.
func aggregator(agg domain.Agg) (func([]float64) float64, error) {
	switch agg {
	case domain.AggMean:
		return func(v []float64) float64 { return stat.Mean(v, nil) }, nil
	case domain.AggSum:
		return floats.Sum, nil
	case domain.AggMin:
		return floats.Min, nil
	case domain.AggMax:
		return floats.Max, nil
	case domain.AggMedian:
		return stats.Median, nil
	case domain.AggFirst:
		return func(v []float64) float64 { return v[0] }, nil
	case domain.AggLast:
		return func(v []float64) float64 { return v[len(v)-1] }, nil
	case domain.AggCircularMean:
		return circularMeanDeg, nil
	case domain.AggAny:
		return nil, fmt.Errorf("aggregation %q applies to flags only", agg)
	}
	return nil, fmt.Errorf("unknown aggregation %q", agg)
}

// circularMeanDeg averages compass bearings, returning a value in [0, 360).
func circularMeanDeg(deg []float64) float64 {
	rad := make([]float64, len(deg))
	floats.ScaleTo(rad, math.Pi/180, deg)
	m := stat.CircularMean(rad, nil) * 180 / math.Pi
	if m < 0 {
		m += 360
	}
	return m
}
