// Package stats holds the NaN-aware statistics shared by the QC engine and
// the scaler: centered rolling windows, medians and interpolated quantiles.
package stats

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Finite returns the non-NaN values of xs in order.
func Finite(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	return out
}

// Quantile returns the p-quantile of ascending-sorted data using linear
// interpolation between closest ranks (Hyndman-Fan type 7). It returns NaN
// for empty input.
func Quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	h := p * float64(n-1)
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := h - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// Median ignores NaN values and returns NaN when none remain. The even-count
// median averages the two middle values.
func Median(xs []float64) float64 {
	vals := Finite(xs)
	slices.Sort(vals)
	return Quantile(vals, 0.5)
}

// MeanStd returns the mean and population standard deviation of the finite
// values, and their count.
func MeanStd(xs []float64) (mean, std float64, n int) {
	vals := Finite(xs)
	if len(vals) == 0 {
		return math.NaN(), math.NaN(), 0
	}
	m, v := stat.PopMeanVariance(vals, nil)
	return m, math.Sqrt(v), len(vals)
}

// MinMax returns the extremes of the finite values.
func MinMax(xs []float64) (lo, hi float64, n int) {
	vals := Finite(xs)
	if len(vals) == 0 {
		return math.NaN(), math.NaN(), 0
	}
	return floats.Min(vals), floats.Max(vals), len(vals)
}

// Window describes a centered rolling window. For even widths the extra
// element sits after the centre row.
type Window struct {
	Width      int
	MinPeriods int
}

func (w Window) bounds(i, n int) (lo, hi int) {
	left := w.Width - 1 - w.Width/2
	right := w.Width / 2
	lo = max(i-left, 0)
	hi = min(i+right+1, n)
	return lo, hi
}

// Apply evaluates fn over the finite values of each centered window. Rows
// whose window holds fewer than MinPeriods finite values get NaN. The slice
// passed to fn is reused between calls.
func (w Window) Apply(xs []float64, fn func(window []float64) float64) []float64 {
	out := make([]float64, len(xs))
	buf := make([]float64, 0, w.Width)
	for i := range xs {
		lo, hi := w.bounds(i, len(xs))
		buf = buf[:0]
		for _, x := range xs[lo:hi] {
			if !math.IsNaN(x) {
				buf = append(buf, x)
			}
		}
		if len(buf) < w.MinPeriods || len(buf) == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = fn(buf)
	}
	return out
}

// RollingMedian is the centered rolling median.
func (w Window) RollingMedian(xs []float64) []float64 {
	return w.Apply(xs, func(win []float64) float64 {
		slices.Sort(win)
		return Quantile(win, 0.5)
	})
}

// RollingVariance is the centered rolling sample variance (ddof 1). Values
// are shifted by the first element of each window before accumulation so
// that a window of identical readings yields exactly zero.
func (w Window) RollingVariance(xs []float64) []float64 {
	return w.Apply(xs, func(win []float64) float64 {
		if len(win) < 2 {
			return math.NaN()
		}
		floats.AddConst(-win[0], win)
		return stat.Variance(win, nil)
	})
}
