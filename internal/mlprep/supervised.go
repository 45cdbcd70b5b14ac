// Package mlprep turns a processed station frame into model-ready tables:
// lagged feature and forward target columns, time-ordered splits, and
// scaler fit/apply.
package mlprep

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/couchcryptid/metdata-etl/internal/domain"
)

// LagColumn names the n-step lag feature of col.
func LagColumn(col string, n int) string { return col + "_lag" + strconv.Itoa(n) }

// TargetColumn names the h-step-ahead target of col.
func TargetColumn(col string, h int) string { return col + "_t+" + strconv.Itoa(h) }

// MakeSupervised returns a new frame holding every column of f plus, for each
// numeric column and lag n, the value n rows earlier, and for each target
// present in f and horizon h, the value h rows later. Flag columns are carried
// but not lagged. Targets absent from f are skipped. With dropNA set, rows
// with a missing value in any numeric column are removed, which drops the
// leading and trailing rows lacking history or future. The result shares no
// memory with f.
func MakeSupervised(f *domain.Frame, targets []string, lags, horizons []int, dropNA bool) (*domain.Frame, error) {
	const op = "make supervised"
	for _, n := range lags {
		if n < 1 {
			return nil, domain.ConfigError(op, fmt.Errorf("lag must be at least 1, got %d", n))
		}
	}
	for _, h := range horizons {
		if h < 1 {
			return nil, domain.ConfigError(op, fmt.Errorf("horizon must be at least 1, got %d", h))
		}
	}

	out := f.Clone()
	numeric := f.FloatColumns()
	for _, n := range lags {
		for _, col := range numeric {
			x, _ := f.Float(col)
			if err := out.SetFloat(LagColumn(col, n), shift(x, n)); err != nil {
				return nil, err
			}
		}
	}
	for _, tgt := range targets {
		x, ok := f.Float(tgt)
		if !ok {
			continue
		}
		for _, h := range horizons {
			if err := out.SetFloat(TargetColumn(tgt, h), shift(x, -h)); err != nil {
				return nil, err
			}
		}
	}

	if !dropNA {
		return out, nil
	}
	cols := out.FloatColumns()
	return out.Filter(func(i int) bool {
		for _, c := range cols {
			x, _ := out.Float(c)
			if math.IsNaN(x[i]) {
				return false
			}
		}
		return true
	}), nil
}

// shift moves values k rows later (k > 0) or earlier (k < 0), filling with NaN.
func shift(x []float64, k int) []float64 {
	out := domain.NaNs(len(x))
	for i := range x {
		j := i - k
		if j >= 0 && j < len(x) {
			out[i] = x[j]
		}
	}
	return out
}

// Splits holds disjoint time-ordered partitions.
type Splits struct {
	Train *domain.Frame
	Val   *domain.Frame
	Test  *domain.Frame
}

// TimeSplit partitions rows by timestamp: train is ts <= trainEnd, val is
// trainEnd < ts <= valEnd and test is everything later. A nil valEnd leaves
// val empty and puts every row after trainEnd in test.
func TimeSplit(f *domain.Frame, trainEnd time.Time, valEnd *time.Time) (Splits, error) {
	if valEnd != nil && valEnd.Before(trainEnd) {
		return Splits{}, domain.ConfigError("time split", fmt.Errorf("validation end %s precedes train end %s",
			valEnd.UTC().Format(time.RFC3339), trainEnd.UTC().Format(time.RFC3339)))
	}
	train := f.Filter(func(i int) bool { return !f.Time(i).After(trainEnd) })
	if valEnd == nil {
		return Splits{
			Train: train,
			Val:   f.Filter(func(int) bool { return false }),
			Test:  f.Filter(func(i int) bool { return f.Time(i).After(trainEnd) }),
		}, nil
	}
	return Splits{
		Train: train,
		Val: f.Filter(func(i int) bool {
			t := f.Time(i)
			return t.After(trainEnd) && !t.After(*valEnd)
		}),
		Test: f.Filter(func(i int) bool { return f.Time(i).After(*valEnd) }),
	}, nil
}
