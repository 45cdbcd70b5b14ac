// Package qc implements the quality-control checks. Every check appends
// boolean flag columns to the frame and never removes rows. A variable that
// is absent from the frame is skipped without error. Missing values are
// never flagged.
package qc

import (
	"context"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/metdata-etl/internal/domain"
	"github.com/couchcryptid/metdata-etl/internal/stats"
)

// madScale makes the MAD a consistent estimator of the standard deviation
// for normally distributed data.
const madScale = 1.4826

// Range flags values strictly outside each variable's configured bounds.
// It returns the names of the flag columns written.
func Range(f *domain.Frame, reg *domain.Registry) ([]string, error) {
	var written []string
	for _, v := range reg.Variables {
		if v.Bounds == nil {
			continue
		}
		x, ok := f.Float(v.Name)
		if !ok {
			continue
		}
		lo, hi := v.Bounds.Lo, v.Bounds.Hi
		flags := make([]bool, len(x))
		for i, val := range x {
			flags[i] = val < lo || val > hi
		}
		name := domain.RangeFlag(v.Name)
		if err := f.SetFlag(name, flags); err != nil {
			return written, err
		}
		written = append(written, name)
	}
	return written, nil
}

// SpikeFlags runs the rolling median/MAD test on one series.
func SpikeFlags(x []float64, cfg domain.SpikeConfig) []bool {
	w := stats.Window{Width: cfg.Window, MinPeriods: cfg.MinPeriods}
	med := w.RollingMedian(x)
	resid := make([]float64, len(x))
	for i := range x {
		resid[i] = math.Abs(x[i] - med[i])
	}
	mad := w.RollingMedian(resid)
	flags := make([]bool, len(x))
	for i := range x {
		z := resid[i] / (madScale*mad[i] + cfg.Epsilon)
		flags[i] = z > cfg.Threshold
	}
	return flags
}

// FlatlineFlags flags rows whose centered rolling variance is at or below
// the tolerance. Rows with insufficient window support, and rows whose own
// value is missing, are not flagged.
func FlatlineFlags(x []float64, cfg domain.FlatlineConfig) []bool {
	w := stats.Window{Width: cfg.Window, MinPeriods: cfg.MinPeriods}
	variance := w.RollingVariance(x)
	flags := make([]bool, len(x))
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(variance[i]) {
			continue
		}
		flags[i] = variance[i] <= cfg.Tolerance
	}
	return flags
}

// Spike applies SpikeFlags to every registered spike variable present in f.
func Spike(ctx context.Context, f *domain.Frame, reg *domain.Registry) ([]string, error) {
	var vars []string
	for _, v := range reg.Variables {
		if v.Spike {
			vars = append(vars, v.Name)
		}
	}
	return perVariable(ctx, f, vars, domain.SpikeFlag, func(x []float64) []bool {
		return SpikeFlags(x, reg.Spike)
	})
}

// Flatline applies FlatlineFlags to every registered flatline variable
// present in f.
func Flatline(ctx context.Context, f *domain.Frame, reg *domain.Registry) ([]string, error) {
	var vars []string
	for _, v := range reg.Variables {
		if v.Flatline {
			vars = append(vars, v.Name)
		}
	}
	return perVariable(ctx, f, vars, domain.FlatlineFlag, func(x []float64) []bool {
		return FlatlineFlags(x, reg.Flatline)
	})
}

// perVariable evaluates check on each present variable concurrently and
// writes the results in registry order.
func perVariable(ctx context.Context, f *domain.Frame, vars []string, flagName func(string) string, check func([]float64) []bool) ([]string, error) {
	var present []string
	for _, v := range vars {
		if _, ok := f.Float(v); ok {
			present = append(present, v)
		}
	}
	results := make([][]bool, len(present))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, v := range present {
		x, _ := f.Float(v)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = check(x)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	written := make([]string, 0, len(present))
	for i, v := range present {
		name := flagName(v)
		if err := f.SetFlag(name, results[i]); err != nil {
			return written, err
		}
		written = append(written, name)
	}
	return written, nil
}

type rule struct {
	left, right string
	violated    func(l, r, tol float64) bool
}

var rules = []rule{
	{domain.VarDewPoint, domain.VarTemp, func(td, t, tol float64) bool { return td > t+tol }},
	{domain.VarWindChill, domain.VarTemp, func(wc, t, tol float64) bool { return wc > t+tol }},
	{domain.VarHeatIndex, domain.VarTemp, func(hi, t, tol float64) bool { return hi < t-tol }},
}

// Consistency evaluates the cross-variable physical invariants and writes
// their OR into qc_consistency. A rule contributes only where both of its
// operands are present. The column is not written when no rule applies.
func Consistency(f *domain.Frame, reg *domain.Registry) (bool, error) {
	n := f.Len()
	flags := make([]bool, n)
	applied := false
	tol := reg.Consistency.Tolerance

	for _, r := range rules {
		l, okL := f.Float(r.left)
		rv, okR := f.Float(r.right)
		if !okL || !okR {
			continue
		}
		applied = true
		for i := range n {
			if math.IsNaN(l[i]) || math.IsNaN(rv[i]) {
				continue
			}
			if r.violated(l[i], rv[i], tol) {
				flags[i] = true
			}
		}
	}

	wspd, okS := f.Float(domain.VarWspd)
	wdir, okD := f.Float(domain.VarWdir)
	if okS && okD {
		applied = true
		for i := range n {
			if math.IsNaN(wspd[i]) || math.IsNaN(wdir[i]) {
				continue
			}
			if wspd[i] <= reg.Consistency.CalmThreshold {
				flags[i] = true
			}
		}
	}

	if !applied {
		return false, nil
	}
	return true, f.SetFlag(domain.FlagConsistency, flags)
}

// Any writes qc_any as the OR of every other qc_* column.
func Any(f *domain.Frame) error {
	out := make([]bool, f.Len())
	for _, name := range f.FlagColumns() {
		if name == domain.FlagAny || !domain.IsQCFlag(name) {
			continue
		}
		col, _ := f.Flag(name)
		for i, b := range col {
			out[i] = out[i] || b
		}
	}
	return f.SetFlag(domain.FlagAny, out)
}
