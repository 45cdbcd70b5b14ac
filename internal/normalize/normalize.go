package normalize

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/couchcryptid/metdata-etl/internal/domain"
	"github.com/couchcryptid/metdata-etl/internal/units"
)

// ToUTC converts the index to UTC, sorts rows by time (stable) and drops
// later rows that repeat an earlier timestamp. It returns the new frame and
// the number of duplicates dropped.
func ToUTC(f *domain.Frame) (*domain.Frame, int) {
	index := f.Index()
	for i, t := range index {
		index[i] = t.UTC()
	}
	rows := make([]int, len(index))
	for i := range rows {
		rows[i] = i
	}
	sort.SliceStable(rows, func(a, b int) bool { return index[rows[a]].Before(index[rows[b]]) })

	kept := make([]int, 0, len(rows))
	sorted := make([]time.Time, 0, len(rows))
	for _, r := range rows {
		if n := len(sorted); n > 0 && sorted[n-1].Equal(index[r]) {
			continue
		}
		kept = append(kept, r)
		sorted = append(sorted, index[r])
	}
	return f.Take(sorted, kept), len(rows) - len(kept)
}

// NormalizeUnits converts each mapped field with a declared unit to its
// canonical unit in place. Unknown units are reported as warnings, or
// rejected when the registry's unit policy is strict.
func NormalizeUnits(f *domain.Frame, m domain.Mapping, reg *domain.Registry) ([]string, error) {
	var warnings []string
	for _, name := range reg.Canonical() {
		fm, ok := m.Fields[name]
		if !ok {
			continue
		}
		x, ok := f.Float(name)
		if !ok {
			continue
		}
		conv, res := units.ForVariable(name, fm.Unit)
		switch res {
		case units.NoConversion:
			continue
		case units.Unknown:
			if reg.UnitPolicy == domain.UnitPolicyStrict {
				return warnings, domain.ConfigError("normalize units", fmt.Errorf("%w: %q for %s", domain.ErrUnknownUnit, fm.Unit, name))
			}
			warnings = append(warnings, fmt.Sprintf("%s: unknown unit %q left unconverted", name, fm.Unit))
			continue
		}
		if err := f.SetFloat(name, units.Apply(x, conv)); err != nil {
			return warnings, err
		}
	}
	return warnings, nil
}

// InferFrequency derives the sampling interval from a strictly increasing
// index. The interval is the most common step (ties go to the shorter one);
// every step must be a whole multiple of it and at least half of the steps
// must equal it. Anything else is irregular sampling.
func InferFrequency(index []time.Time) (time.Duration, error) {
	const op = "infer frequency"
	if len(index) < 3 {
		return 0, domain.DataError(op, "", fmt.Errorf("%w: need at least 3 timestamps, have %d", domain.ErrIrregularSampling, len(index)))
	}
	counts := make(map[time.Duration]int)
	diffs := make([]time.Duration, len(index)-1)
	for i := 1; i < len(index); i++ {
		d := index[i].Sub(index[i-1])
		if d <= 0 {
			return 0, domain.DataError(op, "", fmt.Errorf("index is not strictly increasing at row %d", i))
		}
		diffs[i-1] = d
		counts[d]++
	}

	var base time.Duration
	best := 0
	for d, c := range counts {
		if c > best || (c == best && d < base) {
			base, best = d, c
		}
	}
	if 2*best < len(diffs) {
		return 0, domain.DataError(op, "", fmt.Errorf("%w: most common step %s covers %d of %d intervals", domain.ErrIrregularSampling, base, best, len(diffs)))
	}
	for _, d := range diffs {
		if d%base != 0 {
			return 0, domain.DataError(op, "", fmt.Errorf("%w: step %s is not a multiple of %s", domain.ErrIrregularSampling, d, base))
		}
	}
	return base, nil
}

// InsertMissing reindexes f onto a regular grid from its first to its last
// timestamp. Synthesized rows carry gap=true with every other field
// missing; existing rows keep their gap value (false when the column is
// new). A zero freq is inferred. It returns the new frame, the frequency
// used and the number of rows inserted.
func InsertMissing(f *domain.Frame, freq time.Duration) (*domain.Frame, time.Duration, int, error) {
	const op = "insert missing"
	index := f.Index()
	if freq < 0 {
		return nil, 0, 0, domain.ConfigError(op, fmt.Errorf("negative frequency %s", freq))
	}
	if freq == 0 {
		var err error
		if freq, err = InferFrequency(index); err != nil {
			return nil, 0, 0, err
		}
	}
	if len(index) == 0 {
		return f.Clone(), freq, 0, nil
	}

	start := index[0]
	slots, err := gridSlots(op, index[len(index)-1].Sub(start), freq)
	if err != nil {
		return nil, 0, 0, err
	}
	rows := make([]int, slots)
	for i := range rows {
		rows[i] = -1
	}
	for i, t := range index {
		if i > 0 && !t.After(index[i-1]) {
			return nil, 0, 0, domain.DataError(op, "", fmt.Errorf("index is not strictly increasing at row %d", i))
		}
		off := t.Sub(start)
		if off%freq != 0 {
			return nil, 0, 0, domain.DataError(op, "", fmt.Errorf("%w: %s with step %s", domain.ErrOffGrid, t.Format(time.RFC3339), freq))
		}
		rows[off/freq] = i
	}

	grid := make([]time.Time, slots)
	for i := range grid {
		grid[i] = start.Add(time.Duration(i) * freq)
	}

	prevGap, hadGap := f.Flag(domain.ColGap)
	out := f.Take(grid, rows)
	gap := make([]bool, slots)
	inserted := 0
	for i, r := range rows {
		switch {
		case r < 0:
			gap[i] = true
			inserted++
		case hadGap:
			gap[i] = prevGap[r]
		}
	}
	if err := out.SetFlag(domain.ColGap, gap); err != nil {
		return nil, 0, 0, err
	}
	return out, freq, inserted, nil
}

// MaxGridRows caps the rows a reindexed or resampled frame may hold.
const MaxGridRows = 10_000_000

// gridSlots returns the number of freq-wide slots covering span, rejecting
// grids above MaxGridRows before anything is allocated.
func gridSlots(op string, span, freq time.Duration) (int, error) {
	n := span / freq
	if n >= MaxGridRows {
		return 0, domain.ConfigError(op, fmt.Errorf("%w: step %s over %s needs more than %d rows", domain.ErrGridTooLarge, freq, span, MaxGridRows))
	}
	return int(n) + 1, nil
}

// FixAccumRain converts a cumulative rain counter into per-interval amounts.
// Each value is differenced against the last valid reading; the first valid
// reading becomes 0. A negative difference is treated as a counter reset and
// the raw reading is kept as the increment. This reset rule is a heuristic
// for tipping-bucket loggers, not a general correction. Missing readings
// stay missing. It reports whether the rain column was present.
func FixAccumRain(f *domain.Frame) (bool, error) {
	x, ok := f.Float(domain.VarRain)
	if !ok {
		return false, nil
	}
	out := make([]float64, len(x))
	last := math.NaN()
	for i, v := range x {
		switch {
		case math.IsNaN(v):
			out[i] = v
			continue
		case math.IsNaN(last):
			out[i] = 0
		case v-last < 0:
			out[i] = v
		default:
			out[i] = v - last
		}
		last = v
	}
	return true, f.SetFloat(domain.VarRain, out)
}
