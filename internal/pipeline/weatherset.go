package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/metdata-etl/internal/derive"
	"github.com/couchcryptid/metdata-etl/internal/domain"
	"github.com/couchcryptid/metdata-etl/internal/normalize"
	"github.com/couchcryptid/metdata-etl/internal/qc"
)

// HistoryEntry records one applied stage for provenance.
type HistoryEntry struct {
	At     time.Time `json:"at"`
	Stage  string    `json:"stage"`
	Detail string    `json:"detail,omitempty"`
}

func (h HistoryEntry) String() string {
	s := h.At.Format(time.RFC3339) + " " + h.Stage
	if h.Detail != "" {
		s += ": " + h.Detail
	}
	return s
}

// WeatherSet is a transformation chain that owns its frame exclusively.
// Every stage replaces or augments the owned frame and returns the same
// WeatherSet. The first failing stage records its error and turns every
// later stage into a no-op; check Err once at the end of the chain.
//
// A WeatherSet is not safe for concurrent use.
type WeatherSet struct {
	frame    *domain.Frame
	reg      *domain.Registry
	mapping  domain.Mapping
	freq     time.Duration
	history  []HistoryEntry
	warnings []string
	err      error
}

// FromMapping ingests a raw table through a mapping descriptor. The mapping
// is retained for NormalizeUnits.
func FromMapping(raw domain.RawTable, m domain.Mapping, reg *domain.Registry) *WeatherSet {
	w := &WeatherSet{reg: reg, mapping: m}
	f, warnings, err := normalize.FromMapping(raw, m, reg)
	if err != nil {
		w.err = err
		return w
	}
	w.frame = f
	w.warn(warnings...)
	w.record("from_mapping", "%d rows, %d columns", f.Len(), len(f.Columns()))
	return w
}

func (w *WeatherSet) record(stage, format string, args ...any) {
	w.history = append(w.history, HistoryEntry{
		At:     domain.Now(),
		Stage:  stage,
		Detail: fmt.Sprintf(format, args...),
	})
}

func (w *WeatherSet) warn(msgs ...string) {
	w.warnings = append(w.warnings, msgs...)
}

// ToUTC coerces the index to UTC, sorts it and drops duplicate timestamps.
func (w *WeatherSet) ToUTC() *WeatherSet {
	if w.err != nil {
		return w
	}
	f, dropped := normalize.ToUTC(w.frame)
	w.frame = f
	if dropped > 0 {
		w.warn(fmt.Sprintf("dropped %d duplicate timestamps", dropped))
	}
	w.record("to_utc", "%d duplicates dropped", dropped)
	return w
}

// NormalizeUnits converts mapped fields to canonical units.
func (w *WeatherSet) NormalizeUnits() *WeatherSet {
	if w.err != nil {
		return w
	}
	warnings, err := normalize.NormalizeUnits(w.frame, w.mapping, w.reg)
	if err != nil {
		w.err = err
		return w
	}
	w.warn(warnings...)
	w.record("normalize_units", "")
	return w
}

// InsertMissing regularizes the grid. A zero freq is inferred.
func (w *WeatherSet) InsertMissing(freq time.Duration) *WeatherSet {
	if w.err != nil {
		return w
	}
	f, used, inserted, err := normalize.InsertMissing(w.frame, freq)
	if err != nil {
		w.err = err
		return w
	}
	w.frame = f
	w.freq = used
	w.record("insert_missing", "freq %s, %d gap rows", used, inserted)
	return w
}

// FixAccumRain converts a cumulative rain counter into increments.
func (w *WeatherSet) FixAccumRain() *WeatherSet {
	if w.err != nil {
		return w
	}
	present, err := normalize.FixAccumRain(w.frame)
	if err != nil {
		w.err = err
		return w
	}
	if !present {
		w.warn("fix_accum_rain skipped: no rain column")
		return w
	}
	w.record("fix_accum_rain", "")
	return w
}

// QCRange applies the range check.
func (w *WeatherSet) QCRange() *WeatherSet {
	if w.err != nil {
		return w
	}
	written, err := qc.Range(w.frame, w.reg)
	if err != nil {
		w.err = err
		return w
	}
	w.record("qc_range", "%s", strings.Join(written, ","))
	return w
}

// QCSpike applies the rolling median/MAD spike check.
func (w *WeatherSet) QCSpike(ctx context.Context) *WeatherSet {
	if w.err != nil {
		return w
	}
	written, err := qc.Spike(ctx, w.frame, w.reg)
	if err != nil {
		w.err = err
		return w
	}
	w.record("qc_spike", "window %d, threshold %g: %s", w.reg.Spike.Window, w.reg.Spike.Threshold, strings.Join(written, ","))
	return w
}

// QCFlatline applies the rolling variance flatline check.
func (w *WeatherSet) QCFlatline(ctx context.Context) *WeatherSet {
	if w.err != nil {
		return w
	}
	written, err := qc.Flatline(ctx, w.frame, w.reg)
	if err != nil {
		w.err = err
		return w
	}
	w.record("qc_flatline", "window %d, tolerance %g: %s", w.reg.Flatline.Window, w.reg.Flatline.Tolerance, strings.Join(written, ","))
	return w
}

// QCConsistency applies the cross-variable checks. Run it after Derive so
// the derived operands exist.
func (w *WeatherSet) QCConsistency() *WeatherSet {
	if w.err != nil {
		return w
	}
	applied, err := qc.Consistency(w.frame, w.reg)
	if err != nil {
		w.err = err
		return w
	}
	if !applied {
		w.warn("qc_consistency skipped: no variable pair present")
		return w
	}
	w.record("qc_consistency", "")
	return w
}

// QCAny recomputes qc_any from every other flag column.
func (w *WeatherSet) QCAny() *WeatherSet {
	if w.err != nil {
		return w
	}
	if err := qc.Any(w.frame); err != nil {
		w.err = err
		return w
	}
	w.record("qc_any", "")
	return w
}

// Derive adds the named derived metrics.
func (w *WeatherSet) Derive(metrics ...string) *WeatherSet {
	if w.err != nil {
		return w
	}
	added, skipped, err := derive.Apply(w.frame, metrics)
	if err != nil {
		w.err = err
		return w
	}
	for _, name := range skipped {
		w.warn(fmt.Sprintf("derive %s skipped: inputs missing", name))
	}
	w.record("derive", "%s", strings.Join(added, ","))
	return w
}

// Resample aggregates onto a coarser grid.
func (w *WeatherSet) Resample(freq time.Duration, overrides map[string]domain.Agg) *WeatherSet {
	if w.err != nil {
		return w
	}
	f, err := normalize.Resample(w.frame, freq, w.reg, overrides)
	if err != nil {
		w.err = err
		return w
	}
	w.frame = f
	w.freq = freq
	w.record("resample", "freq %s, %d rows", freq, f.Len())
	return w
}

// CalendarFeatures adds time-of-day and seasonal columns.
func (w *WeatherSet) CalendarFeatures(cyclical bool) *WeatherSet {
	if w.err != nil {
		return w
	}
	if _, err := normalize.CalendarFeatures(w.frame, cyclical); err != nil {
		w.err = err
		return w
	}
	w.record("calendar_features", "cyclical=%t", cyclical)
	return w
}

// Err returns the first stage error, if any.
func (w *WeatherSet) Err() error { return w.err }

// Frame returns a copy of the owned frame, or the chain's error.
func (w *WeatherSet) Frame() (*domain.Frame, error) {
	if w.err != nil {
		return nil, w.err
	}
	return w.frame.Clone(), nil
}

// Frequency is the sampling interval set by InsertMissing or Resample.
func (w *WeatherSet) Frequency() time.Duration { return w.freq }

// History returns the applied stages in order.
func (w *WeatherSet) History() []HistoryEntry {
	return append([]HistoryEntry(nil), w.history...)
}

// Warnings returns the non-fatal issues collected so far.
func (w *WeatherSet) Warnings() []string {
	return append([]string(nil), w.warnings...)
}
